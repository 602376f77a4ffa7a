package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbill/voxbill/pkg/logger"
)

const (
	writeTimeout     = 10 * time.Second
	reconnectDelay   = 5 * time.Second
	pingInterval     = 30 * time.Second
	maxFrameSize     = 32 << 20 // voice notes arrive base64-encoded inline
)

// bridgeFrame is the wire format spoken with the WhatsApp bridge process.
// The bridge sends "message", "status" and "qr" frames; we send "send" and
// "logout" frames.
type bridgeFrame struct {
	Type string `json:"type"`

	// message fields
	MessageID string `json:"message_id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	SenderID  string `json:"sender_id,omitempty"`
	FromMe    bool   `json:"from_me,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Text      string `json:"text,omitempty"`
	Audio     string `json:"audio,omitempty"` // base64
	AudioMime string `json:"audio_mime,omitempty"`

	// status fields
	State     string `json:"state,omitempty"`
	OwnNumber string `json:"own_number,omitempty"`
	QR        string `json:"qr,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BridgeClient is a Transport backed by a WebSocket connection to a WhatsApp
// bridge. It reconnects on close until the connect context is cancelled.
type BridgeClient struct {
	url   string
	botID string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc

	onReceive func(Envelope)
	onStatus  func(Status)
}

// NewBridgeClient creates a bridge transport for one bot.
func NewBridgeClient(botID, url string) *BridgeClient {
	return &BridgeClient{url: url, botID: botID}
}

// OnReceive registers the envelope callback.
func (b *BridgeClient) OnReceive(handler func(Envelope)) {
	b.mu.Lock()
	b.onReceive = handler
	b.mu.Unlock()
}

// OnStatus registers the status callback.
func (b *BridgeClient) OnStatus(handler func(Status)) {
	b.mu.Lock()
	b.onStatus = handler
	b.mu.Unlock()
}

// IsConnected reports whether the bridge socket is up.
func (b *BridgeClient) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Connect dials the bridge and starts the read loop. The loop reconnects on
// close until the context is cancelled or Disconnect is called.
func (b *BridgeClient) Connect(ctx context.Context) error {
	if b.url == "" {
		return fmt.Errorf("bridge url not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	b.emitStatus(Status{State: StateConnecting})

	if err := b.dial(runCtx); err != nil {
		// First dial failure is fatal to Connect; later drops reconnect.
		cancel()
		b.emitStatus(Status{State: StateError, Err: err.Error()})
		return err
	}

	go b.run(runCtx)
	return nil
}

func (b *BridgeClient) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", b.url, err)
	}
	conn.SetReadLimit(maxFrameSize)

	b.mu.Lock()
	b.conn = conn
	b.connected = true
	b.mu.Unlock()

	logger.InfoCF("bridge", "Connected to WhatsApp bridge", map[string]interface{}{
		"bot": b.botID,
	})
	return nil
}

func (b *BridgeClient) run(ctx context.Context) {
	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pinger.C:
				b.mu.RLock()
				conn := b.conn
				b.mu.RUnlock()
				if conn != nil {
					conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
				}
			}
		}
	}()

	for {
		b.mu.RLock()
		conn := b.conn
		b.mu.RUnlock()

		if conn != nil {
			b.readLoop(ctx, conn)
		}

		b.mu.Lock()
		b.connected = false
		b.conn = nil
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			b.emitStatus(Status{State: StateDisconnected})
			return
		case <-time.After(reconnectDelay):
		}

		b.emitStatus(Status{State: StateConnecting})
		if err := b.dial(ctx); err != nil {
			logger.WarnCF("bridge", "Reconnect failed", map[string]interface{}{
				"bot":   b.botID,
				"error": err.Error(),
			})
		}
	}
}

// readLoop consumes frames until the connection drops.
func (b *BridgeClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.DebugC("bridge", "Read loop ended: "+err.Error())
			conn.Close()
			return
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.WarnCF("bridge", "Malformed bridge frame", map[string]interface{}{
				"bot":   b.botID,
				"error": err.Error(),
			})
			continue
		}

		b.dispatch(frame)
	}
}

func (b *BridgeClient) dispatch(frame bridgeFrame) {
	switch frame.Type {
	case "message":
		env := Envelope{
			MessageID: frame.MessageID,
			ChatID:    frame.ChatID,
			SenderID:  frame.SenderID,
			FromMe:    frame.FromMe,
			Kind:      ContentKind(frame.Kind),
			Text:      frame.Text,
			AudioMime: frame.AudioMime,
		}
		if env.Kind != KindText && env.Kind != KindAudio {
			env.Kind = KindOther
		}
		if frame.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				logger.WarnC("bridge", "Undecodable audio payload, dropping envelope")
				return
			}
			env.Audio = audio
		}
		b.mu.RLock()
		handler := b.onReceive
		b.mu.RUnlock()
		if handler != nil {
			handler(env)
		}

	case "status":
		b.emitStatus(Status{
			State:     ConnState(frame.State),
			OwnNumber: frame.OwnNumber,
			Err:       frame.Error,
		})

	case "qr":
		b.emitStatus(Status{State: StateWaitingQR, QR: frame.QR})
	}
}

func (b *BridgeClient) emitStatus(st Status) {
	b.mu.RLock()
	handler := b.onStatus
	b.mu.RUnlock()
	if handler != nil {
		handler(st)
	}
}

func (b *BridgeClient) writeFrame(frame bridgeFrame) error {
	b.mu.RLock()
	conn := b.conn
	connected := b.connected
	b.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("bridge not connected")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// SendText delivers a text message through the bridge.
func (b *BridgeClient) SendText(ctx context.Context, chatID, text string) error {
	return b.writeFrame(bridgeFrame{Type: "send", ChatID: chatID, Text: text})
}

// Disconnect closes the socket and stops reconnecting. The device session on
// the bridge side is preserved.
func (b *BridgeClient) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	conn := b.conn
	b.cancel = nil
	b.conn = nil
	b.connected = false
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop"),
			time.Now().Add(writeTimeout))
		conn.Close()
	}
	return nil
}

// Logout asks the bridge to clear the device session, then disconnects.
func (b *BridgeClient) Logout(ctx context.Context) error {
	if err := b.writeFrame(bridgeFrame{Type: "logout"}); err != nil {
		logger.WarnC("bridge", "Logout frame not delivered: "+err.Error())
	}
	return b.Disconnect(ctx)
}

var _ Transport = (*BridgeClient)(nil)
