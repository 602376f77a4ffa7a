// Package transport defines the messaging transport port and its WhatsApp
// bridge implementation. The bridge process owns device pairing and session
// storage; VoxBill only consumes message envelopes and emits text replies.
package transport

import "context"

// ContentKind classifies an envelope's payload.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindAudio ContentKind = "audio"
	KindOther ContentKind = "other"
)

// Envelope is one delivered message. Delivery is at-least-once; MessageID is
// the de-duplication key.
type Envelope struct {
	MessageID string      `json:"message_id"`
	ChatID    string      `json:"chat_id"` // e.g. "33612345678@s.whatsapp.net" or "...@g.us"
	SenderID  string      `json:"sender_id"`
	FromMe    bool        `json:"from_me"`
	Kind      ContentKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	Audio     []byte      `json:"audio,omitempty"`
	AudioMime string      `json:"audio_mime,omitempty"`
}

// ConnState is the transport connection lifecycle state.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateWaitingQR    ConnState = "waiting_qr"
	StateDisconnected ConnState = "disconnected"
	StateLoggedOut    ConnState = "logged_out"
	StateError        ConnState = "error"
)

// Status is a connection status report from the transport.
type Status struct {
	State     ConnState `json:"state"`
	OwnNumber string    `json:"own_number,omitempty"`
	QR        string    `json:"qr,omitempty"` // data-URL QR payload while pairing
	Err       string    `json:"error,omitempty"`
}

// Transport is the messaging port a bot runtime talks through.
type Transport interface {
	// Connect establishes the transport connection and starts delivery.
	Connect(ctx context.Context) error
	// Disconnect tears down the connection, preserving the device session.
	Disconnect(ctx context.Context) error
	// Logout tears down the connection and clears the device session.
	Logout(ctx context.Context) error
	// SendText delivers a text reply to a chat.
	SendText(ctx context.Context, chatID, text string) error
	// OnReceive registers the envelope callback. Must be set before Connect.
	// The callback runs on the transport read loop and must return quickly;
	// slow work belongs on its own goroutine.
	OnReceive(handler func(Envelope))
	// OnStatus registers the connection status callback.
	OnStatus(handler func(Status))
	// IsConnected reports the current connection state.
	IsConnected() bool
}
