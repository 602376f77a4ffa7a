package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voxbill/voxbill/pkg/bus"
	"github.com/voxbill/voxbill/pkg/classify"
	"github.com/voxbill/voxbill/pkg/config"
	"github.com/voxbill/voxbill/pkg/logger"
	"github.com/voxbill/voxbill/pkg/transcribe"
	"github.com/voxbill/voxbill/pkg/transport"
)

const componentBot = "bot"

const dedupeCap = 500

const helpText = `🤖 Assistant de facturation

Envoyez-moi un message vocal décrivant la facture à créer : le client, la prestation et le montant. Je vous poserai des questions si des informations manquent, puis je vous demanderai confirmation avant de générer la facture.

Commandes :
• aide — afficher ce message
• annuler — abandonner la facture en cours

Commandes administrateur (dans votre propre discussion) :
• bot on / bot off / bot status`

const msgNoSpeech = "Je n'ai pas pu comprendre ce message vocal. Pouvez-vous le renvoyer en parlant distinctement ?"

// Conversation is the flow engine the runtime drives.
type Conversation interface {
	HandleUtterance(ctx context.Context, senderKey, utterance string) string
	HandleCancel(ctx context.Context, senderKey string) string
}

// Options wires one runtime's collaborators.
type Options struct {
	BotID       string
	Settings    config.BotSettings
	Transport   transport.Transport
	Transcriber transcribe.Transcriber
	Flow        Conversation
	Bus         *bus.MessageBus
	Enabled     bool
	// OnEnabledChange persists enabled-flag flips from admin commands.
	OnEnabledChange func(enabled bool)
}

// Runtime is one running bot. Envelopes for the same sender are serialized;
// different senders proceed in parallel.
type Runtime struct {
	botID       string
	settings    config.BotSettings
	transport   transport.Transport
	transcriber transcribe.Transcriber
	flow        Conversation
	bus         *bus.MessageBus
	classifier  *classify.Classifier

	onEnabledChange func(bool)

	mu        sync.Mutex
	enabled   bool
	running   bool
	startedAt time.Time
	status    transport.Status
	qr        string

	lockMu      sync.Mutex
	senderLocks map[string]*senderLock
	inflight    sync.WaitGroup
}

// senderLock serializes one sender's pipeline work. refs counts envelopes
// holding or waiting for the lock; the entry is reaped at zero so the map
// only ever holds senders with work in flight.
type senderLock struct {
	mu   sync.Mutex
	refs int
}

func NewRuntime(opts Options) *Runtime {
	r := &Runtime{
		botID:           opts.BotID,
		settings:        opts.Settings,
		transport:       opts.Transport,
		transcriber:     opts.Transcriber,
		flow:            opts.Flow,
		bus:             opts.Bus,
		classifier:      classify.New(dedupeCap),
		onEnabledChange: opts.OnEnabledChange,
		enabled:         opts.Enabled,
		senderLocks:     make(map[string]*senderLock),
	}
	r.transport.OnStatus(r.handleStatus)
	r.transport.OnReceive(r.handleEnvelope)
	return r
}

// Start connects the transport and begins processing.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.startedAt = time.Now().UTC()
	r.mu.Unlock()

	if err := r.transport.Connect(ctx); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	logger.InfoCF(componentBot, "bot started", map[string]interface{}{"bot": r.botID})
	r.publishEvent("bot.started", nil)
	return nil
}

// Stop disconnects the transport, keeping the device session paired.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	err := r.transport.Disconnect(ctx)
	r.drain(ctx)
	logger.InfoCF(componentBot, "bot stopped", map[string]interface{}{"bot": r.botID})
	r.publishEvent("bot.stopped", nil)
	return err
}

// drain waits for in-flight pipeline work, giving up at the context deadline.
func (r *Runtime) drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.WarnCF(componentBot, "shutdown with pipelines still running", map[string]interface{}{
			"bot": r.botID,
		})
	}
}

// Logout disconnects and clears the device pairing; the next start needs a
// fresh QR scan.
func (r *Runtime) Logout(ctx context.Context) error {
	r.mu.Lock()
	r.running = false
	r.qr = ""
	r.mu.Unlock()

	err := r.transport.Logout(ctx)
	r.drain(ctx)
	logger.InfoCF(componentBot, "bot logged out", map[string]interface{}{"bot": r.botID})
	r.publishEvent("bot.logged_out", nil)
	return err
}

// SetEnabled flips the processing gate. Admin commands and the API both land
// here; the change is persisted through OnEnabledChange.
func (r *Runtime) SetEnabled(enabled bool) {
	r.mu.Lock()
	changed := r.enabled != enabled
	r.enabled = enabled
	r.mu.Unlock()
	if !changed {
		return
	}
	if r.onEnabledChange != nil {
		r.onEnabledChange(enabled)
	}
	r.publishEvent("bot.enabled", map[string]bool{"enabled": enabled})
}

func (r *Runtime) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// QR returns the current pairing QR payload, empty when already paired.
func (r *Runtime) QR() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.qr
}

// Status reports the runtime's live state.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		BotID:     r.botID,
		Running:   r.running,
		Enabled:   r.enabled,
		Connected: r.status.State == transport.StateConnected,
		ConnState: r.status.State,
		OwnNumber: r.status.OwnNumber,
		StartedAt: r.startedAt,
		LastError: r.status.Err,
	}
}

func (r *Runtime) handleStatus(st transport.Status) {
	r.mu.Lock()
	r.status = st
	switch st.State {
	case transport.StateWaitingQR:
		r.qr = st.QR
	case transport.StateConnected, transport.StateLoggedOut:
		r.qr = ""
	}
	r.mu.Unlock()

	logger.InfoCF(componentBot, "transport status", map[string]interface{}{
		"bot":   r.botID,
		"state": string(st.State),
	})
	r.publishEvent("bot.transport."+string(st.State), nil)
}

func (r *Runtime) handleEnvelope(env transport.Envelope) {
	r.mu.Lock()
	enabled := r.enabled
	ownNumber := r.status.OwnNumber
	r.mu.Unlock()

	policy := classify.AudioPolicy{
		OnReceive:          r.settings.ReceiveEnabled(),
		OnSend:             r.settings.SendEnabled(),
		ReceiveFromNumbers: r.settings.ReceiveFromNumbers,
		SendToNumbers:      r.settings.SendToNumbers,
	}

	verdict := r.classifier.Classify(env, ownNumber, enabled, policy)
	switch verdict.Action {
	case classify.ActionDrop:
		if verdict.Duplicate {
			logger.DebugCF(componentBot, "duplicate delivery dropped", map[string]interface{}{
				"bot":     r.botID,
				"message": env.MessageID,
			})
		}
		return

	case classify.ActionAdminCommand:
		r.runAdminCommand(env.ChatID, verdict.Command)
		return

	case classify.ActionAudio:
		r.inflight.Add(1)
		go r.runLocked(senderKey(env), func(ctx context.Context) {
			r.processAudio(ctx, env, verdict.Outgoing)
		})

	case classify.ActionText:
		r.inflight.Add(1)
		go r.runLocked(senderKey(env), func(ctx context.Context) {
			r.processText(ctx, env)
		})
	}
}

// senderKey is the conversation key: the counterpart's normalized number,
// regardless of message direction.
func senderKey(env transport.Envelope) string {
	return classify.NormalizeNumber(classify.ChatNumber(env.ChatID))
}

// runLocked serializes pipeline work per sender so two voice notes from the
// same person cannot interleave their order updates. It runs on its own
// goroutine so a slow pipeline never stalls the transport read loop.
func (r *Runtime) runLocked(key string, fn func(ctx context.Context)) {
	defer r.inflight.Done()

	r.lockMu.Lock()
	lock, ok := r.senderLocks[key]
	if !ok {
		lock = &senderLock{}
		r.senderLocks[key] = lock
	}
	lock.refs++
	r.lockMu.Unlock()

	lock.mu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	fn(ctx)
	cancel()
	lock.mu.Unlock()

	r.lockMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.senderLocks, key)
	}
	r.lockMu.Unlock()
}

func (r *Runtime) runAdminCommand(chatID string, cmd classify.AdminCommand) {
	var reply string
	switch cmd {
	case classify.CommandOn:
		r.SetEnabled(true)
		reply = "🤖 Bot activé ✅"
	case classify.CommandOff:
		r.SetEnabled(false)
		reply = "🤖 Bot désactivé ⏸️"
	case classify.CommandStatus:
		reply = r.statusText()
	}
	logger.InfoCF(componentBot, "admin command", map[string]interface{}{
		"bot":     r.botID,
		"command": string(cmd),
	})
	r.reply(chatID, reply)
}

// statusText renders the "bot status" admin reply: enabled state plus the
// audio activation modes.
func (r *Runtime) statusText() string {
	var b strings.Builder
	if r.Enabled() {
		b.WriteString("🤖 Bot actif ✅\n")
	} else {
		b.WriteString("🤖 Bot désactivé ⏸️\n")
	}
	b.WriteString("• Vocaux reçus : " + onOff(r.settings.ReceiveEnabled()) + "\n")
	b.WriteString("• Vocaux envoyés : " + onOff(r.settings.SendEnabled()))
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "activés"
	}
	return "désactivés"
}

func (r *Runtime) processAudio(ctx context.Context, env transport.Envelope, outgoing bool) {
	text, err := r.transcriber.Transcribe(ctx, env.Audio, env.AudioMime)
	replyChat := r.replyChat(env, outgoing)
	if err != nil {
		logger.WarnCF(componentBot, "transcription failed", map[string]interface{}{
			"bot":   r.botID,
			"error": err.Error(),
		})
		r.reply(replyChat, msgNoSpeech)
		return
	}
	if text == "" {
		r.reply(replyChat, msgNoSpeech)
		return
	}

	r.publishInbound(env, "audio", text)

	answer := r.flow.HandleUtterance(ctx, senderKey(env), text)
	r.reply(replyChat, "🎤 « "+text+" »\n\n"+answer)
}

func (r *Runtime) processText(ctx context.Context, env transport.Envelope) {
	text := strings.TrimSpace(env.Text)
	key := senderKey(env)

	switch strings.ToLower(text) {
	case "aide", "help":
		r.reply(env.ChatID, helpText)
		return
	case "annuler":
		r.publishInbound(env, "text", text)
		r.reply(env.ChatID, r.flow.HandleCancel(ctx, key))
		return
	}

	r.publishInbound(env, "text", text)
	r.reply(env.ChatID, r.flow.HandleUtterance(ctx, key, text))
}

// replyChat picks where the reply goes. For voice notes the bot itself sent
// to someone, the recap goes to the bot's own chat so the counterpart never
// sees the assistant chatter.
func (r *Runtime) replyChat(env transport.Envelope, outgoing bool) string {
	if !outgoing {
		return env.ChatID
	}
	r.mu.Lock()
	own := r.status.OwnNumber
	r.mu.Unlock()
	if own == "" {
		return env.ChatID
	}
	return classify.NormalizeNumber(own) + "@s.whatsapp.net"
}

func (r *Runtime) reply(chatID, text string) {
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := r.transport.SendText(ctx, chatID, text); err != nil {
		logger.ErrorCF(componentBot, "send reply failed", map[string]interface{}{
			"bot":   r.botID,
			"chat":  chatID,
			"error": err.Error(),
		})
		return
	}
	if r.bus != nil {
		r.bus.PublishOutbound(bus.OutboundMessage{
			BotID:   r.botID,
			ChatID:  chatID,
			Content: text,
		})
	}
}

func (r *Runtime) publishInbound(env transport.Envelope, kind, content string) {
	if r.bus == nil {
		return
	}
	r.bus.PublishInbound(bus.InboundMessage{
		BotID:     r.botID,
		MessageID: env.MessageID,
		ChatID:    env.ChatID,
		SenderID:  env.SenderID,
		Kind:      kind,
		Content:   content,
	})
}

func (r *Runtime) publishEvent(eventType string, data interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.PublishSystem(bus.SystemEvent{
		Type:   eventType,
		Source: r.botID,
		Data:   data,
	})
}
