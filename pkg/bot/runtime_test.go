package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbill/voxbill/pkg/bus"
	"github.com/voxbill/voxbill/pkg/config"
	"github.com/voxbill/voxbill/pkg/transport"
)

type fakeTransport struct {
	mu        sync.Mutex
	onReceive func(transport.Envelope)
	onStatus  func(transport.Status)
	sent      []sentMsg
	connected bool
	loggedOut bool
}

type sentMsg struct {
	chatID string
	text   string
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.loggedOut = true
	return nil
}

func (f *fakeTransport) SendText(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) OnReceive(h func(transport.Envelope)) { f.onReceive = h }
func (f *fakeTransport) OnStatus(h func(transport.Status))    { f.onStatus = h }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) lastSent(t *testing.T) sentMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mime string) (string, error) {
	return f.text, f.err
}

type fakeFlow struct {
	mu         sync.Mutex
	utterances []string
	cancels    int
	reply      string
}

func (f *fakeFlow) HandleUtterance(ctx context.Context, senderKey, utterance string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.utterances = append(f.utterances, utterance)
	return f.reply
}

func (f *fakeFlow) HandleCancel(ctx context.Context, senderKey string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return "Commande annulée."
}

type fixture struct {
	runtime     *Runtime
	transport   *fakeTransport
	transcriber *fakeTranscriber
	flow        *fakeFlow
}

func newFixture(t *testing.T, settings config.BotSettings) *fixture {
	t.Helper()
	f := &fixture{
		transport:   &fakeTransport{},
		transcriber: &fakeTranscriber{text: "facture pour Dupont"},
		flow:        &fakeFlow{reply: "Quel est le montant ?"},
	}
	f.runtime = NewRuntime(Options{
		BotID:       "bot-test",
		Settings:    settings,
		Transport:   f.transport,
		Transcriber: f.transcriber,
		Flow:        f.flow,
		Bus:         bus.NewMessageBus(),
		Enabled:     true,
	})
	require.NoError(t, f.runtime.Start(context.Background()))
	f.transport.onStatus(transport.Status{State: transport.StateConnected, OwnNumber: "33600000000"})
	return f
}

// deliver feeds one envelope through the transport callback and waits for
// the pipeline goroutine it may have spawned.
func (f *fixture) deliver(env transport.Envelope) {
	f.transport.onReceive(env)
	f.runtime.inflight.Wait()
}

func audioEnv(id, chatID string, fromMe bool) transport.Envelope {
	return transport.Envelope{
		MessageID: id,
		ChatID:    chatID,
		SenderID:  chatID,
		FromMe:    fromMe,
		Kind:      transport.KindAudio,
		Audio:     []byte{1, 2, 3},
		AudioMime: "audio/ogg",
	}
}

func textEnv(id, chatID, text string, fromMe bool) transport.Envelope {
	return transport.Envelope{
		MessageID: id,
		ChatID:    chatID,
		SenderID:  chatID,
		FromMe:    fromMe,
		Kind:      transport.KindText,
		Text:      text,
	}
}

func TestAudioPipelinePrefixesTranscription(t *testing.T) {
	f := newFixture(t, config.BotSettings{})

	f.deliver(audioEnv("m1", "33611111111@s.whatsapp.net", false))

	sent := f.transport.lastSent(t)
	assert.Equal(t, "33611111111@s.whatsapp.net", sent.chatID)
	assert.Contains(t, sent.text, "🎤 « facture pour Dupont »")
	assert.Contains(t, sent.text, "Quel est le montant ?")

	f.flow.mu.Lock()
	defer f.flow.mu.Unlock()
	assert.Equal(t, []string{"facture pour Dupont"}, f.flow.utterances)
}

func TestEmptyTranscriptionReplies(t *testing.T) {
	f := newFixture(t, config.BotSettings{})
	f.transcriber.text = ""

	f.deliver(audioEnv("m1", "33611111111@s.whatsapp.net", false))

	sent := f.transport.lastSent(t)
	assert.Contains(t, sent.text, "message vocal")
	f.flow.mu.Lock()
	defer f.flow.mu.Unlock()
	assert.Empty(t, f.flow.utterances)
}

func TestOutgoingAudioRepliesToSelf(t *testing.T) {
	on := true
	f := newFixture(t, config.BotSettings{ActivateOnSend: &on})

	f.deliver(audioEnv("m1", "33611111111@s.whatsapp.net", true))

	sent := f.transport.lastSent(t)
	assert.Equal(t, "33600000000@s.whatsapp.net", sent.chatID)
}

func TestTextCommands(t *testing.T) {
	f := newFixture(t, config.BotSettings{})

	f.deliver(textEnv("m1", "33611111111@s.whatsapp.net", "aide", false))
	assert.Contains(t, f.transport.lastSent(t).text, "Assistant de facturation")

	f.deliver(textEnv("m2", "33611111111@s.whatsapp.net", "annuler", false))
	assert.Equal(t, "Commande annulée.", f.transport.lastSent(t).text)

	f.deliver(textEnv("m3", "33611111111@s.whatsapp.net", "une facture pour Paul", false))
	assert.Equal(t, "Quel est le montant ?", f.transport.lastSent(t).text)

	f.flow.mu.Lock()
	defer f.flow.mu.Unlock()
	assert.Equal(t, 1, f.flow.cancels)
	assert.Equal(t, []string{"une facture pour Paul"}, f.flow.utterances)
}

func TestAdminCommandsToggleEnabled(t *testing.T) {
	var persisted []bool
	f := newFixture(t, config.BotSettings{})
	f.runtime.onEnabledChange = func(enabled bool) { persisted = append(persisted, enabled) }

	own := "33600000000@s.whatsapp.net"

	f.deliver(textEnv("m1", own, "bot off", true))
	assert.False(t, f.runtime.Enabled())
	assert.Contains(t, f.transport.lastSent(t).text, "désactivé")

	// Disabled bot ignores normal traffic.
	before := f.transport.sentCount()
	f.deliver(textEnv("m2", "33611111111@s.whatsapp.net", "bonjour", false))
	assert.Equal(t, before, f.transport.sentCount())

	// But still honors admin commands.
	f.deliver(textEnv("m3", own, "bot status", true))
	assert.Contains(t, f.transport.lastSent(t).text, "désactivé")

	f.deliver(textEnv("m4", own, "bot on", true))
	assert.True(t, f.runtime.Enabled())

	assert.Equal(t, []bool{false, true}, persisted)
}

func TestDuplicateDeliveryProcessedOnce(t *testing.T) {
	f := newFixture(t, config.BotSettings{})

	env := textEnv("same", "33611111111@s.whatsapp.net", "bonjour", false)
	f.deliver(env)
	f.deliver(env)

	f.flow.mu.Lock()
	defer f.flow.mu.Unlock()
	assert.Len(t, f.flow.utterances, 1)
}

func TestGroupMessagesIgnored(t *testing.T) {
	f := newFixture(t, config.BotSettings{})

	before := f.transport.sentCount()
	f.deliver(textEnv("m1", "123-456@g.us", "une facture", false))
	f.deliver(audioEnv("m2", "123-456@g.us", false))
	assert.Equal(t, before, f.transport.sentCount())
}

type blockingFlow struct {
	inner   *fakeFlow
	slowKey string
	release chan struct{}
}

func (b *blockingFlow) HandleUtterance(ctx context.Context, senderKey, utterance string) string {
	if senderKey == b.slowKey {
		<-b.release
	}
	return b.inner.HandleUtterance(ctx, senderKey, utterance)
}

func (b *blockingFlow) HandleCancel(ctx context.Context, senderKey string) string {
	return b.inner.HandleCancel(ctx, senderKey)
}

func TestSlowPipelineDoesNotBlockOtherSenders(t *testing.T) {
	f := newFixture(t, config.BotSettings{})
	release := make(chan struct{})
	f.runtime.flow = &blockingFlow{inner: f.flow, slowKey: "33611111111", release: release}

	f.transport.onReceive(textEnv("m1", "33611111111@s.whatsapp.net", "une facture", false))
	f.transport.onReceive(textEnv("m2", "33622222222@s.whatsapp.net", "une autre facture", false))

	// The second sender's reply lands while the first pipeline is parked.
	require.Eventually(t, func() bool { return f.transport.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "33622222222@s.whatsapp.net", f.transport.lastSent(t).chatID)

	close(release)
	f.runtime.inflight.Wait()
	assert.Equal(t, 2, f.transport.sentCount())
}

func TestSenderLocksReapedAfterProcessing(t *testing.T) {
	f := newFixture(t, config.BotSettings{})

	f.deliver(textEnv("m1", "33611111111@s.whatsapp.net", "bonjour", false))
	f.deliver(textEnv("m2", "33622222222@s.whatsapp.net", "bonjour", false))

	f.runtime.lockMu.Lock()
	defer f.runtime.lockMu.Unlock()
	assert.Empty(t, f.runtime.senderLocks)
}

func TestStatusAndQRCaching(t *testing.T) {
	f := newFixture(t, config.BotSettings{})

	f.transport.onStatus(transport.Status{State: transport.StateWaitingQR, QR: "data:image/png;base64,xyz"})
	assert.Equal(t, "data:image/png;base64,xyz", f.runtime.QR())

	st := f.runtime.Status()
	assert.True(t, st.Running)
	assert.Equal(t, transport.StateWaitingQR, st.ConnState)

	f.transport.onStatus(transport.Status{State: transport.StateConnected, OwnNumber: "33600000000"})
	assert.Empty(t, f.runtime.QR())
	assert.True(t, f.runtime.Status().Connected)
}

func TestStopAndLogout(t *testing.T) {
	f := newFixture(t, config.BotSettings{})

	require.NoError(t, f.runtime.Stop(context.Background()))
	assert.False(t, f.runtime.Status().Running)
	assert.False(t, f.transport.loggedOut)

	require.NoError(t, f.runtime.Start(context.Background()))
	require.NoError(t, f.runtime.Logout(context.Background()))
	assert.True(t, f.transport.loggedOut)
}
