// Package manager owns the bot fleet: persisted records, quota, and the
// lifecycle of each bot's runtime with its wired collaborators.
package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxbill/voxbill/pkg/bot"
	"github.com/voxbill/voxbill/pkg/bus"
	"github.com/voxbill/voxbill/pkg/config"
	"github.com/voxbill/voxbill/pkg/extract"
	"github.com/voxbill/voxbill/pkg/flow"
	"github.com/voxbill/voxbill/pkg/invoice"
	"github.com/voxbill/voxbill/pkg/logger"
	"github.com/voxbill/voxbill/pkg/mailer"
	"github.com/voxbill/voxbill/pkg/order"
	"github.com/voxbill/voxbill/pkg/transcribe"
	"github.com/voxbill/voxbill/pkg/transport"
)

const componentManager = "manager"

// ManagerError is a typed sentinel error.
type ManagerError string

func (e ManagerError) Error() string { return string(e) }

const (
	ErrBotNotFound   = ManagerError("bot not found")
	ErrBotRunning    = ManagerError("bot is running")
	ErrQuotaExceeded = ManagerError("bot quota exceeded for owner")
)

// CreateParams describe a new bot. Settings overlays the process defaults;
// nil keeps them as-is.
type CreateParams struct {
	OwnerID   string
	Name      string
	BridgeURL string
	AutoStart bool
	Settings  *config.BotSettings
}

type managed struct {
	runtime *bot.Runtime
	cancel  context.CancelFunc
	closers []func() error
}

// Manager creates, persists, starts and stops bots.
type Manager struct {
	cfg    *config.Config
	store  *JSONStore[bot.Record]
	ledger *invoice.Ledger
	bus    *bus.MessageBus

	mu      sync.Mutex
	running map[string]*managed
}

func New(cfg *config.Config, ledger *invoice.Ledger, messageBus *bus.MessageBus) (*Manager, error) {
	store, err := NewJSONStore[bot.Record](cfg.BotsDir())
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		store:   store,
		ledger:  ledger,
		bus:     messageBus,
		running: make(map[string]*managed),
	}, nil
}

// Create registers a new bot record. The bot is not started.
func (m *Manager) Create(params CreateParams) (bot.Record, error) {
	if max := m.cfg.Quota.MaxBotsPerOwner; max > 0 {
		owned, err := m.List(params.OwnerID)
		if err != nil {
			return bot.Record{}, err
		}
		if len(owned) >= max {
			return bot.Record{}, ErrQuotaExceeded
		}
	}

	settings := m.cfg.Defaults
	if params.Settings != nil {
		settings = overlaySettings(settings, *params.Settings)
	}

	now := time.Now().UTC()
	rec := bot.Record{
		ID:        "bot-" + strings.SplitN(uuid.NewString(), "-", 2)[0],
		OwnerID:   params.OwnerID,
		Name:      params.Name,
		BridgeURL: params.BridgeURL,
		Enabled:   true,
		AutoStart: params.AutoStart,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Save(rec.ID, rec); err != nil {
		return bot.Record{}, err
	}

	logger.InfoCF(componentManager, "bot created", map[string]interface{}{
		"bot":   rec.ID,
		"owner": rec.OwnerID,
	})
	m.bus.PublishSystem(bus.SystemEvent{Type: "bot.created", Source: rec.ID})
	return rec, nil
}

// Get returns a bot record.
func (m *Manager) Get(id string) (bot.Record, error) {
	rec, ok, err := m.store.Load(id)
	if err != nil {
		return bot.Record{}, err
	}
	if !ok {
		return bot.Record{}, ErrBotNotFound
	}
	return rec, nil
}

// List returns all bot records, filtered by owner when ownerID is non-empty.
func (m *Manager) List(ownerID string) ([]bot.Record, error) {
	ids, err := m.store.ListIDs()
	if err != nil {
		return nil, err
	}

	var out []bot.Record
	for _, id := range ids {
		rec, ok, err := m.store.Load(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if ownerID != "" && rec.OwnerID != ownerID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateSettings overlays new settings on a stopped bot's record.
func (m *Manager) UpdateSettings(id string, settings config.BotSettings) (bot.Record, error) {
	m.mu.Lock()
	_, isRunning := m.running[id]
	m.mu.Unlock()
	if isRunning {
		return bot.Record{}, ErrBotRunning
	}

	rec, err := m.Get(id)
	if err != nil {
		return bot.Record{}, err
	}
	rec.Settings = overlaySettings(rec.Settings, settings)
	rec.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(id, rec); err != nil {
		return bot.Record{}, err
	}
	return rec, nil
}

// Delete stops a running bot if needed and removes its record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	if err := m.Stop(ctx, id); err != nil {
		logger.WarnCF(componentManager, "stop before delete failed", map[string]interface{}{
			"bot":   id,
			"error": err.Error(),
		})
	}
	if err := m.store.Delete(id); err != nil {
		return err
	}
	logger.InfoCF(componentManager, "bot deleted", map[string]interface{}{"bot": id})
	m.bus.PublishSystem(bus.SystemEvent{Type: "bot.deleted", Source: id})
	return nil
}

// Start builds and starts a bot's runtime. Starting a running bot is a no-op.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.running[id]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	rec, err := m.Get(id)
	if err != nil {
		return err
	}

	mg, err := m.buildRuntime(rec)
	if err != nil {
		return err
	}

	if err := mg.runtime.Start(ctx); err != nil {
		mg.cancel()
		closeAll(mg.closers)
		return err
	}

	m.mu.Lock()
	m.running[id] = mg
	m.mu.Unlock()
	return nil
}

// Stop stops a bot's runtime, preserving the device session. Stopping a
// stopped bot is a no-op.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	mg, ok := m.running[id]
	delete(m.running, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	err := mg.runtime.Stop(ctx)
	mg.cancel()
	closeAll(mg.closers)
	return err
}

// Logout stops a bot and clears its device pairing.
func (m *Manager) Logout(ctx context.Context, id string) error {
	m.mu.Lock()
	mg, ok := m.running[id]
	delete(m.running, id)
	m.mu.Unlock()
	if !ok {
		// Not running: build a transport just to clear the session.
		rec, err := m.Get(id)
		if err != nil {
			return err
		}
		t := transport.NewBridgeClient(rec.ID, rec.BridgeURL)
		return t.Logout(ctx)
	}

	err := mg.runtime.Logout(ctx)
	mg.cancel()
	closeAll(mg.closers)
	return err
}

// SetEnabled flips a bot's processing gate, live when running, on the record
// otherwise.
func (m *Manager) SetEnabled(id string, enabled bool) error {
	m.mu.Lock()
	mg, isRunning := m.running[id]
	m.mu.Unlock()

	if isRunning {
		mg.runtime.SetEnabled(enabled)
		return nil
	}
	return m.persistEnabled(id, enabled)
}

// StatusOf reports a bot's live status, or a stopped placeholder.
func (m *Manager) StatusOf(id string) (bot.Status, error) {
	m.mu.Lock()
	mg, isRunning := m.running[id]
	m.mu.Unlock()

	if isRunning {
		return mg.runtime.Status(), nil
	}

	rec, err := m.Get(id)
	if err != nil {
		return bot.Status{}, err
	}
	return bot.Status{
		BotID:     rec.ID,
		Running:   false,
		Enabled:   rec.Enabled,
		ConnState: transport.StateDisconnected,
	}, nil
}

// QROf returns a bot's current pairing QR payload.
func (m *Manager) QROf(id string) (string, error) {
	m.mu.Lock()
	mg, isRunning := m.running[id]
	m.mu.Unlock()

	if !isRunning {
		if _, err := m.Get(id); err != nil {
			return "", err
		}
		return "", nil
	}
	return mg.runtime.QR(), nil
}

// RestoreAll starts every record flagged auto-start. Called once at boot.
func (m *Manager) RestoreAll(ctx context.Context) {
	records, err := m.List("")
	if err != nil {
		logger.ErrorCF(componentManager, "restore scan failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	for _, rec := range records {
		if !rec.AutoStart {
			continue
		}
		if err := m.Start(ctx, rec.ID); err != nil {
			logger.ErrorCF(componentManager, "restore start failed", map[string]interface{}{
				"bot":   rec.ID,
				"error": err.Error(),
			})
		}
	}
}

// StopAll stops every running bot. Called on shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			logger.WarnCF(componentManager, "stop failed", map[string]interface{}{
				"bot":   id,
				"error": err.Error(),
			})
		}
	}
}

func (m *Manager) buildRuntime(rec bot.Record) (*managed, error) {
	var closers []func() error

	var store order.Store
	var sweeper order.Sweeper
	switch m.cfg.Orders.Backend {
	case "redis":
		rs := order.NewRedisStore(m.cfg.Redis.Addr, m.cfg.Redis.Password, m.cfg.Redis.DB,
			rec.ID, m.cfg.Orders.TTL)
		closers = append(closers, rs.Close)
		store = rs
	default:
		ms := order.NewMemoryStore(m.cfg.Orders.TTL)
		store = ms
		sweeper = ms
	}

	prompt := extract.Prompt{
		System:    rec.Settings.SystemPrompt,
		Knowledge: rec.Settings.KnowledgeText,
	}
	var extractor extract.Extractor
	switch rec.Settings.Extractor {
	case "anthropic":
		extractor = extract.NewAnthropicExtractor(rec.Settings.AnthropicAPIKey, rec.Settings.Model, prompt)
	default:
		extractor = extract.NewGroqExtractor(rec.Settings.GroqAPIKey, rec.Settings.Model, prompt)
	}

	smtp := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:                 rec.Settings.SMTPHost,
		Port:                 rec.Settings.SMTPPort,
		Username:             rec.Settings.EmailUser,
		Password:             rec.Settings.EmailPassword,
		From:                 rec.Settings.CompanyEmail,
		Company:              rec.Settings.CompanyName,
		InvoiceTemplate:      rec.Settings.InvoiceEmailTemplate,
		ConfirmationTemplate: rec.Settings.ConfirmationEmailTemplate,
	})

	controller := flow.NewController(
		flow.Settings{
			BotID:                  rec.ID,
			CompanyName:            rec.Settings.CompanyName,
			InvoicePrefix:          rec.Settings.InvoicePrefix,
			EmailRecipients:        rec.Settings.EmailRecipients,
			ConfirmationRecipients: rec.Settings.ConfirmationRecipients,
		},
		store,
		extract.NewAnalyzer(extractor),
		m.ledger,
		invoice.NewPDFRenderer(m.cfg.InvoicesDir(rec.ID)),
		smtp,
	).WithEvents(m.bus)

	runtime := bot.NewRuntime(bot.Options{
		BotID:       rec.ID,
		Settings:    rec.Settings,
		Transport:   transport.NewBridgeClient(rec.ID, rec.BridgeURL),
		Transcriber: transcribe.NewGroqTranscriber(rec.Settings.GroqAPIKey, rec.Settings.Language),
		Flow:        controller,
		Bus:         m.bus,
		Enabled:     rec.Enabled,
		OnEnabledChange: func(enabled bool) {
			if err := m.persistEnabled(rec.ID, enabled); err != nil {
				logger.WarnCF(componentManager, "persist enabled flag failed", map[string]interface{}{
					"bot":   rec.ID,
					"error": err.Error(),
				})
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	if sweeper != nil {
		janitor := order.NewJanitor(sweeper, m.cfg.Orders.SweepSchedule)
		go janitor.Run(ctx)
	}

	return &managed{runtime: runtime, cancel: cancel, closers: closers}, nil
}

func (m *Manager) persistEnabled(id string, enabled bool) error {
	rec, err := m.Get(id)
	if err != nil {
		return err
	}
	rec.Enabled = enabled
	rec.UpdatedAt = time.Now().UTC()
	return m.store.Save(id, rec)
}

// overlaySettings applies every non-zero field of over onto base.
func overlaySettings(base, over config.BotSettings) config.BotSettings {
	out := base
	if over.GroqAPIKey != "" {
		out.GroqAPIKey = over.GroqAPIKey
	}
	if over.AnthropicAPIKey != "" {
		out.AnthropicAPIKey = over.AnthropicAPIKey
	}
	if over.Extractor != "" {
		out.Extractor = over.Extractor
	}
	if over.Model != "" {
		out.Model = over.Model
	}
	if over.Language != "" {
		out.Language = over.Language
	}
	if over.SystemPrompt != "" {
		out.SystemPrompt = over.SystemPrompt
	}
	if over.KnowledgeText != "" {
		out.KnowledgeText = over.KnowledgeText
	}
	if over.CompanyName != "" {
		out.CompanyName = over.CompanyName
	}
	if over.CompanyEmail != "" {
		out.CompanyEmail = over.CompanyEmail
	}
	if over.InvoicePrefix != "" {
		out.InvoicePrefix = over.InvoicePrefix
	}
	if over.SMTPHost != "" {
		out.SMTPHost = over.SMTPHost
	}
	if over.SMTPPort != 0 {
		out.SMTPPort = over.SMTPPort
	}
	if over.EmailUser != "" {
		out.EmailUser = over.EmailUser
	}
	if over.EmailPassword != "" {
		out.EmailPassword = over.EmailPassword
	}
	if over.EmailRecipients != nil {
		out.EmailRecipients = over.EmailRecipients
	}
	if over.ConfirmationRecipients != nil {
		out.ConfirmationRecipients = over.ConfirmationRecipients
	}
	if over.InvoiceEmailTemplate != "" {
		out.InvoiceEmailTemplate = over.InvoiceEmailTemplate
	}
	if over.ConfirmationEmailTemplate != "" {
		out.ConfirmationEmailTemplate = over.ConfirmationEmailTemplate
	}
	if over.ActivateOnReceive != nil {
		out.ActivateOnReceive = over.ActivateOnReceive
	}
	if over.ActivateOnSend != nil {
		out.ActivateOnSend = over.ActivateOnSend
	}
	if over.ReceiveFromNumbers != nil {
		out.ReceiveFromNumbers = over.ReceiveFromNumbers
	}
	if over.SendToNumbers != nil {
		out.SendToNumbers = over.SendToNumbers
	}
	return out
}

func closeAll(closers []func() error) {
	for _, c := range closers {
		if err := c(); err != nil {
			logger.WarnCF(componentManager, "close failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
