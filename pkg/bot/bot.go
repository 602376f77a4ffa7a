// Package bot hosts one WhatsApp invoice bot: its persisted record and the
// runtime that wires the transport to classification, transcription and the
// conversation flow.
package bot

import (
	"time"

	"github.com/voxbill/voxbill/pkg/config"
	"github.com/voxbill/voxbill/pkg/transport"
)

// Record is one bot's persisted definition. The manager stores one JSON file
// per record under the bots directory.
type Record struct {
	ID        string              `json:"id"`
	OwnerID   string              `json:"owner_id"`
	Name      string              `json:"name"`
	BridgeURL string              `json:"bridge_url"`
	Enabled   bool                `json:"enabled"`
	AutoStart bool                `json:"auto_start"`
	Settings  config.BotSettings  `json:"settings"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Status is a bot's live state as reported by its runtime (or a stopped
// placeholder when no runtime exists).
type Status struct {
	BotID     string              `json:"bot_id"`
	Running   bool                `json:"running"`
	Enabled   bool                `json:"enabled"`
	Connected bool                `json:"connected"`
	ConnState transport.ConnState `json:"conn_state"`
	OwnNumber string              `json:"own_number,omitempty"`
	StartedAt time.Time           `json:"started_at,omitempty"`
	LastError string              `json:"last_error,omitempty"`
}
