// Package classify decides, per inbound envelope, whether the conversational
// pipeline runs at all, and with what directional context. It is pure policy:
// no replies are sent and no state beyond the de-duplication set is touched.
package classify

import (
	"strings"
	"sync"

	"github.com/voxbill/voxbill/pkg/transport"
)

// Action is what the caller should do with an envelope.
type Action int

const (
	// ActionDrop means the envelope is ignored silently.
	ActionDrop Action = iota
	// ActionAdminCommand means a self-message admin command executes.
	ActionAdminCommand
	// ActionAudio means the audio pipeline runs.
	ActionAudio
	// ActionText means the text pipeline runs.
	ActionText
)

// AdminCommand is one of the three self-message commands. These are the only
// commands that bypass the disabled-bot gate.
type AdminCommand string

const (
	CommandOn     AdminCommand = "bot on"
	CommandOff    AdminCommand = "bot off"
	CommandStatus AdminCommand = "bot status"
)

// Verdict is the classification result for one envelope.
type Verdict struct {
	Action   Action
	Command  AdminCommand // set when Action == ActionAdminCommand
	Outgoing bool         // set for audio sent by the bot's own account
	Duplicate bool        // true when dropped as a replayed delivery
}

// AudioPolicy is the per-direction activation policy for voice messages.
// Empty allow-lists are open; numbers are compared digits-only.
type AudioPolicy struct {
	OnReceive          bool
	OnSend             bool
	ReceiveFromNumbers []string
	SendToNumbers      []string
}

// Classifier applies the routing policy for one bot. Safe for concurrent use.
type Classifier struct {
	mu   sync.Mutex
	seen *seenSet
}

// New creates a classifier with a bounded de-duplication set.
func New(dedupeCap int) *Classifier {
	return &Classifier{seen: newSeenSet(dedupeCap)}
}

// Classify runs the routing rules in order. ownNumber is the bot account's
// normalized phone number (may be empty before the transport reports it).
func (c *Classifier) Classify(env transport.Envelope, ownNumber string, enabled bool, policy AudioPolicy) Verdict {
	c.mu.Lock()
	dup := c.seen.Seen(env.MessageID)
	c.mu.Unlock()
	if dup {
		return Verdict{Action: ActionDrop, Duplicate: true}
	}

	// Groups are never processed, never answered, for any content or state.
	if IsGroupChat(env.ChatID) {
		return Verdict{Action: ActionDrop}
	}

	remoteNumber := NormalizeNumber(ChatNumber(env.ChatID))
	isSelf := env.FromMe && ownNumber != "" && remoteNumber == NormalizeNumber(ownNumber)

	// Self-messages are the admin command channel, even when disabled.
	if isSelf {
		if cmd, ok := parseAdminCommand(env); ok {
			return Verdict{Action: ActionAdminCommand, Command: cmd}
		}
	}

	if !enabled {
		return Verdict{Action: ActionDrop}
	}

	switch env.Kind {
	case transport.KindAudio:
		incoming := !env.FromMe
		outgoing := env.FromMe && !isSelf

		if incoming && policy.OnReceive && numberAllowed(remoteNumber, policy.ReceiveFromNumbers) {
			return Verdict{Action: ActionAudio}
		}
		if outgoing && policy.OnSend && numberAllowed(remoteNumber, policy.SendToNumbers) {
			return Verdict{Action: ActionAudio, Outgoing: true}
		}
		return Verdict{Action: ActionDrop}

	case transport.KindText:
		// Only incoming text enters the conversational pipeline; outgoing
		// and self text (beyond the admin commands above) is ignored.
		if !env.FromMe {
			return Verdict{Action: ActionText}
		}
		return Verdict{Action: ActionDrop}

	default:
		return Verdict{Action: ActionDrop}
	}
}

// TrackedIDs reports the size of the de-duplication set.
func (c *Classifier) TrackedIDs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen.Len()
}

func parseAdminCommand(env transport.Envelope) (AdminCommand, bool) {
	if env.Kind != transport.KindText {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(env.Text)) {
	case string(CommandOn):
		return CommandOn, true
	case string(CommandOff):
		return CommandOff, true
	case string(CommandStatus):
		return CommandStatus, true
	}
	return "", false
}

func numberAllowed(normalized string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, n := range allowList {
		if NormalizeNumber(n) == normalized {
			return true
		}
	}
	return false
}

// IsGroupChat reports whether a chat identifier denotes a group.
func IsGroupChat(chatID string) bool {
	return strings.HasSuffix(chatID, "@g.us")
}

// ChatNumber extracts the bare number from a chat identifier.
func ChatNumber(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		return chatID[:i]
	}
	return chatID
}

// NormalizeNumber strips everything but digits for comparison.
func NormalizeNumber(num string) string {
	var b strings.Builder
	for _, r := range num {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
