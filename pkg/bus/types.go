package bus

// InboundMessage summarizes a message accepted into a bot's conversational
// pipeline. Published for observability; the pipeline itself runs on the
// transport callback.
type InboundMessage struct {
	BotID     string            `json:"bot_id"`
	MessageID string            `json:"message_id"`
	ChatID    string            `json:"chat_id"`
	SenderID  string            `json:"sender_id"`
	Kind      string            `json:"kind"` // text, audio
	Content   string            `json:"content,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a reply a bot sent back through its transport.
type OutboundMessage struct {
	BotID   string `json:"bot_id"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// SystemEvent is a typed event for bot and order lifecycle observability.
// Types follow a dotted scheme: "bot.started", "order.confirmed", ...
type SystemEvent struct {
	Type   string      `json:"type"`
	Source string      `json:"source"` // e.g. bot ID or "manager"
	Data   interface{} `json:"data,omitempty"`
}
