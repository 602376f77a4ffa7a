package api

import (
	"context"

	"github.com/voxbill/voxbill/pkg/bus"
)

// EventBridge relays bus traffic to WebSocket clients so the dashboard sees
// message flow and lifecycle events live.
type EventBridge struct {
	messageBus *bus.MessageBus
	hub        *WSHub
}

func NewEventBridge(messageBus *bus.MessageBus, hub *WSHub) *EventBridge {
	return &EventBridge{messageBus: messageBus, hub: hub}
}

// Run taps the bus streams and broadcasts until ctx is done.
func (b *EventBridge) Run(ctx context.Context) {
	inbound := b.messageBus.SubscribeInboundTap("ws-bridge")
	outbound := b.messageBus.SubscribeOutboundTap("ws-bridge")
	system := b.messageBus.SubscribeSystem("ws-bridge")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			b.hub.Broadcast("message.inbound", msg)
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			b.hub.Broadcast("message.outbound", msg)
		case evt, ok := <-system:
			if !ok {
				return
			}
			if se, isEvent := evt.(bus.SystemEvent); isEvent {
				b.hub.Broadcast(se.Type, se)
			} else {
				b.hub.Broadcast("system", evt)
			}
		}
	}
}
