// Package bus is the in-process observability spine. Bot runtimes publish
// inbound/outbound message summaries and lifecycle events; any number of
// named subscribers (the dashboard WebSocket bridge, tests) tap the streams
// without slowing the publishers down — slow consumers drop.
package bus

import (
	"sync"
)

// Subscriber is a named tap on a message stream. Multiple subscribers can
// independently consume the same published messages (fan-out).
type Subscriber struct {
	Name string
	ch   chan interface{}
}

// MessageBus fans published messages out to all registered taps.
type MessageBus struct {
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	inboundSubs  []*Subscriber
	outboundSubs []*Subscriber
	systemSubs   []*Subscriber
}

// NewMessageBus creates an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{}
}

// SubscribeInboundTap creates a named subscriber that receives copies of all
// inbound messages. The returned channel is buffered; slow consumers drop.
func (mb *MessageBus) SubscribeInboundTap(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan interface{}, 64)}
	mb.inboundSubs = append(mb.inboundSubs, sub)
	return sub.ch
}

// SubscribeOutboundTap creates a named subscriber for outbound messages.
func (mb *MessageBus) SubscribeOutboundTap(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan interface{}, 64)}
	mb.outboundSubs = append(mb.outboundSubs, sub)
	return sub.ch
}

// SubscribeSystem creates a named subscriber for system events.
func (mb *MessageBus) SubscribeSystem(name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan interface{}, 64)}
	mb.systemSubs = append(mb.systemSubs, sub)
	return sub.ch
}

// PublishInbound fans an inbound message summary out to all taps.
func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	for _, sub := range mb.inboundSubs {
		select {
		case sub.ch <- msg:
		default: // non-blocking — drop if subscriber is slow
		}
	}
}

// PublishOutbound fans an outbound message out to all taps.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	for _, sub := range mb.outboundSubs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// PublishSystem fans a system event out to all system subscribers.
func (mb *MessageBus) PublishSystem(event SystemEvent) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	for _, sub := range mb.systemSubs {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		mb.closed = true
		for _, sub := range mb.inboundSubs {
			close(sub.ch)
		}
		for _, sub := range mb.outboundSubs {
			close(sub.ch)
		}
		for _, sub := range mb.systemSubs {
			close(sub.ch)
		}
	})
}
