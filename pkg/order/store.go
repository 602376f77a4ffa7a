package order

import (
	"context"
	"sync"
	"time"
)

// Store is the pending-order persistence port. One instance per bot runtime.
// Get returns (nil, nil) on a miss — absence is not an error.
type Store interface {
	Get(ctx context.Context, senderKey string) (*Order, error)
	Put(ctx context.Context, o *Order) error
	Delete(ctx context.Context, senderKey string) error
}

// MemoryStore is the default in-process store. Expiry is enforced lazily on
// Get and eagerly by Sweep (driven by the janitor).
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStore creates a store with the given idle TTL (zero disables).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*Order),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the sender's pending order, expiring it lazily if stale.
func (s *MemoryStore) Get(ctx context.Context, senderKey string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[senderKey]
	if !ok {
		return nil, nil
	}
	if o.ExpiredAt(s.now(), s.ttl) {
		delete(s.orders, senderKey)
		return nil, nil
	}

	cp := *o
	return &cp, nil
}

// Put stores or replaces the sender's pending order.
func (s *MemoryStore) Put(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	cp.UpdatedAt = s.now().UTC()
	s.orders[o.SenderKey] = &cp
	return nil
}

// Delete removes the sender's pending order, if any.
func (s *MemoryStore) Delete(ctx context.Context, senderKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, senderKey)
	return nil
}

// Sweep removes all expired orders and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dropped := 0
	for key, o := range s.orders {
		if o.ExpiredAt(now, s.ttl) {
			delete(s.orders, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live pending orders.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

var _ Store = (*MemoryStore)(nil)
var _ Sweeper = (*MemoryStore)(nil)
