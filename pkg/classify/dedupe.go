package classify

// seenSet is a bounded insertion-ordered set of message IDs. The transport
// delivers at-least-once; replayed IDs must never re-trigger side effects.
// When the cap is exceeded the oldest half is evicted in one pass.
type seenSet struct {
	ids   map[string]struct{}
	order []string
	cap   int
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 500
	}
	return &seenSet{
		ids: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

// Seen records id and reports whether it was already present.
func (s *seenSet) Seen(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.ids[id]; ok {
		return true
	}

	s.ids[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > s.cap {
		drop := len(s.order) / 2
		for _, old := range s.order[:drop] {
			delete(s.ids, old)
		}
		s.order = append(s.order[:0], s.order[drop:]...)
	}
	return false
}

// Len reports the number of tracked IDs.
func (s *seenSet) Len() int { return len(s.ids) }
