package storage

import (
	"context"
	"sync"

	"rosterbot/internal/roster"
	"rosterbot/internal/transport"
)

// memoryStore keeps everything in process memory. Used for the "memory"
// driver and as the fake store in tests. State is lost on restart, which
// degrades the bot to recreate-on-boot behavior.
type memoryStore struct {
	mu sync.Mutex

	ref    transport.MessageRef
	hasRef bool

	text    string
	hasText bool

	cancels map[string]roster.Cancellation
}

func NewMemory() Store {
	return &memoryStore{cancels: map[string]roster.Cancellation{}}
}

func (s *memoryStore) MessageRef(_ context.Context) (transport.MessageRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref, s.hasRef, nil
}

func (s *memoryStore) SaveMessageRef(_ context.Context, ref transport.MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref = ref
	s.hasRef = !ref.IsZero()
	return nil
}

func (s *memoryStore) RenderedText(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.hasText, nil
}

func (s *memoryStore) SaveRenderedText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.hasText = true
	return nil
}

func (s *memoryStore) Cancellation(_ context.Context, week string) (roster.Cancellation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cancels[week]
	return c, ok, nil
}

func (s *memoryStore) SaveCancellation(_ context.Context, week string, c roster.Cancellation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[week] = c
	return nil
}

func (s *memoryStore) PruneCancellations(_ context.Context, before string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for week := range s.cancels {
		if week < before {
			delete(s.cancels, week)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Close() error { return nil }
