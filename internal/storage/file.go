package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rosterbot/internal/roster"
	"rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files under the configured directory:
//   - message_ref.json   (the live roster message ref)
//   - last_roster.txt    (exact last rendered text)
//   - cancellations.json (week key -> cancellation record)
//
// Every write goes through a temp file + rename so a crash mid-write never
// leaves a truncated record.
type fileStore struct {
	log logx.Logger
	dir string

	mu sync.Mutex

	ref    transport.MessageRef
	hasRef bool

	text    string
	hasText bool

	cancels map[string]roster.Cancellation
}

const (
	refFile     = "message_ref.json"
	textFile    = "last_roster.txt"
	cancelsFile = "cancellations.json"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		dir = "./rosterbot_state"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, dir: dir, cancels: map[string]roster.Cancellation{}}

	if b, err := os.ReadFile(filepath.Join(dir, refFile)); err == nil {
		var ref transport.MessageRef
		if err := json.Unmarshal(b, &ref); err == nil && !ref.IsZero() {
			s.ref = ref
			s.hasRef = true
		}
	}
	if b, err := os.ReadFile(filepath.Join(dir, textFile)); err == nil {
		s.text = string(b)
		s.hasText = true
	}
	if b, err := os.ReadFile(filepath.Join(dir, cancelsFile)); err == nil {
		var m map[string]roster.Cancellation
		if err := json.Unmarshal(b, &m); err != nil {
			// A corrupt cancellation file should not brick startup; the week
			// resets to defaults and an admin can re-cancel.
			log.Warn("cancellations file unreadable; starting fresh", logx.Err(err))
		} else if m != nil {
			s.cancels = m
		}
	}

	return s, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) MessageRef(_ context.Context) (transport.MessageRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref, s.hasRef, nil
}

func (s *fileStore) SaveMessageRef(_ context.Context, ref transport.MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return err
	}
	if err := s.writeAtomic(refFile, b); err != nil {
		return err
	}
	s.ref = ref
	s.hasRef = !ref.IsZero()
	return nil
}

func (s *fileStore) RenderedText(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.hasText, nil
}

func (s *fileStore) SaveRenderedText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeAtomic(textFile, []byte(text)); err != nil {
		return err
	}
	s.text = text
	s.hasText = true
	return nil
}

func (s *fileStore) Cancellation(_ context.Context, week string) (roster.Cancellation, bool, error) {
	if week == "" {
		return roster.Cancellation{}, false, errors.New("empty week key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cancels[week]
	return c, ok, nil
}

func (s *fileStore) SaveCancellation(_ context.Context, week string, c roster.Cancellation) error {
	if week == "" {
		return errors.New("empty week key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[week] = c
	return s.writeCancelsLocked()
}

func (s *fileStore) PruneCancellations(_ context.Context, before string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for week := range s.cancels {
		if week < before {
			delete(s.cancels, week)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.writeCancelsLocked()
}

func (s *fileStore) writeCancelsLocked() error {
	b, err := json.MarshalIndent(s.cancels, "", "  ")
	if err != nil {
		return err
	}
	return s.writeAtomic(cancelsFile, b)
}

func (s *fileStore) writeAtomic(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
