package grade

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/miescuela/core"
)

var ErrSheetNotFound = errors.New("sheet not found")

// Sessions keeps open sheets in memory until they are closed or left idle for longer than the TTL.
type Sessions struct {
	mu     sync.RWMutex
	sheets map[string]*Sheet
	ttl    time.Duration
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{sheets: make(map[string]*Sheet), ttl: ttl}
}

// Add registers sh under a new id and returns it.
func (s *Sessions) Add(sh *Sheet) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh.ID = uuid.NewString()
	s.sheets[sh.ID] = sh
	return sh.ID
}

// Get returns the sheet id names if ownerID opened it.
// Sheets of other users are reported as missing.
func (s *Sessions) Get(id, ownerID string) (*Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.sheets[id]
	if !ok || sh.Owner.ID != ownerID {
		return nil, ErrSheetNotFound
	}
	return sh, nil
}

func (s *Sessions) Remove(id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.sheets[id]
	if !ok || sh.Owner.ID != ownerID {
		return ErrSheetNotFound
	}
	delete(s.sheets, id)
	return nil
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sheets)
}

// Sweep closes the sheets idle for longer than the TTL and returns how many were closed.
// A zero TTL keeps sheets forever.
// Idle times are read outside the sessions lock so a sheet busy saving never blocks other lookups.
func (s *Sessions) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.RLock()
	open := make(map[string]*Sheet, len(s.sheets))
	for id, sh := range s.sheets {
		open[id] = sh
	}
	s.mu.RUnlock()

	now := nowFunc()
	var idle []string
	for id, sh := range open {
		if sh.idleSince(now) > s.ttl {
			idle = append(idle, id)
		}
	}
	if len(idle) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, id := range idle {
		if s.sheets[id] == open[id] {
			delete(s.sheets, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, every time.Duration, logger core.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Info("grade.Sessions: closed idle sheets", map[string]interface{}{"count": n})
			}
		}
	}
}
