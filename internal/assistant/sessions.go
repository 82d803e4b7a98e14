package assistant

import (
	"context"
	"sync"

	"github.com/suPer8Hu/haru-bank/internal/common"
	"go.uber.org/zap"
)

// Sessions keeps the live banking sessions of this process.
type Sessions struct {
	opts Options

	mu sync.RWMutex
	m  map[string]*Assistant
}

func NewSessions(opts Options) *Sessions {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sessions{opts: opts, m: make(map[string]*Assistant)}
}

// Create opens a new session. With an archive configured the id comes from
// the archived session row.
func (s *Sessions) Create(ctx context.Context) (*Assistant, error) {
	id := common.NewULID()
	if s.opts.Archive != nil {
		sess, err := s.opts.Archive.OpenSession(ctx, s.opts.Provider, s.opts.Model)
		if err != nil {
			return nil, err
		}
		id = sess.SessionID
	}

	a := New(id, s.opts)
	s.mu.Lock()
	s.m[id] = a
	s.mu.Unlock()
	s.opts.Logger.Info("session created", zap.String("session_id", id))
	return a, nil
}

func (s *Sessions) Get(id string) (*Assistant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.m[id]
	return a, ok
}

// Remove closes and forgets the session. It reports whether it existed.
func (s *Sessions) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	a, ok := s.m[id]
	delete(s.m, id)
	s.mu.Unlock()
	if ok {
		a.Close(ctx)
	}
	return ok
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// CloseAll closes every session, used on shutdown.
func (s *Sessions) CloseAll(ctx context.Context) {
	s.mu.Lock()
	all := s.m
	s.m = make(map[string]*Assistant)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range all {
		wg.Add(1)
		go func(a *Assistant) {
			defer wg.Done()
			a.Close(ctx)
		}(a)
	}
	wg.Wait()
}
