package bank

import (
	"sync"

	"github.com/suPer8Hu/haru-bank/internal/common"
)

// Change is delivered to listeners after every successful dispatch. Seq
// increases by one per change, in the order the changes were applied.
type Change struct {
	Seq     uint64
	Actions []Action
	State   State
}

type Listener func(Change)

// Store is the single state tree of a banking session. UI handlers and the
// assistant both submit Actions; nobody touches State directly.
type Store struct {
	mu    sync.Mutex
	state State

	// guarded by mu
	seq      uint64
	pending  []Change
	draining bool

	lmu       sync.RWMutex
	listeners map[uint64]Listener
	nextLID   uint64
}

func NewStore(initial State) *Store {
	return &Store{
		state:     initial.clone(),
		listeners: make(map[uint64]Listener),
	}
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Dispatch applies the actions atomically, in order, and returns the
// resulting state.
func (s *Store) Dispatch(actions ...Action) State {
	st, _ := s.Transact(func(State) ([]Action, error) { return actions, nil })
	return st
}

// Transact runs decide against the current state and applies the actions it
// returns, all under the store lock. If decide fails nothing is applied.
func (s *Store) Transact(decide func(State) ([]Action, error)) (State, error) {
	s.mu.Lock()
	actions, err := decide(s.state.clone())
	if err != nil {
		s.mu.Unlock()
		return State{}, err
	}
	if len(actions) == 0 {
		out := s.state.clone()
		s.mu.Unlock()
		return out, nil
	}

	next := s.state.clone()
	applied := make([]Action, 0, len(actions))
	for _, a := range actions {
		a = withID(a)
		applied = append(applied, a)
		reduce(&next, a)
	}
	s.state = next
	out := next.clone()
	s.seq++
	s.pending = append(s.pending, Change{Seq: s.seq, Actions: applied, State: out.clone()})
	if s.draining {
		s.mu.Unlock()
		return out, nil
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return out, nil
}

// drain delivers queued changes in order until the queue is empty. Only one
// goroutine drains at a time.
func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		c := s.pending[0]
		s.pending[0] = Change{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.notify(c)
	}
}

// Subscribe registers fn for every change and returns the function that
// removes it. Changes reach listeners one at a time and in Seq order, after
// the store lock is released, so listeners may dispatch themselves. A change
// made while another is being delivered is queued behind it and delivered by
// the goroutine already draining, so Dispatch can return before its own
// change has been seen by every listener.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextLID
	s.nextLID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.lmu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

func withID(a Action) Action {
	switch v := a.(type) {
	case AddChatMessage:
		if v.Turn.ID == "" {
			v.Turn.ID = common.NewULID()
		}
		return v
	case UpsertChatMessage:
		if v.ID == "" {
			v.ID = common.NewULID()
		}
		return v
	}
	return a
}
