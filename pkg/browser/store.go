package browser

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/uicheck/pkg/config"
)

type traceState int

const (
	traceOff traceState = iota
	traceRecording
	traceFlushed
)

// slot holds one worker's resource chain. Fields are written only by the
// goroutine that moved the slot into Initializing or TearingDown, or under
// the store lock.
type slot struct {
	id        string
	worker    WorkerID
	state     State
	kind      config.BrowserKind
	engine    Engine
	context   Context
	page      Page
	aux       []Page
	trace     traceState
	createdAt time.Time
}

func (s *slot) snapshot() Session {
	pages := 0
	if s.page != nil && !s.page.IsClosed() {
		pages++
	}
	for _, p := range s.aux {
		if !p.IsClosed() {
			pages++
		}
	}
	return Session{
		ID:        s.id,
		Worker:    s.worker,
		State:     s.state,
		Kind:      s.kind,
		PageCount: pages,
		Tracing:   s.trace == traceRecording,
		CreatedAt: s.createdAt,
	}
}

// Store maps workers to their session slots. Its lock guards the map and
// state transitions only; engine calls happen outside it.
type Store struct {
	mu    sync.Mutex
	slots map[WorkerID]*slot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{slots: make(map[WorkerID]*slot)}
}

// State returns the worker's current state.
func (st *Store) State(worker WorkerID) State {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.slots[worker]; ok {
		return s.state
	}
	return StateAbsent
}

// Len returns the number of occupied slots.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.slots)
}

// Workers returns the workers with an occupied slot, sorted.
func (st *Store) Workers() []WorkerID {
	st.mu.Lock()
	defer st.mu.Unlock()

	workers := make([]WorkerID, 0, len(st.slots))
	for w := range st.slots {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i] < workers[j] })
	return workers
}

// Snapshot returns the worker's session, if any.
func (st *Store) Snapshot(worker WorkerID) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.slots[worker]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// acquire returns the worker's Ready slot, or claims a fresh Initializing
// slot when the worker has none (claimed == true).
func (st *Store) acquire(worker WorkerID, kind config.BrowserKind) (s *slot, claimed bool, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.slots[worker]; ok {
		if s.state != StateReady {
			return nil, false, &SessionNotReadyError{Worker: worker, State: s.state}
		}
		return s, false, nil
	}

	s = &slot{
		id:        uuid.NewString(),
		worker:    worker,
		state:     StateInitializing,
		kind:      kind,
		createdAt: time.Now(),
	}
	st.slots[worker] = s
	return s, true, nil
}

// ready returns the worker's slot only if it is Ready.
func (st *Store) ready(worker WorkerID) (*slot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.slots[worker]
	if !ok {
		return nil, ErrNoSession
	}
	if s.state != StateReady {
		return nil, &SessionNotReadyError{Worker: worker, State: s.state}
	}
	return s, nil
}

// transition moves s from one state to another if it is still the worker's slot.
func (st *Store) transition(s *slot, from, to State) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if cur, ok := st.slots[s.worker]; !ok || cur != s {
		return ErrNoSession
	}
	if s.state != from {
		return &SessionNotReadyError{Worker: s.worker, State: s.state}
	}
	s.state = to
	return nil
}

// beginTeardown moves a Ready slot to TearingDown. A missing slot yields
// (nil, nil).
func (st *Store) beginTeardown(worker WorkerID) (*slot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.slots[worker]
	if !ok {
		return nil, nil
	}
	if s.state != StateReady {
		return nil, &SessionNotReadyError{Worker: worker, State: s.state}
	}
	s.state = StateTearingDown
	return s, nil
}

// release clears the worker's slot if it is still s.
func (st *Store) release(s *slot) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if cur, ok := st.slots[s.worker]; ok && cur == s {
		delete(st.slots, s.worker)
	}
}

// claimTrace marks the slot's recording as flushed and reports the prior state.
func (st *Store) claimTrace(s *slot) traceState {
	st.mu.Lock()
	defer st.mu.Unlock()

	prev := s.trace
	if prev == traceRecording {
		s.trace = traceFlushed
	}
	return prev
}

// takePage detaches the slot's primary page.
func (st *Store) takePage(s *slot) Page {
	st.mu.Lock()
	defer st.mu.Unlock()

	page := s.page
	s.page = nil
	return page
}

// addAux records an auxiliary page if s is still Ready and returns the
// number of auxiliary pages held.
func (st *Store) addAux(s *slot, page Page) (int, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if cur, ok := st.slots[s.worker]; !ok || cur != s || s.state != StateReady {
		return 0, false
	}
	s.aux = append(s.aux, page)
	return len(s.aux), true
}
