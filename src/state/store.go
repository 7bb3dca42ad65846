package state

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dynaput247/holochain-sub000/src/common"
)

// Reducer computes the next state from the previous state and one wrapped
// action. Reducers MUST be pure and MUST return the previous state value
// unchanged (same reference) when the action does not concern them; the
// store and its observers rely on reference equality to detect no-ops.
type Reducer func(prev interface{}, aw ActionWrapper) interface{}

// Sensor inspects the state after a transition. Returning true retires the
// observer and unblocks anyone waiting on it.
type Sensor func(current interface{}) bool

type observer struct {
	sensor Sensor
	once   sync.Once
	done   chan struct{}
}

func (o *observer) fire() {
	o.once.Do(func() { close(o.done) })
}

// Store owns a state value behind a single dispatch goroutine. All writes
// flow through Dispatch; reads take a snapshot reference under a read lock.
// State values are pointers to immutable snapshots; reducers produce a new
// snapshot rather than mutating the old one.
// historyRetention bounds the processed-action set. Waiters check their
// action right after dispatching it, so only the recent tail matters.
const historyRetention = 4096

type Store struct {
	mtx          sync.RWMutex
	current      interface{}
	reducer      Reducer
	observers    []*observer
	history      map[int64]struct{}
	historyOrder []int64

	actionCh chan ActionWrapper
	quitCh   chan struct{}
	wg       sync.WaitGroup

	logger *logrus.Entry
}

// NewStore builds a store around an initial state and reducer. The dispatch
// loop starts immediately.
func NewStore(initial interface{}, reducer Reducer, logger *logrus.Entry) *Store {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.ErrorLevel
		logger = logrus.NewEntry(log)
	}
	s := &Store{
		current:  initial,
		reducer:  reducer,
		history:  make(map[int64]struct{}),
		actionCh: make(chan ActionWrapper, 64),
		quitCh:   make(chan struct{}),
		logger:   logger,
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// State returns the current state reference. The value is immutable by
// convention; callers must not mutate it.
func (s *Store) State() interface{} {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.current
}

// Dispatch queues an action for the reduce loop and returns its wrapper.
func (s *Store) Dispatch(action Action) ActionWrapper {
	aw := NewActionWrapper(action)
	select {
	case s.actionCh <- aw:
	case <-s.quitCh:
	}
	return aw
}

// DispatchAndWait queues an action and blocks until the reduce loop has
// processed it, or until timeout.
func (s *Store) DispatchAndWait(action Action, timeout time.Duration) (ActionWrapper, error) {
	aw := s.Dispatch(action)
	err := s.WaitFor(func(interface{}) bool { return s.Processed(aw) }, timeout)
	return aw, err
}

// Processed reports whether the reduce loop has applied the given wrapper.
func (s *Store) Processed(aw ActionWrapper) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.history[aw.ID]
	return ok
}

// WaitFor blocks until sensor returns true for some observed state. The
// observer is registered first and the sensor probed once against the
// current state, so a transition racing the registration cannot be missed.
func (s *Store) WaitFor(sensor Sensor, timeout time.Duration) error {
	obs := &observer{sensor: sensor, done: make(chan struct{})}
	s.mtx.Lock()
	s.observers = append(s.observers, obs)
	s.mtx.Unlock()

	if sensor(s.State()) {
		s.removeObserver(obs)
		obs.fire()
	}

	select {
	case <-obs.done:
		return nil
	case <-time.After(timeout):
		s.removeObserver(obs)
		return common.NewHcError(common.ErrTimeout, "timed out waiting on state observer")
	case <-s.quitCh:
		return common.NewHcError(common.ErrTimeout, "store shut down while waiting on observer")
	}
}

func (s *Store) removeObserver(target *observer) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for i, obs := range s.observers {
		if obs == target {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// Shutdown stops the dispatch loop. Pending actions are dropped.
func (s *Store) Shutdown() {
	select {
	case <-s.quitCh:
		return
	default:
	}
	close(s.quitCh)
	s.wg.Wait()
}

func (s *Store) loop() {
	defer s.wg.Done()
	for {
		select {
		case aw := <-s.actionCh:
			s.apply(aw)
		case <-s.quitCh:
			return
		}
	}
}

// apply runs a single reduce and then probes observers outside the state
// lock, so sensors are free to read the store themselves.
func (s *Store) apply(aw ActionWrapper) {
	s.mtx.Lock()
	prev := s.current
	next := s.reducer(prev, aw)
	s.current = next
	s.history[aw.ID] = struct{}{}
	s.historyOrder = append(s.historyOrder, aw.ID)
	if len(s.historyOrder) > historyRetention {
		delete(s.history, s.historyOrder[0])
		s.historyOrder = s.historyOrder[1:]
	}
	observers := make([]*observer, len(s.observers))
	copy(observers, s.observers)
	s.mtx.Unlock()

	if next != prev {
		s.logger.WithField("action", aw.Action.ActionName()).Debug("State transition")
	}

	for _, obs := range observers {
		if obs.sensor(next) {
			s.removeObserver(obs)
			obs.fire()
		}
	}
}

// ComposeReducers chains reducers left to right, feeding each the previous
// result. A composition of no-ops stays a no-op by reference.
func ComposeReducers(reducers ...Reducer) Reducer {
	return func(prev interface{}, aw ActionWrapper) interface{} {
		next := prev
		for _, r := range reducers {
			next = r(next, aw)
		}
		return next
	}
}
