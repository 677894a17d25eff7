package vessel

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a container.
type Status int

const (
	// Created means the container record exists but no process has been
	// started and no kernel resources are held.
	Created Status = iota

	// Running means the init process is alive inside its namespaces.
	Running

	// Paused means all processes in the container are frozen.
	Paused

	// Stopped means the init process has exited; exit status is recorded.
	Stopped

	// Dead means the container is unusable, for example because its
	// process vanished while the daemon was down.
	Dead

	// Restarting means the init process exited and the supervisor is
	// bringing it back up per the restart policy.
	Restarting

	// Removing is terminal; the container is being torn down.
	Removing
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Dead:
		return "dead"
	case Restarting:
		return "restarting"
	case Removing:
		return "removing"
	}
	return "unknown"
}

// ParseStatus maps the string form back to a Status. Unknown strings map to
// Dead so that a record written by a newer daemon is never trusted as live.
func ParseStatus(s string) Status {
	for _, st := range []Status{Created, Running, Paused, Stopped, Dead, Restarting, Removing} {
		if st.String() == s {
			return st
		}
	}
	return Dead
}

// validTransitions is the lifecycle edge table. An edge absent from this
// table is rejected with InvalidStateTransition and leaves state untouched.
var validTransitions = map[Status][]Status{
	Created:    {Running, Removing},
	Running:    {Paused, Stopped, Restarting, Removing},
	Paused:     {Running, Stopped, Removing},
	Stopped:    {Running, Dead, Removing},
	Restarting: {Running, Stopped, Dead, Removing},
	Dead:       {Removing},
	Removing:   {},
}

func transitionValid(from, to Status) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// stateManager owns the lifecycle state of one container. All mutation goes
// through Transition, which is compare-and-swap: the caller names the state
// it believes the container is in, and the call fails without side effects
// if that belief is stale or the edge is invalid.
type stateManager struct {
	mu     sync.Mutex
	status Status

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	// notify is invoked outside the state lock on every successful
	// transition. It must not block the caller; the runtime wires it to
	// the event broadcaster which drops on slow subscribers.
	notify func(Status)
}

func newStateManager(initial Status, notify func(Status)) *stateManager {
	return &stateManager{
		status:    initial,
		createdAt: time.Now(),
		notify:    notify,
	}
}

// Current returns the container's state at the time of the call.
func (m *stateManager) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Transition moves the container from the expected state to the target
// state. On success the relevant timestamp is recorded and subscribers are
// notified asynchronously.
func (m *stateManager) Transition(from, to Status) error {
	m.mu.Lock()
	if m.status != from {
		cur := m.status
		m.mu.Unlock()
		return newGenericErrorf(InvalidStateTransition,
			"container is %s, expected %s", cur, from)
	}
	if !transitionValid(from, to) {
		m.mu.Unlock()
		return newGenericErrorf(InvalidStateTransition,
			"invalid state transition %s -> %s", from, to)
	}
	m.status = to
	now := time.Now()
	switch to {
	case Running:
		m.startedAt = now
	case Stopped, Dead:
		m.finishedAt = now
	}
	notify := m.notify
	m.mu.Unlock()

	if notify != nil {
		go notify(to)
	}
	return nil
}

func (m *stateManager) timestamps() (created, started, finished time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createdAt, m.startedAt, m.finishedAt
}

// restore overwrites timestamps from a persisted record during rehydration.
func (m *stateManager) restore(created, started, finished time.Time) {
	m.mu.Lock()
	m.createdAt = created
	m.startedAt = started
	m.finishedAt = finished
	m.mu.Unlock()
}
