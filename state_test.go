package vessel

import (
	"testing"
	"time"
)

func TestTransitionTable(t *testing.T) {
	valid := []struct{ from, to Status }{
		{Created, Running},
		{Created, Removing},
		{Running, Paused},
		{Running, Stopped},
		{Running, Restarting},
		{Running, Removing},
		{Paused, Running},
		{Paused, Stopped},
		{Paused, Removing},
		{Stopped, Running},
		{Stopped, Dead},
		{Stopped, Removing},
		{Restarting, Running},
		{Restarting, Stopped},
		{Restarting, Dead},
		{Restarting, Removing},
		{Dead, Removing},
	}
	for _, tc := range valid {
		if !transitionValid(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be valid", tc.from, tc.to)
		}
	}
	invalid := []struct{ from, to Status }{
		{Created, Paused},
		{Created, Stopped},
		{Created, Dead},
		{Running, Created},
		{Paused, Restarting},
		{Stopped, Paused},
		{Dead, Running},
		{Removing, Running},
		{Removing, Removing},
	}
	for _, tc := range invalid {
		if transitionValid(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionStaleExpectation(t *testing.T) {
	m := newStateManager(Created, nil)
	err := m.Transition(Running, Paused)
	if err == nil {
		t.Fatal("expected error for stale expected state")
	}
	if !IsCode(err, InvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
	if m.Current() != Created {
		t.Fatalf("failed transition mutated state to %s", m.Current())
	}
}

func TestTransitionInvalidEdge(t *testing.T) {
	m := newStateManager(Created, nil)
	err := m.Transition(Created, Paused)
	if !IsCode(err, InvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
	if m.Current() != Created {
		t.Fatalf("failed transition mutated state to %s", m.Current())
	}
}

func TestTransitionTimestamps(t *testing.T) {
	m := newStateManager(Created, nil)
	created, started, finished := m.timestamps()
	if created.IsZero() {
		t.Fatal("created timestamp not set")
	}
	if !started.IsZero() || !finished.IsZero() {
		t.Fatal("started/finished set before any transition")
	}
	if err := m.Transition(Created, Running); err != nil {
		t.Fatal(err)
	}
	if _, started, _ = m.timestamps(); started.IsZero() {
		t.Fatal("started timestamp not recorded on Running")
	}
	if err := m.Transition(Running, Stopped); err != nil {
		t.Fatal(err)
	}
	if _, _, finished = m.timestamps(); finished.IsZero() {
		t.Fatal("finished timestamp not recorded on Stopped")
	}
}

func TestTransitionNotify(t *testing.T) {
	ch := make(chan Status, 1)
	m := newStateManager(Created, func(s Status) { ch <- s })
	if err := m.Transition(Created, Running); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-ch:
		if s != Running {
			t.Fatalf("notified with %s, want running", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{Created, Running, Paused, Stopped, Dead, Restarting, Removing} {
		if got := ParseStatus(s.String()); got != s {
			t.Errorf("ParseStatus(%q) = %s", s.String(), got)
		}
	}
	if got := ParseStatus("warp-speed"); got != Dead {
		t.Errorf("unknown status parsed as %s, want dead", got)
	}
}
