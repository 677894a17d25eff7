package vessel

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/configs"
)

// stubContainer is a minimal Container for registry tests.
type stubContainer struct {
	id    string
	state *stateManager
}

func newStub(id string, status Status) *stubContainer {
	return &stubContainer{id: id, state: newStateManager(status, nil)}
}

func (c *stubContainer) ID() string                      { return c.id }
func (c *stubContainer) Status() Status                  { return c.state.Current() }
func (c *stubContainer) Spec() configs.Spec              { return configs.Spec{} }
func (c *stubContainer) Snapshot() *Snapshot             { return &Snapshot{ID: c.id} }
func (c *stubContainer) Start() error                    { return nil }
func (c *stubContainer) Signal(sig int) error            { return nil }
func (c *stubContainer) Stop(grace time.Duration) error  { return nil }
func (c *stubContainer) Pause() error                    { return nil }
func (c *stubContainer) Resume() error                   { return nil }
func (c *stubContainer) Wait() (*ExitStatus, error)      { return nil, nil }
func (c *stubContainer) ExitStatus() *ExitStatus         { return nil }
func (c *stubContainer) Stats() (*cgroups.Usage, error)  { return nil, nil }
func (c *stubContainer) Processes() ([]int, error)       { return nil, nil }
func (c *stubContainer) claimRemoval() error {
	st := c.state.Current()
	switch st {
	case Created, Stopped, Dead:
		return c.state.Transition(st, Removing)
	}
	return newGenericErrorf(Conflict, "container %s is %s", c.id, st)
}

func TestRegistryAddDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(newStub("a", Created)); err != nil {
		t.Fatal(err)
	}
	err := r.Add(newStub("a", Created))
	if !IsCode(err, Conflict) {
		t.Fatalf("expected Conflict for duplicate id, got %v", err)
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); !IsCode(err, NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRegistryRemoveSemantics(t *testing.T) {
	r := NewRegistry()
	running := newStub("run", Running)
	stopped := newStub("stop", Stopped)
	dead := newStub("dead", Dead)
	for _, c := range []Container{running, stopped, dead} {
		if err := r.Add(c); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.Remove("run"); !IsCode(err, Conflict) {
		t.Fatalf("removing a running container: got %v, want Conflict", err)
	}
	if err := r.Remove("stop"); err != nil {
		t.Fatalf("removing a stopped container: %v", err)
	}
	if stopped.Status() != Removing {
		t.Fatalf("removed container is %s, want removing", stopped.Status())
	}
	if err := r.Remove("dead"); err != nil {
		t.Fatalf("removing a dead container: %v", err)
	}
	if err := r.Remove("stop"); !IsCode(err, NotFound) {
		t.Fatalf("second remove: got %v, want NotFound", err)
	}
	if r.Size() != 1 {
		t.Fatalf("registry size %d, want 1", r.Size())
	}
}

func TestRegistryListSortedAndFiltered(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		status := Created
		if id == "b" {
			status = Running
		}
		if err := r.Add(newStub(id, status)); err != nil {
			t.Fatal(err)
		}
	}
	all := r.List(nil)
	if len(all) != 3 {
		t.Fatalf("listed %d containers, want 3", len(all))
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].ID() != want {
			t.Fatalf("list order %v", []string{all[0].ID(), all[1].ID(), all[2].ID()})
		}
	}
	running := r.List(func(c Container) bool { return c.Status() == Running })
	if len(running) != 1 || running[0].ID() != "b" {
		t.Fatalf("filtered list wrong: %v", running)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%03d", i)
			if err := r.Add(newStub(id, Created)); err != nil {
				t.Error(err)
				return
			}
			if _, err := r.Get(id); err != nil {
				t.Error(err)
			}
			r.List(nil)
		}(i)
	}
	wg.Wait()
	if r.Size() != n {
		t.Fatalf("registry size %d, want %d", r.Size(), n)
	}
}
