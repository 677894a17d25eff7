// Package network is the boundary to the network manager. Attachment
// backends form a closed set registered in the strategy table below;
// adding a backend means adding a type and a table entry.
package network

import (
	"errors"
	"sync"
)

var (
	ErrNotValidStrategyType = errors.New("not a valid network strategy type")

	strategiesMu sync.Mutex
	strategies   = map[string]Strategy{
		"none":     &None{},
		"loopback": &Loopback{},
		"veth":     &Veth{},
	}
)

// State is the runtime side-band of one container's attachment, populated
// by the strategy and persisted with the container.
type State struct {
	// Strategy records which table entry produced this state.
	Strategy string `json:"strategy"`

	// InterfaceName is the device visible inside the container.
	InterfaceName string `json:"interface_name,omitempty"`

	// HostInterfaceName is the host-side peer, when one exists.
	HostInterfaceName string `json:"host_interface_name,omitempty"`

	// Address is the CIDR assigned inside the container, if any.
	Address string `json:"address,omitempty"`
}

// Strategy is one attachment backend. Create runs on the supervisor side
// once the init process exists; Initialize runs inside the container's
// namespaces before exec; Destroy runs on teardown.
type Strategy interface {
	Create(containerID string, pid int, state *State) error
	Initialize(state *State) error
	Destroy(state *State) error
}

// GetStrategy resolves a strategy name; the empty name means "none".
func GetStrategy(name string) (Strategy, error) {
	if name == "" {
		name = "none"
	}
	strategiesMu.Lock()
	defer strategiesMu.Unlock()
	s, ok := strategies[name]
	if !ok {
		return nil, ErrNotValidStrategyType
	}
	return s, nil
}

// None leaves the container with whatever the namespace gives it: an
// isolated net namespace has only a downed loopback device.
type None struct{}

func (n *None) Create(containerID string, pid int, state *State) error {
	state.Strategy = "none"
	return nil
}

func (n *None) Initialize(state *State) error { return nil }

func (n *None) Destroy(state *State) error { return nil }
