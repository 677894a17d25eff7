package network

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Veth creates a virtual ethernet pair, keeps one end on the host and
// moves the peer into the container's net namespace. Address management
// beyond the optional static CIDR belongs to the external network
// manager, not to the lifecycle engine.
type Veth struct{}

func vethNames(containerID string) (host, peer string) {
	id := containerID
	if len(id) > 7 {
		id = id[:7]
	}
	return "veth" + id + "h", "veth" + id + "c"
}

func (v *Veth) Create(containerID string, pid int, state *State) error {
	host, peer := vethNames(containerID)
	link := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: host},
		PeerName:  peer,
	}
	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("create veth pair %s/%s: %w", host, peer, err)
	}
	cleanup := func() { _ = netlink.LinkDel(link) }

	peerLink, err := netlink.LinkByName(peer)
	if err != nil {
		cleanup()
		return err
	}
	if err := netlink.LinkSetNsPid(peerLink, pid); err != nil {
		cleanup()
		return fmt.Errorf("move %s into pid %d: %w", peer, pid, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		cleanup()
		return err
	}
	state.Strategy = "veth"
	state.HostInterfaceName = host
	state.InterfaceName = peer
	return nil
}

// Initialize runs inside the container's net namespace: bring up loopback
// and the moved peer, and assign the static address if one was given.
func (v *Veth) Initialize(state *State) error {
	lo, err := netlink.LinkByName("lo")
	if err == nil {
		_ = netlink.LinkSetUp(lo)
	}
	peer, err := netlink.LinkByName(state.InterfaceName)
	if err != nil {
		return fmt.Errorf("container veth %s: %w", state.InterfaceName, err)
	}
	if state.Address != "" {
		addr, err := netlink.ParseAddr(state.Address)
		if err != nil {
			return fmt.Errorf("parse address %s: %w", state.Address, err)
		}
		if err := netlink.AddrAdd(peer, addr); err != nil {
			return fmt.Errorf("assign %s: %w", state.Address, err)
		}
	}
	return netlink.LinkSetUp(peer)
}

func (v *Veth) Destroy(state *State) error {
	if state.HostInterfaceName == "" {
		return nil
	}
	link, err := netlink.LinkByName(state.HostInterfaceName)
	if err != nil {
		// the kernel removes the pair when the namespace dies
		return nil
	}
	return netlink.LinkDel(link)
}
