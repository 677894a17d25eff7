package seccomp

// Action is what the kernel does when a filtered syscall is invoked.
type Action int

const (
	// ActAllow lets the syscall proceed.
	ActAllow Action = iota

	// ActErrno fails the syscall with EPERM without executing it.
	ActErrno

	// ActKill kills the calling thread.
	ActKill

	// ActTrap delivers SIGSYS to the caller.
	ActTrap
)

// Rule binds one syscall to an action. Rules are evaluated in order; the
// first match wins.
type Rule struct {
	// Syscall is the syscall name. Names unknown on the running
	// architecture are skipped: a syscall that does not exist cannot be
	// invoked, so there is nothing to filter.
	Syscall string `json:"syscall"`

	Action Action `json:"action"`
}

// Config is a complete syscall filter: a default action plus an ordered
// rule list. Once loaded into the kernel the filter cannot be loosened,
// only tightened by loading another filter on top.
type Config struct {
	DefaultAction Action `json:"default_action"`
	Rules         []Rule `json:"rules"`
}
