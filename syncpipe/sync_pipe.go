// Package syncpipe carries the synchronous parent/child handshake used
// while a container's init process is being set up. The parent writes the
// init configuration and half-closes; the child reads to EOF, performs its
// setup, and either reports an error back or execs, which closes the pipe
// (it is close-on-exec) and signals success.
package syncpipe

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

type Pipe struct {
	parent, child *os.File
}

// New creates a connected pipe pair. The child end is inherited by the
// init process; both ends are close-on-exec.
func New() (*Pipe, error) {
	fds, err := unix.Socketpair(unix.AF_LOCAL, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Pipe{
		parent: os.NewFile(uintptr(fds[1]), "parent"),
		child:  os.NewFile(uintptr(fds[0]), "child"),
	}, nil
}

// NewChildPipe wraps the inherited fd inside the init process.
func NewChildPipe(fd uintptr) (*Pipe, error) {
	if fd == 0 {
		return nil, fmt.Errorf("no sync pipe fd specified")
	}
	return &Pipe{child: os.NewFile(fd, "child")}, nil
}

func (p *Pipe) Parent() *os.File { return p.parent }
func (p *Pipe) Child() *os.File  { return p.child }

// SendToChild writes v as JSON and half-closes the parent end so the
// child's read terminates.
func (p *Pipe) SendToChild(v interface{}) error {
	if err := json.NewEncoder(p.parent).Encode(v); err != nil {
		return err
	}
	return unix.Shutdown(int(p.parent.Fd()), unix.SHUT_WR)
}

// ReadFromParent blocks until the parent has sent the setup payload.
func (p *Pipe) ReadFromParent(v interface{}) error {
	data, err := io.ReadAll(p.child)
	if err != nil {
		return fmt.Errorf("reading from sync pipe: %w", err)
	}
	return json.Unmarshal(data, v)
}

// InitError is a setup failure reported by the child before exec. Kind
// classifies the failing phase so the supervisor can translate it into the
// right API error.
type InitError struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

const (
	// KindSecurity marks a security-profile application failure, which
	// is always fatal to the start attempt.
	KindSecurity = "security"

	// KindResource marks a namespace or mount setup failure.
	KindResource = "resource"
)

func (e *InitError) Error() string {
	return "container init failed: " + e.Message
}

// ReportError sends a setup failure to the parent. Called only from the
// child, as its last act before exiting.
func (p *Pipe) ReportError(kind string, err error) {
	_ = json.NewEncoder(p.child).Encode(&InitError{Kind: kind, Message: err.Error()})
	p.CloseChild()
}

// AwaitChild blocks until the child either reports a setup error or
// reaches exec. EOF with no payload means the exec happened and setup
// succeeded.
func (p *Pipe) AwaitChild() error {
	data, err := io.ReadAll(p.parent)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	ce := &InitError{}
	if err := json.Unmarshal(data, ce); err != nil {
		return &InitError{Message: string(data)}
	}
	return ce
}

func (p *Pipe) Close() error {
	if p.parent != nil {
		p.parent.Close()
	}
	if p.child != nil {
		p.child.Close()
	}
	return nil
}

// CloseChild drops the parent's copy of the child end once the init
// process holds its own.
func (p *Pipe) CloseChild() {
	if p.child != nil {
		p.child.Close()
		p.child = nil
	}
}
