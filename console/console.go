// Package console allocates the pty pair for interactive containers. The
// master stays with the supervisor; the slave path travels to the init
// process, which opens it inside the container after setsid.
package console

import (
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

type Console struct {
	master *os.File
	path   string
}

// New opens a pty master and returns it with the slave path. The slave is
// not held open here: the init process opens its own copy so the fd never
// crosses the namespace boundary.
func New() (*Console, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	path := slave.Name()
	slave.Close()
	return &Console{master: master, path: path}, nil
}

func (c *Console) Master() *os.File { return c.master }
func (c *Console) Path() string     { return c.path }

func (c *Console) Close() error {
	if c.master == nil {
		return nil
	}
	return c.master.Close()
}

// OpenAndDup is the child half: it opens the slave and makes it the
// process's stdio and controlling terminal. Call after setsid.
func OpenAndDup(path string) error {
	slave, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer slave.Close()
	fd := int(slave.Fd())
	for _, std := range []int{0, 1, 2} {
		if err := unix.Dup2(fd, std); err != nil {
			return err
		}
	}
	return unix.IoctlSetInt(fd, unix.TIOCSCTTY, 0)
}
