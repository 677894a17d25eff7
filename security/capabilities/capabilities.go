package capabilities

import (
	"fmt"
	"os"
	"strings"

	"github.com/syndtr/gocapability/capability"
)

const allCapTypes = capability.CAPS | capability.BOUNDS

var capMap = buildCapMap()

func buildCapMap() map[string]capability.Cap {
	m := make(map[string]capability.Cap)
	last := capability.CAP_LAST_CAP
	for _, c := range capability.List() {
		if c > last {
			continue
		}
		m["CAP_"+strings.ToUpper(c.String())] = c
	}
	return m
}

// Parse maps capability names of the form CAP_XXX to their kernel values.
func Parse(names []string) ([]capability.Cap, error) {
	out := make([]capability.Cap, 0, len(names))
	for _, name := range names {
		c, ok := capMap[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("unknown capability %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// Drop reduces the current process to exactly the allow-listed
// capabilities, in both the effective/permitted/inheritable sets and the
// bounding set. There is no way back: once a capability leaves the
// bounding set the process can never regain it.
func Drop(keep []string) error {
	keepCaps, err := Parse(keep)
	if err != nil {
		return err
	}
	pid, err := capability.NewPid2(os.Getpid())
	if err != nil {
		return err
	}
	if err := pid.Load(); err != nil {
		return err
	}
	pid.Clear(allCapTypes)
	pid.Set(allCapTypes, keepCaps...)
	if err := pid.Apply(allCapTypes); err != nil {
		return fmt.Errorf("apply capability set: %w", err)
	}
	return nil
}
