// Package volumes is the boundary to the volume manager: it turns the
// spec's mount list into resolved, validated host bind mounts.
package volumes

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vesselrun/vessel/configs"
)

type Resolver interface {
	ResolveMounts(spec *configs.Spec) ([]configs.Mount, error)
}

// HostResolver accepts absolute host paths as mount sources.
type HostResolver struct{}

func NewHostResolver() *HostResolver {
	return &HostResolver{}
}

func (r *HostResolver) ResolveMounts(spec *configs.Spec) ([]configs.Mount, error) {
	out := make([]configs.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		source, err := filepath.Abs(m.Source)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(source); err != nil {
			return nil, fmt.Errorf("mount source %s: %w", source, err)
		}
		mode := m.Mode
		if mode == "" {
			mode = "rw"
		}
		out = append(out, configs.Mount{Source: source, Target: m.Target, Mode: mode})
	}
	return out, nil
}
