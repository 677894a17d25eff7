// Package image is the boundary to the image manager. The lifecycle
// engine only ever needs a resolved root filesystem plus the image's
// default environment; acquisition, unpacking and layer storage live
// behind the Resolver interface.
package image

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Image is the resolved form of an image reference.
type Image struct {
	// RootfsPath is the unpacked root filesystem for the container.
	RootfsPath string `json:"rootfs_path"`

	// DefaultEnv is prepended to the spec's environment.
	DefaultEnv []string `json:"default_env,omitempty"`

	// DefaultWorkdir is used when the spec sets none.
	DefaultWorkdir string `json:"default_workdir,omitempty"`
}

// ErrNotFound means the reference does not resolve to a local image.
var ErrNotFound = errors.New("image: not found")

type Resolver interface {
	Resolve(ref string) (*Image, error)
}

// LocalResolver resolves references against a directory of unpacked
// images: <root>/<ref>/rootfs plus an optional <root>/<ref>/config.json
// carrying the defaults.
type LocalResolver struct {
	Root string
}

type localConfig struct {
	Env     []string `json:"env,omitempty"`
	Workdir string   `json:"workdir,omitempty"`
}

func NewLocalResolver(root string) *LocalResolver {
	return &LocalResolver{Root: root}
}

func (r *LocalResolver) Resolve(ref string) (*Image, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return nil, fmt.Errorf("image: invalid reference %q", ref)
	}
	dir := filepath.Join(r.Root, ref)
	rootfs := filepath.Join(dir, "rootfs")
	fi, err := os.Stat(rootfs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("image: rootfs of %s is not a directory", ref)
	}
	img := &Image{RootfsPath: rootfs}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return img, nil
		}
		return nil, err
	}
	var cfg localConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("image: config of %s: %w", ref, err)
	}
	img.DefaultEnv = cfg.Env
	img.DefaultWorkdir = cfg.Workdir
	return img, nil
}
