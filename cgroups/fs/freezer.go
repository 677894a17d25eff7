package fs

import (
	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/configs"
)

type freezerGroup struct{}

func (s *freezerGroup) Name() string {
	return "freezer"
}

func (s *freezerGroup) Set(path string, res *configs.Resources) error {
	// the freezer has no limits; the node exists so Freeze can act on it
	return nil
}

func (s *freezerGroup) GetUsage(path string, u *cgroups.Usage) error {
	return nil
}
