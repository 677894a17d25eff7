package fs

import (
	"os"
	"strconv"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/configs"
)

type pidsGroup struct{}

func (s *pidsGroup) Name() string {
	return "pids"
}

func (s *pidsGroup) Set(path string, res *configs.Resources) error {
	limit := "max"
	if res != nil && res.PidsLimit > 0 {
		limit = strconv.FormatInt(res.PidsLimit, 10)
	}
	return writeFile(path, "pids.max", limit)
}

func (s *pidsGroup) GetUsage(path string, u *cgroups.Usage) error {
	v, err := readFileUint(path, "pids.current")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	u.Pids = v
	return nil
}
