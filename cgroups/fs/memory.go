package fs

import (
	"os"
	"strings"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/configs"
)

type memoryGroup struct{}

func (s *memoryGroup) Name() string {
	return "memory"
}

func (s *memoryGroup) Set(path string, res *configs.Resources) error {
	limit := int64(-1)
	if res != nil && res.Memory > 0 {
		limit = res.Memory
	}
	if err := writeFileInt(path, "memory.limit_in_bytes", limit); err != nil {
		return err
	}
	return nil
}

func (s *memoryGroup) GetUsage(path string, u *cgroups.Usage) error {
	var err error
	if u.MemoryBytes, err = readFileUint(path, "memory.usage_in_bytes"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if u.MemoryMaxBytes, err = readFileUint(path, "memory.max_usage_in_bytes"); err != nil {
		return err
	}
	data, err := readFile(path, "memory.oom_control")
	if err != nil {
		return err
	}
	for _, line := range strings.Split(data, "\n") {
		k, v, err := getParamKeyValue(line)
		if err != nil {
			continue
		}
		if k == "oom_kill" {
			u.OomKills = v
		}
	}
	return nil
}
