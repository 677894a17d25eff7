package fs

import (
	"os"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/configs"
)

type cpuGroup struct{}

func (s *cpuGroup) Name() string {
	return "cpu"
}

func (s *cpuGroup) Set(path string, res *configs.Resources) error {
	shares := int64(1024)
	quota := int64(-1)
	if res != nil {
		if res.CpuShares > 0 {
			shares = res.CpuShares
		}
		if res.CpuPeriod > 0 {
			if err := writeFileInt(path, "cpu.cfs_period_us", res.CpuPeriod); err != nil {
				return err
			}
		}
		if res.CpuQuota > 0 {
			quota = res.CpuQuota
		}
	}
	if err := writeFileInt(path, "cpu.shares", shares); err != nil {
		return err
	}
	return writeFileInt(path, "cpu.cfs_quota_us", quota)
}

func (s *cpuGroup) GetUsage(path string, u *cgroups.Usage) error {
	return nil
}

// cpuacct carries the accounting the cpu controller does not.
type cpuacctGroup struct{}

func (s *cpuacctGroup) Name() string {
	return "cpuacct"
}

func (s *cpuacctGroup) Set(path string, res *configs.Resources) error {
	return nil
}

func (s *cpuacctGroup) GetUsage(path string, u *cgroups.Usage) error {
	v, err := readFileUint(path, "cpuacct.usage")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	u.CpuNanos = v
	return nil
}
