package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/configs"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	return NewWithRoot(root, "vesseltest", "abc"), root
}

func readTestFile(t *testing.T, root, subsystem, file string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, subsystem, "vesseltest", "abc", file))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestCreateWritesLimits(t *testing.T) {
	m, root := testManager(t)
	err := m.Create(&configs.Resources{
		Memory:    8192,
		CpuShares: 512,
		CpuQuota:  20000,
		CpuPeriod: 100000,
		PidsLimit: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := readTestFile(t, root, "memory", "memory.limit_in_bytes"); got != "8192" {
		t.Errorf("memory limit %q", got)
	}
	if got := readTestFile(t, root, "cpu", "cpu.shares"); got != "512" {
		t.Errorf("cpu shares %q", got)
	}
	if got := readTestFile(t, root, "cpu", "cpu.cfs_quota_us"); got != "20000" {
		t.Errorf("cpu quota %q", got)
	}
	if got := readTestFile(t, root, "cpu", "cpu.cfs_period_us"); got != "100000" {
		t.Errorf("cpu period %q", got)
	}
	if got := readTestFile(t, root, "pids", "pids.max"); got != "10" {
		t.Errorf("pids max %q", got)
	}
}

func TestCreateDefaultsUnlimited(t *testing.T) {
	m, root := testManager(t)
	if err := m.Create(nil); err != nil {
		t.Fatal(err)
	}
	if got := readTestFile(t, root, "memory", "memory.limit_in_bytes"); got != "-1" {
		t.Errorf("memory default %q, want -1", got)
	}
	if got := readTestFile(t, root, "pids", "pids.max"); got != "max" {
		t.Errorf("pids default %q, want max", got)
	}
	if got := readTestFile(t, root, "cpu", "cpu.shares"); got != "1024" {
		t.Errorf("cpu shares default %q, want 1024", got)
	}
}

func TestCreateMissingMount(t *testing.T) {
	m := NewWithRoot(filepath.Join(t.TempDir(), "nope"), "vesseltest", "abc")
	err := m.Create(nil)
	if !cgroups.IsNotFound(err) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestApplyAndGetPids(t *testing.T) {
	m, _ := testManager(t)
	if err := m.Create(nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(123); err != nil {
		t.Fatal(err)
	}
	pids, err := m.GetPids()
	if err != nil {
		t.Fatal(err)
	}
	if len(pids) != 1 || pids[0] != 123 {
		t.Fatalf("pids %v, want [123]", pids)
	}
}

func TestDestroyBusy(t *testing.T) {
	m, _ := testManager(t)
	if err := m.Create(nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(123); err != nil {
		t.Fatal(err)
	}
	if err := m.Destroy(); err != cgroups.ErrBusy {
		t.Fatalf("got %v, want ErrBusy", err)
	}
}

func TestGetUsage(t *testing.T) {
	m, root := testManager(t)
	if err := m.Create(nil); err != nil {
		t.Fatal(err)
	}
	node := filepath.Join("vesseltest", "abc")
	writeUsage := func(subsystem, file, data string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(root, subsystem, node, file), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeUsage("memory", "memory.usage_in_bytes", "4096\n")
	writeUsage("memory", "memory.max_usage_in_bytes", "8192\n")
	writeUsage("memory", "memory.oom_control", "oom_kill_disable 0\nunder_oom 0\noom_kill 2\n")
	writeUsage("cpuacct", "cpuacct.usage", "123456789\n")
	writeUsage("pids", "pids.current", "3\n")

	u, err := m.GetUsage()
	if err != nil {
		t.Fatal(err)
	}
	if u.MemoryBytes != 4096 || u.MemoryMaxBytes != 8192 {
		t.Errorf("memory usage %+v", u)
	}
	if u.OomKills != 2 {
		t.Errorf("oom kills %d, want 2", u.OomKills)
	}
	if u.CpuNanos != 123456789 {
		t.Errorf("cpu nanos %d", u.CpuNanos)
	}
	if u.Pids != 3 {
		t.Errorf("pids %d, want 3", u.Pids)
	}
}

func TestFreezeReadsBack(t *testing.T) {
	m, root := testManager(t)
	if err := m.Create(nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Freeze(cgroups.Frozen); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(root, "freezer", "vesseltest", "abc", "freezer.state"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(cgroups.Frozen) {
		t.Fatalf("freezer state %q", got)
	}
	if err := m.Freeze(cgroups.Thawed); err != nil {
		t.Fatal(err)
	}
}

func TestSetRollsBackOnFailure(t *testing.T) {
	m, root := testManager(t)
	if err := m.Create(&configs.Resources{Memory: 8192}); err != nil {
		t.Fatal(err)
	}
	// remove the cpu node so the second subsystem write fails
	if err := os.RemoveAll(filepath.Join(root, "cpu")); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(&configs.Resources{Memory: 1 << 20}); err == nil {
		t.Fatal("expected Set to fail")
	}
	// the memory limit must have been reverted to unlimited
	if got := readTestFile(t, root, "memory", "memory.limit_in_bytes"); got != "-1" {
		t.Fatalf("memory limit %q after rollback, want -1", got)
	}
}
