package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func writeFile(dir, file, data string) error {
	return os.WriteFile(filepath.Join(dir, file), []byte(data), 0o644)
}

func writeFileInt(dir, file string, data int64) error {
	return writeFile(dir, file, strconv.FormatInt(data, 10))
}

func readFile(dir, file string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readFileUint(dir, file string) (uint64, error) {
	s, err := readFile(dir, file)
	if err != nil {
		return 0, err
	}
	// "max" appears in pids files when unlimited
	if s == "max" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// getParamKeyValue splits a "key value" line from a flat keyed cgroup file.
func getParamKeyValue(line string) (string, uint64, error) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid cgroup param line %q", line)
	}
	v, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("parsing cgroup param %q: %w", line, err)
	}
	return parts[0], v, nil
}

func readProcs(path string) ([]int, error) {
	f, err := os.Open(filepath.Join(path, "cgroup.procs"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pids []int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		pids = append(pids, pid)
	}
	return pids, sc.Err()
}

func removePath(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
