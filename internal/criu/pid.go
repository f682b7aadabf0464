package criu

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// readPIDFile parses the pid CRIU writes with --pidfile.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(bytes.TrimSpace(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// pidFromLog looks for the restored root task in a restore log, matching
// "pid: N" or "(N)" on lines that mention the root task.
func pidFromLog(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "Restoring processes") && !strings.Contains(line, "root task") {
			continue
		}
		if pid, ok := extractPID(line); ok {
			return pid, true
		}
	}
	return 0, false
}

func extractPID(line string) (int, bool) {
	if i := strings.Index(line, "pid:"); i >= 0 {
		rest := strings.TrimSpace(line[i+len("pid:"):])
		end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
		if end < 0 {
			end = len(rest)
		}
		if pid, err := strconv.Atoi(rest[:end]); err == nil && pid > 0 {
			return pid, true
		}
	}
	if start := strings.IndexByte(line, '('); start >= 0 {
		if end := strings.IndexByte(line[start:], ')'); end > 0 {
			if pid, err := strconv.Atoi(line[start+1 : start+end]); err == nil && pid > 0 {
				return pid, true
			}
		}
	}
	return 0, false
}

// pidFromImages derives the root pid from core-<pid>.img file names,
// choosing the lowest pid in the tree.
func pidFromImages(dir string) (int, bool) {
	matches, _ := filepath.Glob(filepath.Join(dir, "core-*.img"))
	best := 0
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "core-"), ".img")
		pid, err := strconv.Atoi(name)
		if err != nil || pid <= 0 {
			continue
		}
		if best == 0 || pid < best {
			best = pid
		}
	}
	return best, best > 0
}
