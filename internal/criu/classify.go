package criu

import (
	"bufio"
	"os"
	"strings"
)

var privilegeMarkers = []string{
	"operation not permitted",
	"permission denied",
	"eperm",
	"cap_sys_admin",
	"cap_checkpoint_restore",
	"must be run as root",
}

var corruptMarkers = []string{
	"unexpected eof",
	"magic",
	"corrupt",
	"can't read image",
	"short read",
}

type failureKind int

const (
	failureGeneric failureKind = iota
	failurePrivilege
	failureCorrupt
)

// classifyLog scans a CRIU log for well-known failure signatures. Only the
// kind is returned; log lines never leave the adapter except via the
// termlog debug log.
func classifyLog(path string) (failureKind, string) {
	f, err := os.Open(path)
	if err != nil {
		return failureGeneric, ""
	}
	defer f.Close()

	kind := failureGeneric
	var lastErr string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "error") && !strings.Contains(lower, "fail") {
			continue
		}
		lastErr = line
		if kind != failureGeneric {
			continue
		}
		if containsAny(lower, privilegeMarkers) {
			kind = failurePrivilege
		} else if containsAny(lower, corruptMarkers) || (strings.Contains(lower, ".img") && strings.Contains(lower, "no such file")) {
			kind = failureCorrupt
		}
	}
	return kind, lastErr
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
