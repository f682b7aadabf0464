package version

import (
	"strings"
	"testing"
)

func TestGetPrefersLinkerVersion(t *testing.T) {
	old := Version
	Version = "v9.9.9"
	t.Cleanup(func() { Version = old })

	if got := Get(); got != "v9.9.9" {
		t.Errorf("Get() = %q", got)
	}
	if s := String("glkcli"); !strings.HasPrefix(s, "glkcli version v9.9.9 (") {
		t.Errorf("String() = %q", s)
	}
}

func TestGetInfoPlatform(t *testing.T) {
	info := GetInfo("glkcli")
	if info.Name != "glkcli" || info.GoVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Errorf("unexpected info: %+v", info)
	}
}
