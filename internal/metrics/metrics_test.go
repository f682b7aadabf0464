package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
)

func TestObserveCheckpointLabels(t *testing.T) {
	before := testutil.ToFloat64(checkpointOperations.WithLabelValues("quick_save", "tool_missing"))

	ObserveCheckpoint("quick_save", time.Second, 0, apperrors.New(apperrors.CodeToolMissing, "criu not found"))

	after := testutil.ToFloat64(checkpointOperations.WithLabelValues("quick_save", "tool_missing"))
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}

func TestResultLabel(t *testing.T) {
	if got := result(nil); got != "ok" {
		t.Errorf("result(nil) = %q", got)
	}
	if got := result(apperrors.New(apperrors.CodeImageCorrupt, "x")); got != "image_corrupt" {
		t.Errorf("result = %q", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	ObserveRestore(250*time.Millisecond, nil)
	CountHotkey("quick_save")
	SetPlaytime(42 * time.Second)

	path := filepath.Join(t.TempDir(), "glkcli.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"glkcli_restore_operations_total",
		`glkcli_session_hotkeys_total{action="quick_save"}`,
		"glkcli_session_playtime_seconds 42",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}
