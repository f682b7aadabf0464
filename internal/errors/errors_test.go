package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Wrap(CodeDumpFailed, "criu dump exited with status 1", fmt.Errorf("exit status 1"))
	wrapped := fmt.Errorf("quick save: %w", err)

	if !stderrors.Is(wrapped, New(CodeDumpFailed, "")) {
		t.Fatal("expected wrapped error to match DUMP_FAILED")
	}
	if stderrors.Is(wrapped, New(CodePrivilege, "")) {
		t.Fatal("did not expect wrapped error to match PRIVILEGE")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"plain", stderrors.New("boom"), CodeUnknown},
		{"direct", New(CodeToolMissing, "criu not found"), CodeToolMissing},
		{"wrapped", fmt.Errorf("restore: %w", New(CodeImageCorrupt, "missing inventory.img")), CodeImageCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasCodeNil(t *testing.T) {
	if HasCode(nil, CodeUnknown) {
		t.Fatal("nil error should not carry any code")
	}
}

func TestErrorIncludesCause(t *testing.T) {
	err := Wrap(CodeStore, "write index", stderrors.New("disk full"))
	if got := err.Error(); got != "write index: disk full" {
		t.Errorf("Error() = %q", got)
	}
	if !stderrors.Is(err, err.Cause) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestUserMessage(t *testing.T) {
	err := WithMetadata(CodePrivilege, "criu check failed", map[string]string{
		"log":    "/tmp/x/dump.log",
		"binary": "/usr/sbin/criu",
	})
	msg := UserMessage(fmt.Errorf("checkpoint: %w", err))

	for _, want := range []string{
		"insufficient privileges",
		"[PRIVILEGE]",
		"criu check failed",
		"binary: /usr/sbin/criu",
		"hint: ",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("UserMessage missing %q:\n%s", want, msg)
		}
	}
	if strings.Index(msg, "binary:") > strings.Index(msg, "log:") {
		t.Errorf("metadata should be sorted by key:\n%s", msg)
	}
}

func TestUserMessagePlainError(t *testing.T) {
	if got := UserMessage(stderrors.New("boom")); got != "boom" {
		t.Errorf("UserMessage() = %q", got)
	}
	if got := UserMessage(nil); got != "" {
		t.Errorf("UserMessage(nil) = %q", got)
	}
}
