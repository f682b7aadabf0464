// Package errors provides the structured error type shared by the
// checkpoint, restore and session packages.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Checkpoint facility errors
	CodePrivilege     Code = "PRIVILEGE"
	CodeToolMissing   Code = "TOOL_MISSING"
	CodeDumpFailed    Code = "DUMP_FAILED"
	CodeRestoreFailed Code = "RESTORE_FAILED"
	CodeImageCorrupt  Code = "IMAGE_CORRUPT"
	CodeReattach      Code = "REATTACH_FAILED"

	// Store errors
	CodeStore    Code = "STORE"
	CodeNotFound Code = "NOT_FOUND"

	// Session errors
	CodeSessionState Code = "SESSION_STATE"
)

// Summary returns a short user-facing description of the code.
func (c Code) Summary() string {
	switch c {
	case CodePrivilege:
		return "insufficient privileges for checkpointing"
	case CodeToolMissing:
		return "checkpoint tool not found"
	case CodeDumpFailed:
		return "checkpoint failed"
	case CodeRestoreFailed:
		return "restore failed"
	case CodeImageCorrupt:
		return "checkpoint image is damaged or incomplete"
	case CodeReattach:
		return "restored game could not be attached to the terminal"
	case CodeStore:
		return "checkpoint storage error"
	case CodeNotFound:
		return "checkpoint not found"
	case CodeSessionState:
		return "operation not allowed in the current session state"
	default:
		return "unexpected error"
	}
}

// Hint returns an actionable suggestion for the code, or "".
func (c Code) Hint() string {
	switch c {
	case CodePrivilege:
		return "run as root or grant CRIU capabilities: sudo setcap cap_checkpoint_restore,cap_sys_ptrace+eip $(which criu)"
	case CodeToolMissing:
		return "install CRIU (e.g. apt install criu) or set criu.binary in the config file"
	case CodeImageCorrupt:
		return "delete the checkpoint with 'glkcli checkpoints delete'"
	case CodeDumpFailed, CodeRestoreFailed:
		return "see the CRIU log for details"
	default:
		return ""
	}
}
