package criu

import "strconv"

const (
	dumpLogName    = "dump.log"
	restoreLogName = "restore.log"
	pidFileName    = "restore.pid"
)

func (c *CRIU) checkArgs(unprivileged bool) []string {
	args := []string{"check"}
	if unprivileged {
		args = append(args, "--unprivileged")
	}
	return args
}

func (c *CRIU) dumpArgs(req DumpRequest, unprivileged bool) []string {
	args := []string{
		"dump",
		"--tree", strconv.Itoa(req.PID),
		"--images-dir", req.ImageDir,
		"--log-file", dumpLogName,
		"--shell-job",
		"--tcp-close",
	}
	if req.LeaveRunning {
		args = append(args, "--leave-running")
	}
	if req.TTY != "" {
		args = append(args, "--external", req.TTY)
	}
	if unprivileged {
		args = append(args, "--unprivileged")
	}
	return append(args, c.opts.ExtraDumpArgs...)
}

func (c *CRIU) restoreArgs(req RestoreRequest, workDir string, unprivileged bool) []string {
	args := []string{
		"restore",
		"--images-dir", req.ImageDir,
		"--work-dir", workDir,
		"--log-file", restoreLogName,
		"--pidfile", pidFileName,
		"--shell-job",
		"--restore-detached",
	}
	if req.TTY != nil && req.TTYKey != "" {
		// The new slave is criu's stdin.
		args = append(args, "--inherit-fd", "fd[0]:"+req.TTYKey)
	}
	if unprivileged {
		args = append(args, "--unprivileged", "--tcp-close", "--ext-unix-sk")
	}
	return append(args, c.opts.ExtraRestoreArgs...)
}
