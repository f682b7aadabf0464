package criu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/termlog"
)

// Options configures the CRIU adapter.
type Options struct {
	Binary           string   // name or path of the criu binary (default "criu")
	ExtraDumpArgs    []string // appended to every dump
	ExtraRestoreArgs []string // appended to every restore
	WorkRoot         string   // parent of restore work dirs (default os.TempDir())
	Logger           *termlog.Logger
}

// CRIU runs the criu binary.
type CRIU struct {
	opts Options

	lookPath func(string) (string, error)
	geteuid  func() int
	run      func(cmd *exec.Cmd) error

	mu         sync.Mutex // one criu invocation at a time
	privileged bool       // unprivileged check passed or running as root
}

// New returns a CRIU adapter.
func New(opts Options) *CRIU {
	if opts.Binary == "" {
		opts.Binary = "criu"
	}
	if opts.WorkRoot == "" {
		opts.WorkRoot = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = termlog.Log
	}
	return &CRIU{
		opts:     opts,
		lookPath: exec.LookPath,
		geteuid:  os.Geteuid,
		run:      func(cmd *exec.Cmd) error { return cmd.Run() },
	}
}

var _ Engine = (*CRIU)(nil)

// Check verifies criu is installed and usable by the current user.
func (c *CRIU) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bin, err := c.resolve()
	if err != nil {
		return err
	}
	return c.checkPrivilege(ctx, bin, true)
}

// Dump snapshots req.PID into req.ImageDir. The dump is not cancellable
// once started; ctx only carries values.
func (c *CRIU) Dump(ctx context.Context, req DumpRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.PID <= 0 {
		return apperrors.New(apperrors.CodeDumpFailed, fmt.Sprintf("invalid pid %d", req.PID))
	}
	if info, err := os.Stat(req.ImageDir); err != nil || !info.IsDir() {
		return apperrors.Wrap(apperrors.CodeDumpFailed, "image directory unavailable", err)
	}

	bin, err := c.resolve()
	if err != nil {
		return err
	}
	if err := c.checkPrivilege(ctx, bin, false); err != nil {
		return err
	}

	unprivileged := c.geteuid() != 0
	cmd := exec.CommandContext(context.WithoutCancel(ctx), bin, c.dumpArgs(req, unprivileged)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	defer c.opts.Logger.Timed("criu dump", "pid", req.PID, "dir", req.ImageDir)()
	runErr := c.run(cmd)
	if runErr == nil {
		return nil
	}

	logPath := filepath.Join(req.ImageDir, dumpLogName)
	kind, line := classifyLog(logPath)
	c.opts.Logger.Error("criu dump failed", "pid", req.PID, "err", runErr, "log_line", line, "output", out.String())

	meta := map[string]string{"log": logPath}
	if code := exitCode(runErr); code >= 0 {
		meta["exit"] = strconv.Itoa(code)
	}
	if kind == failurePrivilege {
		return apperrors.WrapWithMetadata(apperrors.CodePrivilege, "criu was denied access to the game process", meta, runErr)
	}
	return apperrors.WrapWithMetadata(apperrors.CodeDumpFailed, fmt.Sprintf("criu dump of pid %d failed", req.PID), meta, runErr)
}

// Restore resumes the snapshot in req.ImageDir, detached, and returns the
// restored root PID. The image directory is never written: logs and the
// pid file go to a private work dir, removed on success.
func (c *CRIU) Restore(ctx context.Context, req RestoreRequest) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := validateImage(req.ImageDir); err != nil {
		return 0, err
	}

	bin, err := c.resolve()
	if err != nil {
		return 0, err
	}
	if err := c.checkPrivilege(ctx, bin, false); err != nil {
		return 0, err
	}

	workDir, err := os.MkdirTemp(c.opts.WorkRoot, "glkcli-restore-")
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeRestoreFailed, "create restore work dir", err)
	}

	unprivileged := c.geteuid() != 0
	cmd := exec.CommandContext(context.WithoutCancel(ctx), bin, c.restoreArgs(req, workDir, unprivileged)...)
	var out bytes.Buffer
	cmd.Stderr = &out
	if req.TTY != nil {
		// criu's session and controlling terminal become the new slave,
		// which --shell-job hands to the restored tree.
		cmd.Stdin = req.TTY
		cmd.Stdout = req.TTY
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true, Ctty: 0}
	} else {
		cmd.Stdout = &out
	}

	done := c.opts.Logger.Timed("criu restore", "dir", req.ImageDir, "work_dir", workDir)
	runErr := c.run(cmd)
	done()

	logPath := filepath.Join(workDir, restoreLogName)
	meta := map[string]string{"log": logPath}
	if runErr != nil {
		kind, line := classifyLog(logPath)
		c.opts.Logger.Error("criu restore failed", "dir", req.ImageDir, "err", runErr, "log_line", line, "output", out.String())
		if code := exitCode(runErr); code >= 0 {
			meta["exit"] = strconv.Itoa(code)
		}
		switch kind {
		case failurePrivilege:
			return 0, apperrors.WrapWithMetadata(apperrors.CodePrivilege, "criu was denied the privileges needed to restore", meta, runErr)
		case failureCorrupt:
			return 0, apperrors.WrapWithMetadata(apperrors.CodeImageCorrupt, "criu could not read the checkpoint images", meta, runErr)
		default:
			return 0, apperrors.WrapWithMetadata(apperrors.CodeRestoreFailed, "criu restore failed", meta, runErr)
		}
	}

	pid, err := readPIDFile(filepath.Join(workDir, pidFileName))
	if err != nil {
		var ok bool
		if pid, ok = pidFromLog(logPath); !ok {
			if pid, ok = pidFromImages(req.ImageDir); !ok {
				return 0, apperrors.WithMetadata(apperrors.CodeRestoreFailed, "criu restore succeeded but the restored pid is unknown", meta)
			}
		}
		c.opts.Logger.Warn("restore pid file unreadable, using fallback", "pid", pid, "err", err)
	}

	c.opts.Logger.Info("criu restore complete", "pid", pid, "dir", req.ImageDir)
	os.RemoveAll(workDir)
	return pid, nil
}

// resolve finds the criu binary.
func (c *CRIU) resolve() (string, error) {
	bin, err := c.lookPath(c.opts.Binary)
	if err != nil {
		return "", apperrors.WrapWithMetadata(apperrors.CodeToolMissing, "criu binary not found",
			map[string]string{"binary": c.opts.Binary}, err)
	}
	return bin, nil
}

// checkPrivilege runs "criu check --unprivileged" for non-root users. A
// success is remembered; force re-runs the check.
func (c *CRIU) checkPrivilege(ctx context.Context, bin string, force bool) error {
	euid := c.geteuid()
	if c.privileged && !force {
		return nil
	}

	cmd := exec.CommandContext(ctx, bin, c.checkArgs(euid != 0)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := c.run(cmd)
	c.opts.Logger.Debug("criu check", "euid", euid, "duration", time.Since(start), "err", err)
	if err == nil {
		c.privileged = true
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return apperrors.WrapWithMetadata(apperrors.CodeToolMissing, "criu binary could not be executed",
			map[string]string{"binary": bin}, err)
	}
	c.opts.Logger.Warn("criu check failed", "output", out.String())
	if euid == 0 {
		// root with a kernel that lacks features: let the dump report it
		c.privileged = true
		return nil
	}
	return apperrors.WrapWithMetadata(apperrors.CodePrivilege, "criu check --unprivileged failed",
		map[string]string{"binary": bin}, err)
}

// validateImage rejects directories that cannot hold a CRIU snapshot.
func validateImage(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeImageCorrupt, "checkpoint image directory is missing",
			map[string]string{"dir": dir}, err)
	}
	if !info.IsDir() {
		return apperrors.WithMetadata(apperrors.CodeImageCorrupt, "checkpoint image path is not a directory",
			map[string]string{"dir": dir})
	}
	for _, name := range []string{"inventory.img", "pstree.img"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return apperrors.WrapWithMetadata(apperrors.CodeImageCorrupt, "checkpoint is missing "+name,
				map[string]string{"dir": dir}, err)
		}
	}
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
