// Package restore brings a stored checkpoint back to life on a fresh pty
// and hands it over as a running session.
package restore

import (
	"context"
	"fmt"
	"time"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	"github.com/wethinkt/go-glkcli/internal/criu"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/metrics"
	"github.com/wethinkt/go-glkcli/internal/ptyproxy"
	"github.com/wethinkt/go-glkcli/internal/session"
	"github.com/wethinkt/go-glkcli/internal/termlog"
)

// Engine restores checkpoints. It never writes to the store.
type Engine struct {
	store   *checkpoint.Store
	engine  criu.Engine
	session session.Options
	log     *termlog.Logger
}

// New returns a restore engine. opts configures the sessions it creates.
func New(store *checkpoint.Store, engine criu.Engine, opts session.Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = termlog.Log
	}
	return &Engine{store: store, engine: engine, session: opts, log: log}
}

// Restore verifies cp, restores it onto a new pty and returns the running
// session. No session exists when an error is returned.
func (e *Engine) Restore(ctx context.Context, cp checkpoint.Checkpoint) (*session.Session, error) {
	start := time.Now()
	s, err := e.restore(ctx, cp)
	metrics.ObserveRestore(time.Since(start), err)
	if err != nil {
		e.log.Warn("restore failed", "game", cp.GameID, "id", cp.ID, "err", err)
		return nil, err
	}
	e.log.Info("restored", "game", cp.GameID, "id", cp.ID, "pid", s.PID(), "took", time.Since(start))
	return s, nil
}

func (e *Engine) restore(ctx context.Context, cp checkpoint.Checkpoint) (*session.Session, error) {
	if err := e.store.Verify(cp); err != nil {
		return nil, err
	}

	proxy, err := ptyproxy.Open(e.session.Proxy)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeReattach, "open terminal for restore", err)
	}
	if err := proxy.ApplyMode(cp.Terminal.Mode); err != nil {
		e.log.Debug("apply saved terminal mode", "err", err)
	}

	done := e.log.Timed("criu restore", "dir", cp.ImageDir)
	pid, err := e.engine.Restore(ctx, criu.RestoreRequest{
		ImageDir: cp.ImageDir,
		TTY:      proxy.Slave(),
		TTYKey:   cp.Terminal.TTY,
	})
	done()
	if err != nil {
		proxy.Close()
		return nil, err
	}

	s := session.Adopt(proxy, pid, cp.Game(), cp.Playtime(), e.session)
	if err := proxy.Reattach(pid); err != nil {
		s.Abandon()
		return nil, err
	}
	if err := s.MarkRunning(); err != nil {
		s.Abandon()
		return nil, apperrors.WrapWithMetadata(apperrors.CodeReattach, "restored process exited during reattach",
			map[string]string{"pid": fmt.Sprint(pid)}, err)
	}
	return s, nil
}
