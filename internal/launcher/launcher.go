// Package launcher ties the pieces together for one play: it starts or
// restores a game, serves hotkeys and loops on quick-reload.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	"github.com/wethinkt/go-glkcli/internal/config"
	"github.com/wethinkt/go-glkcli/internal/criu"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/game"
	"github.com/wethinkt/go-glkcli/internal/metrics"
	"github.com/wethinkt/go-glkcli/internal/ptyproxy"
	"github.com/wethinkt/go-glkcli/internal/restore"
	"github.com/wethinkt/go-glkcli/internal/session"
	"github.com/wethinkt/go-glkcli/internal/termlog"
)

// Options configures a Launcher. Zero values use the real terminal and
// the criu binary from the config.
type Options struct {
	Stdin  *os.File
	Stdout io.Writer
	Engine criu.Engine
	Logger *termlog.Logger
	// NoRegistry skips the live session registry, for tests.
	NoRegistry bool
}

// Launcher plays games with checkpoint support.
type Launcher struct {
	cfg    config.Config
	opts   Options
	keymap ptyproxy.Keymap
	store  *checkpoint.Store
	engine criu.Engine
	ctrl   *checkpoint.Controller
	log    *termlog.Logger
}

// New builds a launcher from cfg.
func New(cfg config.Config, opts Options) (*Launcher, error) {
	if opts.Logger == nil {
		opts.Logger = termlog.Log
	}
	keymap, err := Keymap(cfg.Hotkeys)
	if err != nil {
		return nil, err
	}
	if opts.Engine == nil {
		opts.Engine = criu.New(criu.Options{
			Binary:           cfg.CRIU.Binary,
			ExtraDumpArgs:    cfg.CRIU.ExtraDumpArgs,
			ExtraRestoreArgs: cfg.CRIU.ExtraRestoreArgs,
			Logger:           opts.Logger,
		})
	}
	store := checkpoint.NewStore(cfg.CheckpointDir)
	return &Launcher{
		cfg:    cfg,
		opts:   opts,
		keymap: keymap,
		store:  store,
		engine: opts.Engine,
		ctrl: checkpoint.NewController(store, opts.Engine, checkpoint.ControllerOptions{
			MaxPerGame: cfg.MaxCheckpoints,
			Logger:     opts.Logger,
		}),
		log: opts.Logger,
	}, nil
}

// Keymap converts the configured key names into a hotkey keymap.
func Keymap(h config.HotkeyConfig) (ptyproxy.Keymap, error) {
	k, err := ptyproxy.KeymapFromNames(map[ptyproxy.Action][]string{
		ptyproxy.ActionQuickSave:   h.QuickSave,
		ptyproxy.ActionSaveAndExit: h.SaveAndExit,
		ptyproxy.ActionQuickReload: h.QuickReload,
		ptyproxy.ActionQuit:        h.Quit,
	})
	if err != nil {
		return nil, fmt.Errorf("hotkeys: %w", err)
	}
	if len(k) == 0 {
		return ptyproxy.DefaultKeymap(), nil
	}
	return k, nil
}

// Store returns the checkpoint store.
func (l *Launcher) Store() *checkpoint.Store {
	return l.store
}

// Check reports whether checkpoints will work. Play and Resume do not
// require it: without the facility a game still runs, uncheckpointed.
func (l *Launcher) Check(ctx context.Context) error {
	return l.engine.Check(ctx)
}

// Play starts g from the beginning.
func (l *Launcher) Play(ctx context.Context, g game.Game) (session.Outcome, error) {
	if err := l.prepare(g.ID()); err != nil {
		return session.OutcomeExited, err
	}
	s, err := session.Start(ctx, g, 0, l.sessionOptions(g.ID()))
	if err != nil {
		return session.OutcomeExited, err
	}
	return l.loop(ctx, s, config.SessionPlay, "")
}

// Resume restores checkpoint id of gameID, or the latest one when id is
// empty.
func (l *Launcher) Resume(ctx context.Context, gameID, id string) (session.Outcome, error) {
	if err := l.prepare(gameID); err != nil {
		return session.OutcomeExited, err
	}
	cp, err := l.find(gameID, id)
	if err != nil {
		return session.OutcomeExited, err
	}
	s, err := l.restorer(gameID).Restore(ctx, cp)
	if err != nil {
		return session.OutcomeExited, err
	}
	return l.loop(ctx, s, config.SessionRestore, cp.ID)
}

func (l *Launcher) find(gameID, id string) (checkpoint.Checkpoint, error) {
	if id != "" {
		return l.store.Get(gameID, id)
	}
	cp, ok, err := l.store.Latest(gameID)
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if !ok {
		return checkpoint.Checkpoint{}, apperrors.WithMetadata(apperrors.CodeNotFound, "game has no checkpoints",
			map[string]string{"game": gameID})
	}
	return cp, nil
}

func (l *Launcher) prepare(gameID string) error {
	if !l.opts.NoRegistry {
		if rec := config.FindSessionByGame(gameID); rec != nil && rec.PID != os.Getpid() {
			return apperrors.WithMetadata(apperrors.CodeSessionState, "game is already running in another glkcli",
				map[string]string{"game": gameID, "pid": fmt.Sprint(rec.PID)})
		}
	}
	if err := becomeSubreaper(); err != nil {
		l.log.Warn("cannot become child subreaper; restored games may not be reaped", "err", err)
	}
	if report, err := l.store.Sweep(gameID); err != nil {
		l.log.Warn("sweep checkpoint store", "game", gameID, "err", err)
	} else if !report.Empty() {
		l.log.Info("removed interrupted checkpoint debris", "game", gameID,
			"staging", len(report.Staging), "orphans", len(report.Orphans), "missing", len(report.Missing))
	}
	return nil
}

func (l *Launcher) sessionOptions(gameID string) session.Options {
	return session.Options{
		Proxy: ptyproxy.Options{
			Stdin:  l.opts.Stdin,
			Stdout: l.opts.Stdout,
			Keymap: l.keymap,
			Logger: l.log,
		},
		Checkpointer: l.ctrl,
		ReloadAvailable: func() bool {
			_, ok, err := l.store.Latest(gameID)
			return err == nil && ok
		},
		TerminateGrace: l.cfg.TerminateGraceDuration(),
		Logger:         l.log,
	}
}

func (l *Launcher) restorer(gameID string) *restore.Engine {
	return restore.New(l.store, l.engine, l.sessionOptions(gameID))
}

// loop runs s and, for every quick-reload, replaces it with a session
// restored from the latest checkpoint.
func (l *Launcher) loop(ctx context.Context, s *session.Session, mode config.SessionMode, checkpointID string) (session.Outcome, error) {
	defer l.writeMetrics()
	gameID := s.GameID()
	for {
		l.register(s, mode, checkpointID)
		outcome, err := s.Run(ctx)
		if outcome != session.OutcomeReload {
			s.Close()
			l.unregister()
			l.log.Info("play finished", "game", gameID, "outcome", outcome, "status", statusOf(s))
			return outcome, err
		}

		// criu restores the original pid, so the current child has to be
		// gone before the restore starts.
		if err := s.Terminate(); err != nil {
			l.log.Warn("terminate before reload", "pid", s.PID(), "err", err)
		}
		s.Close()

		cp, err := l.find(gameID, "")
		if err != nil {
			l.unregister()
			return session.OutcomeExited, err
		}
		next, err := l.restorer(gameID).Restore(ctx, cp)
		if err != nil {
			l.unregister()
			return session.OutcomeExited, err
		}
		s, mode, checkpointID = next, config.SessionRestore, cp.ID
	}
}

func statusOf(s *session.Session) string {
	select {
	case <-s.Done():
		return s.Wait().String()
	default:
		return "running"
	}
}

func (l *Launcher) register(s *session.Session, mode config.SessionMode, checkpointID string) {
	if l.opts.NoRegistry {
		return
	}
	err := config.RegisterSession(config.SessionRecord{
		GameID:       s.GameID(),
		Title:        s.Game().Title(),
		Mode:         mode,
		PID:          os.Getpid(),
		ChildPID:     s.PID(),
		CheckpointID: checkpointID,
		StartedAt:    time.Now(),
	})
	if err != nil {
		l.log.Warn("register session", "err", err)
	}
}

func (l *Launcher) unregister() {
	if l.opts.NoRegistry {
		return
	}
	if err := config.UnregisterSession(os.Getpid()); err != nil {
		l.log.Warn("unregister session", "err", err)
	}
}

func (l *Launcher) writeMetrics() {
	if l.cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(l.cfg.MetricsFile); err != nil {
		l.log.Warn("write metrics", "path", l.cfg.MetricsFile, "err", err)
	}
}
