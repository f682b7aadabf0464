package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wethinkt/go-glkcli/internal/criu"
	"github.com/wethinkt/go-glkcli/internal/game"
	"github.com/wethinkt/go-glkcli/internal/metrics"
	"github.com/wethinkt/go-glkcli/internal/ptyproxy"
	"github.com/wethinkt/go-glkcli/internal/termlog"
)

const defaultFlushTimeout = 200 * time.Millisecond

// Target is the running game a checkpoint is taken of.
type Target interface {
	GameID() string
	PID() int
	Game() game.Game
	Playtime() time.Duration
	Terminal() ptyproxy.Terminal
	SuspendForwarding()
	ResumeForwarding()
	FlushOutput(max time.Duration)
	Terminate() error
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	MaxPerGame   int // 0 keeps every checkpoint
	FlushTimeout time.Duration
	Now          func() time.Time
	Logger       *termlog.Logger
}

// Controller runs the suspend, dump and persist sequence. Only one
// checkpoint runs at a time.
type Controller struct {
	store  *Store
	engine criu.Engine
	opts   ControllerOptions

	mu sync.Mutex
}

// NewController returns a controller writing into store.
func NewController(store *Store, engine criu.Engine, opts ControllerOptions) *Controller {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = termlog.Log
	}
	return &Controller{store: store, engine: engine, opts: opts}
}

// Store returns the store the controller appends to.
func (c *Controller) Store() *Store {
	return c.store
}

// Checkpoint snapshots t. On success the checkpoint is in the index and,
// for SaveAndExit, the child has been told to terminate. On failure the
// index is unchanged, no image directory is left behind and forwarding is
// resumed.
func (c *Controller) Checkpoint(ctx context.Context, t Target, name string, mode Mode) (Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.opts.Logger
	start := time.Now()

	t.SuspendForwarding()
	t.FlushOutput(c.opts.FlushTimeout)
	played := t.Playtime()
	term := t.Terminal()

	fail := func(scratch string, err error) (Checkpoint, error) {
		if derr := c.store.Discard(scratch); derr != nil {
			log.Error("discard scratch dir", "dir", scratch, "err", derr)
		}
		t.ResumeForwarding()
		metrics.ObserveCheckpoint(mode.String(), time.Since(start), 0, err)
		log.Warn("checkpoint failed", "game", t.GameID(), "mode", mode, "err", err)
		return Checkpoint{}, err
	}

	scratch, err := c.store.Stage(t.GameID())
	if err != nil {
		return fail("", err)
	}

	done := log.Timed("criu dump", "pid", t.PID())
	err = c.engine.Dump(ctx, criu.DumpRequest{
		PID:          t.PID(),
		ImageDir:     scratch,
		LeaveRunning: true,
		TTY:          term.TTY,
	})
	done()
	if err != nil {
		return fail(scratch, err)
	}

	now := c.opts.Now()
	if name == "" {
		name = DefaultName(mode, now)
	}
	g := t.Game()
	cp := Checkpoint{
		ID:              uuid.NewString(),
		GameID:          t.GameID(),
		Name:            name,
		CreatedAt:       now.UTC(),
		PID:             t.PID(),
		Format:          g.Format,
		GamePath:        g.Path,
		Interpreter:     g.Interpreter,
		InterpreterArgs: g.Args,
		Terminal:        term,
	}
	cp.SetPlaytime(played)

	if err := c.store.Append(&cp, scratch); err != nil {
		return fail(scratch, err)
	}
	metrics.ObserveCheckpoint(mode.String(), time.Since(start), cp.SizeBytes, nil)

	if c.opts.MaxPerGame > 0 {
		if removed, err := c.store.Prune(cp.GameID, c.opts.MaxPerGame); err != nil {
			log.Warn("prune checkpoints", "game", cp.GameID, "err", err)
		} else if len(removed) > 0 {
			log.Info("pruned checkpoints", "game", cp.GameID, "count", len(removed))
		}
	}

	switch mode {
	case SaveAndExit:
		if err := t.Terminate(); err != nil {
			log.Warn("terminate after save", "pid", t.PID(), "err", err)
		}
	default:
		t.ResumeForwarding()
	}
	return cp, nil
}
