package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
)

const watchDebounce = 100 * time.Millisecond

// Watch emits the game's checkpoint list once immediately and again every
// time the index is replaced. The channel is closed when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, gameID string) (<-chan []Checkpoint, error) {
	if err := validName("game id", gameID); err != nil {
		return nil, err
	}
	dir := s.GameDir(gameID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStore, "create game dir", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStore, "start watcher", err)
	}
	// The index is replaced by rename, so watch the directory, not the file.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, apperrors.Wrap(apperrors.CodeStore, "watch game dir", err)
	}

	first, err := s.List(gameID)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	ch := make(chan []Checkpoint, 4)
	ch <- first
	go s.watchLoop(ctx, gameID, watcher, ch)
	return ch, nil
}

func (s *Store) watchLoop(ctx context.Context, gameID string, watcher *fsnotify.Watcher, ch chan<- []Checkpoint) {
	defer close(ch)
	defer watcher.Close()

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != indexFile {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				debounce.Reset(watchDebounce)
			}

		case <-debounce.C:
			cps, err := s.List(gameID)
			if err != nil {
				s.log.Warn("reload checkpoint index", "game", gameID, "err", err)
				continue
			}
			select {
			case ch <- cps:
			case <-ctx.Done():
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("checkpoint watcher error", "game", gameID, "err", err)
		}
	}
}
