// Package criutest provides an in-memory checkpoint engine for tests.
package criutest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wethinkt/go-glkcli/internal/criu"
)

// Fake records requests and writes placeholder images on Dump.
type Fake struct {
	mu sync.Mutex

	CheckErr   error
	DumpErr    error
	RestoreErr error
	RestorePID int

	// RestoreFunc, when set, replaces the default restore behaviour, e.g. to
	// start a real process on req.TTY.
	RestoreFunc func(req criu.RestoreRequest) (int, error)

	// Images are written into the image dir by a successful Dump. When nil,
	// inventory.img and pstree.img are written.
	Images map[string][]byte

	Dumps    []criu.DumpRequest
	Restores []criu.RestoreRequest
}

var _ criu.Engine = (*Fake)(nil)

// Check returns CheckErr.
func (f *Fake) Check(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CheckErr
}

// Dump records req and, unless DumpErr is set, writes the images.
func (f *Fake) Dump(ctx context.Context, req criu.DumpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dumps = append(f.Dumps, req)
	if f.DumpErr != nil {
		// criu leaves partial output behind on failure
		os.WriteFile(filepath.Join(req.ImageDir, "dump.log"), []byte("Error: dump failed\n"), 0644)
		return f.DumpErr
	}

	images := f.Images
	if images == nil {
		images = map[string][]byte{
			"inventory.img": []byte("inventory"),
			"pstree.img":    []byte(fmt.Sprintf("pstree %d", req.PID)),
		}
	}
	for name, data := range images {
		if err := os.WriteFile(filepath.Join(req.ImageDir, name), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// Restore records req and returns RestorePID or RestoreErr.
func (f *Fake) Restore(ctx context.Context, req criu.RestoreRequest) (int, error) {
	f.mu.Lock()
	f.Restores = append(f.Restores, req)
	fn, pid, err := f.RestoreFunc, f.RestorePID, f.RestoreErr
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// DumpCount returns the number of Dump calls.
func (f *Fake) DumpCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Dumps)
}

// RestoreRequests returns a copy of the recorded restores.
func (f *Fake) RestoreRequests() []criu.RestoreRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]criu.RestoreRequest(nil), f.Restores...)
}
