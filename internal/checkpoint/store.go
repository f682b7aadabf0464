package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/termlog"
)

const (
	indexFile       = "index.json"
	metadataFile    = "checkpoint.yaml"
	stagingDir      = ".staging"
	indexVersion    = 1
	metadataVersion = 1
)

// Store keeps checkpoints under root/<game-id>/. Image directories are
// renamed into place before the index that names them is replaced, so
// the index never references a partial snapshot.
type Store struct {
	root string
	log  *termlog.Logger

	mu         sync.Mutex
	writeIndex func(path string, data []byte) error
}

// NewStore returns a store rooted at root. The directory is created lazily.
func NewStore(root string) *Store {
	return &Store{
		root:       root,
		log:        termlog.Log,
		writeIndex: writeFileAtomic,
	}
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// GameDir returns the directory holding a game's checkpoints.
func (s *Store) GameDir(gameID string) string {
	return filepath.Join(s.root, gameID)
}

func (s *Store) indexPath(gameID string) string {
	return filepath.Join(s.GameDir(gameID), indexFile)
}

func (s *Store) imageDir(gameID, id string) string {
	return filepath.Join(s.GameDir(gameID), id)
}

func validName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return apperrors.New(apperrors.CodeStore, fmt.Sprintf("invalid %s %q", kind, name))
	}
	return nil
}

// LoadIndex returns the game's index, or an empty one if none exists.
func (s *Store) LoadIndex(gameID string) (*Index, error) {
	if err := validName("game id", gameID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndexLocked(gameID)
}

func (s *Store) loadIndexLocked(gameID string) (*Index, error) {
	data, err := os.ReadFile(s.indexPath(gameID))
	if errors.Is(err, fs.ErrNotExist) {
		return &Index{Version: indexVersion, GameID: gameID, Checkpoints: []Checkpoint{}}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStore, "read checkpoint index", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeStore, "parse checkpoint index",
			map[string]string{"path": s.indexPath(gameID)}, err)
	}
	if idx.GameID == "" {
		idx.GameID = gameID
	}
	if idx.Checkpoints == nil {
		idx.Checkpoints = []Checkpoint{}
	}
	sortCheckpoints(idx.Checkpoints)
	return &idx, nil
}

func (s *Store) saveIndexLocked(idx *Index) error {
	idx.Version = indexVersion
	sortCheckpoints(idx.Checkpoints)
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "encode checkpoint index", err)
	}
	err = s.writeIndex(s.indexPath(idx.GameID), append(data, '\n'))
	var syncErr *dirSyncError
	if errors.As(err, &syncErr) {
		// the new index is in place; only its durability is in doubt
		s.log.Warn("sync checkpoint index dir", "game", idx.GameID, "err", syncErr)
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "write checkpoint index", err)
	}
	return nil
}

func sortCheckpoints(cps []Checkpoint) {
	sort.SliceStable(cps, func(i, j int) bool { return cps[i].CreatedAt.Before(cps[j].CreatedAt) })
}

// List returns the game's checkpoints, oldest first.
func (s *Store) List(gameID string) ([]Checkpoint, error) {
	idx, err := s.LoadIndex(gameID)
	if err != nil {
		return nil, err
	}
	return idx.Checkpoints, nil
}

// Get returns one checkpoint by id.
func (s *Store) Get(gameID, id string) (Checkpoint, error) {
	cps, err := s.List(gameID)
	if err != nil {
		return Checkpoint{}, err
	}
	for _, cp := range cps {
		if cp.ID == id {
			return cp, nil
		}
	}
	return Checkpoint{}, apperrors.WithMetadata(apperrors.CodeNotFound, "no such checkpoint",
		map[string]string{"game": gameID, "id": id})
}

// Latest returns the newest checkpoint, if any.
func (s *Store) Latest(gameID string) (Checkpoint, bool, error) {
	cps, err := s.List(gameID)
	if err != nil || len(cps) == 0 {
		return Checkpoint{}, false, err
	}
	return cps[len(cps)-1], true, nil
}

// Games returns the ids of games that have an index, sorted.
func (s *Store) Games() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStore, "list games", err)
	}
	var games []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.indexPath(e.Name())); err == nil {
			games = append(games, e.Name())
		}
	}
	return games, nil
}

// Stage creates a private scratch directory for a dump. It lives on the
// same filesystem as the final location so Append can rename it.
func (s *Store) Stage(gameID string) (string, error) {
	if err := validName("game id", gameID); err != nil {
		return "", err
	}
	parent := filepath.Join(s.GameDir(gameID), stagingDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", apperrors.Wrap(apperrors.CodeStore, "create staging dir", err)
	}
	dir := filepath.Join(parent, uuid.NewString())
	if err := os.Mkdir(dir, 0700); err != nil {
		return "", apperrors.Wrap(apperrors.CodeStore, "create staging dir", err)
	}
	return dir, nil
}

// Discard removes a scratch directory. Missing directories are ignored.
func (s *Store) Discard(scratch string) error {
	if scratch == "" {
		return nil
	}
	if err := os.RemoveAll(scratch); err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "discard staging dir", err)
	}
	return nil
}

// Append commits a staged dump as cp: the manifest and metadata are written
// into scratch, scratch is renamed to its final name and the index is
// replaced. If the index cannot be replaced the image dir is removed again
// and the index is unchanged. cp.ImageDir and cp.SizeBytes are filled in.
func (s *Store) Append(cp *Checkpoint, scratch string) error {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if err := validName("game id", cp.GameID); err != nil {
		return err
	}
	if err := validName("checkpoint id", cp.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files, size, err := buildManifest(scratch)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "read staged images", err)
	}
	if len(files) == 0 {
		return apperrors.New(apperrors.CodeStore, "staged checkpoint is empty")
	}

	final := s.imageDir(cp.GameID, cp.ID)
	if _, err := os.Lstat(final); err == nil {
		return apperrors.New(apperrors.CodeStore, fmt.Sprintf("checkpoint %s already exists", cp.ID))
	}
	cp.ImageDir = final
	cp.SizeBytes = size

	meta, err := yaml.Marshal(Metadata{Version: metadataVersion, Checkpoint: *cp, Files: files})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "encode checkpoint metadata", err)
	}
	if err := writeFileSync(filepath.Join(scratch, metadataFile), meta); err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "write checkpoint metadata", err)
	}
	if err := syncDir(scratch); err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "sync staged images", err)
	}

	if err := os.Rename(scratch, final); err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "move checkpoint into place", err)
	}
	if err := syncDir(s.GameDir(cp.GameID)); err != nil {
		s.log.Warn("sync game dir", "err", err)
	}

	idx, err := s.loadIndexLocked(cp.GameID)
	if err == nil {
		idx.Checkpoints = append(idx.Checkpoints, *cp)
		err = s.saveIndexLocked(idx)
	}
	if err != nil {
		if rmErr := os.RemoveAll(final); rmErr != nil {
			s.log.Error("roll back checkpoint dir", "dir", final, "err", rmErr)
		}
		return err
	}

	s.log.Info("checkpoint stored", "game", cp.GameID, "id", cp.ID, "name", cp.Name, "size", size)
	return nil
}

// Delete removes the image directory, then the index entry. Deleting a
// checkpoint that does not exist succeeds.
func (s *Store) Delete(gameID, id string) error {
	if err := validName("game id", gameID); err != nil {
		return err
	}
	if err := validName("checkpoint id", id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndexLocked(gameID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(s.imageDir(gameID, id)); err != nil {
		return apperrors.Wrap(apperrors.CodeStore, "remove checkpoint images", err)
	}

	kept := idx.Checkpoints[:0]
	for _, cp := range idx.Checkpoints {
		if cp.ID != id {
			kept = append(kept, cp)
		}
	}
	if len(kept) == len(idx.Checkpoints) {
		return nil
	}
	idx.Checkpoints = kept
	if err := s.saveIndexLocked(idx); err != nil {
		return err
	}
	s.log.Info("checkpoint deleted", "game", gameID, "id", id)
	return nil
}

// Prune deletes the oldest checkpoints so at most keep remain.
func (s *Store) Prune(gameID string, keep int) ([]Checkpoint, error) {
	if keep <= 0 {
		return nil, nil
	}
	cps, err := s.List(gameID)
	if err != nil {
		return nil, err
	}
	if len(cps) <= keep {
		return nil, nil
	}
	victims := cps[:len(cps)-keep]
	var removed []Checkpoint
	for _, cp := range victims {
		if err := s.Delete(gameID, cp.ID); err != nil {
			return removed, err
		}
		removed = append(removed, cp)
	}
	return removed, nil
}

// ReadMetadata loads checkpoint.yaml from a checkpoint's image directory.
func (s *Store) ReadMetadata(cp Checkpoint) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(cp.ImageDir, metadataFile))
	if err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeImageCorrupt, "checkpoint metadata is missing",
			map[string]string{"dir": cp.ImageDir}, err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeImageCorrupt, "checkpoint metadata is unreadable",
			map[string]string{"dir": cp.ImageDir}, err)
	}
	return &meta, nil
}

// Verify checks the image files against the manifest recorded at append
// time. Any difference is reported as IMAGE_CORRUPT.
func (s *Store) Verify(cp Checkpoint) error {
	meta, err := s.ReadMetadata(cp)
	if err != nil {
		return err
	}
	if meta.Checkpoint.ID != cp.ID {
		return apperrors.WithMetadata(apperrors.CodeImageCorrupt, "checkpoint metadata belongs to another checkpoint",
			map[string]string{"dir": cp.ImageDir, "found": meta.Checkpoint.ID})
	}
	if len(meta.Files) == 0 {
		return apperrors.WithMetadata(apperrors.CodeImageCorrupt, "checkpoint manifest is empty",
			map[string]string{"dir": cp.ImageDir})
	}
	if name, err := verifyManifest(cp.ImageDir, meta.Files); err != nil {
		return apperrors.WrapWithMetadata(apperrors.CodeImageCorrupt, "checkpoint image changed since it was stored",
			map[string]string{"dir": cp.ImageDir, "file": name}, err)
	}
	return nil
}

// SweepReport lists what Sweep cleaned up.
type SweepReport struct {
	Staging []string     // abandoned scratch directories
	Orphans []string     // image directories no index entry refers to
	Missing []Checkpoint // index entries whose images were gone
}

// Empty reports whether Sweep found nothing to do.
func (r SweepReport) Empty() bool {
	return len(r.Staging) == 0 && len(r.Orphans) == 0 && len(r.Missing) == 0
}

// Sweep removes debris left by interrupted checkpoints and drops index
// entries whose image directory has disappeared.
func (s *Store) Sweep(gameID string) (SweepReport, error) {
	var report SweepReport
	if err := validName("game id", gameID); err != nil {
		return report, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndexLocked(gameID)
	if err != nil {
		return report, err
	}

	staging := filepath.Join(s.GameDir(gameID), stagingDir)
	if entries, err := os.ReadDir(staging); err == nil {
		for _, e := range entries {
			path := filepath.Join(staging, e.Name())
			if err := os.RemoveAll(path); err != nil {
				return report, apperrors.Wrap(apperrors.CodeStore, "remove staging dir", err)
			}
			report.Staging = append(report.Staging, path)
		}
	}

	known := make(map[string]bool, len(idx.Checkpoints))
	kept := make([]Checkpoint, 0, len(idx.Checkpoints))
	for _, cp := range idx.Checkpoints {
		known[cp.ID] = true
		if info, err := os.Stat(s.imageDir(gameID, cp.ID)); err != nil || !info.IsDir() {
			report.Missing = append(report.Missing, cp)
			continue
		}
		kept = append(kept, cp)
	}

	entries, err := os.ReadDir(s.GameDir(gameID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return report, apperrors.Wrap(apperrors.CodeStore, "list game dir", err)
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || known[e.Name()] {
			continue
		}
		path := filepath.Join(s.GameDir(gameID), e.Name())
		if err := os.RemoveAll(path); err != nil {
			return report, apperrors.Wrap(apperrors.CodeStore, "remove orphan image dir", err)
		}
		report.Orphans = append(report.Orphans, path)
	}

	if len(report.Missing) > 0 {
		idx.Checkpoints = kept
		if err := s.saveIndexLocked(idx); err != nil {
			return report, err
		}
	}
	if !report.Empty() {
		s.log.Info("store swept", "game", gameID, "staging", len(report.Staging), "orphans", len(report.Orphans), "missing", len(report.Missing))
	}
	return report, nil
}
