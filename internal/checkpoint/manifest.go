package checkpoint

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// FileDigest records one image file for corruption checks.
type FileDigest struct {
	Name  string `yaml:"name"`
	Size  int64  `yaml:"size"`
	XXH64 string `yaml:"xxh64"`
}

// buildManifest digests every regular file under dir except the metadata
// file, returning the digests sorted by name and the total size.
func buildManifest(dir string) ([]FileDigest, int64, error) {
	var files []FileDigest
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == metadataFile {
			return nil
		}
		fd, err := digestFile(path)
		if err != nil {
			return err
		}
		fd.Name = filepath.ToSlash(rel)
		files = append(files, fd)
		total += fd.Size
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, total, nil
}

func digestFile(path string) (FileDigest, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileDigest{}, err
	}
	defer f.Close()

	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return FileDigest{}, err
	}
	return FileDigest{Size: n, XXH64: fmt.Sprintf("%016x", h.Sum64())}, nil
}

// verifyManifest returns the first file that no longer matches.
func verifyManifest(dir string, files []FileDigest) (string, error) {
	for _, want := range files {
		got, err := digestFile(filepath.Join(dir, filepath.FromSlash(want.Name)))
		if err != nil {
			return want.Name, err
		}
		if got.Size != want.Size || got.XXH64 != want.XXH64 {
			return want.Name, fmt.Errorf("%s: digest mismatch", want.Name)
		}
	}
	return "", nil
}
