package explore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ArtifactStore reads and writes episode artifacts in one directory.
type ArtifactStore struct {
	Dir string
}

// NewArtifactStore creates dir if needed and checks that it is writable.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("artifact directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return &ArtifactStore{Dir: dir}, nil
}

// Path returns where rec is stored.
func (s *ArtifactStore) Path(rec *EpisodeRecord) string {
	return filepath.Join(s.Dir, rec.ArtifactName())
}

// Save writes rec whole: the bytes go to a temp file that is then renamed
// over the destination, so readers never see a partial artifact.
func (s *ArtifactStore) Save(rec *EpisodeRecord) (string, error) {
	data, err := rec.MarshalArtifact()
	if err != nil {
		return "", fmt.Errorf("encoding episode: %w", err)
	}
	path := s.Path(rec)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing episode: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("committing episode: %w", err)
	}
	return path, nil
}

// List returns the artifact paths in the directory, sorted by name.
func (s *ArtifactStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "episode_seed") || !strings.HasSuffix(name, ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.Dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadEpisode reads and validates the artifact at path.
func LoadEpisode(path string) (*EpisodeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading episode: %w", err)
	}
	rec, err := UnmarshalArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}
