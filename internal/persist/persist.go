// Package persist writes and loads the per-(user, branch) index
// snapshots and the gzipped engine-state blob. All writes are atomic:
// temp file, fsync, rename.
package persist

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ucengine/uce/internal/gitinfo"
	"github.com/ucengine/uce/internal/index"
)

// UCEVersion stamps state snapshots with the writing engine version.
const UCEVersion = "0.3.0"

// State is the slim warm-start blob: enough to diff hashes and reparse
// only deltas without loading the full file index.
type State struct {
	Version         string            `json:"version"`
	UCEVersion      string            `json:"uce_version"`
	Timestamp       time.Time         `json:"timestamp"`
	Root            string            `json:"root"`
	Git             gitinfo.Info      `json:"git"`
	FileHashes      map[string]string `json:"fileHashes"`
	Generation      uint64            `json:"generation"`
	EmbeddingsCount int               `json:"embeddingsCount"`
	BM25Vocab       int               `json:"bm25_vocab,omitempty"`
	GraphNodeCount  int               `json:"graph_node_count,omitempty"`
	Stats           index.Stats       `json:"stats"`
}

// Store owns one cache directory. A single process owns a (user,
// branch) pair; concurrent writers are undefined behavior.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the cache directory if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// IndexPath returns the snapshot path for (userID, branch). Slashes
// in branch names collapse to dashes.
func (s *Store) IndexPath(userID, branch string) string {
	branch = strings.ReplaceAll(branch, "/", "-")
	return filepath.Join(s.dir, fmt.Sprintf("index-%s-%s.json", userID, branch))
}

// StatePath returns the engine-state snapshot path.
func (s *Store) StatePath() string {
	return filepath.Join(s.dir, "state.json.gz")
}

// VectorsPath returns the local vector-store snapshot path.
func (s *Store) VectorsPath() string {
	return filepath.Join(s.dir, "vectors.json")
}

// SaveIndex atomically writes a project snapshot.
func (s *Store) SaveIndex(userID, branch string, project *index.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return atomicWrite(s.IndexPath(userID, branch), data)
}

// LoadIndex reads a project snapshot. A missing, corrupt, or
// newer-major snapshot yields (nil, nil): the caller rebuilds.
func (s *Store) LoadIndex(userID, branch string) (*index.Project, error) {
	data, err := os.ReadFile(s.IndexPath(userID, branch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index snapshot: %w", err)
	}

	var project index.Project
	if err := json.Unmarshal(data, &project); err != nil {
		s.logger.Warn("index snapshot corrupt, rebuilding", "error", err)
		return nil, nil
	}

	switch compareMajor(project.Version, index.FormatVersion) {
	case 1:
		s.logger.Warn("index snapshot from a newer format, rebuilding",
			"snapshot", project.Version, "supported", index.FormatVersion)
		return nil, nil
	case -1:
		s.logger.Warn("index snapshot from an older format, will migrate on next full refresh",
			"snapshot", project.Version, "supported", index.FormatVersion)
	}

	return &project, nil
}

// SaveState atomically writes the gzipped engine state.
func (s *Store) SaveState(state *State) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(state); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress state: %w", err)
	}
	return atomicWrite(s.StatePath(), buf.Bytes())
}

// LoadState reads the engine state; (nil, nil) when absent or corrupt.
func (s *Store) LoadState() (*State, error) {
	f, err := os.Open(s.StatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open state snapshot: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		s.logger.Warn("state snapshot not gzip, ignoring", "error", err)
		return nil, nil
	}
	defer gz.Close()

	var state State
	if err := json.NewDecoder(gz).Decode(&state); err != nil {
		s.logger.Warn("state snapshot corrupt, ignoring", "error", err)
		return nil, nil
	}
	return &state, nil
}

// atomicWrite lands data at path via temp file + fsync + rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// compareMajor compares the major components of "<major>.<minor>"
// version strings: -1, 0, or 1. Unparseable versions compare as newer
// so the caller rebuilds.
func compareMajor(a, b string) int {
	ma, errA := majorOf(a)
	mb, errB := majorOf(b)
	if errA != nil || errB != nil {
		return 1
	}
	switch {
	case ma < mb:
		return -1
	case ma > mb:
		return 1
	default:
		return 0
	}
}

func majorOf(v string) (int, error) {
	head, _, _ := strings.Cut(v, ".")
	if head == "" {
		return 0, errors.New("empty version")
	}
	return strconv.Atoi(head)
}
