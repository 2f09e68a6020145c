// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package vectorindex

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/newsprism/internal/metrics"
)

const (
	indexFilename   = "articles.index"
	mappingFilename = "articles.mapping.json"
)

// Entry is one (content id, embedding) pair supplied to a build.
type Entry struct {
	ID     string
	Vector []float32
}

// Result is one search hit: a content id and its squared Euclidean distance
// to the query, ascending.
type Result struct {
	ID       string
	Distance float32
}

// snapshot is the gob-encoded index payload.
type snapshot struct {
	Dim  int
	Data []float32
}

// indexFile is the on-disk format for the index artifact.
type indexFile struct {
	Checksum       string
	CompressedData []byte
}

// mappingFile is the JSON sidecar written alongside the index. Count, Dim
// and IndexChecksum tie it to one specific index snapshot.
type mappingFile struct {
	Count         int               `json:"count"`
	Dim           int               `json:"dim"`
	IndexChecksum string            `json:"index_checksum"`
	Positions     map[string]string `json:"positions"` // position -> content id
}

// Store owns the loaded index and its id mapping as one process-wide,
// read-shared resource with an explicit build/load/rebuild lifecycle.
//
// Searches and reconstructs run concurrently under a read lock; a build is
// exclusive and publishes its artifacts atomically (temp file + rename), so
// a partially written index is never visible to a concurrent load.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu      sync.RWMutex
	index   *flatIndex
	idToPos map[string]int
	posToID []string
}

// NewStore creates a vector index store rooted at dir. No index is loaded;
// call Build or Load before searching.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "vectorindex").Logger(),
	}, nil
}

// Build constructs the index from entries, or loads the persisted one as-is
// if it already exists on disk. Loading does not merge entries: new content
// only enters the index through Rebuild. This mirrors the build-once,
// reuse semantics of the original pipeline; callers can compare Count()
// against their content set to detect a stale index.
func (s *Store) Build(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.loadLocked()
	if err == nil {
		s.logger.Info().
			Int("vectors", s.index.count()).
			Int("dim", s.index.dim).
			Msg("loaded existing index, skipping build")
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load existing index: %w", err)
	}

	return s.rebuildLocked(entries)
}

// Rebuild unconditionally builds a fresh index from entries and atomically
// replaces the persisted artifacts. Positions are reassigned in insertion
// order and the mapping regenerates with them.
func (s *Store) Rebuild(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(entries)
}

// Load reads the persisted index and mapping, verifying they belong
// together. Returns fs.ErrNotExist (wrapped) when nothing is persisted.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// rebuildLocked builds and persists. Must be called with s.mu held.
func (s *Store) rebuildLocked(entries []Entry) error {
	start := time.Now()

	if len(entries) == 0 {
		return fmt.Errorf("%w: %w", ErrBuild, ErrNoVectors)
	}

	dim := len(entries[0].Vector)
	if dim == 0 {
		return fmt.Errorf("%w: %w: zero-length vector for %q", ErrBuild, ErrDimensionMismatch, entries[0].ID)
	}

	index := newFlatIndex(dim)
	idToPos := make(map[string]int, len(entries))
	posToID := make([]string, 0, len(entries))

	for _, e := range entries {
		if _, dup := idToPos[e.ID]; dup {
			return fmt.Errorf("%w: duplicate content id %q", ErrBuild, e.ID)
		}
		pos, err := index.add(e.Vector)
		if err != nil {
			return fmt.Errorf("%w: add %q: %w", ErrBuild, e.ID, err)
		}
		idToPos[e.ID] = pos
		posToID = append(posToID, e.ID)
	}

	if err := s.persist(index, posToID); err != nil {
		return fmt.Errorf("%w: persist: %w", ErrBuild, err)
	}

	s.index = index
	s.idToPos = idToPos
	s.posToID = posToID

	metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	metrics.IndexedVectors.Set(float64(index.count()))
	s.logger.Info().
		Int("vectors", index.count()).
		Int("dim", dim).
		Dur("took", time.Since(start)).
		Msg("index built")
	return nil
}

// persist writes the index and mapping to temp files and renames both into
// place. The index is renamed first so a crash between the renames leaves a
// stale mapping, which the load-time checksum comparison detects.
func (s *Store) persist(index *flatIndex, posToID []string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot{Dim: index.dim, Data: index.data}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	raw := buf.Bytes()

	hash := sha256.Sum256(raw)
	checksum := hex.EncodeToString(hash[:])

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}

	var indexBuf bytes.Buffer
	err := gob.NewEncoder(&indexBuf).Encode(indexFile{
		Checksum:       checksum,
		CompressedData: compressed.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("encode index file: %w", err)
	}

	positions := make(map[string]string, len(posToID))
	for pos, id := range posToID {
		positions[strconv.Itoa(pos)] = id
	}
	mappingData, err := json.Marshal(mappingFile{
		Count:         index.count(),
		Dim:           index.dim,
		IndexChecksum: checksum,
		Positions:     positions,
	})
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	indexPath := filepath.Join(s.dir, indexFilename)
	mappingPath := filepath.Join(s.dir, mappingFilename)

	if err := writeAtomic(indexPath, indexBuf.Bytes()); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := writeAtomic(mappingPath, mappingData); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil { //nolint:gosec // artifacts are not secrets
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// loadLocked reads both artifacts and verifies their correspondence.
// Must be called with s.mu held.
func (s *Store) loadLocked() error {
	indexPath := filepath.Join(s.dir, indexFilename)
	mappingPath := filepath.Join(s.dir, mappingFilename)

	f, err := os.Open(indexPath) //nolint:gosec // path is store-owned
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	var file indexFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("read index file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(file.CompressedData))
	if err != nil {
		return fmt.Errorf("decompress index: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return fmt.Errorf("read decompressed index: %w", err)
	}

	hash := sha256.Sum256(raw)
	if hex.EncodeToString(hash[:]) != file.Checksum {
		return fmt.Errorf("index checksum mismatch: %w", ErrMappingStale)
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Dim <= 0 || len(snap.Data)%snap.Dim != 0 {
		return fmt.Errorf("corrupt snapshot: dim %d, %d floats", snap.Dim, len(snap.Data))
	}

	mappingData, err := os.ReadFile(mappingPath) //nolint:gosec // path is store-owned
	if err != nil {
		return fmt.Errorf("open mapping: %w", err)
	}
	var mapping mappingFile
	if err := json.Unmarshal(mappingData, &mapping); err != nil {
		return fmt.Errorf("decode mapping: %w", err)
	}

	index := &flatIndex{dim: snap.Dim, data: snap.Data}

	// The mapping must describe exactly this snapshot.
	if mapping.IndexChecksum != file.Checksum {
		return fmt.Errorf("%w: mapping checksum %s, index %s", ErrMappingStale, mapping.IndexChecksum, file.Checksum)
	}
	if mapping.Count != index.count() || mapping.Dim != index.dim {
		return fmt.Errorf("%w: mapping describes %d vectors of dim %d, index has %d of dim %d",
			ErrMappingStale, mapping.Count, mapping.Dim, index.count(), index.dim)
	}
	if len(mapping.Positions) != index.count() {
		return fmt.Errorf("%w: %d positions for %d vectors", ErrMappingStale, len(mapping.Positions), index.count())
	}

	posToID := make([]string, index.count())
	idToPos := make(map[string]int, index.count())
	for posStr, id := range mapping.Positions {
		pos, err := strconv.Atoi(posStr)
		if err != nil || pos < 0 || pos >= index.count() {
			return fmt.Errorf("%w: bad position %q", ErrMappingStale, posStr)
		}
		posToID[pos] = id
		idToPos[id] = pos
	}
	if len(idToPos) != index.count() {
		return fmt.Errorf("%w: duplicate content ids in mapping", ErrMappingStale)
	}

	s.index = index
	s.idToPos = idToPos
	s.posToID = posToID

	metrics.IndexedVectors.Set(float64(index.count()))
	s.logger.Info().
		Int("vectors", index.count()).
		Int("dim", index.dim).
		Msg("index loaded")
	return nil
}

// Search returns up to topK content ids ordered by ascending distance to
// the query vector.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil {
		metrics.IndexSearches.WithLabelValues("unavailable").Inc()
		return nil, ErrIndexUnavailable
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	matches, err := s.index.search(query, topK)
	if err != nil {
		metrics.IndexSearches.WithLabelValues("dimension_mismatch").Inc()
		return nil, err
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{ID: s.posToID[m.pos], Distance: m.dist})
	}

	metrics.IndexSearches.WithLabelValues("ok").Inc()
	return results, nil
}

// Reconstruct returns the stored vector for a content id.
func (s *Store) Reconstruct(ctx context.Context, contentID string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil {
		return nil, ErrIndexUnavailable
	}
	pos, ok := s.idToPos[contentID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, contentID)
	}
	return s.index.reconstruct(pos)
}

// Dim returns the dimension of the loaded index, or 0 if none is loaded.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return 0
	}
	return s.index.dim
}

// Count returns the number of indexed vectors, or 0 if no index is loaded.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return 0
	}
	return s.index.count()
}

// Ready reports whether an index is loaded and searchable.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}
