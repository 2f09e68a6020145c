// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package vectorindex

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func testEntries() []Entry {
	return []Entry{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0, 0}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0, 0}},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestSearchOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}

	// Query closest to "a", then "c", then "b".
	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "c" {
		t.Errorf("result ids = [%s %s], want [a c]", results[0].ID, results[1].ID)
	}
	if results[0].Distance > results[1].Distance {
		t.Errorf("distances not ascending: %v > %v", results[0].Distance, results[1].Distance)
	}
	if results[0].ID == results[1].ID {
		t.Error("duplicate id in results")
	}
}

func TestSearchTopKExceedsCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}

	results, err := s.Search(ctx, []float32{0, 0, 0, 1}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want all 3", len(results))
	}
}

func TestSearchWithoutIndex(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("error = %v, want ErrIndexUnavailable", err)
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}

	_, err := s.Search(ctx, []float32{1, 0}, 2)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestReconstructRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entries := testEntries()
	if err := s.Build(ctx, entries); err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, e := range entries {
		got, err := s.Reconstruct(ctx, e.ID)
		if err != nil {
			t.Fatalf("reconstruct %q: %v", e.ID, err)
		}
		for i := range e.Vector {
			if math.Abs(float64(got[i]-e.Vector[i])) > 1e-6 {
				t.Errorf("reconstruct %q[%d] = %v, want %v", e.ID, i, got[i], e.Vector[i])
			}
		}
	}

	if _, err := s.Reconstruct(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("reconstruct missing id error = %v, want ErrNotFound", err)
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		entries []Entry
		wantErr error
	}{
		{name: "empty", entries: nil, wantErr: ErrNoVectors},
		{
			name: "ragged dimensions",
			entries: []Entry{
				{ID: "a", Vector: []float32{1, 2}},
				{ID: "b", Vector: []float32{1, 2, 3}},
			},
			wantErr: ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			err := s.Build(ctx, tt.entries)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrBuild) {
				t.Fatalf("error = %v, want wrapped ErrBuild", err)
			}
		})
	}
}

func TestBuildRejectsDuplicateIDs(t *testing.T) {
	s := newTestStore(t)
	err := s.Build(context.Background(), []Entry{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "a", Vector: []float32{0, 1}},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("error = %v, want duplicate id error", err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := first.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}

	second, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := second.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if second.Count() != 3 || second.Dim() != 4 {
		t.Errorf("loaded count=%d dim=%d, want 3 and 4", second.Count(), second.Dim())
	}

	results, err := second.Search(ctx, []float32{0, 1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("search after load: %v", err)
	}
	if results[0].ID != "b" {
		t.Errorf("closest after load = %q, want b", results[0].ID)
	}
}

func TestBuildLoadsExistingWithoutMerge(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := first.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}

	// A second Build with extra entries must load the persisted index
	// as-is; the new vector is only incorporated by Rebuild.
	extra := append(testEntries(), Entry{ID: "d", Vector: []float32{0, 0, 1, 0}})
	second, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := second.Build(ctx, extra); err != nil {
		t.Fatalf("second build: %v", err)
	}
	if second.Count() != 3 {
		t.Errorf("count after build-over-existing = %d, want 3 (no merge)", second.Count())
	}

	if err := second.Rebuild(ctx, extra); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if second.Count() != 4 {
		t.Errorf("count after rebuild = %d, want 4", second.Count())
	}
}

func TestStaleMappingDetected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}

	// Tamper with the mapping sidecar so it describes a different index.
	mappingPath := filepath.Join(dir, mappingFilename)
	data, err := os.ReadFile(mappingPath)
	if err != nil {
		t.Fatalf("read mapping: %v", err)
	}
	var mapping mappingFile
	if err := json.Unmarshal(data, &mapping); err != nil {
		t.Fatalf("decode mapping: %v", err)
	}
	mapping.Count = 99
	tampered, err := json.Marshal(mapping)
	if err != nil {
		t.Fatalf("encode mapping: %v", err)
	}
	if err := os.WriteFile(mappingPath, tampered, 0o640); err != nil {
		t.Fatalf("write mapping: %v", err)
	}

	fresh, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := fresh.Load(ctx); !errors.Is(err, ErrMappingStale) {
		t.Fatalf("load error = %v, want ErrMappingStale", err)
	}
}

func TestStaleChecksumDetected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}

	// Keep the old mapping but rebuild the index artifact alone: the
	// checksum recorded in the mapping no longer matches.
	mappingPath := filepath.Join(dir, mappingFilename)
	oldMapping, err := os.ReadFile(mappingPath)
	if err != nil {
		t.Fatalf("read mapping: %v", err)
	}

	if err := s.Rebuild(ctx, []Entry{{ID: "x", Vector: []float32{1, 1, 1, 1}}}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := os.WriteFile(mappingPath, oldMapping, 0o640); err != nil {
		t.Fatalf("restore old mapping: %v", err)
	}

	fresh, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := fresh.Load(ctx); !errors.Is(err, ErrMappingStale) {
		t.Fatalf("load error = %v, want ErrMappingStale", err)
	}
}

func TestConcurrentSearches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2); err != nil {
					t.Errorf("concurrent search: %v", err)
					return
				}
				if _, err := s.Reconstruct(ctx, "b"); err != nil {
					t.Errorf("concurrent reconstruct: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNormalizeL2(t *testing.T) {
	vec := NormalizeL2([]float32{3, 4})
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2([3 4]) = %v, want [0.6 0.8]", vec)
	}

	zero := NormalizeL2([]float32{0, 0, 0})
	for i, v := range zero {
		if v != 0 {
			t.Errorf("NormalizeL2(zero)[%d] = %v, want 0 (no NaN)", i, v)
		}
	}
}
