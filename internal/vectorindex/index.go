// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package vectorindex owns the article embedding index and the mapping
// between content identifiers and index positions.
//
// The index is a flat, exact nearest-neighbor structure under squared
// Euclidean distance. Exact search is deliberate: the corpus is articles,
// not a web-scale collection, and a linear scan over a few thousand vectors
// is well inside the latency budget.
//
// # Persistence
//
// A build persists two artifacts together: a gob+gzip index snapshot and a
// JSON mapping sidecar {position -> content id}. The sidecar records the
// snapshot's vector count, dimension, and checksum; a load verifies all
// three so a stale mapping against a newer index (or vice versa) fails with
// ErrMappingStale instead of silently returning wrong articles.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrIndexUnavailable indicates no index has been built or loaded.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotFound indicates a content id absent from the index mapping.
	ErrNotFound = errors.New("content id not found in index")

	// ErrMappingStale indicates the persisted mapping disagrees with the
	// persisted index (count, dimension, or checksum) and must not be
	// trusted.
	ErrMappingStale = errors.New("index mapping is stale")

	// ErrNoVectors indicates a build request with no vectors.
	ErrNoVectors = errors.New("no vectors to index")

	// ErrBuild wraps every build failure; the specific cause (ErrNoVectors,
	// ErrDimensionMismatch, duplicate id) is chained behind it.
	ErrBuild = errors.New("index build failed")
)

// flatIndex stores vectors contiguously and scans them exactly.
// It is not safe for concurrent mutation; Store provides locking.
type flatIndex struct {
	dim  int
	data []float32 // len == count*dim
}

// newFlatIndex creates an empty index of the given dimension.
func newFlatIndex(dim int) *flatIndex {
	return &flatIndex{dim: dim}
}

// count returns the number of stored vectors.
func (ix *flatIndex) count() int {
	if ix.dim == 0 {
		return 0
	}
	return len(ix.data) / ix.dim
}

// add appends a vector, assigning it the next sequential position.
func (ix *flatIndex) add(vec []float32) (int, error) {
	if len(vec) != ix.dim {
		return 0, fmt.Errorf("%w: got %d, index dimension %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	pos := ix.count()
	ix.data = append(ix.data, vec...)
	return pos, nil
}

// reconstruct returns a copy of the vector at the given position.
func (ix *flatIndex) reconstruct(pos int) ([]float32, error) {
	if pos < 0 || pos >= ix.count() {
		return nil, fmt.Errorf("%w: position %d of %d", ErrNotFound, pos, ix.count())
	}
	out := make([]float32, ix.dim)
	copy(out, ix.data[pos*ix.dim:(pos+1)*ix.dim])
	return out, nil
}

// match pairs an index position with its distance to the query.
type match struct {
	pos  int
	dist float32
}

// search returns up to k positions ordered by ascending squared Euclidean
// distance to the query. k greater than the vector count returns everything.
func (ix *flatIndex) search(query []float32, k int) ([]match, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query %d, index dimension %d", ErrDimensionMismatch, len(query), ix.dim)
	}

	n := ix.count()
	matches := make([]match, 0, n)
	for pos := 0; pos < n; pos++ {
		row := ix.data[pos*ix.dim : (pos+1)*ix.dim]
		var dist float32
		for i, q := range query {
			d := row[i] - q
			dist += d * d
		}
		matches = append(matches, match{pos: pos, dist: dist})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].pos < matches[j].pos // deterministic tie-break
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// NormalizeL2 scales the vector to unit length in place and returns it.
// A zero vector is returned unchanged: there is no direction to preserve,
// and dividing through would produce NaN.
func NormalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
