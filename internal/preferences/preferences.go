// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package preferences maintains per-user category preference vectors that
// evolve under an exponential-decay rule driven by click events.
//
// A user's vector is a probability-like profile over the fixed taxonomy:
// after every write the weights sum to 1.0 within floating tolerance.
// Repeated clicks on one category pull its weight monotonically toward 1
// while every other weight shrinks, converging on a one-hot distribution.
package preferences

import (
	"errors"
	"fmt"

	"github.com/tomtom215/newsprism/internal/taxonomy"
)

// DefaultDecayRate is the fraction of the gap-to-target applied per click.
const DefaultDecayRate = 0.02

// clickWeight is the target weight a clicked category is pulled toward.
const clickWeight = 1.0

var (
	// ErrNotFound indicates the user has never clicked and never set
	// explicit preferences. Callers must treat this as a prompt for
	// onboarding, not as an empty profile.
	ErrNotFound = errors.New("preferences not found")

	// ErrNoValidCategories indicates an explicit-preference request whose
	// category list is empty after filtering to the taxonomy.
	ErrNoValidCategories = errors.New("no valid categories provided")

	// ErrNormalization indicates the vector summed to exactly zero and
	// could not be renormalized.
	ErrNormalization = errors.New("preference weights sum to zero")
)

// WeightVector maps each taxonomy category to a non-negative weight.
// Invariant: weights sum to 1.0 within floating tolerance after any write
// operation performed by the Store.
type WeightVector map[taxonomy.Category]float64

// NewZeroVector returns a vector with every taxonomy category at weight 0.
// This is the lazily-created starting state for a new user; it does not yet
// satisfy the sum-to-1 invariant and must go through an update before it is
// observable.
func NewZeroVector() WeightVector {
	v := make(WeightVector, taxonomy.Count())
	for _, c := range taxonomy.All() {
		v[c] = 0
	}
	return v
}

// Clone returns an independent copy of the vector.
func (v WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(v))
	for c, w := range v {
		out[c] = w
	}
	return out
}

// Sum returns the total weight across all categories.
func (v WeightVector) Sum() float64 {
	var total float64
	for _, w := range v {
		total += w
	}
	return total
}

// Ordered returns the weights in canonical taxonomy order. This is the
// layout used to build query vectors against the article index.
func (v WeightVector) Ordered() []float64 {
	out := make([]float64, 0, taxonomy.Count())
	for _, c := range taxonomy.All() {
		out = append(out, v[c])
	}
	return out
}

// applyClick performs one decay update in place: the clicked category moves
// a fraction rate of its remaining gap toward the click weight, every other
// category decays by the same rate, and the vector is renormalized.
func (v WeightVector) applyClick(clicked taxonomy.Category, rate float64) error {
	for _, c := range taxonomy.All() {
		if c == clicked {
			v[c] += (clickWeight - v[c]) * rate
		} else {
			v[c] *= 1 - rate
		}
	}
	return v.normalize()
}

// normalize scales the vector so its weights sum to 1.0. A zero total is
// reported as ErrNormalization rather than silently producing NaN.
func (v WeightVector) normalize() error {
	total := v.Sum()
	if total == 0 {
		return ErrNormalization
	}
	for c := range v {
		v[c] /= total
	}
	return nil
}

// validate checks a loaded vector for taxonomy drift, e.g. a snapshot
// persisted before a category rename.
func (v WeightVector) validate() error {
	for c := range v {
		if !taxonomy.Valid(c) {
			return fmt.Errorf("%w: persisted weight for %q", taxonomy.ErrInvalidCategory, c)
		}
	}
	return nil
}
