// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package taxonomy defines the closed set of news categories the system
// models preferences over.
//
// The taxonomy is fixed at build time. Its ordering is canonical: preference
// query vectors and explicit-preference iteration both follow the order
// returned by All(). Adding a category is a breaking change that requires an
// index rebuild.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

// Category identifies one news category in the fixed taxonomy.
type Category string

// The full taxonomy. Order matters: it defines query vector layout.
const (
	Business      Category = "business"
	Sports        Category = "sports"
	Technology    Category = "technology"
	Entertainment Category = "entertainment"
	Health        Category = "health"
	General       Category = "general"
	Science       Category = "science"
)

// ErrInvalidCategory indicates a category outside the fixed taxonomy.
var ErrInvalidCategory = errors.New("invalid category")

// all is the canonical ordering. Do not reorder: persisted preference
// vectors and query vector layout depend on it.
var all = []Category{
	Business,
	Sports,
	Technology,
	Entertainment,
	Health,
	General,
	Science,
}

// All returns the taxonomy in canonical order. The returned slice is a copy
// and safe to modify.
func All() []Category {
	out := make([]Category, len(all))
	copy(out, all)
	return out
}

// Count returns the number of categories in the taxonomy.
func Count() int {
	return len(all)
}

// Valid reports whether c is part of the taxonomy.
func Valid(c Category) bool {
	for _, known := range all {
		if c == known {
			return true
		}
	}
	return false
}

// Parse converts a raw string to a Category, trimming whitespace and
// lowercasing. Returns ErrInvalidCategory for anything outside the taxonomy.
func Parse(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !Valid(c) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// String returns the category name.
func (c Category) String() string {
	return string(c)
}
