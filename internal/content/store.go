// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package content stores news articles and the per-user click log in
// BadgerDB.
//
// Articles are immutable once stored (ingest may overwrite with identical
// content since ids are content-derived). Click log entries carry a TTL so
// old interactions expire without a cleanup job.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/newsprism/internal/taxonomy"
)

// Key prefixes for BadgerDB storage.
const (
	articleKeyPrefix = "article:"
	clickKeyPrefix   = "click:"
)

// DefaultClickRetention is how long click log entries are kept.
const DefaultClickRetention = 30 * 24 * time.Hour

// ErrNotFound indicates the article id is not in the store.
var ErrNotFound = errors.New("article not found")

// Article is one news item. The ID is a stable content-derived identifier;
// Embedding is the fixed-width vector produced by the external embedder.
type Article struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Category    taxonomy.Category `json:"category"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url"`
	ImageURL    string            `json:"image_url,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
	Embedding   []float32         `json:"embedding,omitempty"`
}

// Store is a BadgerDB-backed article and click-log store.
type Store struct {
	db             *badger.DB
	logger         zerolog.Logger
	clickRetention time.Duration
}

// NewStore creates a content store on top of an open BadgerDB handle.
// A non-positive retention falls back to DefaultClickRetention.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(db *badger.DB, clickRetention time.Duration, logger zerolog.Logger) *Store {
	if clickRetention <= 0 {
		clickRetention = DefaultClickRetention
	}
	return &Store{
		db:             db,
		logger:         logger.With().Str("component", "content").Logger(),
		clickRetention: clickRetention,
	}
}

// Put stores an article.
func (s *Store) Put(ctx context.Context, article Article) error {
	if article.ID == "" {
		return errors.New("article id is empty")
	}
	if !taxonomy.Valid(article.Category) {
		return fmt.Errorf("%w: %q", taxonomy.ErrInvalidCategory, article.Category)
	}

	data, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(articleKeyPrefix+article.ID), data)
	})
}

// Get retrieves an article by id.
func (s *Store) Get(ctx context.Context, id string) (Article, error) {
	var article Article
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(articleKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("get article: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &article)
		})
	})
	return article, err
}

// Delete removes an article and every click log entry that references it,
// so a deleted article leaves no dangling interactions behind.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(articleKeyPrefix + id)); err != nil {
			return fmt.Errorf("delete article: %w", err)
		}

		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(clickKeyPrefix)})
		defer it.Close()

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if strings.HasSuffix(string(key), ":"+id) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete click entry: %w", err)
			}
		}

		s.logger.Debug().
			Str("article", id).
			Int("clicks_removed", len(stale)).
			Msg("article deleted")
		return nil
	})
}

// List returns all stored articles.
func (s *Store) List(ctx context.Context) ([]Article, error) {
	var articles []Article
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         []byte(articleKeyPrefix),
			PrefetchValues: true,
			PrefetchSize:   100,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var a Article
				if err := json.Unmarshal(val, &a); err != nil {
					return fmt.Errorf("unmarshal article: %w", err)
				}
				articles = append(articles, a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return articles, err
}

// Count returns the number of stored articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(articleKeyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// RecordClick appends a click log entry for the user. The entry expires
// after the configured retention.
func (s *Store) RecordClick(ctx context.Context, userID, articleID string) error {
	key := []byte(clickKeyPrefix + userID + ":" + articleID)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, []byte{1}).WithTTL(s.clickRetention)
		return txn.SetEntry(entry)
	})
}

// ClickedArticleIDs returns the ids of articles the user has clicked within
// the retention window.
func (s *Store) ClickedArticleIDs(ctx context.Context, userID string) (map[string]bool, error) {
	prefix := clickKeyPrefix + userID + ":"
	clicked := make(map[string]bool)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			clicked[key[len(prefix):]] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clicked, nil
}
