// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

// Package events carries click events from the API layer to the preference
// model over a Watermill in-process pub/sub channel.
//
// Decoupling the HTTP handler from the preference update keeps click
// ingestion cheap for the client (202 Accepted) and serializes the decay
// bookkeeping behind the consumer.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/newsprism/internal/content"
	"github.com/tomtom215/newsprism/internal/metrics"
	"github.com/tomtom215/newsprism/internal/preferences"
	"github.com/tomtom215/newsprism/internal/taxonomy"
)

// TopicClicks is the pub/sub topic for click events.
const TopicClicks = "user.clicks"

// Click is one click event: a user opened an article. The category is not
// part of the event; the consumer resolves it through the content store.
type Click struct {
	UserID    string    `json:"user_id"`
	ArticleID string    `json:"article_id"`
	At        time.Time `json:"at"`
}

// NewBus creates the in-process pub/sub channel both sides attach to.
func NewBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
}

// Publisher sends click events onto the bus.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher creates a click publisher.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// Publish emits one click event.
func (p *Publisher) Publish(ctx context.Context, click Click) error {
	if click.UserID == "" || click.ArticleID == "" {
		return errors.New("click requires user_id and article_id")
	}
	if click.At.IsZero() {
		click.At = time.Now().UTC()
	}

	payload, err := json.Marshal(click)
	if err != nil {
		return fmt.Errorf("marshal click: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := p.pub.Publish(TopicClicks, msg); err != nil {
		return fmt.Errorf("publish click: %w", err)
	}
	return nil
}

// PreferenceUpdater is the preference store surface the consumer needs.
type PreferenceUpdater interface {
	UpdateOnClick(ctx context.Context, userID string, category taxonomy.Category, rate float64) error
}

// CategorySource resolves an article's category and records the click in
// the interaction log.
type CategorySource interface {
	Get(ctx context.Context, id string) (content.Article, error)
	RecordClick(ctx context.Context, userID, articleID string) error
}

// Consumer subscribes to click events and drives the preference model.
type Consumer struct {
	sub       message.Subscriber
	prefs     PreferenceUpdater
	articles  CategorySource
	decayRate float64
	logger    zerolog.Logger
}

// NewConsumer creates a click consumer. A rate outside (0, 1) falls back to
// the preference store default.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewConsumer(sub message.Subscriber, prefs PreferenceUpdater, articles CategorySource, decayRate float64, logger zerolog.Logger) *Consumer {
	return &Consumer{
		sub:       sub,
		prefs:     prefs,
		articles:  articles,
		decayRate: decayRate,
		logger:    logger.With().Str("component", "clicks").Logger(),
	}
}

// Run consumes click events until the context is canceled or the
// subscription channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, TopicClicks)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicClicks, err)
	}

	c.logger.Info().Str("topic", TopicClicks).Msg("click consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
			msg.Ack()
		}
	}
}

// handle processes one click message. Failures are logged and counted, not
// returned: a bad click must not wedge the stream.
func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	var click Click
	if err := json.Unmarshal(msg.Payload, &click); err != nil {
		metrics.ClicksDropped.WithLabelValues("decode").Inc()
		c.logger.Error().Err(err).Str("message", msg.UUID).Msg("undecodable click event")
		return
	}

	article, err := c.articles.Get(ctx, click.ArticleID)
	if err != nil {
		// Click on content the store no longer has (or never saw).
		metrics.ClicksDropped.WithLabelValues("article_not_found").Inc()
		c.logger.Warn().
			Err(err).
			Str("user", click.UserID).
			Str("article", click.ArticleID).
			Msg("click on unknown article dropped")
		return
	}

	if err := c.prefs.UpdateOnClick(ctx, click.UserID, article.Category, c.decayRate); err != nil {
		metrics.ClicksDropped.WithLabelValues("update_failed").Inc()
		c.logger.Error().
			Err(err).
			Str("user", click.UserID).
			Str("category", article.Category.String()).
			Msg("preference update failed")
		return
	}

	if err := c.articles.RecordClick(ctx, click.UserID, click.ArticleID); err != nil {
		// The interaction log is advisory; the preference update stands.
		c.logger.Warn().Err(err).Str("user", click.UserID).Msg("click log write failed")
	}

	metrics.ClicksProcessed.WithLabelValues(article.Category.String()).Inc()
	c.logger.Debug().
		Str("user", click.UserID).
		Str("article", click.ArticleID).
		Str("category", article.Category.String()).
		Msg("click processed")
}

// Ensure preference store satisfies the consumer interface.
var _ PreferenceUpdater = (*preferences.Store)(nil)
