// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Runner is a blocking loop that exits when its context is canceled.
// The click consumer satisfies it.
type Runner interface {
	Run(ctx context.Context) error
}

// ConsumerService supervises the click consumer loop.
type ConsumerService struct {
	runner Runner
}

// NewConsumerService wraps the click consumer as a supervised service.
func NewConsumerService(runner Runner) *ConsumerService {
	return &ConsumerService{runner: runner}
}

// Serve implements suture.Service.
func (c *ConsumerService) Serve(ctx context.Context) error {
	return c.runner.Run(ctx)
}

// String implements fmt.Stringer for suture's event log.
func (c *ConsumerService) String() string {
	return "click-consumer"
}

// IngestService runs the ingestion cycle on a fixed interval. One failed
// cycle is logged and retried at the next tick rather than crashing the
// service into suture backoff.
type IngestService struct {
	runner       Runner
	interval     time.Duration
	runOnStartup bool
	logger       zerolog.Logger
}

// NewIngestService wraps the ingestor as a periodic supervised service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewIngestService(runner Runner, interval time.Duration, runOnStartup bool, logger zerolog.Logger) *IngestService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &IngestService{
		runner:       runner,
		interval:     interval,
		runOnStartup: runOnStartup,
		logger:       logger.With().Str("component", "ingest-loop").Logger(),
	}
}

// Serve implements suture.Service.
func (s *IngestService) Serve(ctx context.Context) error {
	if s.runOnStartup {
		s.cycle(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *IngestService) cycle(ctx context.Context) {
	start := time.Now()
	if err := s.runner.Run(ctx); err != nil {
		s.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("ingestion cycle failed")
		return
	}
	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("ingestion cycle finished")
}

// String implements fmt.Stringer for suture's event log.
func (s *IngestService) String() string {
	return "ingest-loop"
}
