// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for invalid or inconsistent values.
// All problems are reported at once rather than one per run.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d outside 1-65535", c.Server.Port))
	}
	if c.Server.Timeout <= 0 {
		errs = append(errs, errors.New("server.timeout must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Server.RateLimitReqs <= 0 {
		errs = append(errs, errors.New("server.rate_limit_reqs must be positive"))
	}
	if c.Server.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("server.rate_limit_window must be positive"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		errs = append(errs, errors.New("database.path required unless database.in_memory is set"))
	}
	if c.Index.Dir == "" {
		errs = append(errs, errors.New("index.dir required"))
	}
	if c.Content.ClickRetention <= 0 {
		errs = append(errs, errors.New("content.click_retention must be positive"))
	}

	if c.Ingest.Enabled {
		if c.Ingest.APIKey == "" {
			errs = append(errs, errors.New("ingest.api_key required when ingestion is enabled"))
		}
		if c.Ingest.BaseURL == "" {
			errs = append(errs, errors.New("ingest.base_url required when ingestion is enabled"))
		}
		if c.Ingest.EmbedderURL == "" {
			errs = append(errs, errors.New("ingest.embedder_url required when ingestion is enabled"))
		}
		if c.Ingest.Interval <= 0 {
			errs = append(errs, errors.New("ingest.interval must be positive"))
		}
	}

	if c.Recommend.DefaultK <= 0 {
		errs = append(errs, errors.New("recommend.default_k must be positive"))
	}
	if c.Recommend.MaxK < c.Recommend.DefaultK {
		errs = append(errs, fmt.Errorf("recommend.max_k %d below default_k %d", c.Recommend.MaxK, c.Recommend.DefaultK))
	}
	if c.Recommend.DecayRate <= 0 || c.Recommend.DecayRate >= 1 {
		errs = append(errs, fmt.Errorf("recommend.decay_rate %v outside (0, 1)", c.Recommend.DecayRate))
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q unknown", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q unknown", c.Logging.Format))
	}

	return errors.Join(errs...)
}
