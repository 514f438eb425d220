package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "READQ_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "READQ_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "READQ_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "READQ_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "scheduling.algorithm", typ: kString, env: "READQ_SCHEDULING_ALGORITHM",
		apply:   func(cfg *Config, v any) { cfg.Scheduling.Algorithm = v.(string) },
		extract: func(cfg Config) any { return cfg.Scheduling.Algorithm },
	},
	{
		key: "scheduling.desired_retention", typ: kFloat, env: "READQ_SCHEDULING_DESIRED_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Scheduling.DesiredRetention = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scheduling.DesiredRetention },
	},
	{
		key: "scheduling.maximum_interval", typ: kInt, env: "READQ_SCHEDULING_MAXIMUM_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Scheduling.MaximumInterval = v.(int) },
		extract: func(cfg Config) any { return cfg.Scheduling.MaximumInterval },
	},
	{
		key: "scheduling.min_ease_factor", typ: kFloat, env: "READQ_SCHEDULING_MIN_EASE_FACTOR",
		apply:   func(cfg *Config, v any) { cfg.Scheduling.MinEaseFactor = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scheduling.MinEaseFactor },
	},
	{
		key: "scheduling.initial_ease_factor", typ: kFloat, env: "READQ_SCHEDULING_INITIAL_EASE_FACTOR",
		apply:   func(cfg *Config, v any) { cfg.Scheduling.InitialEaseFactor = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scheduling.InitialEaseFactor },
	},
	{
		key: "scheduling.drift_days", typ: kInt, env: "READQ_SCHEDULING_DRIFT_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Scheduling.DriftDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Scheduling.DriftDays },
	},
	{
		key: "session.overdue_minutes", typ: kFloat, env: "READQ_SESSION_OVERDUE_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Session.OverdueMinutes = v.(float64) },
		extract: func(cfg Config) any { return cfg.Session.OverdueMinutes },
	},
	{
		key: "session.maintenance_minutes", typ: kFloat, env: "READQ_SESSION_MAINTENANCE_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Session.MaintenanceMinutes = v.(float64) },
		extract: func(cfg Config) any { return cfg.Session.MaintenanceMinutes },
	},
	{
		key: "session.explore_minutes", typ: kFloat, env: "READQ_SESSION_EXPLORE_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Session.ExploreMinutes = v.(float64) },
		extract: func(cfg Config) any { return cfg.Session.ExploreMinutes },
	},
	{
		key: "session.fallback_minutes", typ: kFloat, env: "READQ_SESSION_FALLBACK_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Session.FallbackMinutes = v.(float64) },
		extract: func(cfg Config) any { return cfg.Session.FallbackMinutes },
	},
	{
		key: "stream.review_percentage", typ: kFloat, env: "READQ_STREAM_REVIEW_PERCENTAGE",
		apply:   func(cfg *Config, v any) { cfg.Stream.ReviewPercentage = v.(float64) },
		extract: func(cfg Config) any { return cfg.Stream.ReviewPercentage },
	},
	{
		key: "stream.max_same_category", typ: kInt, env: "READQ_STREAM_MAX_SAME_CATEGORY",
		apply:   func(cfg *Config, v any) { cfg.Stream.MaxSameCategory = v.(int) },
		extract: func(cfg Config) any { return cfg.Stream.MaxSameCategory },
	},
	{
		key: "stream.recent_window_hours", typ: kInt, env: "READQ_STREAM_RECENT_WINDOW_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Stream.RecentWindowHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Stream.RecentWindowHours },
	},
	{
		key: "bulk.concurrency", typ: kInt, env: "READQ_BULK_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Bulk.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Bulk.Concurrency },
	},
	{
		key: "bulk.rate_per_second", typ: kFloat, env: "READQ_BULK_RATE_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Bulk.RatePerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Bulk.RatePerSecond },
	},
	{
		key: "optimizer.max_iterations", typ: kInt, env: "READQ_OPTIMIZER_MAX_ITERATIONS",
		apply:   func(cfg *Config, v any) { cfg.Optimizer.MaxIterations = v.(int) },
		extract: func(cfg Config) any { return cfg.Optimizer.MaxIterations },
	},
	{
		key: "optimizer.epsilon", typ: kFloat, env: "READQ_OPTIMIZER_EPSILON",
		apply:   func(cfg *Config, v any) { cfg.Optimizer.Epsilon = v.(float64) },
		extract: func(cfg Config) any { return cfg.Optimizer.Epsilon },
	},
	{
		key: "optimizer.timeout", typ: kString, env: "READQ_OPTIMIZER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Optimizer.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Optimizer.Timeout },
	},
	{
		key: "optimizer.weights_half_life_days", typ: kFloat, env: "READQ_OPTIMIZER_WEIGHTS_HALF_LIFE_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Optimizer.WeightsHalfLifeDays = v.(float64) },
		extract: func(cfg Config) any { return cfg.Optimizer.WeightsHalfLifeDays },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
