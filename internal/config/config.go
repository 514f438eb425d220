package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/kalambet/readq/internal/bulk"
	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/service"
	"github.com/kalambet/readq/internal/session"
	"github.com/kalambet/readq/internal/srs"
	"github.com/kalambet/readq/internal/stream"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	Session    SessionConfig
	Stream     StreamConfig
	Bulk       BulkConfig
	Optimizer  OptimizerConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type SchedulingConfig struct {
	Algorithm         string
	DesiredRetention  float64
	MaximumInterval   int
	MinEaseFactor     float64
	InitialEaseFactor float64
	DriftDays         int
}

type SessionConfig struct {
	OverdueMinutes     float64
	MaintenanceMinutes float64
	ExploreMinutes     float64
	FallbackMinutes    float64
}

type StreamConfig struct {
	ReviewPercentage  float64
	MaxSameCategory   int
	RecentWindowHours int
}

type BulkConfig struct {
	Concurrency   int
	RatePerSecond float64
}

type OptimizerConfig struct {
	MaxIterations       int
	Epsilon             float64
	Timeout             string
	WeightsHalfLifeDays float64
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Scheduling: SchedulingConfig{
			Algorithm:         string(srs.AlgorithmSM2),
			DesiredRetention:  0.9,
			MaximumInterval:   36500,
			MinEaseFactor:     1.3,
			InitialEaseFactor: 2.5,
			DriftDays:         7,
		},
		Session: SessionConfig{
			OverdueMinutes:     10,
			MaintenanceMinutes: 15,
			ExploreMinutes:     20,
			FallbackMinutes:    15,
		},
		Stream: StreamConfig{
			ReviewPercentage:  30,
			MaxSameCategory:   3,
			RecentWindowHours: 48,
		},
		Bulk: BulkConfig{Concurrency: 4},
		Optimizer: OptimizerConfig{
			MaxIterations:       100,
			Epsilon:             0.001,
			Timeout:             "10s",
			WeightsHalfLifeDays: 90,
		},
	}
}

// Load reads configuration from the JSON file backend, an optional .env file
// and READQ_* environment variables, in increasing order of precedence.
//
// The file lives at $XDG_CONFIG_HOME/readq/config.json. The .env file is read
// from READQ_ENV_FILE, or ./.env when unset; it never overrides variables
// that are already set in the environment.
func Load() (Config, error) {
	envFile := os.Getenv("READQ_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	return loadWith(newFileBackend(configFilePath()), envFile)
}

func loadWith(b ConfigBackend, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(envFile); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the scheduling core cannot run with.
func (c Config) Validate() error {
	if _, err := srs.ParseAlgorithm(c.Scheduling.Algorithm); err != nil {
		return fmt.Errorf("scheduling.algorithm: %w", err)
	}
	if c.Scheduling.DesiredRetention <= 0 || c.Scheduling.DesiredRetention >= 1 {
		return fmt.Errorf("scheduling.desired_retention must be in (0, 1), got %v", c.Scheduling.DesiredRetention)
	}
	if c.Scheduling.MinEaseFactor <= 0 || c.Scheduling.InitialEaseFactor < c.Scheduling.MinEaseFactor {
		return fmt.Errorf("scheduling ease factors invalid: min %v, initial %v", c.Scheduling.MinEaseFactor, c.Scheduling.InitialEaseFactor)
	}
	if c.Stream.ReviewPercentage < 0 || c.Stream.ReviewPercentage > 100 {
		return fmt.Errorf("stream.review_percentage must be in [0, 100], got %v", c.Stream.ReviewPercentage)
	}
	if _, err := c.OptimizerTimeout(); err != nil {
		return err
	}
	return nil
}

// OptimizerTimeout parses optimizer.timeout.
func (c Config) OptimizerTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Optimizer.Timeout)
	if err != nil {
		return 0, fmt.Errorf("optimizer.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("optimizer.timeout must be positive, got %s", d)
	}
	return d, nil
}

// ServiceOptions maps the configuration onto the scheduling core options.
func (c Config) ServiceOptions() service.Options {
	timeout, _ := c.OptimizerTimeout()
	return service.Options{
		Algorithm: srs.Algorithm(c.Scheduling.Algorithm),
		SM2: srs.SM2Config{
			MinEaseFactor:     c.Scheduling.MinEaseFactor,
			InitialEaseFactor: c.Scheduling.InitialEaseFactor,
		},
		FSRS: srs.FSRSConfig{
			DesiredRetention:    c.Scheduling.DesiredRetention,
			MaximumInterval:     c.Scheduling.MaximumInterval,
			WeightsHalfLifeDays: c.Optimizer.WeightsHalfLifeDays,
		},
		Classifier: queue.Classifier{DriftAfter: time.Duration(c.Scheduling.DriftDays) * 24 * time.Hour},
		Budgets: session.Budgets{
			Overdue:     c.Session.OverdueMinutes,
			Maintenance: c.Session.MaintenanceMinutes,
			Explore:     c.Session.ExploreMinutes,
			Fallback:    c.Session.FallbackMinutes,
		},
		Stream: stream.Config{
			ReviewPercentage: c.Stream.ReviewPercentage,
			MaxSameCategory:  c.Stream.MaxSameCategory,
			RecentWindow:     time.Duration(c.Stream.RecentWindowHours) * time.Hour,
		},
		Bulk: bulk.Options{
			Concurrency:   c.Bulk.Concurrency,
			RatePerSecond: c.Bulk.RatePerSecond,
		},
		Optimizer: optimizer.Config{
			MaxIterations:       c.Optimizer.MaxIterations,
			Epsilon:             c.Optimizer.Epsilon,
			WeightsHalfLifeDays: c.Optimizer.WeightsHalfLifeDays,
		},
		OptimizeTimeout: timeout,
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "readq-data"
		}
	}
	return filepath.Join(dir, "readq")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "readq", "config.json")
}
