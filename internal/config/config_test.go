package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/readq/internal/srs"
)

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return newFileBackend(path)
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// unsetAfter removes variables a .env file may have put into the process.
func unsetAfter(t *testing.T, keys ...string) {
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(writeTempConfig(t, `{}`), "")
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sm2", cfg.Scheduling.Algorithm)
	assert.Equal(t, 0.9, cfg.Scheduling.DesiredRetention)
	assert.Equal(t, 36500, cfg.Scheduling.MaximumInterval)
	assert.Equal(t, 1.3, cfg.Scheduling.MinEaseFactor)
	assert.Equal(t, 2.5, cfg.Scheduling.InitialEaseFactor)
	assert.Equal(t, 7, cfg.Scheduling.DriftDays)
	assert.Equal(t, 30.0, cfg.Stream.ReviewPercentage)
	assert.Equal(t, 3, cfg.Stream.MaxSameCategory)
	assert.Equal(t, 4, cfg.Bulk.Concurrency)
	assert.Equal(t, "10s", cfg.Optimizer.Timeout)
}

func TestFileBackendValues(t *testing.T) {
	b := writeTempConfig(t, `{
		"server.port": 5100,
		"scheduling.algorithm": "fsrs",
		"scheduling.desired_retention": 0.85,
		"session.explore_minutes": "25",
		"optimizer.timeout": "30s"
	}`)
	cfg, err := loadWith(b, "")
	require.NoError(t, err)

	assert.Equal(t, 5100, cfg.Server.Port)
	assert.Equal(t, "fsrs", cfg.Scheduling.Algorithm)
	assert.Equal(t, 0.85, cfg.Scheduling.DesiredRetention)
	assert.Equal(t, 25.0, cfg.Session.ExploreMinutes)
	d, err := cfg.OptimizerTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestFileBackend_InvalidInt(t *testing.T) {
	_, err := loadWith(writeTempConfig(t, `{"server.port": 1.5}`), "")
	assert.Error(t, err)
}

func TestFileBackend_MalformedFileFallsBackToDefaults(t *testing.T) {
	cfg, err := loadWith(writeTempConfig(t, `{not json`), "")
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Server.Port)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("READQ_SERVER_PORT", "6200")
	t.Setenv("READQ_SCHEDULING_MIN_EASE_FACTOR", "1.5")
	t.Setenv("READQ_OPTIMIZER_TIMEOUT", "2s")

	cfg, err := loadWith(writeTempConfig(t, `{"server.port": 5100}`), "")
	require.NoError(t, err)
	assert.Equal(t, 6200, cfg.Server.Port)
	assert.Equal(t, 1.5, cfg.Scheduling.MinEaseFactor)
	assert.Equal(t, "2s", cfg.Optimizer.Timeout)
}

func TestEnvOverride_UnparsableIgnored(t *testing.T) {
	t.Setenv("READQ_SERVER_PORT", "not-a-port")
	cfg, err := loadWith(writeTempConfig(t, `{}`), "")
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Server.Port)
}

func TestDotEnv(t *testing.T) {
	unsetAfter(t, "READQ_STREAM_MAX_SAME_CATEGORY", "READQ_BULK_CONCURRENCY")
	t.Setenv("READQ_BULK_CONCURRENCY", "9")

	env := writeEnvFile(t, "READQ_STREAM_MAX_SAME_CATEGORY=5\nREADQ_BULK_CONCURRENCY=2\n")
	cfg, err := loadWith(writeTempConfig(t, `{}`), env)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Stream.MaxSameCategory)
	assert.Equal(t, 9, cfg.Bulk.Concurrency, "set variables win over .env")
}

func TestDotEnv_MissingFileIgnored(t *testing.T) {
	_, err := loadWith(writeTempConfig(t, `{}`), filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"algorithm": `{"scheduling.algorithm": "leitner"}`,
		"retention": `{"scheduling.desired_retention": 1.2}`,
		"ease":      `{"scheduling.min_ease_factor": 3.0}`,
		"review":    `{"stream.review_percentage": 120}`,
		"timeout":   `{"optimizer.timeout": "soon"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadWith(writeTempConfig(t, content), "")
			assert.Error(t, err)
		})
	}
}

func TestServiceOptions(t *testing.T) {
	cfg := defaults()
	cfg.Scheduling.Algorithm = "fsrs"
	cfg.Bulk.RatePerSecond = 20

	opts := cfg.ServiceOptions()
	assert.Equal(t, srs.AlgorithmFSRS, opts.Algorithm)
	assert.Equal(t, 7*24*time.Hour, opts.Classifier.DriftAfter)
	assert.Equal(t, 48*time.Hour, opts.Stream.RecentWindow)
	assert.Equal(t, 20.0, opts.Bulk.RatePerSecond)
	assert.Equal(t, 10*time.Second, opts.OptimizeTimeout)
	assert.Equal(t, 15.0, opts.Budgets.Maintenance)
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	require.NoError(t, setKeyWith(b, "server.port", "4300"))
	require.NoError(t, setKeyWith(b, "scheduling.desired_retention", "0.8"))
	require.NoError(t, setKeyWith(b, "scheduling.algorithm", "fsrs"))

	reloaded := newFileBackend(b.path)
	cfg, err := loadWith(reloaded, "")
	require.NoError(t, err)
	assert.Equal(t, 4300, cfg.Server.Port)
	assert.Equal(t, 0.8, cfg.Scheduling.DesiredRetention)
	assert.Equal(t, "fsrs", cfg.Scheduling.Algorithm)
}

func TestSetKey_Rejects(t *testing.T) {
	b := writeTempConfig(t, `{}`)
	assert.Error(t, setKeyWith(b, "no.such.key", "1"))
	assert.Error(t, setKeyWith(b, "server.api_token", "secret"))
	assert.Error(t, setKeyWith(b, "server.port", "abc"))
	assert.Error(t, setKeyWith(b, "bulk.rate_per_second", "fast"))
	assert.Error(t, setKeyWith(b, "scheduling.algorithm", "leitner"))
	assert.Error(t, setKeyWith(b, "optimizer.timeout", "later"))
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.APIToken = "hunter2"
	for _, k := range ShowAll(cfg) {
		assert.NotEqual(t, "server.api_token", k.Key)
		assert.NotEqual(t, "hunter2", k.Value)
	}
	assert.NotContains(t, ValidKeys(), "server.api_token")
	assert.Contains(t, ValidKeys(), "optimizer.weights_half_life_days")
}

func TestGetAPIToken(t *testing.T) {
	t.Setenv("READQ_API_TOKEN", "")
	store := fileSecrets{path: filepath.Join(t.TempDir(), "secrets.json")}

	tok, err := GetAPIToken(store)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	again, err := GetAPIToken(store)
	require.NoError(t, err)
	assert.Equal(t, tok, again, "token is persisted")

	t.Setenv("READQ_API_TOKEN", "from-env")
	tok, err = GetAPIToken(store)
	require.NoError(t, err)
	assert.Equal(t, "from-env", tok)
}

type brokenSecrets struct{}

func (brokenSecrets) Get(string, string) (string, error) { return "", errors.New("locked") }
func (brokenSecrets) Set(string, string, string) error   { return nil }

func TestGetAPIToken_StoreError(t *testing.T) {
	t.Setenv("READQ_API_TOKEN", "")
	_, err := GetAPIToken(brokenSecrets{})
	assert.Error(t, err)
}
