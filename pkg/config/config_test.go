package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	require.Equal(t, "test", c.Environment)
	require.Equal(t, 8080, c.Server.Port)
	require.Equal(t, 30*time.Second, c.Cache.TTL)
	require.Equal(t, 2*time.Second, c.Cache.LockWait)
	require.Equal(t, 5*time.Second, c.Sources.Timeout)
	require.Equal(t, "snapshot", c.Fallback.Mode)
	require.Equal(t, "1.000001", c.Sources.Eastmoney.IndexSecID)
	require.Equal(t, "USD/CNH", c.Sources.Chinamoney.Pair)
	require.Equal(t, "GC=F", c.Sources.Yahoo.Gold)
	require.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	require.Equal(t, "macropull.snapshots", c.Kafka.Topic)
	require.True(t, c.Metrics.Enabled)
	require.True(t, c.RateLimit.Enabled)
	require.Equal(t, 20, c.RateLimit.Burst)
	require.Equal(t, 3*time.Minute, c.RateLimit.ExpiresIn)
	require.Equal(t, "redis", c.Cache.SharedBackend)
	require.Equal(t, 64, c.Cache.Memory.MaxSize)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
metrics:
  enabled: false
cache:
  ttl: 45s
fallback:
  mode: field
  values:
    gold: "2950.5"
`))
	require.NoError(t, err)

	require.False(t, c.Metrics.Enabled)
	require.Equal(t, 45*time.Second, c.Cache.TTL)
	require.Equal(t, "field", c.Fallback.Mode)
	require.Equal(t, map[string]string{"gold": "2950.5"}, c.Fallback.Values)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"ttl too short":       "cache:\n  ttl: 500ms\n",
		"ttl too long":        "cache:\n  ttl: 11m\n",
		"unknown mode":        "fallback:\n  mode: partial\n",
		"ratio not settable":  "fallback:\n  values:\n    gold_silver_ratio: \"90\"\n",
		"non numeric value":   "fallback:\n  values:\n    gold: high\n",
		"bad environment":     "environment: moon\n",
		"bad broker":          "kafka:\n  enabled: true\n  brokers: [\"not a broker\"]\n",
		"timeout exceeds ttl": "cache:\n  ttl: 5s\nsources:\n  timeout: 5s\n",
		"unknown backend":     "cache:\n  shared_backend: memcached\n",
		"zero refill":         "ratelimit:\n  refill_per_sec: 0\n",
		"lock wait too long":  "cache:\n  ttl: 2s\n  shared: true\n  lock_wait: 2s\nsources:\n  timeout: 1s\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	env := map[string]string{
		"MACROPULL_ENV": "staging",
		"LOG_LEVEL":     "debug",
		"CACHE_TTL":     "1m",
		"FALLBACK_MODE": "field",
		"REDIS_ADDR":    "redis.internal:6380",
		"KAFKA_BROKERS": "k1:9092, k2:9092,",
		"KAFKA_TOPIC":   "snapshots",
	}
	require.NoError(t, c.applyEnv(func(k string) string { return env[k] }))
	require.NoError(t, c.Validate())

	require.Equal(t, "staging", c.Environment)
	require.Equal(t, "debug", c.Log.Level)
	require.Equal(t, time.Minute, c.Cache.TTL)
	require.Equal(t, "field", c.Fallback.Mode)
	require.Equal(t, "redis.internal", c.Redis.Host)
	require.Equal(t, 6380, c.Redis.Port)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	require.Equal(t, "snapshots", c.Kafka.Topic)
}

func TestApplyEnvRejectsMalformed(t *testing.T) {
	for k, v := range map[string]string{"CACHE_TTL": "soon", "REDIS_ADDR": "no-port"} {
		c, err := Parse(nil)
		require.NoError(t, err)
		require.Error(t, c.applyEnv(func(key string) string {
			if key == k {
				return v
			}
			return ""
		}), k)
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o600))

	t.Setenv("CACHE_TTL", "20s")
	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	require.Equal(t, 20*time.Second, c.Cache.TTL)

	t.Setenv("FALLBACK_MODE", "bogus")
	_, err = LoadWithEnv(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestShippedConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, "development", c.Environment)
	require.Len(t, c.Fallback.Values, 8)
}
