package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("applies defaults for missing sections", func(t *testing.T) {
		path := writeConfig(t, `
[server]
port = 9090

[store]
driver = "memory"
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "memory", cfg.Store.Driver)
		assert.Equal(t, "[GC]", cfg.Relay.DefaultPrefix)
		assert.Equal(t, 8, cfg.Relay.FanoutLimit)
		assert.Equal(t, 32, cfg.WorkerPool.Size)
		assert.Equal(t, time.Hour, cfg.Store.CacheTTL)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("reads nested values", func(t *testing.T) {
		path := writeConfig(t, `
[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]
topic = "inbound"

[relay]
default_prefix = "[LINK]"
fanout_limit = 2
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.True(t, cfg.Kafka.Enabled)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "inbound", cfg.Kafka.Topic)
		assert.Equal(t, "globalchat.inbound.dlq", cfg.Kafka.DLQTopic)
		assert.Equal(t, 100*time.Millisecond, cfg.Kafka.RetryBackoff)
		assert.Equal(t, "[LINK]", cfg.Relay.DefaultPrefix)
		assert.Equal(t, 2, cfg.Relay.FanoutLimit)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, `
[discord]
token = "from-file"
`)
		t.Setenv("GLOBALCHAT_DISCORD_TOKEN", "from-env")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Discord.Token)
	})

	t.Run("rejects unknown store driver", func(t *testing.T) {
		path := writeConfig(t, `
[store]
driver = "mongo"
`)
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}
