package exq

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, 0, cfg.Database)
	assert.Equal(t, "", cfg.Password)
	assert.Equal(t, "exq", cfg.Namespace)
	assert.Equal(t, []string{"default"}, cfg.Queues)
	assert.Equal(t, 50*time.Millisecond, cfg.PollTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.ReconnectOnSleep)
	assert.Equal(t, 25, cfg.Concurrency)
	assert.False(t, cfg.ReliableFetch)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("EXQ_HOST", "redis.internal")
	t.Setenv("EXQ_CONCURRENCY", "10")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "redis.internal", cfg.Host)
	assert.Equal(t, 10, cfg.Concurrency)
}
