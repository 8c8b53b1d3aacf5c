package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 180*time.Second, cfg.Lock.TTL)
	assert.Equal(t, "open", cfg.Lock.FailurePolicy)
	assert.Equal(t, DispatcherSync, cfg.Generation.Dispatcher)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, "content:generate", cfg.Worker.Queue)
	assert.Equal(t, 48*time.Hour, cfg.Sweep.LegacyGrace)
	assert.Nil(t, cfg.OpenAI.Temperature)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LOCK_TTL", "90s")
	t.Setenv("LOCK_BACKEND_FAILURE_POLICY", "closed")
	t.Setenv("GENERATION_DISPATCHER", "Redis")
	t.Setenv("GENERATION_TIMEOUT", "60s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("HTTP_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("OPENAI_TEMPERATURE", "0.4")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Lock.TTL)
	assert.Equal(t, DispatcherRedis, cfg.Generation.Dispatcher)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	require.NotNil(t, cfg.OpenAI.Temperature)
	assert.InDelta(t, 0.4, *cfg.OpenAI.Temperature, 1e-9)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown dispatcher":        {"GENERATION_DISPATCHER": "kafka"},
		"redis without addr":        {"GENERATION_DISPATCHER": "redis"},
		"bad policy":                {"LOCK_BACKEND_FAILURE_POLICY": "maybe"},
		"timeout outlives the lock": {"LOCK_TTL": "60s", "GENERATION_TIMEOUT": "90s"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestValidateServeRequiresSecrets(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateServe())

	cfg.Security.JWTSecret = "s"
	cfg.Security.UserKeySalt = "salt"
	assert.NoError(t, cfg.ValidateServe())
}
