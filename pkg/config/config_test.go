package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DB_MAX_CONNS", "DB_MIN_CONNS", "PORT", "AGENT_TIMEOUT_SECONDS", "MAX_TOOL_ITERATIONS"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, 25, cfg.DBMaxConns)
	assert.Equal(t, 5, cfg.DBMinConns)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.AgentTimeout)
	assert.Equal(t, 8, cfg.MaxToolIterations)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "50")
	t.Setenv("DB_MIN_CONNS", "2")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "60")

	cfg := Load()
	assert.Equal(t, 50, cfg.DBMaxConns)
	assert.Equal(t, 2, cfg.DBMinConns)
	assert.Equal(t, time.Minute, cfg.AgentTimeout)
}

func TestGetEnvAsIntIgnoresGarbage(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "lots")
	assert.Equal(t, 25, Load().DBMaxConns)
}
