package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 30, cfg.MaxQtyPerOrder)
	assert.Equal(t, "auto", cfg.ExtractProvider)
	assert.Equal(t, "llama3.1:8b", cfg.OllamaModel)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, int64(1024*1024), cfg.MaxRequestBodyBytes)
	assert.False(t, cfg.SeedDev)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("YAKKYOKU_PORT", "9100")
	t.Setenv("MAX_QTY_PER_ORDER", "10")
	t.Setenv("YAKKYOKU_EXTRACT_PROVIDER", "rules")
	t.Setenv("YAKKYOKU_SEED_DEV", "true")
	t.Setenv("YAKKYOKU_READ_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 10, cfg.MaxQtyPerOrder)
	assert.Equal(t, "rules", cfg.ExtractProvider)
	assert.True(t, cfg.SeedDev)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("YAKKYOKU_PORT", "not-a-number")
	t.Setenv("YAKKYOKU_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing database URL",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: "DATABASE_URL",
		},
		{
			name:    "non-positive quantity cap",
			mutate:  func(c *Config) { c.MaxQtyPerOrder = 0 },
			wantErr: "MAX_QTY_PER_ORDER",
		},
		{
			name:    "unknown extract provider",
			mutate:  func(c *Config) { c.ExtractProvider = "gpt" },
			wantErr: "YAKKYOKU_EXTRACT_PROVIDER",
		},
		{
			name:    "operator id without key",
			mutate:  func(c *Config) { c.OperatorID = "ops-1" },
			wantErr: "must be set together",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(&cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
