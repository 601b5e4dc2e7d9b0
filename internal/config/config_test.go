package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8091, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 15, cfg.License.TrialDurationDays)
	assert.Equal(t, "1.0.0", cfg.License.LatestVersion)
	assert.NotEmpty(t, cfg.Database.DSN)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "missing DSN",
			mutate:  func(c *Config) { c.Database.DSN = "" },
			wantErr: "database DSN",
		},
		{
			name:    "missing secret",
			mutate:  func(c *Config) { c.License.SecretKey = "" },
			wantErr: "secret key",
		},
		{
			name:    "trial too short",
			mutate:  func(c *Config) { c.License.TrialDurationDays = 0 },
			wantErr: "trial duration",
		},
		{
			name:    "negative read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = -time.Second },
			wantErr: "read timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNormalizesLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "logs/licensed.log", cfg.Logging.FilePath)
}

func TestMergeConfigsEnvPrecedence(t *testing.T) {
	fileCfg := Default()
	fileCfg.Server.Port = 9000
	fileCfg.License.SecretKey = "from-file"
	fileCfg.License.LatestVersion = "2.0.0"

	envCfg := Config{}
	envCfg.Server.Port = 8080
	envCfg.License.SecretKey = ""

	merged := mergeConfigs(*fileCfg, envCfg)

	// Env wins where set, file fills the gaps
	assert.Equal(t, 8080, merged.Server.Port)
	assert.Equal(t, "from-file", merged.License.SecretKey)
	assert.Equal(t, "2.0.0", merged.License.LatestVersion)
}
