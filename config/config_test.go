package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/omoide")
	t.Setenv("GATEWAY_SERVICE_TOKEN", "secret")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , https://b.example ,")

	cfg, _, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5200, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "クイックン", cfg.Bot.Name)
	assert.Equal(t, 60*time.Second, cfg.TextGen.Timeout)
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())

	h, m, err := cfg.Scheduler.OnThisDayClock()
	require.NoError(t, err)
	assert.Equal(t, uint(9), h)
	assert.Equal(t, uint(0), m)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			App:       AppConfig{Timezone: "UTC"},
			Server:    ServerConfig{Port: 5200, GatewayToken: "t"},
			Database:  DatabaseConfig{URL: "postgres://x"},
			Jobs:      JobsConfig{QueueSize: 1, Workers: 1},
			Scheduler: SchedulerConfig{SweepConcurrency: 1, OnThisDayAt: "09:00"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"missing token", func(c *Config) { c.Server.GatewayToken = "" }, "GATEWAY_SERVICE_TOKEN"},
		{"bad timezone", func(c *Config) { c.App.Timezone = "Mars/Olympus" }, "APP_TIMEZONE"},
		{"bad clock", func(c *Config) { c.Scheduler.OnThisDayAt = "9am" }, "ON_THIS_DAY_AT"},
		{"no workers", func(c *Config) { c.Jobs.Workers = 0 }, "JOB_WORKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
