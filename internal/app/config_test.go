package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.True(t, cfg.Closing.Enabled)
	require.Equal(t, 1, cfg.Closing.WakeHour)
	require.Equal(t, 3, cfg.Closing.CatchUpUntilHour)
	require.Equal(t, 29*time.Hour, cfg.Closing.RestartAfter)
	require.Equal(t, 4, cfg.Closing.OfficialCloseDay)
	require.True(t, cfg.Closing.CatchUpScan)
	require.EqualValues(t, 10, cfg.PGMaxConns)
	require.Equal(t, "info", cfg.LogLevel)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)
	sched := cfg.Closing.Schedule(loc)
	require.Equal(t, 3, sched.LookaheadDays)
	require.Equal(t, time.Hour, sched.RestartMargin)
}

func TestLoadConfigReadsClosingPrefix(t *testing.T) {
	t.Setenv("CLOSING_WAKE_HOUR", "2")
	t.Setenv("CLOSING_CATCHUP_UNTIL_HOUR", "5")
	t.Setenv("CLOSING_CATCHUP_SCAN", "false")
	t.Setenv("CLOSING_RESTART_AFTER", "0s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Closing.WakeHour)
	require.Equal(t, 5, cfg.Closing.CatchUpUntilHour)
	require.False(t, cfg.Closing.Policy().CatchUpScan)
	require.Zero(t, cfg.Closing.RestartAfter)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Timezone: "UTC", PGMaxConns: 4, Closing: ClosingConfig{WakeHour: 1, CatchUpUntilHour: 3, OfficialCloseDay: 4}}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"wake hour":      func(c *Config) { c.Closing.WakeHour = 24 },
		"catch-up order": func(c *Config) { c.Closing.CatchUpUntilHour = 1 },
		"lookahead":      func(c *Config) { c.Closing.ProvisionLookaheadDay = -1 },
		"official day":   func(c *Config) { c.Closing.OfficialCloseDay = 31 },
		"restart margin": func(c *Config) { c.Closing.RestartMargin = -time.Minute },
		"unknown tz":     func(c *Config) { c.Timezone = "Mars/Olympus" },
		"pg max conns":   func(c *Config) { c.PGMaxConns = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
