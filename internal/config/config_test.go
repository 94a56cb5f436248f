package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "paper", cfg.Mode)
	assert.Equal(t, "btc", cfg.Market.Coin)
	assert.InDelta(t, 0.30, cfg.Strategy.DropTrigger, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Strategy.Lookback.Duration)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Archive.Enabled)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Market.Coin = "doge"
	cfg.Strategy.DropTrigger = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "yolo"`)
	assert.Contains(t, err.Error(), `unknown coin "doge"`)
	assert.Contains(t, err.Error(), "drop_trigger must be in (0, 1)")
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	cfg := Defaults()
	// Empty addresses are fine while the subsystems stay disabled.
	cfg.Redis.Addr = ""
	cfg.Database.Host = ""
	assert.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")

	cfg.S3.Bucket = "updown-books"
	cfg.S3.Region = "us-east-1"
	assert.NoError(t, cfg.Validate())
}

func TestValidateTelegramNeedsChatID(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "123:abc"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram_chat_id is required")
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"

[market]
coin = "eth"
check_interval = "20s"

[strategy]
drop_trigger = 0.25
`), 0o644))

	t.Setenv("UPDOWN_MARKET_COIN", "sol")
	t.Setenv("UPDOWN_STRATEGY_SIZE", "25.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "sol", cfg.Market.Coin, "env beats file")
	assert.Equal(t, 20*time.Second, cfg.Market.CheckInterval.Duration)
	assert.InDelta(t, 0.25, cfg.Strategy.DropTrigger, 1e-9)
	assert.InDelta(t, 25.5, cfg.Strategy.Size, 1e-9)
	// Untouched fields keep their defaults.
	assert.Equal(t, 100, cfg.Strategy.HistoryCap)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "paper", cfg.Mode)
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
