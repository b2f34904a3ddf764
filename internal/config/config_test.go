package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3000.0, cfg.Detection.MinVolume)
	assert.Equal(t, 0.30, cfg.Detection.MinVolumeIncreasePct)
	assert.Equal(t, 2_000_000.0, cfg.Detection.MinAmountThreshold)
	assert.Equal(t, 0.01, cfg.Detection.StockChangeThreshold)
	assert.Equal(t, 0.05, cfg.Detection.OptionChangeThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Trading.StaleAfter)
	assert.Equal(t, 24*time.Hour, cfg.Trading.MaxHoldWithoutSig)
	assert.Equal(t, 2, cfg.Trading.BullishBuyCount)
	assert.Equal(t, 3, cfg.Trading.BearishSellCount)
	assert.Equal(t, []string{"data"}, cfg.Data.Folders)
	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig(t *testing.T) {
	t.Run("File overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		yml := "detection:\n  min_volume: 5000\ntrading:\n  stale_after: 10m\ndatabase:\n  driver: postgres\n  dsn: postgres://localhost/options\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o644))

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, 5000.0, cfg.Detection.MinVolume)
		assert.Equal(t, 10*time.Minute, cfg.Trading.StaleAfter)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		// Untouched keys keep their defaults.
		assert.Equal(t, 0.30, cfg.Detection.MinVolumeIncreasePct)
	})

	t.Run("Missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
	})

	t.Run("Invalid value is rejected", func(t *testing.T) {
		dir := t.TempDir()
		yml := "database:\n  driver: mysql\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o644))

		_, err := LoadConfig(dir)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})
}

func TestValidate_Timezone(t *testing.T) {
	cfg := Default()
	cfg.Data.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, Validate(cfg))
}
