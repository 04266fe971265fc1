package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  env: test
market:
  name: sim
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9992", cfg.App.HTTPAddr)
	assert.Equal(t, "/data/db/journal.db", cfg.App.JournalPath)
	assert.Equal(t, "15m", cfg.ATR.Interval)
	assert.Equal(t, 14, cfg.ATR.Period)
	assert.Equal(t, 0.5, cfg.Dispatch.PyramideScale)
	assert.Equal(t, 600, cfg.Dispatch.AdmissionTimeoutSeconds)
	assert.Equal(t, 2, cfg.Monitor.MaxPyramides)
	assert.Equal(t, 48.0, cfg.Monitor.MaxTradeAgeHours)
	assert.Equal(t, 300, cfg.Reaper.PollSeconds)
}

func TestLoadIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  log_level: debug
monitor:
  max_pyramides: 5
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
app:
  env: prod
market:
  name: binance
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel, "included file supplies values the main file omits")
	assert.Equal(t, 5, cfg.Monitor.MaxPyramides)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	assert.ErrorContains(t, err, "include cycle")
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad market name", func(t *testing.T) {
		path := writeConfig(t, dir, "bad_market.yaml", "market:\n  name: okx\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "market.name")
	})

	t.Run("binance-futures alias accepted", func(t *testing.T) {
		path := writeConfig(t, dir, "alias_market.yaml", "market:\n  name: binance-futures\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "binance-futures", cfg.Market.Name)
	})

	t.Run("partial ratio out of range", func(t *testing.T) {
		path := writeConfig(t, dir, "bad_ratio.yaml", `
market:
  name: sim
monitor:
  partial_close_ratio: 1.5
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "partial_close_ratio")
	})

	t.Run("bad atr interval", func(t *testing.T) {
		path := writeConfig(t, dir, "bad_atr.yaml", `
market:
  name: sim
atr:
  interval: 13x
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "atr.interval")
	})

	t.Run("telegram needs credentials", func(t *testing.T) {
		path := writeConfig(t, dir, "bad_notify.yaml", `
market:
  name: sim
notify:
  telegram_enabled: true
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "bot_token")
	})
}
