package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/energy-consumption-aggregation/internal/consumption"
)

func setMeterEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OCTOPUS_APIKEY", "sk_test")
	t.Setenv("OCTOPUS_MPAN", "1200000000001")
	t.Setenv("OCTOPUS_SERIAL", "19L0000000")
}

func TestLoadDefaults(t *testing.T) {
	setMeterEnv(t)
	t.Setenv("PORT", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "https://api.octopus.energy", cfg.URL)
	assert.Equal(t, "sk_test", cfg.APIKey)
	assert.Equal(t, "octopus-1200000000001-19L0000000.csv", cfg.CSVPath)
	assert.Equal(t, "00:00", cfg.DayStart)
	assert.Equal(t, []int{7, 14, 30, 60, 90}, cfg.AverageDays)
	assert.Equal(t, 90, cfg.PageSpanDays)
	assert.Equal(t, 30*time.Second, cfg.PageTimeout)
	assert.Equal(t, 6*time.Hour, cfg.SyncInterval)
	assert.Equal(t, "8080", cfg.Port)
	assert.NotNil(t, cfg.Location)
}

func TestLoadLogsThroughSlog(t *testing.T) {
	setMeterEnv(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, err := Load(t.TempDir())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "config: no config.json found")
	assert.NotContains(t, out, "INFO: ")
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"url": "https://example.test/",
		"apikey": "from-file",
		"mpan": "1",
		"serial": "2",
		"csv": "data/meter.csv",
		"timezone": "Europe/London",
		"day_start": "06:30",
		"average_days": [3, 10],
		"page_span_days": 30
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644))

	t.Setenv("OCTOPUS_APIKEY", "from-env")
	t.Setenv("OCTOPUS_SYNC_INTERVAL", "0s")
	t.Setenv("PORT", "9090")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test", cfg.URL)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "data/meter.csv", cfg.CSVPath)
	assert.Equal(t, "Europe/London", cfg.Location.String())
	assert.Equal(t, "06:30", cfg.DayStart)
	assert.Equal(t, []int{3, 10}, cfg.AverageDays)
	assert.Equal(t, 30, cfg.PageSpanDays)
	assert.Equal(t, time.Duration(0), cfg.SyncInterval)
	assert.Equal(t, "9090", cfg.Port)
}

func TestLoadAverageDaysFromEnv(t *testing.T) {
	setMeterEnv(t)
	t.Setenv("OCTOPUS_AVERAGE_DAYS", "7,28")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []int{7, 28}, cfg.AverageDays)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"missing api key":  {"OCTOPUS_APIKEY": ""},
		"span too large":   {"OCTOPUS_PAGE_SPAN_DAYS": "366"},
		"span zero":        {"OCTOPUS_PAGE_SPAN_DAYS": "0"},
		"bad day start":    {"OCTOPUS_DAY_START": "25:00"},
		"bad timezone":     {"OCTOPUS_TIMEZONE": "Mars/Olympus"},
		"duplicate window": {"OCTOPUS_AVERAGE_DAYS": "7,7"},
		"zero window":      {"OCTOPUS_AVERAGE_DAYS": "0,7"},
		"bad log level":    {"OCTOPUS_LOG_LEVEL": "loud"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setMeterEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := Load(t.TempDir())
			require.Error(t, err)
			assert.ErrorIs(t, err, consumption.ErrConfiguration)
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	setMeterEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0o644))

	_, err := Load(dir)
	assert.ErrorIs(t, err, consumption.ErrConfiguration)
}
