package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LECTERN_CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(contents), 0o600))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, OutputFormatText, cfg.OutputFormat)
	assert.True(t, cfg.Silence.Enabled)
	assert.Equal(t, DefaultSearchTopK, cfg.Search.TopK)
	assert.InDelta(t, DefaultSearchMinScore, cfg.Search.MinScore, 1e-9)
	assert.Equal(t, "memory", cfg.Store.Driver)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	writeConfigFile(t, `
silence:
  enabled: false
  threshold: 0.05
  min_duration: 3s
chapters:
  gap_threshold: 8s
  max_duration: 15m
  min_duration: 1m
notes:
  language: Hindi
  kinds: [summary, quiz]
  eli5: true
search:
  top_k: 10
  min_score: 0.4
call_timeout: 2m
`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.Silence.Enabled)
	assert.InDelta(t, 0.05, cfg.Silence.Threshold, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.Silence.MinDuration)
	assert.Equal(t, 8*time.Second, cfg.Chapters.GapThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Chapters.MaxDuration)
	assert.Equal(t, time.Minute, cfg.Chapters.MinDuration)
	assert.Equal(t, "Hindi", cfg.Notes.Language)
	assert.Equal(t, []string{"summary", "quiz"}, cfg.Notes.Kinds)
	assert.True(t, cfg.Notes.ELI5)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 2*time.Minute, cfg.CallTimeout)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	writeConfigFile(t, `
notes:
  language: Tamil
search:
  top_k: 7
`)
	t.Setenv("LECTERN_LANGUAGE", "Malayalam")
	t.Setenv("LECTERN_SEARCH_TOP_K", "3")
	t.Setenv("LECTERN_SILENCE_REMOVAL", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "Malayalam", cfg.Notes.Language)
	assert.Equal(t, 3, cfg.Search.TopK)
	assert.False(t, cfg.Silence.Enabled)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	writeConfigFile(t, "chapters:\n  gap_threshold: soon\n")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gap_threshold")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad_format", func(c *Config) { c.OutputFormat = "xml" }, "output_format"},
		{"zero_timeout", func(c *Config) { c.CallTimeout = 0 }, "call_timeout"},
		{"bad_threshold", func(c *Config) { c.Silence.Threshold = 1.5 }, "threshold"},
		{"zero_silence_min", func(c *Config) { c.Silence.MinDuration = 0 }, "min_duration"},
		{"inverted_chapters", func(c *Config) { c.Chapters.MaxDuration = c.Chapters.MinDuration }, "max_duration"},
		{"zero_topk", func(c *Config) { c.Search.TopK = 0 }, "top_k"},
		{"bad_driver", func(c *Config) { c.Store.Driver = "sqlite" }, "driver"},
		{"postgres_without_dsn", func(c *Config) { c.Store.Driver = "postgres" }, "dsn"},
		{"zero_concurrency", func(c *Config) { c.Notes.ChapterConcurrency = 0 }, "chapter_concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsSupportedMedia(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"lecture.mp3", true},
		{"lecture.WAV", true},
		{"lecture.mp4", true},
		{"lecture.m4a", true},
		{"lecture.mpeg", true},
		{"lecture.flac", false},
		{"lecture.txt", false},
		{"lecture", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSupportedMedia(tt.filename))
		})
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	r := RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}

	assert.Equal(t, time.Second, r.Backoff(0))
	assert.Equal(t, 2*time.Second, r.Backoff(1))
	assert.Equal(t, 4*time.Second, r.Backoff(2))
	assert.Equal(t, 8*time.Second, r.Backoff(3))
	assert.Equal(t, 10*time.Second, r.Backoff(4)) // capped
}
