package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-analysis-go/internal/audio"
	"voice-analysis-go/internal/jobs"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("USE_MOCK_TRANSCRIBE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, jobs.DefaultMaxConcurrent, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, audio.DefaultWindowSec, cfg.Chunking.WindowSec)
	assert.Equal(t, audio.DefaultOverlapSec, cfg.Chunking.OverlapSec)
	assert.True(t, cfg.Transcriber.Mock)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
scheduler:
  max_concurrent: 5
chunking:
  window_sec: 20
  overlap_sec: 5
transcriber:
  url: http://stt:8000
  timeout: 45s
llm:
  base_url: http://vllm:8000
  model: qwen
agent:
  request_format: prompt_based
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("USE_MOCK_TRANSCRIBE", "")
	t.Setenv("PORT", "9100")
	t.Setenv("CHUNK_OVERLAP_SEC", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 20.0, cfg.Chunking.WindowSec)
	assert.Equal(t, 8.0, cfg.Chunking.OverlapSec)
	assert.Equal(t, "http://stt:8000", cfg.Transcriber.URL)
	assert.Equal(t, 45*time.Second, cfg.Transcriber.Timeout)
	assert.Equal(t, "qwen", cfg.LLM.Model)
	assert.Equal(t, "prompt_based", cfg.Agent.RequestFormat)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("USE_MOCK_TRANSCRIBE", "true")
	t.Setenv("MAX_CONCURRENT", "many")

	_, err := Load()
	assert.ErrorContains(t, err, "MAX_CONCURRENT")
}

func TestValidate(t *testing.T) {
	base := Default()
	base.Transcriber.Mock = true
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"overlap equals window", func(c *Config) { c.Chunking.OverlapSec = c.Chunking.WindowSec }, "overlap_sec"},
		{"negative overlap", func(c *Config) { c.Chunking.OverlapSec = -1 }, "overlap_sec"},
		{"zero window", func(c *Config) { c.Chunking.WindowSec = 0 }, "window_sec"},
		{"no concurrency", func(c *Config) { c.Scheduler.MaxConcurrent = 0 }, "max_concurrent"},
		{"unknown agent format", func(c *Config) { c.Agent.RequestFormat = "stream" }, "request_format"},
		{"missing stt url", func(c *Config) { c.Transcriber.Mock = false }, "transcriber.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
