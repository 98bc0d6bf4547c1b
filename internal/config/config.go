package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"voice-analysis-go/internal/agent"
	"voice-analysis-go/internal/audio"
	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/jobs"
	"voice-analysis-go/internal/prompts"
)

type Server struct {
	Port string `yaml:"port"`
}

type Storage struct {
	// BaseDir holds one directory per scope.
	BaseDir string `yaml:"base_dir"`
}

type Scheduler struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

type Chunking struct {
	WindowSec  float64 `yaml:"window_sec"`
	OverlapSec float64 `yaml:"overlap_sec"`
	Language   string  `yaml:"language"`
	TempDir    string  `yaml:"temp_dir"`
}

type Transcriber struct {
	URL     string        `yaml:"url"`
	Mock    bool          `yaml:"mock"`
	Timeout time.Duration `yaml:"timeout"`
}

type LLM struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type Agent struct {
	URL           string        `yaml:"url"`
	RequestFormat string        `yaml:"request_format"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Stages struct {
	Timeout              time.Duration `yaml:"timeout"`
	PrivacyPrompt        string        `yaml:"privacy_prompt"`
	ClassificationPrompt string        `yaml:"classification_prompt"`
}

type Prompts struct {
	Dir string `yaml:"dir"`
}

// Config is the full service configuration.
type Config struct {
	Server      Server      `yaml:"server"`
	Storage     Storage     `yaml:"storage"`
	Scheduler   Scheduler   `yaml:"scheduler"`
	Chunking    Chunking    `yaml:"chunking"`
	Transcriber Transcriber `yaml:"transcriber"`
	LLM         LLM         `yaml:"llm"`
	Agent       Agent       `yaml:"agent"`
	Stages      Stages      `yaml:"stages"`
	Prompts     Prompts     `yaml:"prompts"`
}

func Default() Config {
	return Config{
		Server:    Server{Port: "8080"},
		Storage:   Storage{BaseDir: "data"},
		Scheduler: Scheduler{MaxConcurrent: jobs.DefaultMaxConcurrent},
		Chunking: Chunking{
			WindowSec:  audio.DefaultWindowSec,
			OverlapSec: audio.DefaultOverlapSec,
			Language:   "ko",
		},
		Transcriber: Transcriber{Timeout: 120 * time.Second},
		LLM:         LLM{Temperature: 0.1, MaxTokens: 2048},
		Agent:       Agent{RequestFormat: string(agent.FormatTextOnly), Timeout: 60 * time.Second},
		Stages: Stages{
			Timeout:              fallback.DefaultTimeout,
			PrivacyPrompt:        prompts.PrivacyDefault,
			ClassificationPrompt: prompts.ClassificationDefault,
		},
	}
}

// Load reads .env, then the YAML file named by CONFIG_FILE, then environment
// overrides.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = envOr("PORT", c.Server.Port)
	c.Storage.BaseDir = envOr("AUDIO_BASE_DIR", c.Storage.BaseDir)
	c.Chunking.Language = envOr("STT_LANGUAGE", c.Chunking.Language)
	c.Chunking.TempDir = envOr("CHUNK_TEMP_DIR", c.Chunking.TempDir)
	c.Transcriber.URL = envOr("TRANSCRIBE_URL", c.Transcriber.URL)
	c.LLM.BaseURL = envOr("VLLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = envOr("VLLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = envOr("VLLM_MODEL", c.LLM.Model)
	c.Agent.URL = envOr("AGENT_URL", c.Agent.URL)
	c.Agent.RequestFormat = envOr("AGENT_REQUEST_FORMAT", c.Agent.RequestFormat)
	c.Prompts.Dir = envOr("PROMPTS_DIR", c.Prompts.Dir)

	var errs []error
	setInt(&c.Scheduler.MaxConcurrent, "MAX_CONCURRENT", &errs)
	setInt(&c.LLM.MaxTokens, "VLLM_MAX_TOKENS", &errs)
	setFloat(&c.Chunking.WindowSec, "CHUNK_WINDOW_SEC", &errs)
	setFloat(&c.Chunking.OverlapSec, "CHUNK_OVERLAP_SEC", &errs)
	setDuration(&c.Transcriber.Timeout, "TRANSCRIBE_TIMEOUT", &errs)
	setDuration(&c.Agent.Timeout, "AGENT_TIMEOUT", &errs)
	setDuration(&c.Stages.Timeout, "STAGE_TIMEOUT", &errs)
	if v := os.Getenv("VLLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("VLLM_TEMPERATURE: %w", err))
		} else {
			c.LLM.Temperature = float32(f)
		}
	}
	if v := os.Getenv("USE_MOCK_TRANSCRIBE"); v != "" {
		c.Transcriber.Mock = v == "true"
	}
	return errors.Join(errs...)
}

// Validate rejects settings the scheduler or chunker cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Chunking.WindowSec <= 0 {
		errs = append(errs, fmt.Errorf("chunking.window_sec must be positive, got %g", c.Chunking.WindowSec))
	}
	if c.Chunking.OverlapSec < 0 || c.Chunking.OverlapSec >= c.Chunking.WindowSec {
		errs = append(errs, fmt.Errorf("chunking.overlap_sec must be in [0, %g), got %g", c.Chunking.WindowSec, c.Chunking.OverlapSec))
	}
	if c.Scheduler.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_concurrent must be at least 1, got %d", c.Scheduler.MaxConcurrent))
	}
	switch agent.RequestFormat(c.Agent.RequestFormat) {
	case agent.FormatTextOnly, agent.FormatPromptBased:
	default:
		errs = append(errs, fmt.Errorf("agent.request_format %q is not text_only or prompt_based", c.Agent.RequestFormat))
	}
	if !c.Transcriber.Mock && c.Transcriber.URL == "" {
		errs = append(errs, errors.New("transcriber.url is required unless the mock transcriber is enabled"))
	}
	return errors.Join(errs...)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func setInt(dst *int, key string, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func setFloat(dst *float64, key string, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func setDuration(dst *time.Duration, key string, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
