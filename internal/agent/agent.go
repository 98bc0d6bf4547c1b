package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"

	"voice-analysis-go/internal/logger"
)

// RequestFormat selects how the call text is sent to the agent.
type RequestFormat string

const (
	// FormatTextOnly posts {use_streaming, chat_thread_id, parameters:{user_query}}.
	FormatTextOnly RequestFormat = "text_only"
	// FormatPromptBased posts an OpenAI-style chat completion built from a prompt.
	FormatPromptBased RequestFormat = "prompt_based"
)

// Agent types reported back to callers.
const (
	TypeExternal = "external"
	TypeVLLM     = "vllm"
)

// StatusError is a non-200 answer from the agent server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent HTTP %d: %s", e.Code, e.Body)
}

// ErrEmptyResponse is returned when the agent answers without any text.
var ErrEmptyResponse = errors.New("agent returned empty response")

type Config struct {
	URL           string
	RequestFormat RequestFormat
	ChatThreadID  string
	Timeout       time.Duration
	// Model is sent in prompt_based requests.
	Model string
}

// Response is the decoded agent answer.
type Response struct {
	Text         string
	ChatThreadID string
	AgentType    string
}

// Client calls an external analysis agent over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

func NewClient(cfg Config, log *logrus.Entry) *Client {
	if cfg.RequestFormat == "" {
		cfg.RequestFormat = FormatTextOnly
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.OrDiscard(log, "agent"),
	}
}

// Format returns the configured request format.
func (c *Client) Format() RequestFormat { return c.cfg.RequestFormat }

// DetectType guesses the agent flavour from its URL.
func DetectType(url string) string {
	if strings.Contains(url, "/v1/chat") || strings.Contains(strings.ToLower(url), "vllm") {
		return TypeVLLM
	}
	return TypeExternal
}

// Ask sends text to the agent. For prompt_based agents text must already be
// the rendered prompt.
func (c *Client) Ask(ctx context.Context, text string) (Response, error) {
	if c.cfg.URL == "" {
		return Response{}, errors.New("agent url not configured")
	}

	var payload any
	switch c.cfg.RequestFormat {
	case FormatPromptBased:
		payload = map[string]any{
			"model":       c.cfg.Model,
			"messages":    []map[string]string{{"role": "user", "content": text}},
			"temperature": 0.7,
			"max_tokens":  2048,
		}
	default:
		payload = map[string]any{
			"use_streaming":  false,
			"chat_thread_id": c.cfg.ChatThreadID,
			"parameters":     map[string]string{"user_query": text},
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	agentType := DetectType(c.cfg.URL)
	log := c.log.WithFields(logrus.Fields{"agent_type": agentType, "format": c.cfg.RequestFormat})

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("agent request failed")
		return Response{}, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return Response{}, &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 200)}
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Response{}, fmt.Errorf("decode agent response: %w", err)
	}

	out, err := decode(generic)
	if err != nil {
		return Response{}, err
	}
	if out.ChatThreadID == "" {
		out.ChatThreadID = c.cfg.ChatThreadID
	}
	out.AgentType = agentType
	if strings.TrimSpace(out.Text) == "" {
		return Response{}, ErrEmptyResponse
	}
	log.WithField("chars", len(out.Text)).Debug("agent answered")
	return out, nil
}

// decode accepts both the agent envelope and an OpenAI-style completion.
func decode(generic map[string]any) (Response, error) {
	var v *struct {
		Response     string `mapstructure:"response"`
		Result       string `mapstructure:"result"`
		ChatThreadID string `mapstructure:"chat_thread_id"`
		Choices      []struct {
			Message struct {
				Content string `mapstructure:"content"`
			} `mapstructure:"message"`
		} `mapstructure:"choices"`
	}
	if err := mapstructure.Decode(generic, &v); err != nil {
		return Response{}, fmt.Errorf("decode agent response: %w", err)
	}
	if v == nil {
		return Response{}, ErrEmptyResponse
	}

	text := v.Response
	if text == "" {
		text = v.Result
	}
	if text == "" && len(v.Choices) > 0 {
		text = v.Choices[0].Message.Content
	}
	return Response{Text: text, ChatThreadID: v.ChatThreadID}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
