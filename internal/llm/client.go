package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"voice-analysis-go/internal/logger"
)

// ErrEmptyResponse is returned when the model answers with no choices or no content.
var ErrEmptyResponse = errors.New("llm returned no content")

type Config struct {
	// BaseURL of an OpenAI-compatible server, e.g. http://vllm:8000/v1.
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client talks to a local vLLM server through its OpenAI-compatible API.
type Client struct {
	api *openai.Client
	cfg Config
	log *logrus.Entry
}

func NewClient(cfg Config, log *logrus.Entry) *Client {
	key := cfg.APIKey
	if key == "" {
		// vLLM accepts any token unless started with --api-key
		key = "EMPTY"
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = normalizeBaseURL(cfg.BaseURL)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Client{
		api: openai.NewClientWithConfig(oc),
		cfg: cfg,
		log: logger.OrDiscard(log, "llm"),
	}
}

// Model returns the served model name.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends one system+user exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	c.log.WithFields(logrus.Fields{
		"model":             resp.Model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("llm completion")
	return resp.Choices[0].Message.Content, nil
}

// IsRejected reports whether err is a 4xx answer from the server.
func IsRejected(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500
	}
	return false
}

func normalizeBaseURL(u string) string {
	u = strings.TrimRight(u, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}
