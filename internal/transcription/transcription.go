package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"voice-analysis-go/internal/logger"
)

// Transcriber turns one audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// MockTranscript is returned by the mock transcriber for every file.
const MockTranscript = "MOCK TRANSCRIPT: Customer says they face pricing issues and want refund."

// Mock returns a fixed transcript without touching the network.
type Mock struct {
	Text string
}

func (m Mock) Transcribe(ctx context.Context, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Text == "" {
		return MockTranscript, nil
	}
	return m.Text, nil
}

type transcribeResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error,omitempty"`
}

// HTTPClient uploads audio to a speech-to-text server at <BaseURL>/transcribe.
type HTTPClient struct {
	BaseURL string
	// MaxElapsed bounds the retry loop for one file.
	MaxElapsed time.Duration

	http *http.Client
	log  *logrus.Entry
}

// NewHTTPClient returns a client with a per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, log *logrus.Entry) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		MaxElapsed: 2 * timeout,
		http:       &http.Client{Timeout: timeout},
		log:        logger.OrDiscard(log, "transcription"),
	}
}

// New picks the mock transcriber when USE_MOCK_TRANSCRIBE=true, otherwise an HTTP client.
func New(baseURL string, timeout time.Duration, log *logrus.Entry) (Transcriber, error) {
	if os.Getenv("USE_MOCK_TRANSCRIBE") == "true" {
		return Mock{}, nil
	}
	if baseURL == "" {
		return nil, errors.New("TRANSCRIBE_URL not set")
	}
	return NewHTTPClient(baseURL, timeout, log), nil
}

func (c *HTTPClient) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	log := c.log.WithField("file", filepath.Base(audioPath))

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.MaxElapsed

	var out transcribeResponse
	op := func() error {
		body, contentType, err := buildUpload(filepath.Base(audioPath), audio, language)
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transcribe", body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.http.Do(req)
		if err != nil {
			log.WithError(err).Warn("transcribe request failed")
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, string(raw))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("transcribe rejected %d: %s", resp.StatusCode, string(raw)))
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("json decode error: %v body=%s", err, string(raw)))
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("transcription failed: %s", out.Error)
	}
	log.WithField("chars", len(out.Text)).Debug("transcribed")
	return out.Text, nil
}

func buildUpload(name string, audio []byte, language string) (io.Reader, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("audio", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &b, w.FormDataContentType(), nil
}
