package fallback

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"voice-analysis-go/internal/logger"
)

const DefaultTimeout = 30 * time.Second

// Payload is the typed output of a stage provider.
type Payload interface {
	StageName() string
}

// Provider is one implementation of a stage: an external agent, a local
// model or a deterministic rule set.
type Provider interface {
	ID() string
	Call(ctx context.Context, text string) (Payload, error)
}

// Result is what the chain settled on.
type Result struct {
	Success    bool    `json:"success"`
	Payload    Payload `json:"payload,omitempty"`
	ProviderID string  `json:"provider_id"`
	Error      string  `json:"error,omitempty"`
}

// Outcome is the record of one stage run.
type Outcome struct {
	Stage              string   `json:"stage"`
	Result             Result   `json:"result"`
	AttemptedProviders []string `json:"attempted_providers"`
	Degraded           bool     `json:"degraded"`
}

// Chain runs providers in order until one succeeds, then falls back to the
// terminal provider. A failing provider is never retried.
type Chain struct {
	// Timeout bounds each provider call.
	Timeout time.Duration
	log     *logrus.Entry
}

func NewChain(timeout time.Duration, log *logrus.Entry) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Chain{Timeout: timeout, log: logger.OrDiscard(log, "fallback")}
}

func (c *Chain) Run(ctx context.Context, stage string, providers []Provider, terminal Provider, text string) Outcome {
	out := Outcome{Stage: stage}
	log := c.log.WithField("stage", stage)

	for _, p := range providers {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("context done, skipping to terminal provider")
			break
		}
		out.AttemptedProviders = append(out.AttemptedProviders, p.ID())

		payload, err := c.call(ctx, p, text)
		if err == nil {
			out.Result = Result{Success: true, Payload: payload, ProviderID: p.ID()}
			return out
		}
		log.WithFields(logrus.Fields{
			"provider": p.ID(),
			"kind":     err.Kind,
			"error":    err.Error(),
		}).Warn("provider failed, falling back")
	}

	out.Degraded = true
	out.AttemptedProviders = append(out.AttemptedProviders, terminal.ID())

	// The terminal provider is deterministic and does not see the caller's
	// cancellation, only the per-call timeout.
	payload, err := c.call(context.WithoutCancel(ctx), terminal, text)
	if err != nil {
		log.WithFields(logrus.Fields{
			"provider": terminal.ID(),
			"kind":     err.Kind,
			"error":    err.Error(),
		}).Error("terminal provider failed")
		out.Result = Result{ProviderID: terminal.ID(), Error: err.Error()}
		return out
	}
	out.Result = Result{Success: true, Payload: payload, ProviderID: terminal.ID()}
	return out
}

type callResult struct {
	payload Payload
	err     error
}

// call returns when p answers or the per-call deadline passes, whichever is
// first. A provider that ignores its context is left running in the background.
func (c *Chain) call(ctx context.Context, p Provider, text string) (Payload, *ProviderError) {
	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		payload, err := p.Call(callCtx, text)
		done <- callResult{payload: payload, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &ProviderError{Kind: KindTimeout, Provider: p.ID(), Err: callCtx.Err()}
		}
		return nil, classify(p.ID(), callCtx.Err())
	}

	if res.err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &ProviderError{Kind: KindTimeout, Provider: p.ID(), Err: res.err}
		}
		return nil, classify(p.ID(), res.err)
	}
	if res.payload == nil {
		return nil, &ProviderError{Kind: KindMalformed, Provider: p.ID(), Err: errors.New("empty payload")}
	}
	return res.payload, nil
}
