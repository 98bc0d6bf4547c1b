package fallback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textPayload string

func (textPayload) StageName() string { return "test" }

type fakeProvider struct {
	id    string
	out   Payload
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Call(ctx context.Context, _ string) (Payload, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

func ok(id, text string) *fakeProvider { return &fakeProvider{id: id, out: textPayload(text)} }

func failing(id string) *fakeProvider {
	return &fakeProvider{id: id, err: errors.New("connection refused")}
}

func TestRun_FirstSuccessStops(t *testing.T) {
	agent, local, terminal := ok("agent", "A"), ok("local", "B"), ok("dummy", "C")

	out := NewChain(time.Second, nil).Run(context.Background(), "s", []Provider{agent, local}, terminal, "text")

	assert.True(t, out.Result.Success)
	assert.Equal(t, textPayload("A"), out.Result.Payload)
	assert.Equal(t, "agent", out.Result.ProviderID)
	assert.Equal(t, []string{"agent"}, out.AttemptedProviders)
	assert.False(t, out.Degraded)
	assert.Zero(t, local.calls.Load())
	assert.Zero(t, terminal.calls.Load())
}

func TestRun_FallsThroughInOrder(t *testing.T) {
	agent, local, terminal := failing("agent"), ok("local", "B"), ok("dummy", "C")

	out := NewChain(time.Second, nil).Run(context.Background(), "s", []Provider{agent, local}, terminal, "text")

	assert.Equal(t, "local", out.Result.ProviderID)
	assert.Equal(t, []string{"agent", "local"}, out.AttemptedProviders)
	assert.Equal(t, int32(1), agent.calls.Load(), "failed providers are not retried")
	assert.False(t, out.Degraded)
}

func TestRun_TerminatesWithTerminal(t *testing.T) {
	cases := map[string][]Provider{
		"no providers":  nil,
		"all failing":   {failing("a"), failing("b")},
		"nil payload":   {&fakeProvider{id: "a"}},
		"typed failure": {&fakeProvider{id: "a", err: Errorf(KindRejected, "", "success=false")}},
	}
	for name, providers := range cases {
		t.Run(name, func(t *testing.T) {
			out := NewChain(time.Second, nil).Run(context.Background(), "s", providers, ok("dummy", "D"), "text")

			require.GreaterOrEqual(t, len(out.AttemptedProviders), 1)
			assert.Equal(t, "dummy", out.AttemptedProviders[len(out.AttemptedProviders)-1])
			assert.Len(t, out.AttemptedProviders, len(providers)+1)
			assert.True(t, out.Result.Success)
			assert.True(t, out.Degraded)
			assert.Equal(t, textPayload("D"), out.Result.Payload)
		})
	}
}

func TestRun_TimeoutCountsAsFailure(t *testing.T) {
	slow := &fakeProvider{id: "slow", out: textPayload("late"), delay: time.Second}

	start := time.Now()
	out := NewChain(20*time.Millisecond, nil).Run(context.Background(), "s", []Provider{slow}, ok("dummy", "D"), "text")

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "dummy", out.Result.ProviderID)
	assert.Equal(t, []string{"slow", "dummy"}, out.AttemptedProviders)
}

// blockingProvider never looks at its context.
type blockingProvider struct {
	id      string
	release chan struct{}
}

func (b *blockingProvider) ID() string { return b.id }

func (b *blockingProvider) Call(context.Context, string) (Payload, error) {
	<-b.release
	return textPayload("late"), nil
}

func TestRun_TimeoutFallsBackWhenProviderIgnoresContext(t *testing.T) {
	stuck := &blockingProvider{id: "stuck", release: make(chan struct{})}
	defer close(stuck.release)

	start := time.Now()
	out := NewChain(50*time.Millisecond, nil).Run(context.Background(), "s", []Provider{stuck}, ok("dummy", "D"), "text")

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, out.Result.Success)
	assert.True(t, out.Degraded)
	assert.Equal(t, textPayload("D"), out.Result.Payload)
	assert.Equal(t, []string{"stuck", "dummy"}, out.AttemptedProviders)

	_, perr := NewChain(20*time.Millisecond, nil).call(context.Background(), stuck, "")
	require.NotNil(t, perr)
	assert.Equal(t, KindTimeout, perr.Kind)
	assert.Equal(t, "stuck", perr.Provider)
}

func TestRun_CancelledContextSkipsToTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agent := ok("agent", "A")

	out := NewChain(time.Second, nil).Run(ctx, "s", []Provider{agent}, ok("dummy", "D"), "text")

	assert.Zero(t, agent.calls.Load())
	assert.Equal(t, []string{"dummy"}, out.AttemptedProviders)
	assert.True(t, out.Result.Success)
}

func TestRun_TerminalFailureIsReported(t *testing.T) {
	out := NewChain(time.Second, nil).Run(context.Background(), "s", []Provider{failing("a")}, failing("dummy"), "text")

	assert.False(t, out.Result.Success)
	assert.True(t, out.Degraded)
	assert.Equal(t, "dummy", out.Result.ProviderID)
	assert.Contains(t, out.Result.Error, "connection refused")
	assert.Equal(t, []string{"a", "dummy"}, out.AttemptedProviders)
}

func TestCall_ClassifiesErrors(t *testing.T) {
	c := NewChain(20*time.Millisecond, nil)

	_, perr := c.call(context.Background(), failing("a"), "")
	assert.Equal(t, KindTransport, perr.Kind)
	assert.Equal(t, "a", perr.Provider)

	_, perr = c.call(context.Background(), &fakeProvider{id: "b", delay: time.Second}, "")
	assert.Equal(t, KindTimeout, perr.Kind)
	assert.ErrorIs(t, perr, context.DeadlineExceeded)

	_, perr = c.call(context.Background(), &fakeProvider{id: "c", err: Errorf(KindMalformed, "c", "bad json")}, "")
	assert.Equal(t, KindMalformed, perr.Kind)

	var target *ProviderError
	assert.True(t, errors.As(error(perr), &target))
}

func TestClassify_DoesNotModifyCallerError(t *testing.T) {
	orig := Errorf(KindRejected, "", "bad request")

	got := classify("llm", orig)

	assert.Equal(t, "llm", got.Provider)
	assert.Equal(t, KindRejected, got.Kind)
	assert.Empty(t, orig.Provider)
	assert.NotSame(t, orig, got)
}
