package analysis

import (
	"context"

	"voice-analysis-go/internal/agent"
)

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fakeAgent struct {
	resp    agent.Response
	err     error
	queries []string
}

func (f *fakeAgent) Ask(_ context.Context, text string) (agent.Response, error) {
	f.queries = append(f.queries, text)
	return f.resp, f.err
}
