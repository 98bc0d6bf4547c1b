package analysis

import (
	"context"
	"errors"
	"net/http"

	"voice-analysis-go/internal/agent"
	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/llm"
	"voice-analysis-go/internal/prompts"
)

// Stage names as they appear in outcomes and logs.
const (
	StagePrivacy        = "privacy_removal"
	StageClassification = "classification"
	StageElements       = "element_detection"
)

// Completer is a local language model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Asker is an external analysis agent.
type Asker interface {
	Ask(ctx context.Context, text string) (agent.Response, error)
}

// Stage is one analysis step: an ordered provider list and a terminal provider
// that always produces a payload.
type Stage struct {
	Name      string
	Providers []fallback.Provider
	Terminal  fallback.Provider

	chain *fallback.Chain
}

func NewStage(name string, chain *fallback.Chain, terminal fallback.Provider, providers ...fallback.Provider) *Stage {
	if chain == nil {
		chain = fallback.NewChain(0, nil)
	}
	return &Stage{Name: name, Providers: providers, Terminal: terminal, chain: chain}
}

// Execute runs text through the stage's fallback chain.
func (s *Stage) Execute(ctx context.Context, text string) fallback.Outcome {
	return s.chain.Run(ctx, s.Name, s.Providers, s.Terminal, text)
}

// Deps are the collaborators used to build the default stages. A nil LLM or
// Agent leaves the matching providers out of the chains.
type Deps struct {
	LLM     Completer
	Agent   Asker
	Prompts *prompts.Registry
	Chain   *fallback.Chain

	// AgentPromptBased renders the element prompt before sending to the agent.
	AgentPromptBased     bool
	PrivacyPrompt        string
	ClassificationPrompt string
}

// Stages bundles the three analysis stages.
type Stages struct {
	Privacy        *Stage
	Classification *Stage
	Elements       *Stage
}

func NewStages(d Deps) Stages {
	if d.Prompts == nil {
		d.Prompts = prompts.NewRegistry()
	}

	var privacy, classify, elements []fallback.Provider
	if d.Agent != nil {
		elements = append(elements, &AgentDetector{Agent: d.Agent, Prompts: d.Prompts, RenderPrompt: d.AgentPromptBased})
	}
	if d.LLM != nil {
		privacy = append(privacy, &LLMRedactor{LLM: d.LLM, Prompts: d.Prompts, PromptName: d.PrivacyPrompt})
		classify = append(classify, &LLMClassifier{LLM: d.LLM, Prompts: d.Prompts, PromptName: d.ClassificationPrompt})
		elements = append(elements, &LLMDetector{LLM: d.LLM, Prompts: d.Prompts})
	}

	return Stages{
		Privacy:        NewStage(StagePrivacy, d.Chain, RegexRedactor{}, privacy...),
		Classification: NewStage(StageClassification, d.Chain, UnknownCategory{}, classify...),
		Elements:       NewStage(StageElements, d.Chain, NoDetection{}, elements...),
	}
}

// providerErr maps backend errors onto fallback error kinds. Errors it does
// not recognise are left to the chain.
func providerErr(id string, err error) error {
	switch {
	case llm.IsRejected(err):
		return &fallback.ProviderError{Kind: fallback.KindRejected, Provider: id, Err: err}
	case errors.Is(err, llm.ErrEmptyResponse), errors.Is(err, agent.ErrEmptyResponse):
		return &fallback.ProviderError{Kind: fallback.KindMalformed, Provider: id, Err: err}
	}
	var se *agent.StatusError
	if errors.As(err, &se) {
		kind := fallback.KindUnavailable
		if se.Code >= http.StatusBadRequest && se.Code < http.StatusInternalServerError {
			kind = fallback.KindRejected
		}
		return &fallback.ProviderError{Kind: kind, Provider: id, Err: err}
	}
	return err
}
