package analysis

import (
	"cmp"
	"context"
	"strings"
	"unicode/utf8"

	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/prompts"
)

// Incomplete-sales elements.
const (
	ElementRequirements = "customer_requirements_not_confirmed"
	ElementProposal     = "proposal_not_made"
	ElementPrice        = "price_negotiation_incomplete"
	ElementNextSteps    = "next_steps_not_defined"
	ElementContract     = "contract_not_completed"
)

// ElementNames lists the elements in report order.
var ElementNames = []string{ElementRequirements, ElementProposal, ElementPrice, ElementNextSteps, ElementContract}

var elementKeywords = map[string][]string{
	ElementRequirements: {"고객 요구사항 미확인", "요구사항 확인 안됨", "고객 니즈 미파악", "requirements not confirmed", "needs not identified"},
	ElementProposal:     {"제안 부족", "제안 미실시", "솔루션 미제시", "proposal not made", "no proposal"},
	ElementPrice:        {"가격 협상 미완료", "가격 협상 실패", "가격 결정 미완료", "price negotiation incomplete", "pricing not agreed"},
	ElementNextSteps:    {"다음 단계 미정", "follow-up 미정", "다음 액션 미정", "next steps not defined", "follow-up not scheduled"},
	ElementContract:     {"계약 미완료", "서명 미실시", "계약 미체결", "contract not completed", "no signature"},
}

const summaryRunes = 500

// ElementDetectionResult is the payload of the element detection stage.
type ElementDetectionResult struct {
	Detected  bool            `json:"detected"`
	Elements  map[string]bool `json:"elements"`
	Summary   string          `json:"summary"`
	Analysis  string          `json:"analysis"`
	AgentType string          `json:"agent_type"`
	Dummy     bool            `json:"is_dummy,omitempty"`
}

func (ElementDetectionResult) StageName() string { return StageElements }

// DetectedElements returns the flagged elements in report order.
func (r ElementDetectionResult) DetectedElements() []string {
	var out []string
	for _, name := range ElementNames {
		if r.Elements[name] {
			out = append(out, name)
		}
	}
	return out
}

// ParseElements flags each element whose keywords appear in analysis.
func ParseElements(analysis, agentType string) ElementDetectionResult {
	lower := strings.ToLower(analysis)
	res := ElementDetectionResult{
		Elements:  make(map[string]bool, len(ElementNames)),
		Summary:   firstRunes(analysis, summaryRunes),
		Analysis:  analysis,
		AgentType: agentType,
	}
	for _, name := range ElementNames {
		for _, kw := range elementKeywords[name] {
			if strings.Contains(lower, kw) {
				res.Elements[name] = true
				res.Detected = true
				break
			}
		}
		if !res.Elements[name] {
			res.Elements[name] = false
		}
	}
	return res
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// AgentDetector sends the transcript to an external agent.
type AgentDetector struct {
	Name    string
	Agent   Asker
	Prompts *prompts.Registry
	// RenderPrompt wraps the transcript in the element prompt first.
	RenderPrompt bool
}

func (p *AgentDetector) ID() string { return cmp.Or(p.Name, "external-agent") }

func (p *AgentDetector) Call(ctx context.Context, text string) (fallback.Payload, error) {
	query := text
	if p.RenderPrompt {
		var err error
		if query, err = p.Prompts.Render(prompts.IncompleteSales, text); err != nil {
			return nil, fallback.Errorf(fallback.KindUnavailable, p.ID(), "%v", err)
		}
	}
	resp, err := p.Agent.Ask(ctx, query)
	if err != nil {
		return nil, providerErr(p.ID(), err)
	}
	return ParseElements(resp.Text, resp.AgentType), nil
}

// LLMDetector runs the element prompt on the local model.
type LLMDetector struct {
	Name    string
	LLM     Completer
	Prompts *prompts.Registry
}

func (p *LLMDetector) ID() string { return cmp.Or(p.Name, "local-llm") }

func (p *LLMDetector) Call(ctx context.Context, text string) (fallback.Payload, error) {
	prompt, err := p.Prompts.Render(prompts.IncompleteSales, text)
	if err != nil {
		return nil, fallback.Errorf(fallback.KindUnavailable, p.ID(), "%v", err)
	}
	out, err := p.LLM.Complete(ctx, "", prompt)
	if err != nil {
		return nil, providerErr(p.ID(), err)
	}
	return ParseElements(out, "vllm"), nil
}

// NoDetection is the terminal element detector.
type NoDetection struct {
	Name string
}

func (p NoDetection) ID() string { return cmp.Or(p.Name, "no-detection") }

func (p NoDetection) Call(context.Context, string) (fallback.Payload, error) {
	res := ParseElements("", "dummy")
	res.Analysis = "[dummy] analysis unavailable"
	res.Summary = res.Analysis
	res.Dummy = true
	return res, nil
}
