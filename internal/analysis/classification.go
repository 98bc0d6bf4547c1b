package analysis

import (
	"cmp"
	"context"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/llm"
	"voice-analysis-go/internal/prompts"
)

// CodeUnknown marks a call no provider could classify.
const CodeUnknown = "UNKNOWN"

// Categories maps classification codes to display names.
var Categories = map[string]string{
	"CLASS_PRE_SALES":         "Pre-sales",
	"CLASS_CUSTOMER_SERVICE":  "Customer service",
	"CLASS_TECHNICAL_SUPPORT": "Technical support",
	"CLASS_GENERAL":           "General",
	"CLASS_COMPLAINT":         "Complaint",
	"CLASS_SUPPORT":           "Support",
	CodeUnknown:               "Unknown",
}

// ClassificationResult is the payload of the classification stage.
type ClassificationResult struct {
	Code       string  `json:"code"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

func (ClassificationResult) StageName() string { return StageClassification }

// LLMClassifier asks the local model for a category code.
type LLMClassifier struct {
	Name       string
	LLM        Completer
	Prompts    *prompts.Registry
	PromptName string
}

func (p *LLMClassifier) ID() string { return cmp.Or(p.Name, "llm-classifier") }

func (p *LLMClassifier) Call(ctx context.Context, text string) (fallback.Payload, error) {
	prompt, err := p.Prompts.Render(cmp.Or(p.PromptName, prompts.ClassificationDefault), text)
	if err != nil {
		return nil, fallback.Errorf(fallback.KindUnavailable, p.ID(), "%v", err)
	}
	out, err := p.LLM.Complete(ctx, "", prompt)
	if err != nil {
		return nil, providerErr(p.ID(), err)
	}
	res, err := parseClassification(out)
	if err != nil {
		return nil, fallback.Errorf(fallback.KindMalformed, p.ID(), "%v", err)
	}
	return res, nil
}

func parseClassification(out string) (ClassificationResult, error) {
	var generic map[string]any
	if !llm.DecodeJSON(out, &generic) {
		return ClassificationResult{}, errNoJSON
	}

	// models sometimes quote the confidence
	var raw struct {
		Code       string  `mapstructure:"code"`
		Confidence float64 `mapstructure:"confidence"`
		Reason     string  `mapstructure:"reason"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return ClassificationResult{}, err
	}
	if err := dec.Decode(generic); err != nil {
		return ClassificationResult{}, err
	}

	code := strings.ToUpper(strings.TrimSpace(raw.Code))
	category, ok := Categories[code]
	if !ok || code == CodeUnknown {
		return ClassificationResult{}, &unknownCodeError{code: raw.Code}
	}
	return ClassificationResult{
		Code:       code,
		Category:   category,
		Confidence: min(max(raw.Confidence, 0), 100),
		Reason:     raw.Reason,
	}, nil
}

// UnknownCategory is the terminal classifier.
type UnknownCategory struct {
	Name string
}

func (p UnknownCategory) ID() string { return cmp.Or(p.Name, "unknown-category") }

func (p UnknownCategory) Call(context.Context, string) (fallback.Payload, error) {
	return ClassificationResult{
		Code:     CodeUnknown,
		Category: Categories[CodeUnknown],
		Reason:   "no classifier produced a result",
	}, nil
}
