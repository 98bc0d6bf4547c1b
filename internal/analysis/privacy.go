package analysis

import (
	"cmp"
	"context"
	"regexp"
	"strings"

	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/llm"
	"voice-analysis-go/internal/prompts"
)

// PrivacyResult is the payload of the privacy removal stage.
type PrivacyResult struct {
	PrivacyExist string   `json:"privacy_exist"`
	Reason       string   `json:"exist_reason"`
	RedactedText string   `json:"privacy_rm_text"`
	Types        []string `json:"types,omitempty"`
	Method       string   `json:"method"`
}

func (PrivacyResult) StageName() string { return StagePrivacy }

// LLMRedactor asks the local model to redact personal data.
type LLMRedactor struct {
	Name       string
	LLM        Completer
	Prompts    *prompts.Registry
	PromptName string
}

func (p *LLMRedactor) ID() string { return cmp.Or(p.Name, "llm-redactor") }

func (p *LLMRedactor) Call(ctx context.Context, text string) (fallback.Payload, error) {
	prompt, err := p.Prompts.Render(cmp.Or(p.PromptName, prompts.PrivacyDefault), text)
	if err != nil {
		return nil, fallback.Errorf(fallback.KindUnavailable, p.ID(), "%v", err)
	}
	out, err := p.LLM.Complete(ctx, "", prompt)
	if err != nil {
		return nil, providerErr(p.ID(), err)
	}

	var raw struct {
		PrivacyExist string  `json:"privacy_exist"`
		ExistReason  string  `json:"exist_reason"`
		Redacted     *string `json:"privacy_rm_usertxt"`
	}
	if !llm.DecodeJSON(out, &raw) {
		return nil, fallback.Errorf(fallback.KindMalformed, p.ID(), "no JSON object in response")
	}

	res := PrivacyResult{
		PrivacyExist: "N",
		Reason:       raw.ExistReason,
		RedactedText: text,
		Method:       "llm",
	}
	if strings.EqualFold(strings.TrimSpace(raw.PrivacyExist), "Y") {
		res.PrivacyExist = "Y"
	}
	if raw.Redacted != nil && strings.TrimSpace(*raw.Redacted) != "" {
		res.RedactedText = *raw.Redacted
	}
	return res, nil
}

type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

// Applied in order; earlier matches are masked before later patterns run.
var piiPatterns = []piiPattern{
	{"national_id", regexp.MustCompile(`\d{6}-\d{7}`)},
	{"phone", regexp.MustCompile(`\b\d{2,4}[-.]?\d{3,4}[-.]?\d{4}\b`)},
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{"account", regexp.MustCompile(`\b\d{6,16}\b`)},
}

// RegexRedactor masks phone numbers, emails, account-like digit runs and
// national ids. It never fails.
type RegexRedactor struct {
	Name string
}

func (p RegexRedactor) ID() string { return cmp.Or(p.Name, "regex-redactor") }

func (p RegexRedactor) Call(_ context.Context, text string) (fallback.Payload, error) {
	return Redact(text), nil
}

// Redact applies the regex rules to text.
func Redact(text string) PrivacyResult {
	res := PrivacyResult{PrivacyExist: "N", Method: "regex"}
	out := text
	for _, p := range piiPatterns {
		if !p.re.MatchString(out) {
			continue
		}
		res.Types = append(res.Types, p.kind)
		out = p.re.ReplaceAllStringFunc(out, mask)
	}
	res.RedactedText = out
	if len(res.Types) > 0 {
		res.PrivacyExist = "Y"
		res.Reason = "pattern match: " + strings.Join(res.Types, ", ")
	}
	return res
}

// mask keeps the first character and replaces the rest with '*'.
func mask(s string) string {
	r := []rune(s)
	if len(r) <= 1 {
		return s
	}
	return string(r[0]) + strings.Repeat("*", len(r)-1)
}
