package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/prompts"
)

func TestRedact(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  string
		types []string
	}{
		{"phone", "call me at 010-1234-5678 please", "call me at 0************ please", []string{"phone"}},
		{"email", "mail kim.j@example.co.kr now", "mail k****************** now", []string{"email"}},
		{"national id", "id 900101-1234567 ok", "id 9************* ok", []string{"national_id"}},
		{"account", "account 12345678 thanks", "account 1******* thanks", []string{"account"}},
		{"clean", "no personal data here", "no personal data here", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Redact(tc.in)
			assert.Equal(t, tc.want, res.RedactedText)
			assert.Equal(t, tc.types, res.Types)
			assert.Equal(t, "regex", res.Method)
			if tc.types == nil {
				assert.Equal(t, "N", res.PrivacyExist)
			} else {
				assert.Equal(t, "Y", res.PrivacyExist)
			}
		})
	}
}

func TestRedact_ShortDigitsKept(t *testing.T) {
	res := Redact("order 12345 shipped in 3 days")
	assert.Equal(t, "order 12345 shipped in 3 days", res.RedactedText)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "a", mask("a"))
	assert.Equal(t, "김**", mask("김철수"))
}

func TestLLMRedactor(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"privacy_exist\":\"y\",\"exist_reason\":\"name\",\"privacy_rm_usertxt\":\"hello 김**\"}\n```"}
	p := &LLMRedactor{LLM: llm, Prompts: prompts.NewRegistry()}

	out, err := p.Call(context.Background(), "hello 김철수")
	require.NoError(t, err)
	res := out.(PrivacyResult)
	assert.Equal(t, "Y", res.PrivacyExist)
	assert.Equal(t, "hello 김**", res.RedactedText)
	assert.Equal(t, "llm", res.Method)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "hello 김철수")
}

func TestLLMRedactor_NoPrivacyKeepsText(t *testing.T) {
	p := &LLMRedactor{LLM: &fakeLLM{reply: `{"privacy_exist":"N","exist_reason":""}`}, Prompts: prompts.NewRegistry()}

	out, err := p.Call(context.Background(), "plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", out.(PrivacyResult).RedactedText)
	assert.Equal(t, "N", out.(PrivacyResult).PrivacyExist)
}

func TestLLMRedactor_Failures(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		p := &LLMRedactor{LLM: &fakeLLM{reply: "I cannot help"}, Prompts: prompts.NewRegistry()}
		_, err := p.Call(context.Background(), "x")
		var pe *fallback.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, fallback.KindMalformed, pe.Kind)
	})

	t.Run("unknown prompt", func(t *testing.T) {
		p := &LLMRedactor{LLM: &fakeLLM{}, Prompts: prompts.NewRegistry(), PromptName: "missing"}
		_, err := p.Call(context.Background(), "x")
		var pe *fallback.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, fallback.KindUnavailable, pe.Kind)
	})

	t.Run("transport", func(t *testing.T) {
		p := &LLMRedactor{LLM: &fakeLLM{err: errors.New("dial tcp: refused")}, Prompts: prompts.NewRegistry()}
		_, err := p.Call(context.Background(), "x")
		assert.Error(t, err)
	})
}

func TestPrivacyStage_FallsBackToRegex(t *testing.T) {
	stages := NewStages(Deps{LLM: &fakeLLM{err: errors.New("vllm down")}})

	out := stages.Privacy.Execute(context.Background(), "my number is 010-1234-5678")
	assert.True(t, out.Result.Success)
	assert.True(t, out.Degraded)
	assert.Equal(t, []string{"llm-redactor", "regex-redactor"}, out.AttemptedProviders)
	assert.Equal(t, "my number is 0************", out.Result.Payload.(PrivacyResult).RedactedText)
}
