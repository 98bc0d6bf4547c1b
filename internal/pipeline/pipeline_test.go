package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-analysis-go/internal/analysis"
	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/transcription"
)

type fakeSTT struct {
	merged transcription.Merged
	err    error
	// lang records the language of the last call when set
	lang *string
}

func (f fakeSTT) Transcribe(_ context.Context, _, language string) (transcription.Merged, error) {
	if f.lang != nil {
		*f.lang = language
	}
	return f.merged, f.err
}

func transcript(text string) fakeSTT {
	return fakeSTT{merged: transcription.Merged{Text: text, ChunksTotal: 1, ChunksSucceeded: 1}}
}

type recorder struct {
	stage   string
	payload fallback.Payload
	inputs  []string
	onCall  func()
}

func (r *recorder) Execute(_ context.Context, text string) fallback.Outcome {
	r.inputs = append(r.inputs, text)
	if r.onCall != nil {
		r.onCall()
	}
	return fallback.Outcome{
		Stage:              r.stage,
		Result:             fallback.Result{Success: true, Payload: r.payload, ProviderID: "rec"},
		AttemptedProviders: []string{"rec"},
	}
}

func recorders() (*recorder, *recorder, *recorder) {
	return &recorder{stage: analysis.StagePrivacy, payload: analysis.PrivacyResult{PrivacyExist: "Y", RedactedText: "REDACTED"}},
		&recorder{stage: analysis.StageClassification, payload: analysis.ClassificationResult{Code: "CLASS_GENERAL"}},
		&recorder{stage: analysis.StageElements, payload: analysis.ElementDetectionResult{}}
}

func TestProcess_PrivacyTextFlowsDownstream(t *testing.T) {
	priv, cls, el := recorders()
	p := New(transcript("call with 010-1234-5678"), analysis.Stages{}, nil).WithExecutors(priv, cls, el)

	res, err := p.Process(context.Background(), "a.wav", Options{PrivacyRemoval: true, Classification: true, ElementDetection: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"call with 010-1234-5678"}, priv.inputs)
	assert.Equal(t, []string{"REDACTED"}, cls.inputs)
	assert.Equal(t, []string{"REDACTED"}, el.inputs)
	assert.Equal(t, "REDACTED", res.FinalText)
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, analysis.StagePrivacy, res.Outcomes[0].Stage)
	assert.Equal(t, analysis.StageElements, res.Outcomes[2].Stage)
}

func TestProcess_SkippedStagesPassTextThrough(t *testing.T) {
	priv, cls, el := recorders()
	p := New(transcript("raw text"), analysis.Stages{}, nil).WithExecutors(priv, cls, el)

	res, err := p.Process(context.Background(), "a.wav", Options{ElementDetection: true})
	require.NoError(t, err)

	assert.Empty(t, priv.inputs)
	assert.Empty(t, cls.inputs)
	assert.Equal(t, []string{"raw text"}, el.inputs)
	assert.Len(t, res.Outcomes, 1)
	assert.Equal(t, "raw text", res.FinalText)
}

func TestProcess_NoStages(t *testing.T) {
	res, err := New(transcript("hello"), analysis.NewStages(analysis.Deps{}), nil).Process(context.Background(), "a.wav", Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)
	assert.Equal(t, "hello", res.FinalText)
	assert.Equal(t, "hello", res.Transcript.Text)
}

func TestProcess_DegradedStagesDoNotFail(t *testing.T) {
	p := New(transcript("mail me at a@b.io"), analysis.NewStages(analysis.Deps{}), nil)

	res, err := p.Process(context.Background(), "a.wav", Options{PrivacyRemoval: true, Classification: true, ElementDetection: true})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		assert.True(t, o.Degraded, o.Stage)
		assert.True(t, o.Result.Success, o.Stage)
	}
	assert.Equal(t, "mail me at a*****", res.FinalText)
}

func TestProcess_STTFailures(t *testing.T) {
	cases := map[string]fakeSTT{
		"error":        {err: errors.New("stt down")},
		"zero success": {merged: transcription.Merged{ChunksTotal: 3}},
	}
	for name, stt := range cases {
		t.Run(name, func(t *testing.T) {
			priv, cls, el := recorders()
			p := New(stt, analysis.Stages{}, nil).WithExecutors(priv, cls, el)

			_, err := p.Process(context.Background(), "a.wav", Options{PrivacyRemoval: true})
			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, StageSTT, perr.Stage)
			assert.Empty(t, priv.inputs)
		})
	}
}

func TestProcess_CancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priv, cls, el := recorders()
	priv.onCall = cancel
	p := New(transcript("x"), analysis.Stages{}, nil).WithExecutors(priv, cls, el)

	_, err := p.Process(ctx, "a.wav", Options{PrivacyRemoval: true, Classification: true, ElementDetection: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, priv.inputs, 1)
	assert.Empty(t, cls.inputs)
}

func TestError(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Stage: StageSTT, Message: "transcription failed", Err: inner}
	assert.Equal(t, "stt: transcription failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "stt: nothing", (&Error{Stage: StageSTT, Message: "nothing"}).Error())
}

func TestProcess_PassesLanguageToTranscriber(t *testing.T) {
	var lang string
	stt := transcript("hello")
	stt.lang = &lang

	_, err := New(stt, analysis.Stages{}, nil).Process(context.Background(), "a.wav", Options{Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
}
