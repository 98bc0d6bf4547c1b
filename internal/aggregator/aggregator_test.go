package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"voice-analysis-go/internal/analysis"
	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/transcription"
	"voice-analysis-go/internal/types"
)

func outcome(stage string, degraded bool, p fallback.Payload) fallback.Outcome {
	return fallback.Outcome{Stage: stage, Degraded: degraded, Result: fallback.Result{Success: true, Payload: p}}
}

func TestSummarize(t *testing.T) {
	tasks := []types.FileTask{
		{
			Status:     types.StatusCompleted,
			Transcript: &transcription.Merged{ChunksTotal: 3, ChunksSucceeded: 2},
			StageOutcomes: []fallback.Outcome{
				outcome(analysis.StagePrivacy, false, analysis.PrivacyResult{PrivacyExist: "Y"}),
				outcome(analysis.StageClassification, true, analysis.ClassificationResult{Code: analysis.CodeUnknown}),
				outcome(analysis.StageElements, false, analysis.ElementDetectionResult{
					Elements: map[string]bool{analysis.ElementPrice: true, analysis.ElementContract: true},
				}),
			},
		},
		{
			Status:     types.StatusCompleted,
			Transcript: &transcription.Merged{ChunksTotal: 1, ChunksSucceeded: 1},
			StageOutcomes: []fallback.Outcome{
				outcome(analysis.StagePrivacy, true, analysis.PrivacyResult{PrivacyExist: "N"}),
				outcome(analysis.StageClassification, false, analysis.ClassificationResult{Code: "CLASS_COMPLAINT"}),
				{Stage: analysis.StageElements, Degraded: true, Result: fallback.Result{Error: "terminal failed"}},
			},
		},
		{Status: types.StatusFailed, Error: "stt: no usable transcript"},
		{Status: types.StatusProcessing},
		{Status: types.StatusPending},
	}

	s := Summarize(tasks)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, map[types.Status]int{
		types.StatusCompleted: 2, types.StatusFailed: 1, types.StatusProcessing: 1, types.StatusPending: 1,
	}, s.ByStatus)
	assert.Equal(t, 60.0, s.ProgressPercent)
	assert.Equal(t, map[string]int{analysis.CodeUnknown: 1, "CLASS_COMPLAINT": 1}, s.CategoryCounts)
	assert.Equal(t, 1, s.PrivacyHits)
	assert.Equal(t, map[string]int{analysis.ElementPrice: 1, analysis.ElementContract: 1}, s.ElementCounts)
	assert.Equal(t, map[string]int{
		analysis.StageClassification: 1, analysis.StagePrivacy: 1, analysis.StageElements: 1,
	}, s.DegradedStages)
	assert.Equal(t, 4, s.ChunksTotal)
	assert.Equal(t, 1, s.ChunksFailed)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.ProgressPercent)
}
