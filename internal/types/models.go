package types

import (
	"time"

	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/transcription"
)

// Status is the lifecycle state of a job or a file task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTask enforces the file task state machine. A terminal task
// only goes back to pending through an explicit re-run.
func CanTransitionTask(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusPending
	default:
		return false
	}
}

// CanTransitionJob enforces the job state machine.
func CanTransitionJob(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusProcessing
	default:
		return false
	}
}

// Options selects the optional analysis stages of a job.
type Options struct {
	IncludePrivacyRemoval bool   `json:"include_privacy_removal"`
	IncludeClassification bool   `json:"include_classification"`
	IncludeValidation     bool   `json:"include_validation"`
	Language              string `json:"language,omitempty"`
}

// AnalysisJob is one batch submission over the files of a scope.
type AnalysisJob struct {
	JobID       string     `json:"job_id"`
	Scope       string     `json:"scope"`
	FileList    []string   `json:"file_list"`
	FilesHash   string     `json:"files_hash"`
	Status      Status     `json:"status"`
	Options     Options    `json:"options"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FileTask is the per-file state of a job.
type FileTask struct {
	JobID         string                `json:"job_id"`
	Filename      string                `json:"filename"`
	Status        Status                `json:"status"`
	Transcript    *transcription.Merged `json:"transcript,omitempty"`
	StageOutcomes []fallback.Outcome    `json:"stage_outcomes,omitempty"`
	FinalText     string                `json:"final_text,omitempty"`
	Error         string                `json:"error,omitempty"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

// Outcome returns the outcome recorded for stage, if any.
func (t FileTask) Outcome(stage string) (fallback.Outcome, bool) {
	for _, o := range t.StageOutcomes {
		if o.Stage == stage {
			return o, true
		}
	}
	return fallback.Outcome{}, false
}

// TaskUpdate carries the fields written with a task status change.
type TaskUpdate struct {
	Transcript    *transcription.Merged
	StageOutcomes []fallback.Outcome
	FinalText     string
	Error         string
}
