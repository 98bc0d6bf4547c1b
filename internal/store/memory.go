package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"voice-analysis-go/internal/types"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrJobExists         = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type jobRecord struct {
	job   types.AnalysisJob
	tasks []types.FileTask
	index map[string]int
	seq   int
}

// Memory keeps jobs and file tasks in process memory. Every method is one
// atomic write or read.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*jobRecord
	seq  int
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*jobRecord), now: time.Now}
}

func (m *Memory) CreateJob(ctx context.Context, job types.AnalysisJob, tasks []types.FileTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.JobID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.JobID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = m.now()
	}
	job.FileList = slices.Clone(job.FileList)

	rec := &jobRecord{job: job, index: make(map[string]int, len(tasks))}
	for _, t := range tasks {
		if _, dup := rec.index[t.Filename]; dup {
			return fmt.Errorf("duplicate file task %q", t.Filename)
		}
		t.JobID = job.JobID
		rec.index[t.Filename] = len(rec.tasks)
		rec.tasks = append(rec.tasks, t)
	}
	m.seq++
	rec.seq = m.seq
	m.jobs[job.JobID] = rec
	return nil
}

func (m *Memory) GetJob(ctx context.Context, jobID string) (types.AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return types.AnalysisJob{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.jobs[jobID]
	if !ok {
		return types.AnalysisJob{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return copyJob(rec.job), nil
}

// ListJobs returns every job, oldest first.
func (m *Memory) ListJobs(ctx context.Context) ([]types.AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*jobRecord, 0, len(m.jobs))
	for _, r := range m.jobs {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, func(a, b *jobRecord) int { return a.seq - b.seq })

	out := make([]types.AnalysisJob, 0, len(recs))
	for _, r := range recs {
		out = append(out, copyJob(r.job))
	}
	return out, nil
}

func (m *Memory) ListFileTasks(ctx context.Context, jobID string) ([]types.FileTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	out := make([]types.FileTask, 0, len(rec.tasks))
	for _, t := range rec.tasks {
		out = append(out, copyTask(t))
	}
	return out, nil
}

func (m *Memory) UpdateFileTaskStatus(ctx context.Context, jobID, filename string, status types.Status, upd types.TaskUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	i, ok := rec.index[filename]
	if !ok {
		return fmt.Errorf("file %s in job %s: %w", filename, jobID, ErrNotFound)
	}
	t := rec.tasks[i]
	if !types.CanTransitionTask(t.Status, status) {
		return fmt.Errorf("%w: file %s %s -> %s", ErrInvalidTransition, filename, t.Status, status)
	}

	now := m.now()
	switch status {
	case types.StatusPending:
		t = types.FileTask{JobID: t.JobID, Filename: t.Filename}
	case types.StatusProcessing:
		t.StartedAt = &now
		t.CompletedAt = nil
		t.Error = ""
	case types.StatusCompleted, types.StatusFailed:
		t.Transcript = nil
		if upd.Transcript != nil {
			tr := *upd.Transcript
			t.Transcript = &tr
		}
		t.StageOutcomes = slices.Clone(upd.StageOutcomes)
		t.FinalText = upd.FinalText
		t.Error = upd.Error
		t.CompletedAt = &now
	}
	t.Status = status
	rec.tasks[i] = t
	return nil
}

func (m *Memory) UpdateJobStatus(ctx context.Context, jobID string, status types.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if rec.job.Status == status {
		return nil
	}
	if !types.CanTransitionJob(rec.job.Status, status) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, jobID, rec.job.Status, status)
	}

	rec.job.Status = status
	if status.Terminal() {
		now := m.now()
		rec.job.CompletedAt = &now
	} else {
		rec.job.CompletedAt = nil
	}
	return nil
}

// FindCompletedJobByHash returns the most recent completed job of scope whose
// file set hashes to hash.
func (m *Memory) FindCompletedJobByHash(ctx context.Context, scope, hash string) (types.AnalysisJob, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.AnalysisJob{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *jobRecord
	for _, r := range m.jobs {
		if r.job.Scope != scope || r.job.FilesHash != hash || r.job.Status != types.StatusCompleted {
			continue
		}
		if best == nil || r.seq > best.seq {
			best = r
		}
	}
	if best == nil {
		return types.AnalysisJob{}, false, nil
	}
	return copyJob(best.job), true, nil
}

func copyJob(j types.AnalysisJob) types.AnalysisJob {
	j.FileList = slices.Clone(j.FileList)
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		j.CompletedAt = &at
	}
	return j
}

func copyTask(t types.FileTask) types.FileTask {
	if t.Transcript != nil {
		tr := *t.Transcript
		t.Transcript = &tr
	}
	t.StageOutcomes = slices.Clone(t.StageOutcomes)
	for i := range t.StageOutcomes {
		t.StageOutcomes[i].AttemptedProviders = slices.Clone(t.StageOutcomes[i].AttemptedProviders)
	}
	if t.StartedAt != nil {
		at := *t.StartedAt
		t.StartedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	return t
}
