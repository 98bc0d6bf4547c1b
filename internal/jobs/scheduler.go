package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"voice-analysis-go/internal/logger"
	"voice-analysis-go/internal/pipeline"
	"voice-analysis-go/internal/types"
)

const DefaultMaxConcurrent = 3

// Submit outcomes.
const (
	StatusStarted   = "started"
	StatusUnchanged = "unchanged"
)

var (
	ErrNoFiles     = errors.New("no files to analyze")
	ErrUnknownFile = errors.New("file is not part of the job")
	ErrInFlight    = errors.New("file is already being processed")
	ErrInvalidName = errors.New("invalid file or scope name")
)

// Store persists jobs and their file tasks. Each method is one atomic write
// or read.
type Store interface {
	CreateJob(ctx context.Context, job types.AnalysisJob, tasks []types.FileTask) error
	GetJob(ctx context.Context, jobID string) (types.AnalysisJob, error)
	ListFileTasks(ctx context.Context, jobID string) ([]types.FileTask, error)
	UpdateFileTaskStatus(ctx context.Context, jobID, filename string, status types.Status, upd types.TaskUpdate) error
	UpdateJobStatus(ctx context.Context, jobID string, status types.Status) error
	FindCompletedJobByHash(ctx context.Context, scope, hash string) (types.AnalysisJob, bool, error)
}

// Analyzer runs the pipeline for one file.
type Analyzer interface {
	Process(ctx context.Context, audioPath string, opts pipeline.Options) (pipeline.Result, error)
}

type Config struct {
	MaxConcurrent int
	// BaseDir holds one directory per scope with the audio files.
	BaseDir string
}

type SubmitRequest struct {
	JobID           string        `json:"job_id,omitempty"`
	Scope           string        `json:"scope"`
	Files           []string      `json:"files"`
	Options         types.Options `json:"options"`
	ForceReanalysis bool          `json:"force_reanalysis"`
}

type SubmitResult struct {
	Job    types.AnalysisJob `json:"job"`
	Status string            `json:"status"`
}

// Scheduler runs the files of a job through the analyzer with bounded
// parallelism and records every status change in the store.
type Scheduler struct {
	store    Store
	analyzer Analyzer
	cfg      Config
	reg      *registry
	log      *logrus.Entry
}

func New(store Store, analyzer Analyzer, cfg Config, log *logrus.Entry) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Scheduler{
		store:    store,
		analyzer: analyzer,
		cfg:      cfg,
		reg:      newRegistry(),
		log:      logger.OrDiscard(log, "scheduler"),
	}
}

// Submit creates a job for the request, or returns the latest completed job
// of the scope with the same file set when re-analysis is not forced.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	files := UniqueFiles(req.Files)
	if len(files) == 0 {
		return SubmitResult{}, ErrNoFiles
	}
	if req.Scope != "" {
		if err := checkName("scope", req.Scope); err != nil {
			return SubmitResult{}, err
		}
	}
	for _, f := range files {
		if err := checkName("file", f); err != nil {
			return SubmitResult{}, err
		}
	}
	hash := FilesHash(files)
	log := s.log.WithFields(logrus.Fields{"scope": req.Scope, "files": len(files)})

	if !req.ForceReanalysis {
		prev, found, err := s.store.FindCompletedJobByHash(ctx, req.Scope, hash)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("lookup previous job: %w", err)
		}
		if found {
			log.WithField("job_id", prev.JobID).Info("file set unchanged, reusing completed job")
			return SubmitResult{Job: prev, Status: StatusUnchanged}, nil
		}
	}

	job := types.AnalysisJob{
		JobID:     req.JobID,
		Scope:     req.Scope,
		FileList:  files,
		FilesHash: hash,
		Status:    types.StatusPending,
		Options:   req.Options,
		CreatedAt: time.Now(),
	}
	if job.JobID == "" {
		job.JobID = newJobID()
	}
	tasks := make([]types.FileTask, 0, len(files))
	for _, f := range files {
		tasks = append(tasks, types.FileTask{JobID: job.JobID, Filename: f, Status: types.StatusPending})
	}
	if err := s.store.CreateJob(ctx, job, tasks); err != nil {
		return SubmitResult{}, fmt.Errorf("create job: %w", err)
	}

	log.WithField("job_id", job.JobID).Info("job created")
	return SubmitResult{Job: job, Status: StatusStarted}, nil
}

// Run processes every pending file task of jobID. Store errors of individual
// files do not stop the others and are returned joined. A cancelled run marks
// the job failed and leaves unstarted tasks pending.
func (s *Scheduler) Run(ctx context.Context, jobID string) error {
	return s.run(ctx, jobID, nil)
}

// Rerun resets the named files of jobID to pending and processes only them.
func (s *Scheduler) Rerun(ctx context.Context, jobID string, files []string) error {
	if err := s.Reset(ctx, jobID, files); err != nil {
		return err
	}
	return s.RunFiles(ctx, jobID, files)
}

// Reset puts the named files of jobID back to pending without running them.
// Unknown files and files being processed are rejected before anything changes.
func (s *Scheduler) Reset(ctx context.Context, jobID string, files []string) error {
	files = UniqueFiles(files)
	if len(files) == 0 {
		return ErrNoFiles
	}
	tasks, err := s.store.ListFileTasks(ctx, jobID)
	if err != nil {
		return err
	}
	byName := make(map[string]types.FileTask, len(tasks))
	for _, t := range tasks {
		byName[t.Filename] = t
	}
	for _, f := range files {
		t, ok := byName[f]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFile, f)
		}
		if s.reg.busy(jobID, f) || t.Status == types.StatusProcessing {
			return fmt.Errorf("%w: %s", ErrInFlight, f)
		}
	}

	for _, f := range files {
		if byName[f].Status == types.StatusPending {
			continue
		}
		if err := s.store.UpdateFileTaskStatus(ctx, jobID, f, types.StatusPending, types.TaskUpdate{}); err != nil {
			return fmt.Errorf("reset %s: %w", f, err)
		}
	}
	// the job is no longer a finished result for its file set
	if err := s.store.UpdateJobStatus(ctx, jobID, types.StatusProcessing); err != nil {
		return fmt.Errorf("reopen job: %w", err)
	}
	s.log.WithFields(logrus.Fields{"job_id": jobID, "files": len(files)}).Info("files reset for re-run")
	return nil
}

// RunFiles processes the pending tasks of jobID among files.
func (s *Scheduler) RunFiles(ctx context.Context, jobID string, files []string) error {
	scope := make(map[string]bool, len(files))
	for _, f := range files {
		scope[f] = true
	}
	return s.run(ctx, jobID, scope)
}

// Cancel stops the in-flight runs of jobID. It reports whether any was running.
func (s *Scheduler) Cancel(jobID string) bool {
	ok := s.reg.cancel(jobID)
	if ok {
		s.log.WithField("job_id", jobID).Warn("job cancelled")
	}
	return ok
}

// InFlight returns how many files of jobID are being processed right now.
func (s *Scheduler) InFlight(jobID string) int {
	return s.reg.count(jobID)
}

func (s *Scheduler) run(parent context.Context, jobID string, scope map[string]bool) error {
	job, err := s.store.GetJob(parent, jobID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer s.reg.track(jobID, cancel)()

	log := s.log.WithField("job_id", jobID)

	if err := s.store.UpdateJobStatus(ctx, jobID, types.StatusProcessing); err != nil {
		return fmt.Errorf("start job: %w", err)
	}

	tasks, err := s.store.ListFileTasks(ctx, jobID)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		PrivacyRemoval:   job.Options.IncludePrivacyRemoval,
		Classification:   job.Options.IncludeClassification,
		ElementDetection: job.Options.IncludeValidation,
		Language:         job.Options.Language,
	}

	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrent))
	var g errgroup.Group
	errs := make(chan error, len(tasks))

	started := 0
	for _, t := range tasks {
		if t.Status != types.StatusPending || (scope != nil && !scope[t.Filename]) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if !s.reg.claim(jobID, t.Filename) {
			sem.Release(1)
			continue
		}
		started++
		filename := t.Filename
		g.Go(func() error {
			defer sem.Release(1)
			defer s.reg.release(jobID, filename)
			if err := s.runTask(ctx, job, filename, opts); err != nil {
				errs <- err
			}
			return nil
		})
	}
	_ = g.Wait()
	close(errs)

	var storeErrs []error
	for err := range errs {
		storeErrs = append(storeErrs, err)
	}
	storeErr := errors.Join(storeErrs...)

	// final bookkeeping must land even when the run was cancelled
	bg := context.WithoutCancel(ctx)

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.WithError(ctxErr).Warn("run cancelled, marking job failed")
		updErr := s.store.UpdateJobStatus(bg, jobID, types.StatusFailed)
		return errors.Join(ctxErr, storeErr, updErr)
	}

	tasks, err = s.store.ListFileTasks(bg, jobID)
	if err != nil {
		return errors.Join(storeErr, err)
	}
	done, failed := 0, 0
	for _, t := range tasks {
		switch t.Status {
		case types.StatusCompleted:
			done++
		case types.StatusFailed:
			failed++
		}
	}
	log = log.WithFields(logrus.Fields{"started": started, "completed": done, "failed": failed, "total": len(tasks)})
	if done+failed == len(tasks) {
		if err := s.store.UpdateJobStatus(bg, jobID, types.StatusCompleted); err != nil {
			storeErr = errors.Join(storeErr, err)
		}
		log.Info("job completed")
	} else {
		log.Info("run finished, job still has open tasks")
	}
	return storeErr
}

// runTask returns only store errors; analysis failures are recorded on the task.
func (s *Scheduler) runTask(ctx context.Context, job types.AnalysisJob, filename string, opts pipeline.Options) error {
	log := s.log.WithFields(logrus.Fields{"job_id": job.JobID, "filename": filename})

	if err := s.store.UpdateFileTaskStatus(ctx, job.JobID, filename, types.StatusProcessing, types.TaskUpdate{}); err != nil {
		log.WithError(err).Error("could not mark task processing")
		return fmt.Errorf("%s: %w", filename, err)
	}

	path := filepath.Join(s.cfg.BaseDir, job.Scope, filename)
	res, err := s.analyzer.Process(ctx, path, opts)

	bg := context.WithoutCancel(ctx)
	if err != nil {
		log.WithError(err).Warn("file failed")
		if uerr := s.store.UpdateFileTaskStatus(bg, job.JobID, filename, types.StatusFailed, types.TaskUpdate{Error: err.Error()}); uerr != nil {
			return fmt.Errorf("%s: %w", filename, uerr)
		}
		return nil
	}

	upd := types.TaskUpdate{
		Transcript:    &res.Transcript,
		StageOutcomes: res.Outcomes,
		FinalText:     res.FinalText,
	}
	if uerr := s.store.UpdateFileTaskStatus(bg, job.JobID, filename, types.StatusCompleted, upd); uerr != nil {
		log.WithError(uerr).Error("could not record result")
		return fmt.Errorf("%s: %w", filename, uerr)
	}
	log.WithField("duration_ms", res.DurationMs).Info("file completed")
	return nil
}
