package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"voice-analysis-go/internal/bootstrap"
	"voice-analysis-go/internal/jobs"
	"voice-analysis-go/internal/logger"
	"voice-analysis-go/internal/report"
	"voice-analysis-go/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type server struct {
	// runs outlive the request that started them
	base context.Context
	app  *bootstrap.App
	log  *logger.Logger
}

func newServer(base context.Context, app *bootstrap.App, log *logger.Logger) *server {
	return &server{base: base, app: app, log: log}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /jobs", s.listJobs)
	mux.HandleFunc("POST /jobs", s.submit)
	mux.HandleFunc("GET /jobs/{id}", s.getJob)
	mux.HandleFunc("POST /jobs/{id}/rerun", s.rerun)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.cancel)
	mux.HandleFunc("GET /jobs/{id}/export", s.export)
	return mux
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	s.log.WithRequest(r).Debug("health check")
	fmt.Fprint(w, "ok")
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "list_jobs")
	list, err := s.app.Store.ListJobs(r.Context())
	if err != nil {
		s.fail(w, reqLog, err)
		return
	}
	writeJSON(w, reqLog, http.StatusOK, list)
}

func (s *server) submit(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "submit")

	var req jobs.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reqLog.WithError(err).Warn("bad request body")
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	res, err := s.app.Scheduler.Submit(r.Context(), req)
	if err != nil {
		s.fail(w, reqLog, err)
		return
	}

	reqLog = reqLog.WithFields(logrus.Fields{"job_id": res.Job.JobID, "status": res.Status})
	if res.Status == jobs.StatusStarted {
		go s.runJob(res.Job.JobID, func(ctx context.Context) error {
			return s.app.Scheduler.Run(ctx, res.Job.JobID)
		})
		reqLog.Info("job accepted")
		writeJSON(w, reqLog, http.StatusAccepted, res)
		return
	}
	reqLog.Info("job unchanged")
	writeJSON(w, reqLog, http.StatusOK, res)
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reqLog := s.log.WithRequest(r).WithFields(logrus.Fields{"handler": "get_job", "job_id": id})
	rep, err := s.app.Report(r.Context(), id)
	if err != nil {
		s.fail(w, reqLog, err)
		return
	}
	writeJSON(w, reqLog, http.StatusOK, rep)
}

type rerunRequest struct {
	Files []string `json:"files"`
}

func (s *server) rerun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reqLog := s.log.WithRequest(r).WithFields(logrus.Fields{"handler": "rerun", "job_id": id})

	var req rerunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reqLog.WithError(err).Warn("bad request body")
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := s.app.Scheduler.Reset(r.Context(), id, req.Files); err != nil {
		s.fail(w, reqLog, err)
		return
	}
	go s.runJob(id, func(ctx context.Context) error {
		return s.app.Scheduler.RunFiles(ctx, id, req.Files)
	})
	reqLog.WithField("files", len(req.Files)).Info("re-run accepted")
	writeJSON(w, reqLog, http.StatusAccepted, map[string]any{"job_id": id, "files": req.Files})
}

func (s *server) cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reqLog := s.log.WithRequest(r).WithFields(logrus.Fields{"handler": "cancel", "job_id": id})
	if _, err := s.app.Store.GetJob(r.Context(), id); err != nil {
		s.fail(w, reqLog, err)
		return
	}
	cancelled := s.app.Scheduler.Cancel(id)
	writeJSON(w, reqLog, http.StatusOK, map[string]any{"job_id": id, "cancelled": cancelled})
}

func (s *server) export(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reqLog := s.log.WithRequest(r).WithFields(logrus.Fields{"handler": "export", "job_id": id})
	rep, err := s.app.Report(r.Context(), id)
	if err != nil {
		s.fail(w, reqLog, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, id))
	if err := report.Write(w, rep.Job, rep.Tasks, rep.Summary); err != nil {
		reqLog.WithError(err).Error("failed to write workbook")
	}
}

func (s *server) runJob(jobID string, run func(context.Context) error) {
	log := s.log.Component("api").WithField("job_id", jobID)
	if err := run(s.base); err != nil {
		log.WithError(err).Error("job run finished with errors")
	}
}

func (s *server) fail(w http.ResponseWriter, reqLog *logrus.Entry, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrUnknownFile):
		code = http.StatusNotFound
	case errors.Is(err, jobs.ErrNoFiles), errors.Is(err, jobs.ErrInvalidName):
		code = http.StatusBadRequest
	case errors.Is(err, jobs.ErrInFlight), errors.Is(err, store.ErrJobExists):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		reqLog.WithError(err).Error("request failed")
	} else {
		reqLog.WithError(err).Warn("request rejected")
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, reqLog *logrus.Entry, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		reqLog.WithError(err).Error("failed to write response")
	}
}
