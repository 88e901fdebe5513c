package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/JA50N14/course_reports/config"
	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/pipeline"
	"github.com/JA50N14/course_reports/reader"
)

// Multipart fields holding uploads. Every field may repeat.
const (
	fieldRoster         = "roster"
	fieldSubsidies      = "subsidies"
	fieldAttendance     = "attendance"
	fieldJustifications = "justifications"
	fieldCourse         = "course"
	fieldGrades         = "grades"
)

const multipartMemory = 32 << 20

type server struct {
	cfg      *config.ApiConfig
	pipeline *pipeline.Pipeline
	validate *validator.Validate
}

func newServer(cfg *config.ApiConfig, p *pipeline.Pipeline) *server {
	return &server{cfg: cfg, pipeline: p, validate: validator.New()}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	r.Post("/monthly-report", s.artifact("monthly_report", (*pipeline.Pipeline).MonthlyReport))
	r.Post("/certificates", s.artifact("certificates", (*pipeline.Pipeline).Certificates))
	r.Post("/transcript", s.artifact("transcript", (*pipeline.Pipeline).Transcript))
	r.Post("/extract", s.handleExtract)
	r.Post("/narrative", s.handleNarrative)
	return r
}

type runRequest struct {
	Month int `validate:"omitempty,min=1,max=12"`
	Year  int `validate:"omitempty,min=1990,max=2100"`
}

// newRun reads the multipart upload into a run and its inputs.
func (s *server) newRun(w http.ResponseWriter, r *http.Request) (*pipeline.Run, pipeline.Inputs, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, pipeline.Inputs{}, fmt.Errorf("invalid upload: %w", err)
	}

	var req runRequest
	for key, dst := range map[string]*int{"month": &req.Month, "year": &req.Year} {
		v := r.FormValue(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, pipeline.Inputs{}, fmt.Errorf("%s is not a number: %q", key, v)
		}
		*dst = n
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, pipeline.Inputs{}, fmt.Errorf("invalid request: %w", err)
	}

	var in pipeline.Inputs
	for field, dst := range map[string]*[]reader.File{
		fieldRoster:         &in.Roster,
		fieldSubsidies:      &in.Subsidies,
		fieldAttendance:     &in.Attendance,
		fieldJustifications: &in.Justifications,
		fieldCourse:         &in.Course,
		fieldGrades:         &in.Grades,
	} {
		files, err := formFiles(r, field)
		if err != nil {
			return nil, pipeline.Inputs{}, err
		}
		*dst = files
	}

	run := pipeline.NewRun(r.Context(), s.cfg, req.Year, req.Month)
	run.Logger = run.Logger.With("request_id", middleware.GetReqID(r.Context()))
	return run, in, nil
}

func formFiles(r *http.Request, field string) ([]reader.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var files []reader.File
	for _, fh := range r.MultipartForm.File[field] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		files = append(files, reader.File{Name: fh.Filename, Data: data})
	}
	return files, nil
}

type artifactFunc func(*pipeline.Pipeline, *pipeline.Run, pipeline.Inputs) (*pipeline.Artifact, error)

func (s *server) artifact(name string, fn artifactFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, in, err := s.newRun(w, r)
		if err != nil {
			s.reject(w, name, err)
			return
		}

		a, err := fn(s.pipeline, run, in)
		if err != nil {
			s.fail(w, run, name, err)
			return
		}

		run.Logger.Info("document generated", "flow", name, "file", a.Name, "bytes", len(a.Data), "warnings", len(run.Warnings))
		setRunHeaders(w, run)
		w.Header().Set("Content-Type", a.ContentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
		w.WriteHeader(http.StatusOK)
		w.Write(a.Data)
	}
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	run, in, err := s.newRun(w, r)
	if err != nil {
		s.reject(w, "extract", err)
		return
	}
	report, err := s.pipeline.Extract(run, in)
	if err != nil {
		s.fail(w, run, "extract", err)
		return
	}
	setRunHeaders(w, run)
	respondJSON(w, http.StatusOK, report)
}

func (s *server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	run, in, err := s.newRun(w, r)
	if err != nil {
		s.reject(w, "narrative", err)
		return
	}
	n, err := s.pipeline.Narrative(run, in)
	if err != nil {
		s.fail(w, run, "narrative", err)
		return
	}
	setRunHeaders(w, run)
	respondJSON(w, http.StatusOK, n)
}

func (s *server) reject(w http.ResponseWriter, flow string, err error) {
	status := http.StatusBadRequest
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}
	s.cfg.Logger.Warn("rejected request", "flow", flow, "status", status, "error", err)
	respondError(w, status, err, nil)
}

// fail maps the error kind to a status. No partial artifact is ever sent.
func (s *server) fail(w http.ResponseWriter, run *pipeline.Run, flow string, err error) {
	status := http.StatusInternalServerError
	switch {
	case fault.Is(err, fault.Miss):
		status = http.StatusUnprocessableEntity
	case fault.Is(err, fault.External):
		status = http.StatusBadGateway
	}
	run.Logger.Error("generation failed", "flow", flow, "status", status, "error", err)
	setRunHeaders(w, run)
	respondError(w, status, err, run)
}

func setRunHeaders(w http.ResponseWriter, run *pipeline.Run) {
	w.Header().Set("X-Run-Id", run.ID)
	w.Header().Set("X-Run-Warnings", strconv.Itoa(len(run.Warnings)))
}

type errorResponse struct {
	Error    string          `json:"error"`
	Warnings []fault.Warning `json:"warnings,omitempty"`
}

func respondError(w http.ResponseWriter, status int, err error, run *pipeline.Run) {
	body := errorResponse{Error: err.Error()}
	if run != nil {
		body.Warnings = run.Warnings
	}
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
