package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JA50N14/course_reports/config"
	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/reader"
)

// Run carries everything one request needs through the pipeline. Nothing
// in it outlives the request.
type Run struct {
	ID       string
	Ctx      context.Context
	Cfg      *config.ApiConfig
	Month    int
	Year     int
	Warnings []fault.Warning
	Logger   *slog.Logger
}

func NewRun(ctx context.Context, cfg *config.ApiConfig, year, month int) *Run {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Run{
		ID:     id,
		Ctx:    ctx,
		Cfg:    cfg,
		Month:  month,
		Year:   year,
		Logger: logger.With("run", id),
	}
}

// Warn records a non-fatal problem.
func (r *Run) Warn(err error) {
	w := fault.AsWarning(err)
	r.Logger.Warn("run warning", "kind", w.Kind, "source", w.Source, "message", w.Message)
	r.Warnings = append(r.Warnings, w)
}

func (r *Run) addWarnings(ws []fault.Warning) {
	r.Warnings = append(r.Warnings, ws...)
}

// Inputs are the uploads of one request grouped by document category.
// Every group may hold several files.
type Inputs struct {
	Roster         []reader.File
	Subsidies      []reader.File
	Attendance     []reader.File
	Justifications []reader.File
	Course         []reader.File
	Grades         []reader.File
}

// Artifact is a generated file ready to be sent back.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

const (
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeZIP  = "application/zip"
)
