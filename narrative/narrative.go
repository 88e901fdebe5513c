// Package narrative drafts the free-text monthly summary with a chat
// model. When the model is unavailable the caller gets a template-built
// draft to edit by hand.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/JA50N14/course_reports/config"
	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/model"
)

const source = "narrative"

// Completer is the part of the OpenAI client the writer uses.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Writer struct {
	client  Completer
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a writer for any OpenAI-compatible endpoint. Without an API
// key every call fails over to Fallback.
func New(cfg *config.ApiConfig) *Writer {
	var client Completer
	if cfg.LLMAPIKey != "" {
		oc := openai.DefaultConfig(cfg.LLMAPIKey)
		if cfg.LLMBaseURL != "" {
			oc.BaseURL = cfg.LLMBaseURL
		}
		client = openai.NewClientWithConfig(oc)
	}
	return NewWithClient(client, cfg.LLMModel, cfg.LLMTimeout, cfg.Logger)
}

func NewWithClient(client Completer, model string, timeout time.Duration, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{client: client, model: model, timeout: timeout, logger: logger}
}

const systemPrompt = "Eres coordinador/a de formación profesional para el empleo. Redactas en español, " +
	"en tono formal y en un único párrafo de 80 a 150 palabras, el resumen mensual de un curso para " +
	"el informe de cierre. No inventes datos que no aparezcan en el mensaje del usuario."

// Prompt renders the course facts the model is allowed to use.
func Prompt(course model.Course, students []model.Student) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Curso: %s %s\n", course.Code, course.Name)
	if course.Center != "" {
		fmt.Fprintf(&b, "Centro: %s\n", course.Center)
	}
	fmt.Fprintf(&b, "Mes: %s %d\n", course.MonthName(), course.Year)
	if course.TeachingDays > 0 {
		fmt.Fprintf(&b, "Días lectivos en el mes: %d\n", course.TeachingDays)
	}
	s := summarize(students)
	fmt.Fprintf(&b, "Alumnos: %d\nFaltas totales: %d (justificadas: %d)\nAlumnos con ayudas: %d\n",
		s.students, s.absences, s.justified, s.aided)
	b.WriteString("Detalle por alumno:\n")
	for _, st := range students {
		fmt.Fprintf(&b, "- %s:", st.DisplayName())
		if st.Absences != nil {
			fmt.Fprintf(&b, " %d faltas", *st.Absences)
		}
		if st.Justified > 0 {
			fmt.Fprintf(&b, ", %d justificadas", st.Justified)
		}
		if st.Observation != "" {
			fmt.Fprintf(&b, "; %s", st.Observation)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

type totals struct {
	students, absences, justified, aided int
}

func summarize(students []model.Student) totals {
	t := totals{students: len(students)}
	for _, s := range students {
		if s.Absences != nil {
			t.absences += *s.Absences
		}
		t.justified += s.Justified
		if s.Subsidies.Any() {
			t.aided++
		}
	}
	return t
}

// Summary asks the model for the monthly paragraph. Errors are
// fault.External; Fallback gives the text to offer instead.
func (w *Writer) Summary(ctx context.Context, course model.Course, students []model.Student) (string, error) {
	if w.client == nil {
		return "", fault.Newf(fault.External, source, "no language model configured")
	}

	req := openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(course, students)},
		},
		Temperature: 0.3,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := w.complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		w.logger.Warn("language model call failed, retrying", "attempt", attempt+1, "err", err)
	}
	w.logger.Error("language model unavailable", "model", w.model, "err", lastErr)
	return "", fault.New(fault.External, source, lastErr)
}

func (w *Writer) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	resp, err := w.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("model returned an empty message")
	}
	return text, nil
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Fallback builds the summary from the figures alone.
func Fallback(course model.Course, students []model.Student) string {
	t := summarize(students)
	var b strings.Builder
	fmt.Fprintf(&b, "Durante el mes de %s de %d, el curso", strings.ToLower(course.MonthName()), course.Year)
	if label := strings.TrimSpace(course.Code + " " + course.Name); label != "" {
		b.WriteString(" " + label)
	}
	if course.Center != "" {
		fmt.Fprintf(&b, ", impartido en %s,", course.Center)
	}
	fmt.Fprintf(&b, " contó con %s.", plural(t.students, "alumno", "alumnos"))
	if course.TeachingDays > 0 {
		fmt.Fprintf(&b, " Se impartieron %d días lectivos.", course.TeachingDays)
	}
	switch {
	case t.absences == 0:
		b.WriteString(" No se registraron faltas de asistencia.")
	case t.justified > 0:
		fmt.Fprintf(&b, " Se registraron %d faltas de asistencia, de las cuales %d fueron justificadas.", t.absences, t.justified)
	default:
		fmt.Fprintf(&b, " Se registraron %d faltas de asistencia.", t.absences)
	}
	if t.aided > 0 {
		fmt.Fprintf(&b, " %s.", plural(t.aided, "alumno percibe ayudas", "alumnos perciben ayudas"))
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
