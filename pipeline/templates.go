package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JA50N14/course_reports/graph"
)

// Template file names looked up in the template store.
const (
	MonthlyReportTemplate = "informe_mensual.docx"
	CertificateTemplate   = "certificado.docx"
	TranscriptTemplate    = "acta_calificaciones.xlsx"
)

// TemplateStore hands out template archives by file name. A missing
// template is reported with an error wrapping fs.ErrNotExist.
type TemplateStore interface {
	Template(ctx context.Context, name string) ([]byte, error)
}

// Archiver keeps a copy of every generated document.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte, fields map[string]any) (graph.Item, error)
}

// DirStore reads templates from a local directory.
type DirStore string

func (d DirStore) Template(_ context.Context, name string) ([]byte, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid template name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(string(d), name))
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return data, nil
}

// NewTemplateStore picks the template source: the Graph folder when one is
// configured, the local directory otherwise.
func NewTemplateStore(dir string, client *graph.Client, folder string) TemplateStore {
	if client != nil && folder != "" {
		return client
	}
	return DirStore(dir)
}
