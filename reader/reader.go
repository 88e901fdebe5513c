// Package reader turns uploaded files into text or cell grids: native text
// for PDFs and Word files, cells for spreadsheets, OCR for scans.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/JA50N14/course_reports/internal/fault"
)

type Format string

const (
	FormatPDF     Format = "pdf"
	FormatImage   Format = "image"
	FormatDOCX    Format = "docx"
	FormatXLSX    Format = "xlsx"
	FormatXLS     Format = "xls"
	FormatText    Format = "text"
	FormatUnknown Format = "unknown"
)

// PageBreak separates pages in Document.Text.
const PageBreak = "\n\f\n"

type Sheet struct {
	Name string
	Rows [][]string
}

type Document struct {
	Name   string
	Format Format
	Text   string
	Sheets []Sheet
	OCR    bool
	Pages  int
}

// Grid returns the rows of the first non-empty sheet.
func (d Document) Grid() [][]string {
	for _, s := range d.Sheets {
		if len(s.Rows) > 0 {
			return s.Rows
		}
	}
	return nil
}

type Config struct {
	Pdftotext string
	Pdftoppm  string
	Tesseract string
	Lang      string
	DPI       int
	PSM       int
	// MinNativeChars is the amount of embedded text below which a PDF is
	// treated as a scan.
	MinNativeChars int
}

func (c *Config) defaults() {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Lang == "" {
		c.Lang = "spa"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.PSM <= 0 {
		c.PSM = 6
	}
	if c.MinNativeChars <= 0 {
		c.MinNativeChars = 40
	}
}

type Reader struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Reader {
	return NewWithRunner(cfg, execRunner{}, logger)
}

func NewWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Reader {
	cfg.defaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{cfg: cfg, runner: runner, logger: logger}
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".gif": true,
}

// Detect picks a format from the file extension, falling back to the
// leading bytes when the extension says nothing.
func Detect(name string, head []byte) Format {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".pdf":
		return FormatPDF
	case ext == ".docx":
		return FormatDOCX
	case ext == ".xlsx" || ext == ".xlsm":
		return FormatXLSX
	case ext == ".xls":
		return FormatXLS
	case ext == ".txt":
		return FormatText
	case imageExts[ext]:
		return FormatImage
	}

	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return FormatPDF
	case bytes.HasPrefix(head, []byte("\x89PNG")), bytes.HasPrefix(head, []byte("\xff\xd8\xff")),
		bytes.HasPrefix(head, []byte("II*\x00")), bytes.HasPrefix(head, []byte("MM\x00*")):
		return FormatImage
	case bytes.HasPrefix(head, []byte("\xd0\xcf\x11\xe0")):
		return FormatXLS
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		switch {
		case bytes.Contains(head, []byte("word/")):
			return FormatDOCX
		case bytes.Contains(head, []byte("xl/")):
			return FormatXLSX
		}
	}
	return FormatUnknown
}

// Read decodes one file. A failure is a fault.Unreadable, or fault.External
// when an OCR tool was needed and failed.
func (r *Reader) Read(ctx context.Context, name string, src io.Reader) (Document, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return Document{}, fault.New(fault.Unreadable, name, err)
	}
	if len(data) == 0 {
		return Document{}, fault.Newf(fault.Unreadable, name, "empty file")
	}

	doc := Document{Name: name, Format: Detect(name, data[:min(len(data), 512)]), Pages: 1}
	switch doc.Format {
	case FormatPDF:
		err = r.readPDF(ctx, data, &doc)
	case FormatImage:
		err = r.readImage(ctx, data, &doc)
	case FormatDOCX:
		err = readDOCX(data, &doc)
	case FormatXLSX:
		err = readXLSX(data, &doc)
	case FormatXLS:
		err = readXLS(data, &doc)
	case FormatText:
		doc.Text = string(data)
	default:
		err = fmt.Errorf("unsupported file type")
	}
	if err != nil {
		if fault.Is(err, fault.External) {
			return Document{}, err
		}
		return Document{}, fault.New(fault.Unreadable, name, err)
	}

	r.logger.Info("document read", "name", name, "format", doc.Format, "pages", doc.Pages, "ocr", doc.OCR, "chars", len(doc.Text))
	return doc, nil
}

// File is an upload waiting to be read.
type File struct {
	Name string
	Data []byte
}

// ReadAll reads files in order. Files that fail are skipped and reported
// as warnings; the rest of the batch still goes through.
func (r *Reader) ReadAll(ctx context.Context, files []File) ([]Document, []fault.Warning) {
	var (
		docs     []Document
		warnings []fault.Warning
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, fault.AsWarning(fault.New(fault.Unreadable, f.Name, err)))
			continue
		}
		doc, err := r.Read(ctx, f.Name, bytes.NewReader(f.Data))
		if err != nil {
			r.logger.Warn("skipping unreadable file", "name", f.Name, "err", err)
			warnings = append(warnings, fault.AsWarning(err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, warnings
}
