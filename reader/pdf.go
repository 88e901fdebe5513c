package reader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/JA50N14/course_reports/internal/fault"
)

type pdfInfo struct {
	pages     int
	hasImages bool
}

// inspectPDF reads the PDF structure for the page count and whether any
// page carries image XObjects.
func inspectPDF(data []byte) (info pdfInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return pdfInfo{}, fmt.Errorf("pdfcpu read: %w", err)
	}
	return pdfInfo{pages: ctx.PageCount, hasImages: detectImageStreams(ctx)}, nil
}

func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// nativeText pulls the embedded text layer. The parser panics on some
// malformed files, which is reported as an error.
func nativeText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("could not open PDF: %w", err)
	}
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("unable to get text from page %d: %w", i, err)
		}
		pages = append(pages, t)
	}
	return strings.Join(pages, PageBreak), nil
}

func enough(text string, min int) bool {
	return len([]rune(strings.TrimSpace(text))) >= min
}

func (r *Reader) readPDF(ctx context.Context, data []byte, doc *Document) error {
	info, err := inspectPDF(data)
	if err != nil {
		r.logger.Debug("pdf structure unreadable", "name", doc.Name, "err", err)
		info.hasImages = true
	} else {
		doc.Pages = info.pages
	}

	text, err := nativeText(data)
	if err != nil {
		r.logger.Debug("native pdf text failed", "name", doc.Name, "err", err)
	}
	if enough(text, r.cfg.MinNativeChars) {
		doc.Text = text
		return nil
	}

	dir, err := os.MkdirTemp("", "course-reports-pdf-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}

	if alt, err := r.pdfToText(ctx, path); err != nil {
		r.logger.Debug("pdftotext failed", "name", doc.Name, "err", err)
	} else if enough(alt, r.cfg.MinNativeChars) {
		doc.Text = alt
		return nil
	} else if len(strings.TrimSpace(alt)) > len(strings.TrimSpace(text)) {
		text = alt
	}

	if !info.hasImages {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("pdf has neither text nor images")
		}
		doc.Text = text
		return nil
	}

	pages, err := r.pdfToOCR(ctx, path, dir)
	if err != nil {
		return fault.New(fault.External, doc.Name, err)
	}
	doc.Text = strings.Join(pages, PageBreak)
	doc.Pages = len(pages)
	doc.OCR = true
	return nil
}

func (r *Reader) pdfToText(ctx context.Context, path string) (string, error) {
	out, errb, err := r.runner.Run(ctx, r.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w, stderr: %s", err, string(errb))
	}
	return strings.ReplaceAll(string(out), "\f", PageBreak), nil
}

// pdfToOCR rasterizes every page and runs tesseract on each image.
func (r *Reader) pdfToOCR(ctx context.Context, path, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-r", strconv.Itoa(r.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w, stderr: %s", err, string(errb))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}
	sort.Slice(matches, func(i, j int) bool { return pageNumber(matches[i]) < pageNumber(matches[j]) })

	pages := make([]string, 0, len(matches))
	for _, img := range matches {
		text, err := r.tesseract(ctx, img)
		if err != nil {
			return nil, err
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// pageNumber parses the N of pdftoppm's "page-N.png", which is zero-padded
// only to the width of the largest page number.
func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	n, _ := strconv.Atoi(base[strings.LastIndex(base, "-")+1:])
	return n
}

func (r *Reader) tesseract(ctx context.Context, img string) (string, error) {
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, img, "stdout", "-l", r.cfg.Lang, "--psm", strconv.Itoa(r.cfg.PSM))
	if err != nil {
		return "", fmt.Errorf("tesseract failed on %s: %w, stderr: %s", filepath.Base(img), err, string(errb))
	}
	return string(out), nil
}
