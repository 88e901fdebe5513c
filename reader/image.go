package reader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/JA50N14/course_reports/internal/fault"
)

// minOCRWidth is the width below which scans are upscaled before OCR;
// tesseract loses accuracy on small glyphs.
const minOCRWidth = 1600

// prepare normalizes a scan for OCR: orientation from EXIF, grayscale,
// upscaling of small images, a little contrast and sharpening.
func prepare(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	out := imaging.Grayscale(img)
	if w := out.Bounds().Dx(); w > 0 && w < minOCRWidth {
		out = imaging.Resize(out, minOCRWidth, 0, imaging.Lanczos)
	}
	out = imaging.AdjustContrast(out, 20)
	return imaging.Sharpen(out, 0.8), nil
}

func (r *Reader) readImage(ctx context.Context, data []byte, doc *Document) error {
	img, err := prepare(data)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "course-reports-img-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "scan.png")
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("writing preprocessed image: %w", err)
	}
	text, err := r.tesseract(ctx, path)
	if err != nil {
		return fault.New(fault.External, doc.Name, err)
	}
	doc.Text = text
	doc.OCR = true
	return nil
}
