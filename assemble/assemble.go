// Package assemble writes the final artefacts: a template archive with its
// edited parts swapped in, and zip bundles of several generated files.
package assemble

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JA50N14/course_reports/model"
)

// ReadEntry returns the uncompressed content of one archive entry.
func ReadEntry(archive []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("archive has no entry %s", name)
}

// Rewrite copies archive entry by entry, substituting the content of the
// entries named in replace. Every other entry is copied without
// recompression, so its stored bytes are identical to the input. Names in
// replace that the archive lacks are appended in sorted order.
func Rewrite(archive []byte, replace map[string][]byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]bool, len(replace))

	for _, f := range zr.File {
		data, ok := replace[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("copying %s: %w", f.Name, err)
			}
			continue
		}
		seen[f.Name] = true
		hdr := &zip.FileHeader{Name: f.Name, Method: f.Method, Modified: f.Modified}
		if err := writeEntry(zw, hdr, data); err != nil {
			return nil, err
		}
	}

	var extra []string
	for name := range replace {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()}
		if err := writeEntry(zw, hdr, replace[name]); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, hdr *zip.FileHeader, data []byte) error {
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("creating %s: %w", hdr.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", hdr.Name, err)
	}
	return nil
}

// File is one member of a bundle.
type File struct {
	Name string
	Data []byte
}

var (
	unsafeRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	underRe  = regexp.MustCompile(`_{2,}`)
)

// SanitizeName folds accents and replaces anything outside [A-Za-z0-9._-]
// so the name is safe on every file system the bundle may be unpacked on.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = model.Fold(name)
	name = unsafeRe.ReplaceAllString(name, "_")
	name = underRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_.")
	if name == "" {
		return "documento"
	}
	return name
}

// uniqueName appends _2, _3, ... before the extension until name is unused.
func uniqueName(name string, used map[string]bool) string {
	if !used[strings.ToLower(name)] {
		used[strings.ToLower(name)] = true
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := stem + "_" + strconv.Itoa(i) + ext
		if !used[strings.ToLower(candidate)] {
			used[strings.ToLower(candidate)] = true
			return candidate
		}
	}
}

// Bundle zips files under sanitized, unique names in the given order and
// returns the archive plus the names actually used.
func Bundle(files []File) ([]byte, []string, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]bool, len(files))
	names := make([]string, 0, len(files))
	now := time.Now()

	for _, f := range files {
		name := uniqueName(SanitizeName(f.Name), used)
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now}
		if err := writeEntry(zw, hdr, f.Data); err != nil {
			return nil, nil, err
		}
		names = append(names, name)
	}
	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("closing bundle: %w", err)
	}
	return buf.Bytes(), names, nil
}
