// Package workbook fills spreadsheet templates: the grade transcript is
// a header block plus one row per student and one column per module.
package workbook

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/JA50N14/course_reports/internal/fault"
	"github.com/JA50N14/course_reports/model"
)

//go:embed transcript.yaml
var defaultLayout []byte

const FinalHeader = "CALIFICACIÓN FINAL"

// Layout declares where the transcript writes. Cells and columns use
// spreadsheet references ("B2", "D").
type Layout struct {
	Name        string            `yaml:"name"`
	Sheet       string            `yaml:"sheet"`
	Cells       map[string]string `yaml:"cells"`
	HeaderRow   int               `yaml:"header_row"`
	FirstRow    int               `yaml:"first_row"`
	Columns     map[string]string `yaml:"columns"`
	ModulesFrom string            `yaml:"modules_from"`
}

// LoadLayout reads a layout file, or the built-in transcript layout when
// path is empty.
func LoadLayout(path string) (*Layout, error) {
	if path == "" {
		return ParseLayout(bytes.NewReader(defaultLayout))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseLayout(f)
}

func ParseLayout(r io.Reader) (*Layout, error) {
	var l Layout
	if err := yaml.NewDecoder(r).Decode(&l); err != nil {
		return nil, fmt.Errorf("decoding layout: %w", err)
	}
	if l.Sheet == "" || l.FirstRow <= l.HeaderRow || l.HeaderRow < 1 || l.ModulesFrom == "" {
		return nil, fmt.Errorf("layout %q: sheet, header_row < first_row and modules_from are required", l.Name)
	}
	for name, ref := range l.Cells {
		if _, _, err := excelize.CellNameToCoordinates(ref); err != nil {
			return nil, fmt.Errorf("layout %q: cell %s: %w", l.Name, name, err)
		}
	}
	for name, col := range l.Columns {
		if _, err := excelize.ColumnNameToNumber(col); err != nil {
			return nil, fmt.Errorf("layout %q: column %s: %w", l.Name, name, err)
		}
	}
	if _, err := excelize.ColumnNameToNumber(l.ModulesFrom); err != nil {
		return nil, fmt.Errorf("layout %q: modules_from: %w", l.Name, err)
	}
	return &l, nil
}

// Transcript is the data written into the layout.
type Transcript struct {
	Slots    map[string]string
	Modules  []string
	Students []model.Student
}

// Fill writes t into template, or into a new workbook when template is nil.
func (l *Layout) Fill(template []byte, t Transcript) ([]byte, error) {
	f, err := l.open(template)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	keys := make([]string, 0, len(t.Slots))
	for k := range t.Slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ref, ok := l.Cells[k]
		if !ok {
			return nil, fmt.Errorf("layout %s has no cell %q", l.Name, k)
		}
		if err := f.SetCellStr(l.Sheet, ref, t.Slots[k]); err != nil {
			return nil, err
		}
	}

	first, _ := excelize.ColumnNameToNumber(l.ModulesFrom)
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for name, col := range l.Columns {
		if err := f.SetCellStr(l.Sheet, col+strconv.Itoa(l.HeaderRow), headers[name]); err != nil {
			return nil, err
		}
	}
	for i, module := range t.Modules {
		if err := l.set(f, first+i, l.HeaderRow, module); err != nil {
			return nil, err
		}
	}
	finalCol := first + len(t.Modules)
	if err := l.set(f, finalCol, l.HeaderRow, FinalHeader); err != nil {
		return nil, err
	}
	start, _ := excelize.CoordinatesToCellName(1, l.HeaderRow)
	end, _ := excelize.CoordinatesToCellName(finalCol, l.HeaderRow)
	if err := f.SetCellStyle(l.Sheet, start, end, bold); err != nil {
		return nil, err
	}

	for i, s := range t.Students {
		row := l.FirstRow + i
		values := map[string]string{"number": strconv.Itoa(i + 1), "name": s.Name, "nif": s.NIF}
		for name, col := range l.Columns {
			if err := f.SetCellStr(l.Sheet, col+strconv.Itoa(row), values[name]); err != nil {
				return nil, err
			}
		}
		for j, module := range t.Modules {
			g, ok := s.Grade(module)
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(first+j, row)
			if g.Scored {
				err = f.SetCellFloat(l.Sheet, cell, g.Score, -1, 64)
			} else {
				err = f.SetCellStr(l.Sheet, cell, string(g.Status))
			}
			if err != nil {
				return nil, err
			}
		}
		if err := l.set(f, finalCol, row, string(s.FinalStatus())); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing transcript: %w", err)
	}
	return buf.Bytes(), nil
}

var headers = map[string]string{"number": "Nº", "name": "APELLIDOS, NOMBRE", "nif": "DNI/NIE"}

func (l *Layout) set(f *excelize.File, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellStr(l.Sheet, cell, value)
}

func (l *Layout) open(template []byte) (*excelize.File, error) {
	if template == nil {
		f := excelize.NewFile()
		if err := f.SetSheetName("Sheet1", l.Sheet); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	}
	f, err := excelize.OpenReader(bytes.NewReader(template))
	if err != nil {
		return nil, fault.New(fault.TemplateMismatch, l.Name, err)
	}
	if idx, err := f.GetSheetIndex(l.Sheet); err != nil || idx < 0 {
		f.Close()
		return nil, fault.Newf(fault.TemplateMismatch, l.Name, "workbook has no sheet %q", l.Sheet)
	}
	return f, nil
}
