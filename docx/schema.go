package docx

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/JA50N14/course_reports/internal/fault"
)

//go:embed schemas/*.yaml
var builtin embed.FS

const (
	KindTable  = "table"
	KindFields = "fields"
)

type CellRef struct {
	Row int `yaml:"row"`
	Col int `yaml:"col"`
}

// RowBlock is a run of identical table rows, one per record.
type RowBlock struct {
	First    int            `yaml:"first"`
	Capacity int            `yaml:"capacity"`
	Columns  map[string]int `yaml:"columns"`
}

// FieldRef locates a form field by ordinal or by its w:name.
type FieldRef struct {
	Field *int   `yaml:"field"`
	Name  string `yaml:"name"`
}

// Schema names every slot a template exposes. It replaces positional
// knowledge of a layout with a declaration that is checked against the
// template before anything is written.
type Schema struct {
	Name         string              `yaml:"name"`
	Kind         string              `yaml:"kind"`
	Table        int                 `yaml:"table"`
	Cells        map[string]CellRef  `yaml:"cells"`
	Rows         *RowBlock           `yaml:"rows"`
	Fields       map[string]FieldRef `yaml:"fields"`
	ExpectFields int                 `yaml:"expect_fields"`
	LongText     LongText            `yaml:"long_text"`
}

// LoadSchema reads a schema file, or the built-in schema of that name when
// path has no directory part and no such file exists.
func LoadSchema(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		if filepath.Dir(path) != "." {
			return nil, err
		}
		name := path
		if filepath.Ext(name) == "" {
			name += ".yaml"
		}
		b, ferr := builtin.Open("schemas/" + name)
		if ferr != nil {
			return nil, fmt.Errorf("unknown schema %q: %w", path, ferr)
		}
		defer b.Close()
		return ParseSchema(b)
	}
	defer f.Close()
	return ParseSchema(f)
}

func ParseSchema(r io.Reader) (*Schema, error) {
	var s Schema
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("schema %q: %w", s.Name, err)
	}
	return &s, nil
}

func (s *Schema) check() error {
	switch s.Kind {
	case KindTable:
		if len(s.Cells) == 0 && s.Rows == nil {
			return fmt.Errorf("table schema declares no cells and no rows")
		}
		if s.Rows != nil && (s.Rows.Capacity <= 0 || len(s.Rows.Columns) == 0) {
			return fmt.Errorf("row block needs a capacity and columns")
		}
	case KindFields:
		if len(s.Fields) == 0 {
			return fmt.Errorf("fields schema declares no fields")
		}
		for name, ref := range s.Fields {
			if (ref.Field == nil) == (ref.Name == "") {
				return fmt.Errorf("field %q needs exactly one of field or name", name)
			}
		}
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	return nil
}

func mismatch(schema, format string, args ...any) error {
	return fault.Newf(fault.TemplateMismatch, schema, format, args...)
}

// Validate checks that every slot the schema names exists in doc.
func (s *Schema) Validate(doc *Document) error {
	if s.Kind == KindFields {
		_, err := s.resolveFields(doc)
		return err
	}

	tables := doc.Tables()
	if s.Table >= len(tables) {
		return mismatch(s.Name, "template has %d tables, need table %d", len(tables), s.Table)
	}
	t := tables[s.Table]
	for _, name := range sortedKeys(s.Cells) {
		ref := s.Cells[name]
		if _, err := t.Cell(ref.Row, ref.Col); err != nil {
			return mismatch(s.Name, "cell %s: %v", name, err)
		}
	}
	if s.Rows != nil {
		last := s.Rows.First + s.Rows.Capacity - 1
		if last >= t.RowCount() {
			return mismatch(s.Name, "row block needs rows %d-%d, table has %d rows", s.Rows.First, last, t.RowCount())
		}
		for _, name := range sortedKeys(s.Rows.Columns) {
			col := s.Rows.Columns[name]
			for row := s.Rows.First; row <= last; row++ {
				if _, err := t.Cell(row, col); err != nil {
					return mismatch(s.Name, "column %s: %v", name, err)
				}
			}
		}
	}
	return nil
}

func (s *Schema) resolveFields(doc *Document) (map[string]*Field, error) {
	fields := doc.Fields()
	if s.ExpectFields > 0 && len(fields) != s.ExpectFields {
		return nil, mismatch(s.Name, "template has %d form fields, expected %d", len(fields), s.ExpectFields)
	}
	byName := make(map[string]*Field, len(fields))
	for _, f := range fields {
		if f.Name != "" {
			byName[f.Name] = f
		}
	}

	out := make(map[string]*Field, len(s.Fields))
	for _, name := range sortedKeys(s.Fields) {
		ref := s.Fields[name]
		if ref.Field != nil {
			if *ref.Field < 0 || *ref.Field >= len(fields) {
				return nil, mismatch(s.Name, "field %s: ordinal %d out of range (%d fields)", name, *ref.Field, len(fields))
			}
			out[name] = fields[*ref.Field]
			continue
		}
		f, ok := byName[ref.Name]
		if !ok {
			return nil, mismatch(s.Name, "field %s: no form field named %q", name, ref.Name)
		}
		out[name] = f
	}
	return out, nil
}

// Values holds what to write, keyed by slot name. Rows fill the row block
// in order. A slot without a value keeps its template content.
type Values struct {
	Slots map[string]string
	Rows  []map[string]string
}

// Fill validates doc against the schema and schedules the writes. It
// returns how many rows did not fit the row block.
func (s *Schema) Fill(doc *Document, v Values) (int, error) {
	if err := s.Validate(doc); err != nil {
		return 0, err
	}
	if s.Kind == KindFields {
		return 0, s.fillFields(doc, v)
	}

	t := doc.Tables()[s.Table]
	for _, name := range sortedKeys(v.Slots) {
		ref, ok := s.Cells[name]
		if !ok {
			return 0, fmt.Errorf("schema %s has no cell %q", s.Name, name)
		}
		if err := t.SetCell(ref.Row, ref.Col, v.Slots[name]); err != nil {
			return 0, err
		}
	}

	if len(v.Rows) == 0 {
		return 0, nil
	}
	if s.Rows == nil {
		return 0, fmt.Errorf("schema %s has no row block", s.Name)
	}
	rows, dropped := v.Rows, 0
	if len(rows) > s.Rows.Capacity {
		dropped = len(rows) - s.Rows.Capacity
		rows = rows[:s.Rows.Capacity]
	}
	for i, row := range rows {
		for _, name := range sortedKeys(row) {
			col, ok := s.Rows.Columns[name]
			if !ok {
				return 0, fmt.Errorf("schema %s has no column %q", s.Name, name)
			}
			if err := t.SetCell(s.Rows.First+i, col, row[name]); err != nil {
				return 0, err
			}
		}
	}
	return dropped, nil
}

func (s *Schema) fillFields(doc *Document, v Values) error {
	fields, err := s.resolveFields(doc)
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(v.Slots) {
		f, ok := fields[name]
		if !ok {
			return fmt.Errorf("schema %s has no field %q", s.Name, name)
		}
		if err := doc.SetField(f, v.Slots[name], s.LongText); err != nil {
			return mismatch(s.Name, "field %s: %v", name, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
