package reader

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

func readDOCX(data []byte, doc *Document) error {
	text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("could not read docx: %w", err)
	}
	doc.Text = text
	return nil
}

func readXLSX(data []byte, doc *Document) error {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("could not open xlsx: %w", err)
	}
	defer wb.Close()

	for _, name := range wb.GetSheetList() {
		rows, err := wb.GetRows(name)
		if err != nil {
			return fmt.Errorf("reading sheet %s: %w", name, err)
		}
		doc.Sheets = append(doc.Sheets, Sheet{Name: name, Rows: rows})
	}
	doc.Pages = len(doc.Sheets)
	doc.Text = sheetsText(doc.Sheets)
	return nil
}

func readXLS(data []byte, doc *Document) error {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return fmt.Errorf("could not open xls: %w", err)
	}

	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			var cells []string
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		doc.Sheets = append(doc.Sheets, Sheet{Name: sheet.Name, Rows: rows})
	}
	doc.Pages = len(doc.Sheets)
	doc.Text = sheetsText(doc.Sheets)
	return nil
}

// sheetsText renders cells as tab-separated lines so the text extractors
// can also read spreadsheet sources.
func sheetsText(sheets []Sheet) string {
	var b strings.Builder
	for i, s := range sheets {
		if i > 0 {
			b.WriteString(PageBreak)
		}
		for _, row := range s.Rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}
	return b.String()
}
