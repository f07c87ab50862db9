package importer

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet carrying the journey export.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ParseJourneysXLSX reads a denormalized journey export from a spreadsheet.
// The first row is the header; data rows follow the same columns as the CSV
// export. Malformed rows are skipped and counted.
func ParseJourneysXLSX(path string, opts XLSXOptions) ([]JourneyDocument, int, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, 0, eris.Wrap(err, "importer: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, 0, err
	}
	if len(sheet.Rows) == 0 {
		return nil, 0, eris.New("importer: xlsx sheet is empty")
	}

	colIdx := mapColumns(rowToStrings(sheet.Rows[0]))
	if _, ok := colIdx[colJourneyID]; !ok {
		return nil, 0, eris.Errorf("importer: xlsx header missing %q column", colJourneyID)
	}

	asm := newAssembler()
	skipped := 0
	for _, row := range sheet.Rows[1:] {
		if !asm.addRow(rowToStrings(row), colIdx) {
			skipped++
		}
	}
	return asm.documents(), skipped, nil
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("importer: xlsx sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("importer: xlsx sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
