package ingest

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/deltax-data-professor/server/internal/core"
	"github.com/deltax-data-professor/server/internal/dataset"
)

// workbook hides the difference between the xlsx and legacy xls readers.
type workbook interface {
	Sheets() []string
	Rows(sheet string) ([][]string, error)
	Close() error
}

func openWorkbook(u Upload, kind Kind) (workbook, error) {
	switch kind {
	case KindXLSX:
		f, err := excelize.OpenReader(bytes.NewReader(u.Data))
		if err != nil {
			return nil, err
		}
		return &xlsxBook{f: f}, nil
	case KindXLS:
		wb, err := xls.OpenReader(bytes.NewReader(u.Data), "utf-8")
		if err != nil {
			return nil, err
		}
		if wb == nil {
			return nil, fmt.Errorf("unreadable workbook")
		}
		return &xlsBook{wb: wb}, nil
	}
	return nil, fmt.Errorf("'%s' is not a spreadsheet", u.Name)
}

type xlsxBook struct {
	f *excelize.File
}

func (b *xlsxBook) Sheets() []string {
	return b.f.GetSheetList()
}

func (b *xlsxBook) Rows(sheet string) ([][]string, error) {
	return b.f.GetRows(sheet)
}

func (b *xlsxBook) Close() error {
	return b.f.Close()
}

type xlsBook struct {
	wb *xls.WorkBook
}

func (b *xlsBook) Sheets() []string {
	names := make([]string, 0, b.wb.NumSheets())
	for i := 0; i < b.wb.NumSheets(); i++ {
		if s := b.wb.GetSheet(i); s != nil {
			names = append(names, s.Name)
		}
	}
	return names
}

func (b *xlsBook) Rows(sheet string) ([][]string, error) {
	for i := 0; i < b.wb.NumSheets(); i++ {
		s := b.wb.GetSheet(i)
		if s == nil || s.Name != sheet {
			continue
		}
		rows := make([][]string, 0, int(s.MaxRow)+1)
		for r := 0; r <= int(s.MaxRow); r++ {
			row := s.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol()+1)
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("sheet %q not found", sheet)
}

func (b *xlsBook) Close() error {
	return nil
}

func (in *Ingester) readSpreadsheet(u Upload, kind Kind, selected []string) Result {
	book, err := openWorkbook(u, kind)
	if err != nil {
		return Result{Notices: []core.Notice{core.Errorf("Error reading Excel file '%s': %v", u.Name, err)}}
	}
	defer book.Close()

	available := book.Sheets()
	if len(selected) == 0 {
		selected = available
	}

	var res Result
	for _, sheet := range selected {
		if !slices.Contains(available, sheet) {
			res.Notices = append(res.Notices, core.Errorf("Sheet '%s' not found in '%s'", sheet, u.Name))
			continue
		}
		rows, err := book.Rows(sheet)
		if err != nil {
			res.Notices = append(res.Notices, core.Errorf("Error reading sheet '%s' of '%s': %v", sheet, u.Name, err))
			continue
		}
		rows = trimEmptyRows(rows)
		if len(rows) == 0 {
			res.Notices = append(res.Notices, core.Warning("Sheet '%s' of '%s' is empty. Skipping.", sheet, u.Name))
			continue
		}

		body, notices := in.capRows(sheet, rows[1:])
		res.Notices = append(res.Notices, notices...)

		ds := dataset.FromStrings(sheet, rows[0], body)
		ds.Source = u.Name
		res.Datasets = append(res.Datasets, ds)
	}
	return res
}

// trimEmptyRows drops blank rows at the top and bottom of a sheet.
func trimEmptyRows(rows [][]string) [][]string {
	blank := func(r []string) bool {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				return false
			}
		}
		return true
	}
	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
	}
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}
