package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"

	"github.com/deltax-data-professor/server/internal/core"
	"github.com/deltax-data-professor/server/internal/dataset"
)

func (in *Ingester) readDelimited(u Upload, sep rune) Result {
	r := csv.NewReader(bytes.NewReader(u.Data))
	r.Comma = sep
	r.TrimLeadingSpace = true
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Result{Notices: []core.Notice{core.Warning("File %s has no content. Skipping.", u.Name)}}
	}
	if err != nil {
		return Result{Notices: []core.Notice{core.Errorf("Error reading %s file '%s': %v", kindLabel(sep), u.Name, err)}}
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{Notices: []core.Notice{core.Errorf("Error reading %s file '%s': %v", kindLabel(sep), u.Name, err)}}
		}
		records = append(records, rec)
	}

	records, notices := in.capRows(u.Name, records)
	ds := dataset.FromStrings(u.baseName(), header, records)
	ds.Source = u.Name
	return Result{Datasets: []*dataset.Dataset{ds}, Notices: notices}
}

func kindLabel(sep rune) string {
	if sep == '\t' {
		return "TSV"
	}
	return "CSV"
}
