// Package ingest turns uploaded CSV, TSV and spreadsheet files into datasets.
// Every file is handled on its own: a failure is reported as a notice and
// never stops the remaining files.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/deltax-data-professor/server/internal/core"
	"github.com/deltax-data-professor/server/internal/dataset"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// Kind is a supported upload format.
type Kind int

const (
	KindCSV Kind = iota + 1
	KindTSV
	KindXLSX
	KindXLS
)

func (k Kind) String() string {
	switch k {
	case KindCSV:
		return "csv"
	case KindTSV:
		return "tsv"
	case KindXLSX:
		return "xlsx"
	case KindXLS:
		return "xls"
	}
	return "unknown"
}

// IsSpreadsheet reports whether files of this kind carry sheets.
func (k Kind) IsSpreadsheet() bool {
	return k == KindXLSX || k == KindXLS
}

// KindOf resolves the format from the file extension.
func KindOf(name string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return KindCSV, true
	case ".tsv":
		return KindTSV, true
	case ".xlsx":
		return KindXLSX, true
	case ".xls":
		return KindXLS, true
	}
	return 0, false
}

// Upload is one received file.
type Upload struct {
	Name string
	Data []byte
}

func (u Upload) Size() int {
	return len(u.Data)
}

// baseName is the file name without directory and extension.
func (u Upload) baseName() string {
	base := filepath.Base(u.Name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type Config struct {
	MaxFileBytes int64 `envconfig:"INGEST_MAX_FILE_BYTES" default:"52428800"`
	MaxRows      int   `envconfig:"INGEST_MAX_ROWS" default:"500000"`
	Workers      int   `envconfig:"INGEST_WORKERS" default:"4"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{MaxFileBytes: 50 << 20, MaxRows: 500_000, Workers: 4}
}

// Options carries the user's choices for this ingestion.
type Options struct {
	// Sheets selects spreadsheet sheets in the order they should be read.
	// Empty means every sheet.
	Sheets []string
}

// Result is what succeeded plus the feedback for what did not.
type Result struct {
	Datasets []*dataset.Dataset
	Notices  []core.Notice
}

type Ingester struct {
	cfg Config
}

func New(cfg Config) *Ingester {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Ingester{cfg: cfg}
}

// Ingest reads every upload. Files are parsed concurrently; the result keeps
// upload order.
func (in *Ingester) Ingest(ctx context.Context, uploads []Upload, opts Options) Result {
	slots := make([]Result, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Workers)
	for i, u := range uploads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				slots[i].Notices = append(slots[i].Notices, core.Errorf("Processing of '%s' was cancelled", u.Name))
				return nil
			}
			slots[i] = in.handleFile(u, opts)
			return nil
		})
	}
	_ = g.Wait()

	var out Result
	for _, s := range slots {
		out.Datasets = append(out.Datasets, s.Datasets...)
		out.Notices = append(out.Notices, s.Notices...)
	}
	logx.Debug().Int("files", len(uploads)).Int("datasets", len(out.Datasets)).Int("notices", len(out.Notices)).Msg("ingestion finished")
	return out
}

func (in *Ingester) handleFile(u Upload, opts Options) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "ingest").Str("file", u.Name).Msgf("panic recovered: %v", r)
			res = Result{Notices: []core.Notice{core.Errorf("Unexpected error reading file '%s'", u.Name)}}
		}
	}()

	kind, ok := KindOf(u.Name)
	if !ok {
		return Result{Notices: []core.Notice{core.Errorf("Unsupported file type '%s'. Please upload a CSV, TSV, XLSX or XLS file.", u.Name)}}
	}
	if u.Size() == 0 {
		return Result{Notices: []core.Notice{core.Warning("File %s is empty. Skipping.", u.Name)}}
	}
	if in.cfg.MaxFileBytes > 0 && int64(u.Size()) > in.cfg.MaxFileBytes {
		return Result{Notices: []core.Notice{core.Errorf("File '%s' exceeds the %d byte upload limit", u.Name, in.cfg.MaxFileBytes)}}
	}

	switch kind {
	case KindCSV:
		return in.readDelimited(u, ',')
	case KindTSV:
		return in.readDelimited(u, '\t')
	case KindXLSX, KindXLS:
		return in.readSpreadsheet(u, kind, opts.Sheets)
	}
	return Result{}
}

// capRows enforces MaxRows and reports truncation.
func (in *Ingester) capRows(name string, rows [][]string) ([][]string, []core.Notice) {
	if in.cfg.MaxRows <= 0 || len(rows) <= in.cfg.MaxRows {
		return rows, nil
	}
	return rows[:in.cfg.MaxRows], []core.Notice{core.Warning("'%s' has %d rows; only the first %d were loaded", name, len(rows), in.cfg.MaxRows)}
}

// SheetNames lists the sheets of a spreadsheet upload for the sheet picker.
func (in *Ingester) SheetNames(u Upload) ([]string, error) {
	kind, ok := KindOf(u.Name)
	if !ok || !kind.IsSpreadsheet() {
		return nil, fmt.Errorf("'%s' is not a spreadsheet", u.Name)
	}
	if u.Size() == 0 {
		return []string{}, nil
	}
	book, err := openWorkbook(u, kind)
	if err != nil {
		return nil, err
	}
	defer book.Close()
	return book.Sheets(), nil
}
