package session

import (
	"context"
	"errors"

	"github.com/deltax-data-professor/server/internal/connector"
	"github.com/deltax-data-professor/server/internal/core"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/dataset"
	"github.com/deltax-data-professor/server/internal/ingest"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// LoadFunc connects with a descriptor and reads its table.
type LoadFunc func(ctx context.Context, desc connector.Descriptor, cfg connector.Config) (*dataset.Dataset, error)

// Dispatcher turns either data source into datasets.
type Dispatcher struct {
	ingester *ingest.Ingester
	dbCfg    connector.Config
	load     LoadFunc
}

func NewDispatcher(ingester *ingest.Ingester, dbCfg connector.Config) *Dispatcher {
	return &Dispatcher{ingester: ingester, dbCfg: dbCfg, load: connector.Load}
}

// WithLoader replaces the database loader. Used by tests.
func (d *Dispatcher) WithLoader(fn LoadFunc) *Dispatcher {
	d.load = fn
	return d
}

// Files ingests uploads. Partial failure keeps what succeeded.
func (d *Dispatcher) Files(ctx context.Context, uploads []ingest.Upload, opts ingest.Options) ingest.Result {
	if len(uploads) == 0 {
		return ingest.Result{Notices: []core.Notice{core.Warning("No files were uploaded")}}
	}
	return d.ingester.Ingest(ctx, uploads, opts)
}

// SheetNames lists the sheets of a spreadsheet upload.
func (d *Dispatcher) SheetNames(u ingest.Upload) ([]string, error) {
	return d.ingester.SheetNames(u)
}

// Database builds the descriptor and reads exactly one dataset. Failures come
// back as an error Notice; the session stays usable.
func (d *Dispatcher) Database(ctx context.Context, dialect string, fields connector.Fields) (*dataset.Dataset, *core.Notice) {
	dl, err := connector.ParseDialect(dialect)
	if err != nil {
		n := core.Errorf("%s", errx.Message(err))
		return nil, &n
	}
	desc, err := connector.BuildDescriptor(dl, fields)
	if err != nil {
		n := core.Errorf("%s", errx.Message(err))
		return nil, &n
	}

	ds, err := d.load(ctx, desc, d.dbCfg)
	if err != nil {
		logx.Warn().Err(err).Str("dialect", dl.String()).Msg("database load failed")
		n := core.Errorf("Failed to connect to %s: %v", dl, unwrapMessage(err))
		return nil, &n
	}
	return ds, nil
}

// unwrapMessage drops the generic prefix added by errx.Connection.
func unwrapMessage(err error) string {
	var appErr *errx.AppError
	if errors.As(err, &appErr) && appErr.Err != nil {
		return appErr.Err.Error()
	}
	return err.Error()
}
