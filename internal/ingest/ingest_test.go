package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/deltax-data-professor/server/internal/core"
	"github.com/deltax-data-professor/server/internal/dataset"
)

func csvUpload(name, body string) Upload {
	return Upload{Name: name, Data: []byte(body)}
}

func TestIngestSkipsEmptyCSV(t *testing.T) {
	uploads := []Upload{
		csvUpload("a.csv", "id,name\n1,ann\n2,bob\n"),
		csvUpload("empty.csv", ""),
		csvUpload("b.csv", "id,score\n1,9.5\n"),
		csvUpload("c.csv", "x\n1\n"),
	}

	res := New(DefaultConfig()).Ingest(context.Background(), uploads, Options{})

	require.Len(t, res.Datasets, 3)
	assert.Equal(t, []string{"a", "b", "c"}, names(res.Datasets))
	assert.Equal(t, 1, core.CountLevel(res.Notices, core.LevelWarning))
	assert.Equal(t, 0, core.CountLevel(res.Notices, core.LevelError))
	assert.Contains(t, res.Notices[0].Message, "empty.csv")
}

func TestIngestMalformedFileDoesNotStopOthers(t *testing.T) {
	uploads := []Upload{
		csvUpload("bad.csv", "a,b\n1,2,3\n\"unterminated\n"),
		csvUpload("good.tsv", "a\tb\n1\t2\n"),
		csvUpload("notes.txt", "hello"),
	}

	res := New(DefaultConfig()).Ingest(context.Background(), uploads, Options{})

	require.Len(t, res.Datasets, 1)
	assert.Equal(t, "good", res.Datasets[0].Name)
	assert.Equal(t, []any{int64(1), int64(2)}, res.Datasets[0].Rows[0])
	assert.Equal(t, 2, core.CountLevel(res.Notices, core.LevelError))
}

func TestIngestCapsRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRows = 2

	res := New(cfg).Ingest(context.Background(), []Upload{csvUpload("big.csv", "n\n1\n2\n3\n4\n")}, Options{})

	require.Len(t, res.Datasets, 1)
	assert.Equal(t, 2, res.Datasets[0].NumRows())
	assert.Equal(t, 1, core.CountLevel(res.Notices, core.LevelWarning))
}

func TestIngestRejectsOversizedFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFileBytes = 4

	res := New(cfg).Ingest(context.Background(), []Upload{csvUpload("a.csv", "id\n1\n2\n")}, Options{})
	assert.Empty(t, res.Datasets)
	assert.Equal(t, 1, core.CountLevel(res.Notices, core.LevelError))
}

func workbookUpload(t *testing.T, sheets ...string) Upload {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s))
		} else {
			_, err := f.NewSheet(s)
			require.NoError(t, err)
		}
		require.NoError(t, f.SetSheetRow(s, "A1", &[]any{"month", "revenue"}))
		require.NoError(t, f.SetSheetRow(s, "A2", &[]any{s, 100 * (i + 1)}))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return Upload{Name: "report.xlsx", Data: buf.Bytes()}
}

func TestIngestSelectedSheetsInSelectionOrder(t *testing.T) {
	up := workbookUpload(t, "Jan", "Feb", "Mar")
	in := New(DefaultConfig())

	sheets, err := in.SheetNames(up)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jan", "Feb", "Mar"}, sheets)

	res := in.Ingest(context.Background(), []Upload{up}, Options{Sheets: []string{"Mar", "Jan"}})
	require.Len(t, res.Datasets, 2)
	assert.Equal(t, []string{"Mar", "Jan"}, names(res.Datasets))
	assert.Equal(t, int64(300), res.Datasets[0].Rows[0][1])
	assert.Empty(t, res.Notices)
}

func TestIngestAllSheetsByDefault(t *testing.T) {
	res := New(DefaultConfig()).Ingest(context.Background(), []Upload{workbookUpload(t, "Jan", "Feb", "Mar")}, Options{})
	assert.Equal(t, []string{"Jan", "Feb", "Mar"}, names(res.Datasets))
}

func TestIngestUnknownSheet(t *testing.T) {
	res := New(DefaultConfig()).Ingest(context.Background(), []Upload{workbookUpload(t, "Jan")}, Options{Sheets: []string{"Jan", "Dec"}})
	assert.Len(t, res.Datasets, 1)
	assert.Equal(t, 1, core.CountLevel(res.Notices, core.LevelError))
}

func TestIngestUnreadableSpreadsheet(t *testing.T) {
	res := New(DefaultConfig()).Ingest(context.Background(), []Upload{
		{Name: "broken.xlsx", Data: []byte("definitely not a zip")},
		{Name: "broken.xls", Data: []byte("definitely not ole2")},
		{Name: "empty.xlsx"},
	}, Options{})

	assert.Empty(t, res.Datasets)
	assert.Equal(t, 2, core.CountLevel(res.Notices, core.LevelError))
	assert.Equal(t, 1, core.CountLevel(res.Notices, core.LevelWarning))
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf("DATA.XLSX")
	assert.True(t, ok)
	assert.Equal(t, KindXLSX, k)
	assert.True(t, k.IsSpreadsheet())

	_, ok = KindOf("data.json")
	assert.False(t, ok)
}

func names(ds []*dataset.Dataset) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}
