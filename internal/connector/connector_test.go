package connector

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/dataset"
)

func TestBuildDescriptorDefaults(t *testing.T) {
	desc, err := BuildDescriptor(MySQL, Fields{Username: "root", Password: "pw", Database: "shop", Table: "orders"})
	require.NoError(t, err)

	require.NotNil(t, desc.Host)
	require.NotNil(t, desc.Port)
	assert.Equal(t, "localhost", *desc.Host)
	assert.Equal(t, 3306, *desc.Port)
	assert.Nil(t, desc.Account)
}

func TestBuildDescriptorSQLiteHasNoNetworkFields(t *testing.T) {
	desc, err := BuildDescriptor(SQLite, Fields{Host: "db.example", Port: "5432", Username: "u", Password: "p", Database: "/tmp/a.db", Table: "t"})
	require.NoError(t, err)

	assert.Nil(t, desc.Host)
	assert.Nil(t, desc.Port)
	assert.Nil(t, desc.Username)
	assert.Nil(t, desc.Password)
	assert.Equal(t, "/tmp/a.db", desc.Database)
}

func TestBuildDescriptorMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		fields  Fields
		missing []string
	}{
		{"postgres", PostgreSQL, Fields{Table: "t"}, []string{"username", "password", "database"}},
		{"snowflake", Snowflake, Fields{Account: "acc", Database: "db", Username: "u", Password: "p", Table: "t"}, []string{"warehouse", "schema"}},
		{"databricks", Databricks, Fields{Database: "db", Table: "t"}, []string{"host", "token", "http_path"}},
		{"airtable", Airtable, Fields{APIKey: "k"}, []string{"base_id", "table_name"}},
		{"bigquery", BigQuery, Fields{Database: "ds", Table: "t"}, []string{"credentials_path", "project_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildDescriptor(tt.dialect, tt.fields)
			require.Error(t, err)
			assert.ErrorIs(t, err, errx.ErrIncomplete)
			assert.Equal(t, http.StatusUnprocessableEntity, errx.Status(err))
			for _, m := range tt.missing {
				assert.Contains(t, err.Error(), m+" is required")
			}
		})
	}
}

func TestBuildDescriptorRejectsBadPortAndOperator(t *testing.T) {
	_, err := BuildDescriptor(MySQL, Fields{Port: "abc", Username: "u", Password: "p", Database: "d", Table: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `port "abc" is invalid`)

	_, err = BuildDescriptor(SQLite, Fields{Database: "a.db", Table: "t", Where: []Condition{{Column: "x", Op: "; DROP", Value: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestBuildDescriptorUnknownDialect(t *testing.T) {
	_, err := BuildDescriptor(Dialect(99), Fields{})
	assert.ErrorIs(t, err, errx.ErrUnknownDialect)
	assert.Equal(t, http.StatusBadRequest, errx.Status(err))

	_, err = ParseDialect("oracle")
	assert.ErrorIs(t, err, errx.ErrUnknownDialect)

	d, err := ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, PostgreSQL, d)
}

func TestConditionJSON(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`["region", "IN", ["north", "south"]]`), &c))
	assert.Equal(t, Condition{Column: "region", Op: "IN", Value: []any{"north", "south"}}, c)

	b, err := json.Marshal(Condition{Column: "n", Op: ">", Value: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `["n", ">", 3]`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`["a", "="]`), &c))
}

func TestBuildSelect(t *testing.T) {
	where := []Condition{
		{Column: "region", Op: "=", Value: "north"},
		{Column: "id", Op: "in", Value: []any{1, 2}},
	}
	tests := []struct {
		name    string
		syntax  sqlDialect
		table   string
		want    string
		wantLen int
	}{
		{"mysql", backtickDialect, "orders", "SELECT * FROM `orders` WHERE `region` = ? AND `id` IN (?, ?) LIMIT 10", 3},
		{"postgres", postgresDialect, "public.orders", `SELECT * FROM "public"."orders" WHERE "region" = $1 AND "id" IN ($2, $3) LIMIT 10`, 3},
		{"bigquery", bigQueryDialect, "p.d.orders", "SELECT * FROM `p`.`d`.`orders` WHERE `region` = @p1 AND `id` IN (@p2, @p3) LIMIT 10", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args, err := tt.syntax.buildSelect(tt.table, where, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
			assert.Len(t, args, tt.wantLen)
		})
	}

	q, args, err := ansiDialect.buildSelect(`we"ird`, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "we""ird"`, q)
	assert.Empty(t, args)
}

func newMockConnector(t *testing.T, desc Descriptor) (*sqlConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	c := &sqlConnector{desc: desc, cfg: DefaultConfig(), syntax: backtickDialect, open: func() (*sql.DB, error) {
		return db, nil
	}}
	return c, mock
}

func TestSQLConnectorExecute(t *testing.T) {
	desc := Descriptor{Dialect: MySQL, Database: "shop", Table: "orders", Where: []Condition{{Column: "region", Op: "=", Value: "north"}}}
	c, mock := newMockConnector(t, desc)

	rows := sqlmock.NewRows([]string{"id", "name", "amount"}).
		AddRow(int64(1), []byte("Ada"), []byte("3.5")).
		AddRow(int64(2), []byte("Grace"), []byte("4"))
	mock.ExpectQuery("SELECT * FROM `orders` WHERE `region` = ? LIMIT 100000").WithArgs("north").WillReturnRows(rows)
	mock.ExpectClose()

	require.NoError(t, c.Connect(context.Background()))
	ds, err := c.Execute(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Equal(t, "orders", ds.Name)
	assert.Equal(t, "MySQL:shop", ds.Source)
	assert.Equal(t, []string{"id", "name", "amount"}, ds.ColumnNames())
	assert.Equal(t, dataset.TypeInt, ds.Columns[0].Type)
	assert.Equal(t, dataset.TypeString, ds.Columns[1].Type)
	assert.Equal(t, dataset.TypeFloat, ds.Columns[2].Type)
	assert.Equal(t, []any{int64(2), "Grace", float64(4)}, ds.Rows[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConnectorQueryError(t *testing.T) {
	c, mock := newMockConnector(t, Descriptor{Dialect: MySQL, Table: "missing"})
	mock.ExpectQuery("SELECT * FROM `missing` LIMIT 100000").WillReturnError(assert.AnError)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "missing")
}

func TestSQLConnectorExecuteWithoutConnect(t *testing.T) {
	c, _ := newMockConnector(t, Descriptor{Dialect: MySQL, Table: "t"})
	_, err := c.Execute(context.Background())
	assert.EqualError(t, err, "database connection not established")
}

func TestLoadSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE sales (id INTEGER, region TEXT, amount REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sales VALUES (1, 'north', 10.5), (2, 'south', 7.25), (3, 'north', 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	desc, err := BuildDescriptor(SQLite, Fields{Database: path, Table: "sales", Where: []Condition{{Column: "region", Op: "=", Value: "north"}}})
	require.NoError(t, err)

	ds, err := Load(context.Background(), desc, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumRows())
	assert.Equal(t, []string{"id", "region", "amount"}, ds.ColumnNames())
	assert.Equal(t, dataset.TypeFloat, ds.Columns[2].Type)
}

func TestLoadSQLiteMissingFileIsConnectionError(t *testing.T) {
	desc, err := BuildDescriptor(SQLite, Fields{Database: filepath.Join(t.TempDir(), "nope.db"), Table: "t"})
	require.NoError(t, err)

	_, err = Load(context.Background(), desc, DefaultConfig())
	require.Error(t, err)
	var appErr *errx.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errx.ConnectionErrorMessage, appErr.Message)
}

func TestNewCoversEveryDialect(t *testing.T) {
	for _, d := range Dialects {
		c, err := New(Descriptor{Dialect: d}, DefaultConfig())
		require.NoError(t, err, d.String())
		assert.NotNil(t, c)
	}
	_, err := New(Descriptor{Dialect: Dialect(0)}, DefaultConfig())
	assert.ErrorIs(t, err, errx.ErrUnknownDialect)
}

func TestDSNBuilders(t *testing.T) {
	desc := Descriptor{
		Dialect:  PostgreSQL,
		Host:     ptr("db.internal"),
		Port:     ptr(5432),
		Username: ptr("analyst"),
		Password: ptr("p@ss word"),
		Database: "warehouse",
	}
	assert.Equal(t, "host=db.internal port=5432 dbname=warehouse sslmode=prefer user=analyst password='p@ss word'", buildPostgresDSN(desc))

	desc.Dialect = MySQL
	dsn := buildMySQLDSN(desc)
	assert.True(t, strings.HasPrefix(dsn, "analyst:p@ss word@tcp(db.internal:5432)/warehouse"), dsn)

	assert.Equal(t, "file:/data/a.db?mode=ro", buildSQLiteDSN(Descriptor{Database: "/data/a.db"}))
}

func TestAirtableFormula(t *testing.T) {
	f, err := airtableFormula([]Condition{{Column: "Status", Op: "=", Value: "it's done"}})
	require.NoError(t, err)
	assert.Equal(t, `{Status} = 'it\'s done'`, f)

	f, err = airtableFormula([]Condition{
		{Column: "Qty", Op: "<>", Value: float64(3)},
		{Column: "Tag", Op: "IN", Value: []any{"a", "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `AND({Qty} != 3, OR({Tag} = 'a', {Tag} = 'b'))`, f)

	_, err = airtableFormula([]Condition{{Column: "Name", Op: "LIKE", Value: "A%"}})
	assert.Error(t, err)
}

func TestAirtableFormulaEscapesBackslashes(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{`C:\`, `{Path} = 'C:\\'`},
		{`x\') , TRUE(), ('`, `{Path} = 'x\\\') , TRUE(), (\''`},
		{`plain`, `{Path} = 'plain'`},
	}
	for _, tt := range tests {
		f, err := airtableFormula([]Condition{{Column: "Path", Op: "=", Value: tt.value}})
		require.NoError(t, err)
		assert.Equal(t, tt.want, f, tt.value)
	}
}

func TestAirtableExecutePaginates(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("offset") {
		case "":
			_, _ = w.Write([]byte(`{"records":[{"id":"rec1","fields":{"Name":"Ada","Qty":2}}],"offset":"page2"}`))
		default:
			_, _ = w.Write([]byte(`{"records":[{"id":"rec2","fields":{"Name":"Grace","Qty":3.5,"Tags":["x","y"]}}]}`))
		}
	}))
	defer srv.Close()

	desc, err := BuildDescriptor(Airtable, Fields{BaseID: "app1", TableName: "Orders", APIKey: "key"})
	require.NoError(t, err)
	c := newAirtable(desc, DefaultConfig())
	c.baseURL = srv.URL

	require.NoError(t, c.Connect(context.Background()))
	ds, err := c.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Qty", "Tags"}, ds.ColumnNames())
	require.Equal(t, 2, ds.NumRows())
	assert.Equal(t, dataset.TypeFloat, ds.Columns[1].Type)
	assert.Equal(t, `["x","y"]`, ds.Rows[1][2])
	assert.Nil(t, ds.Rows[0][2])
	assert.Equal(t, 3, calls)
}
