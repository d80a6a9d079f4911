package connector

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	dbsql "github.com/databricks/databricks-sql-go"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"
)

func newMySQL(desc Descriptor, cfg Config) *sqlConnector {
	return &sqlConnector{desc: desc, cfg: cfg, syntax: backtickDialect, open: func() (*sql.DB, error) {
		return sql.Open("mysql", buildMySQLDSN(desc))
	}}
}

func buildMySQLDSN(desc Descriptor) string {
	c := mysql.NewConfig()
	c.User = deref(desc.Username)
	c.Passwd = deref(desc.Password)
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(orDefault(deref(desc.Host), DefaultHost), strconv.Itoa(portOr(desc.Port, DefaultPort)))
	c.DBName = desc.Database
	c.ParseTime = true
	return c.FormatDSN()
}

func newPostgres(desc Descriptor, cfg Config) *sqlConnector {
	return &sqlConnector{desc: desc, cfg: cfg, syntax: postgresDialect, open: func() (*sql.DB, error) {
		return sql.Open("pgx", buildPostgresDSN(desc))
	}}
}

// buildPostgresDSN constructs a key=value connection string.
func buildPostgresDSN(desc Descriptor) string {
	parts := []string{
		"host=" + pgQuote(orDefault(deref(desc.Host), DefaultHost)),
		fmt.Sprintf("port=%d", portOr(desc.Port, DefaultPort)),
		"dbname=" + pgQuote(desc.Database),
		"sslmode=prefer",
	}
	if u := deref(desc.Username); u != "" {
		parts = append(parts, "user="+pgQuote(u))
	}
	if p := deref(desc.Password); p != "" {
		parts = append(parts, "password="+pgQuote(p))
	}
	return strings.Join(parts, " ")
}

func pgQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func newSQLite(desc Descriptor, cfg Config) *sqlConnector {
	return &sqlConnector{desc: desc, cfg: cfg, syntax: ansiDialect, open: func() (*sql.DB, error) {
		return sql.Open("sqlite", buildSQLiteDSN(desc))
	}}
}

// buildSQLiteDSN opens the file read-only so a missing file fails instead of
// being created.
func buildSQLiteDSN(desc Descriptor) string {
	return fmt.Sprintf("file:%s?mode=ro", desc.Database)
}

func newSnowflake(desc Descriptor, cfg Config) *sqlConnector {
	return &sqlConnector{desc: desc, cfg: cfg, syntax: ansiDialect, open: func() (*sql.DB, error) {
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:   deref(desc.Account),
			User:      deref(desc.Username),
			Password:  deref(desc.Password),
			Database:  desc.Database,
			Schema:    deref(desc.Schema),
			Warehouse: deref(desc.Warehouse),
		})
		if err != nil {
			return nil, err
		}
		return sql.Open("snowflake", dsn)
	}}
}

func newDatabricks(desc Descriptor, cfg Config) *sqlConnector {
	return &sqlConnector{desc: desc, cfg: cfg, syntax: backtickDialect, open: func() (*sql.DB, error) {
		c, err := dbsql.NewConnector(
			dbsql.WithServerHostname(deref(desc.Host)),
			dbsql.WithPort(portOr(desc.Port, DefaultDatabricksPort)),
			dbsql.WithHTTPPath(deref(desc.HTTPPath)),
			dbsql.WithAccessToken(deref(desc.Token)),
			dbsql.WithInitialNamespace("", desc.Database),
		)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(c), nil
	}}
}

func portOr(p *int, def int) int {
	if p == nil || *p == 0 {
		return def
	}
	return *p
}
