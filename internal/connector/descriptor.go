package connector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	errx "github.com/deltax-data-professor/server/internal/core/error"
)

const (
	DefaultHost           = "localhost"
	DefaultPort           = 3306
	DefaultDatabricksPort = 443
)

// Condition is one [column, op, value] filter of the WHERE clause.
type Condition struct {
	Column string
	Op     string
	Value  any
}

func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Column, c.Op, c.Value})
}

func (c *Condition) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("condition must be [column, op, value], got %d items", len(raw))
	}
	if err := json.Unmarshal(raw[0], &c.Column); err != nil {
		return fmt.Errorf("condition column: %w", err)
	}
	if err := json.Unmarshal(raw[1], &c.Op); err != nil {
		return fmt.Errorf("condition op: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw[2], &v); err != nil {
		return fmt.Errorf("condition value: %w", err)
	}
	c.Value = v
	return nil
}

// Fields are the raw values typed into the connection form.
type Fields struct {
	Host            string      `json:"host"`
	Port            string      `json:"port"`
	Username        string      `json:"username"`
	Password        string      `json:"password"`
	Database        string      `json:"database"`
	Table           string      `json:"table"`
	Where           []Condition `json:"where,omitempty"`
	Account         string      `json:"account"`
	Warehouse       string      `json:"warehouse"`
	Schema          string      `json:"schema"`
	Token           string      `json:"token"`
	HTTPPath        string      `json:"http_path"`
	BaseID          string      `json:"base_id"`
	TableName       string      `json:"table_name"`
	APIKey          string      `json:"api_key"`
	CredentialsPath string      `json:"credentials_path"`
	ProjectID       string      `json:"project_id"`
}

// Descriptor is a validated connection request. Pointer fields are nil
// exactly when the dialect does not use them.
type Descriptor struct {
	Dialect  Dialect     `json:"dialect"`
	Host     *string     `json:"host,omitempty"`
	Port     *int        `json:"port,omitempty"`
	Database string      `json:"database,omitempty"`
	Username *string     `json:"username,omitempty"`
	Password *string     `json:"-"`
	Table    string      `json:"table"`
	Where    []Condition `json:"where,omitempty"`

	Account   *string `json:"account,omitempty"`
	Warehouse *string `json:"warehouse,omitempty"`
	Schema    *string `json:"schema,omitempty"`

	Token    *string `json:"-"`
	HTTPPath *string `json:"http_path,omitempty"`

	BaseID *string `json:"base_id,omitempty"`
	APIKey *string `json:"-"`

	CredentialsPath *string `json:"credentials_path,omitempty"`
	ProjectID       *string `json:"project_id,omitempty"`
}

// BuildDescriptor applies dialect defaults and checks that every required
// field is present.
func BuildDescriptor(d Dialect, f Fields) (Descriptor, error) {
	v := validator{}
	desc := Descriptor{Dialect: d, Where: f.Where}

	switch d {
	case MySQL, PostgreSQL:
		desc.Host = ptr(orDefault(f.Host, DefaultHost))
		desc.Port = v.port(f.Port, DefaultPort)
		desc.Username = v.required("username", f.Username)
		desc.Password = v.required("password", f.Password)
		desc.Database = deref(v.required("database", f.Database))
		desc.Table = deref(v.required("table", f.Table))
	case SQLite:
		desc.Database = deref(v.required("database", f.Database))
		desc.Table = deref(v.required("table", f.Table))
	case Snowflake:
		desc.Account = v.required("account", f.Account)
		desc.Database = deref(v.required("database", f.Database))
		desc.Username = v.required("username", f.Username)
		desc.Password = v.required("password", f.Password)
		desc.Table = deref(v.required("table", f.Table))
		desc.Warehouse = v.required("warehouse", f.Warehouse)
		desc.Schema = v.required("schema", f.Schema)
	case Databricks:
		desc.Host = v.required("host", f.Host)
		desc.Port = v.port(f.Port, DefaultDatabricksPort)
		desc.Database = deref(v.required("database", f.Database))
		desc.Token = v.required("token", f.Token)
		desc.HTTPPath = v.required("http_path", f.HTTPPath)
		desc.Table = deref(v.required("table", f.Table))
	case Airtable:
		desc.BaseID = v.required("base_id", f.BaseID)
		desc.Table = deref(v.required("table_name", orDefault(f.TableName, f.Table)))
		desc.APIKey = v.required("api_key", f.APIKey)
	case BigQuery:
		desc.CredentialsPath = v.required("credentials_path", f.CredentialsPath)
		desc.Database = deref(v.required("database", f.Database))
		desc.Table = deref(v.required("table", f.Table))
		desc.ProjectID = v.required("project_id", f.ProjectID)
	default:
		return Descriptor{}, errx.Config(fmt.Errorf("%w: %s", errx.ErrUnknownDialect, d))
	}

	for _, c := range f.Where {
		if err := validateCondition(c); err != nil {
			v.problems = append(v.problems, err.Error())
		}
	}
	if len(v.problems) > 0 {
		return Descriptor{}, errx.Validation(fmt.Errorf("%w: %s", errx.ErrIncomplete, strings.Join(v.problems, "; ")))
	}
	return desc, nil
}

type validator struct {
	problems []string
}

func (v *validator) required(name, value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		v.problems = append(v.problems, name+" is required")
		return nil
	}
	return &value
}

func (v *validator) port(raw string, def int) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ptr(def)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 65535 {
		v.problems = append(v.problems, fmt.Sprintf("port %q is invalid", raw))
		return nil
	}
	return &n
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func ptr[T any](v T) *T {
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
