// Package credential collects the sign-in form and freezes it into the
// credential record the LLM adapter is built from.
package credential

import (
	"fmt"
	"strings"

	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/provider"
)

// DefaultTemperature is the sampling temperature forwarded to every provider.
const DefaultTemperature float32 = 0.7

// Field names accepted by Form.Set.
const (
	FieldUsername = "username"
	FieldProvider = "provider"
	FieldAPIKey   = "api_key"
	FieldModel    = "model"
)

// Form accumulates sign-in fields as they are entered.
type Form struct {
	Username string `json:"username"`
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// SignedIn reports whether every field is filled in.
func (f Form) SignedIn() bool {
	return notBlank(f.Username) && notBlank(f.Provider) && notBlank(f.APIKey) && notBlank(f.Model)
}

// Missing lists the empty fields in form order.
func (f Form) Missing() []string {
	var out []string
	for _, fv := range [][2]string{
		{FieldUsername, f.Username},
		{FieldProvider, f.Provider},
		{FieldAPIKey, f.APIKey},
		{FieldModel, f.Model},
	} {
		if !notBlank(fv[1]) {
			out = append(out, fv[0])
		}
	}
	return out
}

// Set updates one field and returns the recomputed completeness.
// Changing the provider clears the key and model picked for the previous one.
func (f *Form) Set(field, value string) (bool, error) {
	switch field {
	case FieldUsername:
		f.Username = value
	case FieldProvider:
		if f.Provider != value {
			f.APIKey, f.Model = "", ""
		}
		f.Provider = value
	case FieldAPIKey:
		f.APIKey = value
	case FieldModel:
		f.Model = value
	default:
		return f.SignedIn(), errx.Validation(fmt.Errorf("unknown field %q", field))
	}
	return f.SignedIn(), nil
}

// Submit freezes the form into a Record. It fails while the form is incomplete.
func (f Form) Submit() (Record, error) {
	if !f.SignedIn() {
		return Record{}, errx.Validation(fmt.Errorf("%w: missing %s", errx.ErrIncomplete, strings.Join(f.Missing(), ", ")))
	}
	p, err := provider.Parse(f.Provider)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Username:    strings.TrimSpace(f.Username),
		Provider:    p,
		APIKey:      strings.TrimSpace(f.APIKey),
		Model:       strings.TrimSpace(f.Model),
		Temperature: DefaultTemperature,
	}, nil
}

// Record is the immutable credential of a signed-in session.
type Record struct {
	Username    string            `json:"username"`
	Provider    provider.Provider `json:"provider"`
	APIKey      string            `json:"-"`
	Model       string            `json:"model"`
	Temperature float32           `json:"temperature"`
}

// WithTemperature returns a copy using t.
func (r Record) WithTemperature(t float32) Record {
	r.Temperature = t
	return r
}

// Welcome is the greeting shown after sign-in.
func (r Record) Welcome() string {
	return fmt.Sprintf("Dear %s, welcome to DeltaX Data Professor", titleCase(r.Username))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}
