// Package provider holds the closed set of LLM vendors, their static
// descriptors, and the adapters that list the models each vendor offers.
package provider

import (
	"fmt"
	"strings"

	errx "github.com/deltax-data-professor/server/internal/core/error"
)

// Provider is one of the supported LLM vendors.
type Provider int

const (
	PandasAI Provider = iota + 1
	OpenAI
	GoogleGemini
	Groq
	Anthropic
)

// All lists every provider in display order.
var All = []Provider{PandasAI, OpenAI, GoogleGemini, Groq, Anthropic}

func (p Provider) String() string {
	switch p {
	case PandasAI:
		return "PandasAI"
	case OpenAI:
		return "OpenAI"
	case GoogleGemini:
		return "Google Gemini"
	case Groq:
		return "Groq"
	case Anthropic:
		return "Anthropic"
	}
	return fmt.Sprintf("Provider(%d)", int(p))
}

// Valid reports whether p is a member of the closed provider set.
func (p Provider) Valid() bool {
	return p >= PandasAI && p <= Anthropic
}

// MarshalText encodes the display name.
func (p Provider) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, errx.Config(fmt.Errorf("%w: %d", errx.ErrUnknownProvider, int(p)))
	}
	return []byte(p.String()), nil
}

// UnmarshalText accepts any name Parse accepts.
func (p *Provider) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Parse resolves a display name. "Antropic" is kept as an alias for older clients.
func Parse(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pandasai":
		return PandasAI, nil
	case "openai":
		return OpenAI, nil
	case "google gemini", "gemini", "google":
		return GoogleGemini, nil
	case "groq":
		return Groq, nil
	case "anthropic", "antropic":
		return Anthropic, nil
	}
	return 0, errx.Config(fmt.Errorf("%w: %q", errx.ErrUnknownProvider, name))
}

// Source tells whether a provider's model list is fixed or fetched live.
type Source string

const (
	SourceStatic  Source = "static"
	SourceDynamic Source = "dynamic"
)

// Descriptor is the static display information for a provider.
type Descriptor struct {
	Provider Provider `json:"name"`
	KeyLabel string   `json:"key_label"`
	HelpURL  string   `json:"help_url"`
	Source   Source   `json:"model_source"`
}

var (
	pandasAIModels  = []string{"BambooLLM"}
	anthropicModels = []string{
		"claude-3-5-sonnet-20240620",
		"claude-3-sonnet-20240229",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
)

// Describe returns the credential key label and help URL for p.
func Describe(p Provider) (Descriptor, error) {
	switch p {
	case PandasAI:
		return Descriptor{p, "PANDASAI_API_KEY", "https://www.pandabi.ai/admin/api-keys", SourceStatic}, nil
	case OpenAI:
		return Descriptor{p, "OPENAI_API_KEY", "https://platform.openai.com/api-keys", SourceDynamic}, nil
	case GoogleGemini:
		return Descriptor{p, "GOOGLE_API_KEY", "https://aistudio.google.com/app/apikey", SourceDynamic}, nil
	case Groq:
		return Descriptor{p, "GROQ_API_KEY", "https://console.groq.com/keys", SourceDynamic}, nil
	case Anthropic:
		return Descriptor{p, "ANTHROPIC_API_KEY", "https://console.anthropic.com/settings/keys", SourceStatic}, nil
	}
	return Descriptor{}, errx.Config(fmt.Errorf("%w: %s", errx.ErrUnknownProvider, p))
}

// Descriptors returns the descriptor of every provider in display order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(All))
	for _, p := range All {
		d, _ := Describe(p)
		out = append(out, d)
	}
	return out
}
