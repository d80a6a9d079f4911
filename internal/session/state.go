// Package session holds the typed per-user state, the data source dispatcher
// and the task supervisor that keeps stale results out of it.
package session

import (
	"fmt"
	"strings"

	"github.com/deltax-data-professor/server/internal/agent/model"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/credential"
	"github.com/deltax-data-professor/server/internal/dataset"
	"github.com/deltax-data-professor/server/internal/ingest"
	"github.com/deltax-data-professor/server/internal/llm"
	"github.com/deltax-data-professor/server/internal/provider"
)

// Mode is the active data source.
type Mode int

const (
	ModeFile Mode = iota
	ModeDatabase
)

func (m Mode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDatabase:
		return "database"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode accepts "file" and "database".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return ModeFile, nil
	case "database", "db":
		return ModeDatabase, nil
	}
	return 0, errx.Validation(fmt.Errorf("unknown data source mode %q", s))
}

// RequireMode is a BeginIf guard that only admits tasks for mode m.
func RequireMode(m Mode) func(*State) error {
	return func(st *State) error {
		if st.Mode != m {
			return errx.Validation(fmt.Errorf("data source is set to %s, not %s", st.Mode, m))
		}
		return nil
	}
}

// Voice is the voice input setting. GroqKey is a key supplied only for
// transcription when the signed-in provider is not Groq.
type Voice struct {
	Enabled bool   `json:"enabled"`
	GroqKey string `json:"-"`
}

// State is everything a session remembers between requests.
type State struct {
	Form       credential.Form
	Credential *credential.Record
	Adapter    *llm.Adapter

	Mode     Mode
	Datasets []*dataset.Dataset
	// Pending is an uploaded spreadsheet waiting for its sheet selection.
	Pending    *ingest.Upload
	LastResult *model.QueryResult

	Voice Voice

	// Generation increases on every Reset.
	Generation uint64
}

// SignedIn reports whether a credential has been frozen.
func (s *State) SignedIn() bool {
	return s.Credential != nil && s.Adapter != nil
}

// Reset drops everything derived from the current data source.
func (s *State) Reset() {
	s.Datasets = nil
	s.Pending = nil
	s.LastResult = nil
	s.Generation++
}

// SetMode switches the data source, resetting the state when it changes.
// It reports whether the mode changed.
func (s *State) SetMode(m Mode) bool {
	if s.Mode == m {
		return false
	}
	s.Reset()
	s.Mode = m
	return true
}

// SetDatasets replaces the datasets wholesale.
func (s *State) SetDatasets(ds []*dataset.Dataset) {
	s.Datasets = ds
	s.LastResult = nil
}

// SignIn freezes rec and its adapter into the state.
func (s *State) SignIn(rec credential.Record, adapter *llm.Adapter) {
	s.Credential = &rec
	s.Adapter = adapter
}

// SignOut destroys the credential and everything loaded under it.
func (s *State) SignOut() {
	s.Reset()
	s.Form = credential.Form{}
	s.Credential = nil
	s.Adapter = nil
	s.Voice = Voice{}
	s.Mode = ModeFile
}

// SetVoice toggles voice input. A non-empty key replaces the stored one;
// turning voice off keeps it.
func (s *State) SetVoice(enabled bool, groqKey string) {
	s.Voice.Enabled = enabled
	if k := strings.TrimSpace(groqKey); k != "" {
		s.Voice.GroqKey = k
	}
}

// GroqKey is the key used for transcription: the separately supplied one,
// else the signed-in credential when it is a Groq credential.
func (s *State) GroqKey() string {
	if s.Voice.GroqKey != "" {
		return s.Voice.GroqKey
	}
	if s.Credential != nil && s.Credential.Provider == provider.Groq {
		return s.Credential.APIKey
	}
	return ""
}

// VoiceEnabled is true iff the toggle is on and a Groq key is available.
func (s *State) VoiceEnabled() bool {
	return s.Voice.Enabled && s.GroqKey() != ""
}
