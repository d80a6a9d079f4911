package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/connector"
	"github.com/deltax-data-professor/server/internal/core"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/credential"
	"github.com/deltax-data-professor/server/internal/dataset"
	"github.com/deltax-data-professor/server/internal/ingest"
	"github.com/deltax-data-professor/server/internal/llm"
	"github.com/deltax-data-professor/server/internal/provider"
	"github.com/deltax-data-professor/server/internal/session"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

const previewRows = 5

var errSuperseded = errx.New(errors.New("superseded"), http.StatusConflict, "superseded by a newer request")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ================ Sign-in ================

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": provider.Descriptors()})
}

type apiKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, errx.Validation(err))
		return
	}
	p, err := provider.Parse(name)
	if err != nil {
		writeError(w, err)
		return
	}
	var req apiKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess := sessionFrom(r.Context())
	ctx, tok := sess.Begin(r.Context(), session.TaskListModels)
	defer sess.End(tok)

	models, notices := s.deps.Providers.ListModels(ctx, p, req.APIKey)
	if !sess.Commit(tok, func(*session.State) {}) {
		writeError(w, errSuperseded)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models, "notices": notices})
}

// formPatch carries the fields changed since the last check. Fields are
// applied in form order so a provider change clears the key and model first.
type formPatch struct {
	Username *string `json:"username"`
	Provider *string `json:"provider"`
	APIKey   *string `json:"api_key"`
	Model    *string `json:"model"`
}

func (p formPatch) apply(f *credential.Form) error {
	for _, kv := range []struct {
		field string
		value *string
	}{
		{credential.FieldUsername, p.Username},
		{credential.FieldProvider, p.Provider},
		{credential.FieldAPIKey, p.APIKey},
		{credential.FieldModel, p.Model},
	} {
		if kv.value == nil {
			continue
		}
		if _, err := f.Set(kv.field, *kv.value); err != nil {
			return err
		}
	}
	return nil
}

type formStatus struct {
	SignedIn bool     `json:"signed_in"`
	Missing  []string `json:"missing"`
}

func (s *Server) handleCheckCredentials(w http.ResponseWriter, r *http.Request) {
	var patch formPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	var (
		form credential.Form
		err  error
	)
	sessionFrom(r.Context()).Update(func(st *session.State) {
		err = patch.apply(&st.Form)
		form = st.Form
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formStatus{SignedIn: form.SignedIn(), Missing: nonNil(form.Missing())})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var patch formPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}
	sess := sessionFrom(r.Context())

	var form credential.Form
	sess.View(func(st *session.State) { form = st.Form })
	if err := patch.apply(&form); err != nil {
		writeError(w, err)
		return
	}
	rec, err := form.Submit()
	if err != nil {
		writeError(w, err)
		return
	}
	adapter, err := s.deps.NewAdapter(r.Context(), rec, s.deps.LLM)
	if err != nil {
		writeError(w, err)
		return
	}

	sess.Update(func(st *session.State) {
		st.Form = form
		st.SignIn(rec, adapter)
	})
	logx.Info().Str("session_id", sess.ID).Str("provider", rec.Provider.String()).Str("model", adapter.Model).Msg("signed in")

	writeJSON(w, http.StatusOK, map[string]any{
		"welcome":     rec.Welcome(),
		"provider":    rec.Provider,
		"model":       adapter.Model,
		"temperature": rec.Temperature,
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.Update(func(st *session.State) { st.SignOut() })
	if err := s.deps.Agent.Forget(r.Context(), sess.ID); err != nil {
		logx.Warn().Err(err).Str("session_id", sess.ID).Msg("Error clearing session data")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"signed_out": true})
}

// ================ Data sources ================

type sourceRequest struct {
	Mode session.Mode `json:"mode"`
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	var changed bool
	sessionFrom(r.Context()).Update(func(st *session.State) { changed = st.SetMode(req.Mode) })
	writeJSON(w, http.StatusOK, map[string]any{"mode": req.Mode, "reset": changed})
}

func (s *Server) handleSheetNames(w http.ResponseWriter, r *http.Request) {
	if err := parseUpload(w, r, s.cfg.MaxUploadBytes); err != nil {
		writeError(w, err)
		return
	}
	uploads, err := readUploads(r.MultipartForm, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	if len(uploads) != 1 {
		writeError(w, errx.Validation(errors.New("exactly one file is required")))
		return
	}
	u := uploads[0]
	if kind, ok := ingest.KindOf(u.Name); !ok || !kind.IsSpreadsheet() {
		writeError(w, errx.Validation(fmt.Errorf("%s is not a spreadsheet", u.Name)))
		return
	}

	sheets, err := s.deps.Sources.SheetNames(u)
	if err != nil {
		writeError(w, errx.Validation(err))
		return
	}
	sessionFrom(r.Context()).Update(func(st *session.State) { st.Pending = &u })
	writeJSON(w, http.StatusOK, map[string]any{"file": u.Name, "sheets": sheets})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := parseUpload(w, r, s.cfg.MaxUploadBytes); err != nil {
		writeError(w, err)
		return
	}
	uploads, err := readUploads(r.MultipartForm, "files")
	if err != nil {
		writeError(w, err)
		return
	}
	opts := ingest.Options{Sheets: splitValues(r.MultipartForm.Value["sheets"])}

	sess := sessionFrom(r.Context())
	ctx, tok, err := sess.BeginIf(r.Context(), session.TaskIngest, func(st *session.State) error {
		if err := session.RequireMode(session.ModeFile)(st); err != nil {
			return err
		}
		if len(uploads) == 0 && st.Pending != nil {
			uploads = []ingest.Upload{*st.Pending}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer sess.End(tok)

	res := s.deps.Sources.Files(ctx, uploads, opts)
	committed := sess.Commit(tok, func(st *session.State) {
		if len(res.Datasets) > 0 {
			st.SetDatasets(res.Datasets)
		}
		st.Pending = nil
	})
	if !committed {
		writeError(w, errSuperseded, res.Notices...)
		return
	}
	writeJSON(w, http.StatusOK, datasetsResponse{Datasets: previews(res.Datasets, previewRows), Notices: res.Notices})
}

type databaseRequest struct {
	Dialect string           `json:"dialect"`
	Fields  connector.Fields `json:"fields"`
}

func (s *Server) handleDatabase(w http.ResponseWriter, r *http.Request) {
	var req databaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess := sessionFrom(r.Context())
	ctx, tok, err := sess.BeginIf(r.Context(), session.TaskConnect, session.RequireMode(session.ModeDatabase))
	if err != nil {
		writeError(w, err)
		return
	}
	defer sess.End(tok)

	ds, notice := s.deps.Sources.Database(ctx, req.Dialect, req.Fields)
	if notice != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: notice.Message, Notices: []core.Notice{*notice}})
		return
	}
	if !sess.Commit(tok, func(st *session.State) { st.SetDatasets([]*dataset.Dataset{ds}) }) {
		writeError(w, errSuperseded)
		return
	}
	writeJSON(w, http.StatusOK, datasetsResponse{
		Datasets: previews([]*dataset.Dataset{ds}, previewRows),
		Notices:  []core.Notice{core.Info("Loaded %d rows from %s", ds.NumRows(), ds.Source)},
	})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	rows := previewRows
	if v := r.URL.Query().Get("rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, errx.Validation(fmt.Errorf("invalid rows %q", v)))
			return
		}
		rows = n
	}
	var sets []*dataset.Dataset
	sessionFrom(r.Context()).View(func(st *session.State) { sets = st.Datasets })
	writeJSON(w, http.StatusOK, datasetsResponse{Datasets: previews(sets, rows)})
}

// ================ Voice ================

type voiceRequest struct {
	Enabled bool   `json:"enabled"`
	GroqKey string `json:"groq_key"`
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	var enabled bool
	sessionFrom(r.Context()).Update(func(st *session.State) {
		st.SetVoice(req.Enabled, req.GroqKey)
		enabled = st.VoiceEnabled()
	})

	var notices []core.Notice
	if req.Enabled && !enabled {
		notices = append(notices, core.Warning("Please provide a Groq API key to use voice input"))
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled, "notices": notices})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var (
		enabled bool
		key     string
	)
	sess.View(func(st *session.State) {
		enabled = st.VoiceEnabled()
		key = st.GroqKey()
	})
	if !enabled {
		writeError(w, errx.Validation(errors.New("voice input is disabled")))
		return
	}

	audio, err := readAudio(w, r, s.cfg.MaxUploadBytes)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, tok := sess.Begin(r.Context(), session.TaskTranscribe)
	defer sess.End(tok)

	text, notice := s.deps.Transcriber.Transcribe(ctx, audio, key)
	if notice != nil && notice.Level == core.LevelError {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: notice.Message, Notices: []core.Notice{*notice}})
		return
	}
	var notices []core.Notice
	if notice != nil {
		notices = append(notices, *notice)
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text, "notices": notices})
}

// ================ Questions ================

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	*model.QueryResult
	ChartURL string `json:"chart_url,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess := sessionFrom(r.Context())

	var (
		adapter *llm.Adapter
		sets    []*dataset.Dataset
	)
	ctx, tok, err := sess.BeginIf(r.Context(), session.TaskAsk, func(st *session.State) error {
		if st.Adapter == nil {
			return errx.New(errx.ErrNotSignedIn, http.StatusUnauthorized, "please sign in first")
		}
		adapter, sets = st.Adapter, st.Datasets
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer sess.End(tok)

	res, err := s.deps.Agent.Analyze(ctx, sess.ID, sets, adapter, req.Query)
	if err != nil {
		if errors.Is(err, context.Canceled) && !sess.Commit(tok, func(*session.State) {}) {
			writeError(w, errSuperseded)
			return
		}
		writeError(w, err, core.Errorf("%s", errx.Message(err)))
		return
	}
	if !sess.Commit(tok, func(st *session.State) { st.LastResult = res }) {
		writeError(w, errSuperseded)
		return
	}

	out := askResponse{QueryResult: res}
	if res.Type == model.ResultPlot {
		out.ChartURL = "/api/chart"
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	var res *model.QueryResult
	sessionFrom(r.Context()).View(func(st *session.State) { res = st.LastResult })
	if res == nil || res.Type != model.ResultPlot || res.ChartPath == "" {
		writeError(w, errx.New(errx.ErrNoResult, http.StatusNotFound, "no chart available"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(res.ChartPath)))
	http.ServeFile(w, r, res.ChartPath)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	questions := s.deps.Agent.History(r.Context(), sessionFrom(r.Context()).ID)
	writeJSON(w, http.StatusOK, map[string]any{"questions": nonNil(questions)})
}

// ================ Helpers ================

type datasetPreview struct {
	Name     string           `json:"name"`
	Source   string           `json:"source,omitempty"`
	Columns  []dataset.Column `json:"columns"`
	RowCount int              `json:"row_count"`
	Rows     [][]any          `json:"rows"`
}

type datasetsResponse struct {
	Datasets []datasetPreview `json:"datasets"`
	Notices  []core.Notice    `json:"notices,omitempty"`
}

func previews(sets []*dataset.Dataset, rows int) []datasetPreview {
	out := make([]datasetPreview, 0, len(sets))
	for _, ds := range sets {
		head := ds.Head(rows)
		out = append(out, datasetPreview{
			Name:     ds.Name,
			Source:   ds.Source,
			Columns:  ds.Columns,
			RowCount: ds.NumRows(),
			Rows:     head.Rows,
		})
	}
	return out
}

func readUploads(form *multipart.Form, field string) ([]ingest.Upload, error) {
	var out []ingest.Upload
	for _, fh := range form.File[field] {
		data, err := readPart(fh)
		if err != nil {
			return nil, errx.Validation(fmt.Errorf("read %s: %w", fh.Filename, err))
		}
		out = append(out, ingest.Upload{Name: fh.Filename, Data: data})
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// readAudio accepts a multipart "audio" part or a raw request body, at most
// limit bytes either way.
func readAudio(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := parseUpload(w, r, limit); err != nil {
			return nil, err
		}
		fhs := r.MultipartForm.File["audio"]
		if len(fhs) == 0 {
			return nil, errx.Validation(errors.New("audio part is missing"))
		}
		data, err := readPart(fhs[0])
		if err != nil {
			return nil, errx.Validation(err)
		}
		return data, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, uploadError(err, limit)
	}
	return data, nil
}

// splitValues flattens repeated and comma separated form values.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
