package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/deltax-data-professor/server/internal/core"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

type errorBody struct {
	Error   string        `json:"error"`
	Notices []core.Notice `json:"notices,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status and a message safe to show.
func writeError(w http.ResponseWriter, err error, notices ...core.Notice) {
	status := errx.Status(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: errx.Message(err), Notices: notices})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errx.Validation(err)
	}
	return nil
}

// multipartMemory is how much of a form is held in memory before spilling to
// temporary files.
const multipartMemory = 32 << 20

// parseUpload caps the request body at limit and parses it as a multipart
// form. A body over the cap is a 413.
func parseUpload(w http.ResponseWriter, r *http.Request, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(min(limit, multipartMemory)); err != nil {
		return uploadError(err, limit)
	}
	return nil
}

func uploadError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errx.New(err, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload is larger than %d bytes", limit))
	}
	return errx.Validation(err)
}
