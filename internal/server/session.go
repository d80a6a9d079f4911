package server

import (
	"context"
	"net/http"

	"github.com/deltax-data-professor/server/internal/session"
)

const (
	cookieName  = "deltax_session"
	cookieIDKey = "id"
)

type sessionKey struct{}

// withSession resolves the session from the cookie, creating one when the
// cookie is missing, invalid or expired.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A decode error still yields a fresh cookie session.
		cs, _ := s.store.Get(r, cookieName)
		id, _ := cs.Values[cookieIDKey].(string)

		sess := s.deps.Sessions.GetOrCreate(id)
		if sess.ID != id {
			cs.Values[cookieIDKey] = sess.ID
			if err := cs.Save(r, w); err != nil {
				writeError(w, err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}
