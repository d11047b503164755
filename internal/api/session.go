package api

import (
	"net/http"
)

const sessionCookie = "olibox"

// sessionID resolves the caller's session from its cookie, starting a new
// one when the cookie is missing or expired, and refreshes the cookie.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	var current string
	if c, err := r.Cookie(sessionCookie); err == nil {
		current = c.Value
	}
	store := s.session.Store()
	id := store.Ensure(current)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(store.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
