package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/buckleypaul/benchlab/internal/api"
)

type cookiePayload struct {
	Email   string `json:"email"`
	Expires int64  `json:"exp"`
}

func (s *Server) emailMatches(email string) bool {
	want := strings.ToLower(strings.TrimSpace(s.cfg.UserEmail))
	got := strings.ToLower(strings.TrimSpace(email))
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// authenticated reports whether r carries a valid session cookie or the
// user header.
func (s *Server) authenticated(r *http.Request) bool {
	if h := r.Header.Get(api.UserHeader); h != "" {
		return s.emailMatches(h)
	}
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return false
	}
	var p cookiePayload
	if err := s.cookies.Decode(s.cfg.CookieName, c.Value, &p); err != nil {
		return false
	}
	if p.Expires != 0 && s.cfg.Now().Unix() > p.Expires {
		return false
	}
	return s.emailMatches(p.Email)
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			writeJSONError(w, http.StatusUnauthorized, api.CodeUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, api.CodeBadRequest, "invalid json")
			return
		}
	} else {
		req.Email = r.FormValue("email")
	}
	if !s.emailMatches(req.Email) {
		s.logger.Warn("login rejected", "remote", r.RemoteAddr)
		writeJSONError(w, http.StatusUnauthorized, api.CodeUnauthorized, "invalid email address")
		return
	}

	expires := s.lab.Window().NominalEnd
	value, err := s.cookies.Encode(s.cfg.CookieName, cookiePayload{Email: req.Email, Expires: expires.Unix()})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, api.CodeInternal, "session error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    value,
		Path:     s.cookiePath(),
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("user logged in")
	writeJSON(w, http.StatusOK, api.LoginResponse{OK: true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     s.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, api.LoginResponse{OK: true})
}

func (s *Server) cookiePath() string {
	if s.cfg.Prefix == "" {
		return "/"
	}
	return s.cfg.Prefix
}
