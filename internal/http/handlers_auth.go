package http

import (
	"net/http"
	"time"

	"foodbudget/internal/core"
	"foodbudget/internal/log"
	authmw "foodbudget/internal/middleware/auth"
)

type sessionResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *core.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, log.OpSignup, err)
		return
	}
	c := parseCredentials(p)

	user, err := s.authn.Register(r.Context(), c.Email, c.DisplayName, c.Password)
	if err != nil {
		writeError(w, r, log.OpSignup, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "User registered",
		log.FieldUserID, user.ID, log.FieldOperation, log.OpSignup)
	s.startSession(w, r, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, log.OpLogin, err)
		return
	}
	c := parseCredentials(p)

	user, err := s.authn.Authenticate(r.Context(), c.Email, c.Password)
	if err != nil {
		log.FromContext(r.Context()).InfoContext(r.Context(), "Login failed",
			log.FieldOperation, log.OpLogin, log.FieldError, err)
		writeError(w, r, log.OpLogin, err)
		return
	}
	s.startSession(w, r, http.StatusOK, user)
}

// startSession issues a token and sets it both as the session cookie and in
// the body, for clients that prefer the Authorization header.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, status int, user *core.User) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		writeError(w, r, log.OpLogin, err)
		return
	}
	expires := time.Now().Add(s.tokens.TTL()).UTC()
	http.SetCookie(w, &http.Cookie{
		Name:     authmw.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	NewResponse().Status(status).JSON(sessionResponse{Token: token, ExpiresAt: expires, User: user}).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authmw.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	NewResponse().Status(http.StatusNoContent).Write(w)
}
