package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"intsync/internal/models"
	"intsync/internal/store"
)

const minPasswordLength = 8

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

type sessionResponse struct {
	SessionID string      `json:"session_id"`
	ExpiresAt string      `json:"expires_at"`
	User      models.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	form := isFormPost(r)
	var req loginRequest
	if form {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid form payload")
			return
		}
		req = loginRequest{Email: r.PostForm.Get("email"), Password: r.PostForm.Get("password"), Next: r.PostForm.Get("next")}
	} else if !decodeRequest(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		h.authFailed(w, r, form, "login", http.StatusBadRequest, "invalid_request", "email and password are required", req.Next)
		return
	}

	user, err := h.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			h.authFailed(w, r, form, "login", http.StatusUnauthorized, "invalid_credentials", "invalid credentials", req.Next)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.startSession(w, r, user, form, req.Next, "auth.login")
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	form := isFormPost(r)
	var req signupRequest
	if form {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid form payload")
			return
		}
		req = signupRequest{
			Email:    r.PostForm.Get("email"),
			Name:     r.PostForm.Get("name"),
			Password: r.PostForm.Get("password"),
			Next:     r.PostForm.Get("next"),
		}
	} else if !decodeRequest(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if !strings.Contains(req.Email, "@") || req.Name == "" {
		h.authFailed(w, r, form, "signup", http.StatusBadRequest, "invalid_request", "name and a valid email are required", req.Next)
		return
	}
	if len(req.Password) < minPasswordLength {
		h.authFailed(w, r, form, "signup", http.StatusBadRequest, "invalid_request", "password must be at least 8 characters", req.Next)
		return
	}

	// The first account bootstraps the installation as its administrator.
	user, err := h.store.CreateUser(r.Context(), store.CreateUserInput{
		Email:          req.Email,
		Name:           req.Name,
		Password:       req.Password,
		Role:           models.RoleStaff,
		FirstUserAdmin: true,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			h.authFailed(w, r, form, "signup", http.StatusConflict, "email_taken", "email already registered", req.Next)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.startSession(w, r, user, form, req.Next, "auth.signup")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID := sessionIDFromRequest(r); sessionID != "" {
		if info, err := resolveSession(r.Context(), h.store, sessionID); err == nil {
			h.recordAuditAs(r, info.User.UserID, "auth.logout", "session", "", "")
		}
		if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	if isFormPost(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	info, err := resolveSession(r.Context(), h.store, sessionIDFromRequest(r))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid session")
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: info.Session.SessionID,
		ExpiresAt: info.Session.ExpiresAt.Format(time.RFC3339),
		User:      info.User,
	})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user models.User, form bool, next, action string) {
	expiresAt := time.Now().UTC().Add(h.sessionTTL)
	session, err := h.store.CreateSession(r.Context(), user.UserID, expiresAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.SessionID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	h.recordAuditAs(r, user.UserID, action, "user", user.UserID, "")

	if form {
		http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: session.SessionID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		User:      user,
	})
}

func (h *Handler) authFailed(w http.ResponseWriter, r *http.Request, form bool, page string, status int, code, message, next string) {
	if !form {
		writeError(w, r, status, code, message)
		return
	}
	h.renderPage(w, r, status, page, authPage{Error: message, Next: next})
}

func isFormPost(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}
