package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"intsync/internal/config"
	"intsync/internal/models"
	"intsync/internal/store"
)

const sessionCookie = "session_token"

type authContextKey struct{}

type authInfo struct {
	Session models.Session
	User    models.User
}

var publicPaths = map[string]bool{
	"/login":    true,
	"/signup":   true,
	"/about":    true,
	"/contact":  true,
	"/healthz":  true,
	"/metrics":  true,
	"/api/auth": true,
}

var publicPrefixes = []string{"/api/auth/", "/static/", "/realtime/"}

// AuthMiddleware resolves the session of every non-public request and applies
// the route policy. Pages without a session are sent to the login page; API
// calls get a JSON 401.
func AuthMiddleware(st store.Store, policy config.RoutePolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		info, err := resolveSession(r.Context(), st, sessionIDFromRequest(r))
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				denyUnauthenticated(w, r, err.Error())
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if !policy.Allowed(r.Method, r.URL.Path, info.User.Role) {
			writeError(w, r, http.StatusForbidden, "access_denied", "insufficient role")
			return
		}
		setRequestUser(r.Context(), info.User.UserID)
		ctx := context.WithValue(r.Context(), authContextKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func resolveSession(ctx context.Context, st store.Store, sessionID string) (authInfo, error) {
	if sessionID == "" {
		return authInfo{}, store.ErrSessionNotFound
	}
	session, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return authInfo{}, err
	}
	user, err := st.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return authInfo{}, store.ErrSessionNotFound
		}
		return authInfo{}, err
	}
	return authInfo{Session: session, User: user}, nil
}

func denyUnauthenticated(w http.ResponseWriter, r *http.Request, message string) {
	if isAPIRequest(r) {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", message)
		return
	}
	target := "/login"
	if next := r.URL.RequestURI(); next != "" && next != "/" {
		target += "?next=" + url.QueryEscape(next)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func authFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	if !ok {
		return authInfo{}, false
	}
	return info, true
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func isPublicEndpoint(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	if publicPaths[r.URL.Path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

func sessionIDFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/tickets"
	}
	return next
}
