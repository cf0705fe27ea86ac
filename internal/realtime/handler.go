package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/rs/zerolog"

	"intsync/internal/models"
)

const sessionCookie = "session_token"

// Sessions resolves the session token a browser connects with.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
}

type HandlerOptions struct {
	Prefix string
	// Authorize decides whether a role may follow a topic. Nil allows all.
	Authorize func(role, topic string) bool
}

func NewHandler(hub *Hub, sessions Sessions, logger zerolog.Logger, opts HandlerOptions) http.Handler {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "/realtime"
	}
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		serveSession(hub, sessions, logger, opts.Authorize, session)
	})
}

func serveSession(hub *Hub, sessions Sessions, logger zerolog.Logger, authorize func(role, topic string) bool, session sockjs.Session) {
	token := tokenFromRequest(session.Request())
	if token == "" {
		_ = session.Close(4001, "missing session")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	authSession, err := sessions.GetSession(ctx, token)
	if err != nil {
		cancel()
		_ = session.Close(4002, "invalid session")
		return
	}
	user, err := sessions.GetUser(ctx, authSession.UserID)
	cancel()
	if err != nil {
		_ = session.Close(4003, "user lookup failed")
		return
	}

	client := NewClient(uuid.NewString(), user.UserID, user.Role)
	hub.Register(client)
	defer hub.Unregister(client)
	logger.Debug().Str("client_id", client.ID).Str("user_id", user.UserID).Msg("realtime client connected")

	go func() {
		for msg := range client.Send {
			if err := session.Send(string(msg)); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			logger.Debug().Str("client_id", client.ID).Msg("realtime client disconnected")
			return
		}
		parsed, ok := ParseSubscribe([]byte(msg))
		if !ok {
			continue
		}
		if parsed.Action == "unsubscribe" {
			hub.Unsubscribe(client, parsed.Topic)
			continue
		}
		if authorize != nil && !authorize(client.Role, parsed.Topic) {
			hub.SendTo(client, parsed.Topic, "error", map[string]string{"message": "access denied"})
			continue
		}
		hub.Subscribe(client, parsed.Topic)
	}
}

func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
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
