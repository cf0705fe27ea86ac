package store

import (
	"context"
	"time"

	"intsync/internal/models"
)

type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     string
	// FirstUserAdmin makes the account an admin when no other user exists
	// at the moment of the insert.
	FirstUserAdmin bool
}

type AuditFilter struct {
	Action string
	UserID string
	Limit  int
}

type Store interface {
	CreateUser(ctx context.Context, input CreateUserInput) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	CreateSession(ctx context.Context, userID string, expiresAt time.Time) (models.Session, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	RecordAudit(ctx context.Context, entry models.AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditEntry, error)
}
