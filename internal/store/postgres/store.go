package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"intsync/internal/models"
	"intsync/internal/store"
)

const (
	defaultAuditLimit = 200
	maxAuditLimit     = 1000
	uniqueViolation   = "23505"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type userRow struct {
	models.User
	PasswordHash string `db:"password_hash"`
}

func (s *Store) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		UserID:    uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(input.Name),
		Role:      input.Role,
		CreatedAt: time.Now().UTC(),
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if input.FirstUserAdmin {
			// Concurrent signups must not both see an empty table.
			if _, err := tx.Exec(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO users (user_id, email, name, role, password_hash, created_at)
			SELECT $1, $2, $3,
				CASE WHEN $7::boolean AND NOT EXISTS (SELECT 1 FROM users) THEN 'admin' ELSE $4::text END,
				$5, $6
			RETURNING role
		`, user.UserID, user.Email, user.Name, user.Role, string(hash), user.CreatedAt, input.FirstUserAdmin).Scan(&user.Role)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	var row userRow
	err := pgxscan.Get(ctx, s.pool, &row, `
		SELECT user_id::text AS user_id, email, name, role, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1) AND active = TRUE
	`, strings.TrimSpace(email))
	if err != nil {
		if pgxscan.NotFound(err) {
			return models.User{}, store.ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return models.User{}, store.ErrInvalidCredentials
	}
	return row.User, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := pgxscan.Get(ctx, s.pool, &user, `
		SELECT user_id::text AS user_id, email, name, role, created_at
		FROM users
		WHERE user_id::text = $1 AND active = TRUE
	`, userID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (models.Session, error) {
	sessionID := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, sessionID, userID, expiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{SessionID: sessionID, UserID: userID, ExpiresAt: expiresAt}, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return models.Session{}, store.ErrSessionNotFound
	}
	var session models.Session
	err := pgxscan.Get(ctx, s.pool, &session, `
		SELECT session_id::text AS session_id, user_id::text AS user_id, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > NOW()
	`, sessionID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) RecordAudit(ctx context.Context, entry models.AuditEntry) error {
	if entry.AuditID == "" {
		entry.AuditID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (audit_id, actor_user_id, action, target_type, target_id, detail, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.AuditID, nullIfEmpty(entry.ActorUserID), entry.Action, entry.TargetType, entry.TargetID, entry.Detail, entry.IP, entry.UserAgent)
	return err
}

func (s *Store) ListAudit(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error) {
	query := `
		SELECT audit_id::text AS audit_id, COALESCE(actor_user_id::text, '') AS actor_user_id,
		       action, target_type, target_id, detail, ip, user_agent, created_at
		FROM audit_logs
		WHERE TRUE
	`
	var args []interface{}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND actor_user_id::text = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	entries := []models.AuditEntry{}
	if err := pgxscan.Select(ctx, s.pool, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
