package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"intsync/internal/models"
	"intsync/internal/store"
	"intsync/migrations"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
	container     testcontainers.Container
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	os.Exit(code)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	user, err := st.CreateUser(ctx, store.CreateUserInput{
		Email:    "Ops@Example.com",
		Name:     "Ops",
		Password: "s3cret-pass",
		Role:     models.RoleManager,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Email != "ops@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}

	if _, err := st.CreateUser(ctx, store.CreateUserInput{Email: "ops@example.com", Password: "x", Role: models.RoleStaff}); !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := st.Authenticate(ctx, "ops@example.com", "wrong"); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	authed, err := st.Authenticate(ctx, "OPS@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.UserID != user.UserID || authed.Role != models.RoleManager {
		t.Fatalf("unexpected user: %+v", authed)
	}

	session, err := st.CreateSession(ctx, user.UserID, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	loaded, err := st.GetSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if loaded.UserID != user.UserID {
		t.Fatalf("expected session user %s, got %s", user.UserID, loaded.UserID)
	}

	if err := st.DeleteSession(ctx, session.SessionID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := st.GetSession(ctx, session.SessionID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if _, err := st.GetSession(ctx, "not-a-uuid"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected session not found for malformed id, got %v", err)
	}
}

func TestFirstUserAdminIsDecidedOnInsert(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	const signups = 5
	roles := make(chan string, signups)
	errs := make(chan error, signups)
	var wg sync.WaitGroup
	for i := 0; i < signups; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := st.CreateUser(ctx, store.CreateUserInput{
				Email:          fmt.Sprintf("user%d@example.com", i),
				Name:           "User",
				Password:       "pw",
				Role:           models.RoleStaff,
				FirstUserAdmin: true,
			})
			if err != nil {
				errs <- err
				return
			}
			roles <- user.Role
		}(i)
	}
	wg.Wait()
	close(roles)
	close(errs)
	for err := range errs {
		t.Fatalf("create user: %v", err)
	}

	admins := 0
	for role := range roles {
		if role == models.RoleAdmin {
			admins++
		}
	}
	if admins != 1 {
		t.Fatalf("expected exactly one admin, got %d", admins)
	}
}

func TestExpiredSessionIsRejected(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	user, err := st.CreateUser(ctx, store.CreateUserInput{Email: "late@example.com", Password: "pw", Role: models.RoleStaff})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	session, err := st.CreateSession(ctx, user.UserID, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := st.GetSession(ctx, session.SessionID); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be rejected, got %v", err)
	}
}

func TestAuditFilters(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	user, err := st.CreateUser(ctx, store.CreateUserInput{Email: "admin@example.com", Password: "pw", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	entries := []models.AuditEntry{
		{ActorUserID: user.UserID, Action: "ticket.advance", TargetType: "ticket", TargetID: "t-1"},
		{ActorUserID: user.UserID, Action: "customer.delete", TargetType: "customer", TargetID: "c-1"},
		{Action: "whatsapp.restart", TargetType: "whatsapp"},
	}
	for _, entry := range entries {
		if err := st.RecordAudit(ctx, entry); err != nil {
			t.Fatalf("record audit: %v", err)
		}
	}

	all, err := st.ListAudit(ctx, store.AuditFilter{})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}

	byAction, err := st.ListAudit(ctx, store.AuditFilter{Action: "ticket.advance"})
	if err != nil {
		t.Fatalf("list audit by action: %v", err)
	}
	if len(byAction) != 1 || byAction[0].TargetID != "t-1" {
		t.Fatalf("unexpected entries: %+v", byAction)
	}

	byUser, err := st.ListAudit(ctx, store.AuditFilter{UserID: user.UserID, Limit: 1})
	if err != nil {
		t.Fatalf("list audit by user: %v", err)
	}
	if len(byUser) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(byUser))
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := testDSN(t, ctx)

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if _, err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool), cleanup
}

// testDSN prefers an explicit database and falls back to a throwaway
// PostgreSQL container.
func testDSN(t *testing.T, ctx context.Context) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DB_DSN"); dsn != "" {
		return dsn
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	containerOnce.Do(func() {
		containerDSN, containerErr = startPostgres(ctx)
	})
	if containerErr != nil {
		t.Skipf("postgres container unavailable: %v", containerErr)
	}
	return containerDSN
}

func startPostgres(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "intsync",
			"POSTGRES_PASSWORD": "intsync",
			"POSTGRES_DB":       "intsync",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	started, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	container = started

	host, err := started.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := started.MappedPort(ctx, "5432")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgres://intsync:intsync@%s:%s/intsync?sslmode=disable", host, port.Port()), nil
}

func execOnce(ctx context.Context, dsn, sql string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}
