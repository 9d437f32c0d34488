package infra

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"courier-gateway/middleware/auth"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryDirectory(t *testing.T) {
	d := NewMemoryDirectory(auth.Identity{Username: "alice", Authorities: []string{"USER"}})
	ctx := context.Background()

	id, err := d.LookupIdentity(ctx, "alice")
	if err != nil || id.Username != "alice" {
		t.Fatalf("unexpected lookup result %+v, %v", id, err)
	}

	if _, err := d.LookupIdentity(ctx, "Alice"); !errors.Is(err, auth.ErrIdentityNotFound) {
		t.Fatalf("lookup must be exact, got %v", err)
	}

	d.Delete("alice")
	if _, err := d.LookupIdentity(ctx, "alice"); !errors.Is(err, auth.ErrIdentityNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPostgresDirectory_Found(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(lookupUserQuery).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"email", "role"}).AddRow("alice@example.com", "USER, BILLING"))

	id, err := NewPostgresDirectory(db).LookupIdentity(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("LookupIdentity: %v", err)
	}
	if id.Username != "alice@example.com" || len(id.Authorities) != 2 || id.Authorities[1] != "BILLING" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresDirectory_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(lookupUserQuery).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"email", "role"}))

	_, err := NewPostgresDirectory(db).LookupIdentity(context.Background(), "ghost")
	if !errors.Is(err, auth.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestPostgresDirectory_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(lookupUserQuery).
		WithArgs("alice").
		WillReturnError(errors.New("connection reset"))

	_, err := NewPostgresDirectory(db).LookupIdentity(context.Background(), "alice")
	if err == nil || errors.Is(err, auth.ErrIdentityNotFound) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}
