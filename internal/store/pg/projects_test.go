package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"taskhive.org/internal/auth"
)

func TestProjectsFind(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "owner_id"}).AddRow("proj-1", "principal-1")
	mock.ExpectQuery("select id, owner_id from projects").
		WithArgs("proj-1").
		WillReturnRows(rows)

	p, err := store.Projects(ctx).Find(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if p.OwnerID != "principal-1" {
		t.Fatalf("owner = %q, want principal-1", p.OwnerID)
	}

	mock.ExpectQuery("select id, owner_id from projects").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.Projects(ctx).Find(ctx, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("Find missing = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProjectsMembership(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"project_id", "principal_id", "role", "created_at"}).
		AddRow("proj-1", "principal-2", "viewer", now)
	mock.ExpectQuery("from project_memberships").
		WithArgs("proj-1", "principal-2").
		WillReturnRows(rows)

	m, err := store.Projects(ctx).Membership(ctx, "proj-1", "principal-2")
	if err != nil {
		t.Fatalf("Membership: %v", err)
	}
	if m.Role != auth.RoleViewer {
		t.Fatalf("role = %q, want viewer", m.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProjectsSetMembership(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("insert into project_memberships").
		WithArgs("proj-1", "principal-2", "member").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Projects(ctx).SetMembership(ctx, &auth.Membership{
		ProjectID:   "proj-1",
		PrincipalID: "principal-2",
		Role:        auth.RoleMember,
	})
	if err != nil {
		t.Fatalf("SetMembership: %v", err)
	}

	// A membership row for an unknown project or principal trips the foreign
	// key and surfaces as not found.
	mock.ExpectExec("insert into project_memberships").
		WithArgs("no-such-project", "principal-2", "member").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err = store.Projects(ctx).SetMembership(ctx, &auth.Membership{
		ProjectID:   "no-such-project",
		PrincipalID: "principal-2",
		Role:        auth.RoleMember,
	})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("SetMembership unknown project = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProjectsRemoveMembership(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("delete from project_memberships").
		WithArgs("proj-1", "principal-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Removing an absent row is a no-op, not an error.
	if err := store.Projects(ctx).RemoveMembership(ctx, "proj-1", "principal-2"); err != nil {
		t.Fatalf("RemoveMembership: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
