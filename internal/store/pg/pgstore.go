// Package pg implements the auth store contracts on PostgreSQL through the
// pgx stdlib driver. Driver errors are translated into auth domain
// sentinels at this boundary; nothing above it sees pg error codes.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"taskhive.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements auth.Store on a PostgreSQL pool.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to PostgreSQL and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle (tests use sqlmock here).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for health probes.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Principals(ctx context.Context) auth.PrincipalStore {
	return &principalStore{db: s.db}
}

func (s *Store) Credentials(ctx context.Context) auth.CredentialStore {
	return &credentialStore{db: s.db}
}

func (s *Store) Roles(ctx context.Context) auth.RoleStore {
	return &roleStore{db: s.db}
}

func (s *Store) Projects(ctx context.Context) auth.ProjectStore {
	return &projectStore{db: s.db}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
