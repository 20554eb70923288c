package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/crmflow/model"
)

// UserSchema creates the table PgUserStore reads and writes. seq preserves
// creation order for least-loaded tie-breaking.
const UserSchema = `
CREATE TABLE IF NOT EXISTS crm_users (
	seq        BIGSERIAL UNIQUE,
	id         TEXT PRIMARY KEY,
	role       TEXT NOT NULL,
	active     BOOLEAN NOT NULL,
	document   JSONB NOT NULL,
	version    INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS crm_users_role_idx ON crm_users (role);
`

const uniqueViolation = "23505"

// PgUserStore is a PostgreSQL-backed UserStore using pgx/v5.
type PgUserStore struct {
	pool *pgxpool.Pool
}

// NewPgUserStore creates a new PostgreSQL user store.
func NewPgUserStore(pool *pgxpool.Pool) *PgUserStore {
	return &PgUserStore{pool: pool}
}

// EnsureSchema creates the user table if missing.
func (s *PgUserStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, UserSchema); err != nil {
		return fmt.Errorf("create user schema: %w", err)
	}
	return nil
}

// Create inserts a new user.
func (s *PgUserStore) Create(ctx context.Context, u model.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO crm_users (id, role, active, document, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Role, u.Active, doc, u.Version, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.NewConflictError(fmt.Sprintf("user %q already exists", u.ID))
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID.
func (s *PgUserStore) Get(ctx context.Context, id string) (model.User, error) {
	var doc []byte
	var version int

	err := s.pool.QueryRow(ctx,
		`SELECT document, version FROM crm_users WHERE id = $1`, id,
	).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	if err != nil {
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	return decodeUser(doc, version)
}

// Update persists an updated user with optimistic locking.
func (s *PgUserStore) Update(ctx context.Context, u model.User) error {
	stored := u
	stored.Version++
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE crm_users SET role = $1, active = $2, document = $3, version = $4
		WHERE id = $5 AND version = $6`,
		u.Role, u.Active, doc, stored.Version, u.ID, u.Version,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, u.ID); model.IsCode(getErr, model.ErrNotFound) {
			return getErr
		}
		return model.NewConflictError(
			fmt.Sprintf("user %q version conflict (expected %d)", u.ID, u.Version),
		)
	}
	return nil
}

// List returns every user in creation order.
func (s *PgUserStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT document, version FROM crm_users ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var doc []byte
		var version int
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u, err := decodeUser(doc, version)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// HealthCheck pings the pool.
func (s *PgUserStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func decodeUser(doc []byte, version int) (model.User, error) {
	var u model.User
	if err := json.Unmarshal(doc, &u); err != nil {
		return model.User{}, fmt.Errorf("unmarshal user: %w", err)
	}
	u.Version = version
	return u, nil
}
