package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, user.ID, user.Username, user.Password, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByUsername fetches a user by their display handle.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, username, password_hash, created_at, updated_at
        FROM users
        WHERE username = $1
    `, username)

	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Password, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by username: %w", err)
	}

	return user, nil
}

// UsernamesExcept returns every known username except the given user's own.
func (r *PostgresUserRepository) UsernamesExcept(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT username
        FROM users
        WHERE id <> $1
        ORDER BY username
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query usernames: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "username")
}

// PostgresConnectionRepository provides PostgreSQL-backed persistence for
// connection requests.
type PostgresConnectionRepository struct {
	pool db.Pool
}

// NewPostgresConnectionRepository constructs a connection repository backed by PostgreSQL.
func NewPostgresConnectionRepository(pool db.Pool) *PostgresConnectionRepository {
	return &PostgresConnectionRepository{pool: pool}
}

// Create persists a new connection request. The insert is conditional on the
// (sender_id, receiver_id) uniqueness constraint, so of two concurrent
// creates for the same pair exactly one succeeds and the other observes
// ErrConflict.
func (r *PostgresConnectionRepository) Create(ctx context.Context, request models.ConnectionRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        INSERT INTO user_connections (id, sender_id, receiver_id, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (sender_id, receiver_id) DO NOTHING
    `, request.ID, request.Sender, request.Receiver, request.Status, request.CreatedAt, request.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert connection request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	return nil
}

// Find fetches the request for an ordered (sender, receiver) pair.
func (r *PostgresConnectionRepository) Find(ctx context.Context, senderID, receiverID string) (models.ConnectionRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ConnectionRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, sender_id, receiver_id, status, created_at, updated_at
        FROM user_connections
        WHERE sender_id = $1 AND receiver_id = $2
    `, senderID, receiverID)

	var req models.ConnectionRequest
	if err := row.Scan(&req.ID, &req.Sender, &req.Receiver, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ConnectionRequest{}, ErrNotFound
		}
		return models.ConnectionRequest{}, fmt.Errorf("select connection request: %w", err)
	}

	return req, nil
}

// UpdateStatus transitions the request for the pair from one status to
// another. The expected current status is part of the WHERE clause, so a
// request already moved by a concurrent caller yields ErrNotFound.
func (r *PostgresConnectionRepository) UpdateStatus(ctx context.Context, senderID, receiverID, from, to string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE user_connections
        SET status = $4, updated_at = $5
        WHERE sender_id = $1 AND receiver_id = $2 AND status = $3
    `, senderID, receiverID, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update connection request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes the request for the pair, conditional on its current status.
func (r *PostgresConnectionRepository) Delete(ctx context.Context, senderID, receiverID, status string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM user_connections
        WHERE sender_id = $1 AND receiver_id = $2 AND status = $3
    `, senderID, receiverID, status)
	if err != nil {
		return fmt.Errorf("delete connection request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SentPending returns usernames the given user has sent pending requests to.
func (r *PostgresConnectionRepository) SentPending(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT u.username
        FROM user_connections c
        JOIN users u ON u.id = c.receiver_id
        WHERE c.sender_id = $1 AND c.status = $2
        ORDER BY u.username
    `, userID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query sent requests: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "sent request")
}

// ReceivedPending returns usernames with pending requests addressed to the user.
func (r *PostgresConnectionRepository) ReceivedPending(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT u.username
        FROM user_connections c
        JOIN users u ON u.id = c.sender_id
        WHERE c.receiver_id = $1 AND c.status = $2
        ORDER BY u.username
    `, userID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending requests: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "pending request")
}

// MutualConnections returns usernames with an approved request in either
// direction relative to the user.
func (r *PostgresConnectionRepository) MutualConnections(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT u.username
        FROM user_connections c
        JOIN users u ON u.id = CASE
            WHEN c.sender_id = $1 THEN c.receiver_id
            ELSE c.sender_id
        END
        WHERE c.status = $2 AND (c.sender_id = $1 OR c.receiver_id = $1)
        ORDER BY u.username
    `, userID, models.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("query mutual connections: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows, "mutual connection")
}

func scanStrings(rows pgx.Rows, what string) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", what, err)
	}

	return out, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ ConnectionRepository = (*PostgresConnectionRepository)(nil)
