package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/orbitsocial/backend/internal/db"
	"github.com/orbitsocial/backend/internal/directory"
	"github.com/orbitsocial/backend/internal/relationships"
)

// Friend request lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusCancelled = "cancelled"
	StatusRemoved   = "removed"
)

// PostgresRelationshipStore implements the engine's relationship service and
// the directory service directly against PostgreSQL, for deployments that
// embed the sync engine server-side instead of going through the HTTP API.
type PostgresRelationshipStore struct {
	pool db.Pool
	self relationships.UserID
}

// NewPostgresRelationshipStore constructs a store acting on behalf of the
// given local user.
func NewPostgresRelationshipStore(pool db.Pool, self relationships.UserID) *PostgresRelationshipStore {
	return &PostgresRelationshipStore{pool: pool, self: self}
}

// SendRequest records a pending friend request toward target.
func (r *PostgresRelationshipStore) SendRequest(ctx context.Context, target relationships.UserID) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM friend_requests
            WHERE status IN ($3, $4)
              AND ((requester_id = $1 AND receiver_id = $2)
                OR (requester_id = $2 AND receiver_id = $1))
        )
    `, r.self, target, StatusPending, StatusAccepted).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing relationship: %w", err)
	}
	if exists {
		return relationships.ErrConflict
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO friend_requests (id, requester_id, receiver_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, uuid.NewString(), r.self, target, StatusPending, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return relationships.ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert friend request: %w", err)
	}

	return nil
}

// AcceptRequest marks the pending request from requester as accepted.
func (r *PostgresRelationshipStore) AcceptRequest(ctx context.Context, requester relationships.UserID) error {
	return r.settleRequest(ctx, requester, r.self, StatusAccepted)
}

// DeclineRequest marks the pending request from requester as declined.
func (r *PostgresRelationshipStore) DeclineRequest(ctx context.Context, requester relationships.UserID) error {
	return r.settleRequest(ctx, requester, r.self, StatusDeclined)
}

// CancelRequest withdraws the local user's pending request toward target.
func (r *PostgresRelationshipStore) CancelRequest(ctx context.Context, target relationships.UserID) error {
	return r.settleRequest(ctx, r.self, target, StatusCancelled)
}

// settleRequest transitions a pending request between the given participants
// to a terminal status.
func (r *PostgresRelationshipStore) settleRequest(ctx context.Context, requester, receiver relationships.UserID, status string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE friend_requests
        SET status = $4, responded_at = $5
        WHERE requester_id = $1 AND receiver_id = $2 AND status = $3
    `, requester, receiver, StatusPending, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update friend request: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No pending row. If one already carries the desired status the caller's
	// intent is satisfied; report a benign conflict rather than a failure.
	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM friend_requests
            WHERE requester_id = $1 AND receiver_id = $2 AND status = $3
        )
    `, requester, receiver, status).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check settled request: %w", err)
	}
	if exists {
		return relationships.ErrConflict
	}
	return ErrNotFound
}

// RemoveFriend ends an accepted friendship in either direction.
func (r *PostgresRelationshipStore) RemoveFriend(ctx context.Context, friend relationships.UserID) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE friend_requests
        SET status = $4, responded_at = $5
        WHERE status = $3
          AND ((requester_id = $1 AND receiver_id = $2)
            OR (requester_id = $2 AND receiver_id = $1))
    `, r.self, friend, StatusAccepted, StatusRemoved, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update friendship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already not friends; the desired state holds.
		return relationships.ErrConflict
	}
	return nil
}

// ListFriends returns one page of accepted friendships, most recent first.
func (r *PostgresRelationshipStore) ListFriends(ctx context.Context, cursor string, limit int) (relationships.Page, error) {
	return r.listRelationships(ctx, `
        SELECT CASE WHEN requester_id = $1 THEN receiver_id ELSE requester_id END,
               responded_at, id
        FROM friend_requests
        WHERE status = '`+StatusAccepted+`'
          AND (requester_id = $1 OR receiver_id = $1)
    `, "responded_at", cursor, limit)
}

// ListIncoming returns one page of pending requests addressed to the local user.
func (r *PostgresRelationshipStore) ListIncoming(ctx context.Context, cursor string, limit int) (relationships.Page, error) {
	return r.listRelationships(ctx, `
        SELECT requester_id, created_at, id
        FROM friend_requests
        WHERE status = '`+StatusPending+`' AND receiver_id = $1
    `, "created_at", cursor, limit)
}

// ListOutgoing returns one page of pending requests sent by the local user.
func (r *PostgresRelationshipStore) ListOutgoing(ctx context.Context, cursor string, limit int) (relationships.Page, error) {
	return r.listRelationships(ctx, `
        SELECT receiver_id, created_at, id
        FROM friend_requests
        WHERE status = '`+StatusPending+`' AND requester_id = $1
    `, "created_at", cursor, limit)
}

func (r *PostgresRelationshipStore) listRelationships(ctx context.Context, baseQuery, orderColumn, cursor string, limit int) (relationships.Page, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return relationships.Page{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if limit <= 0 {
		limit = 25
	}

	args := []any{r.self}
	query := baseQuery
	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return relationships.Page{}, err
		}
		query += fmt.Sprintf(" AND (%s, id) < ($2, $3)", orderColumn)
		args = append(args, ts, id)
	}
	query += fmt.Sprintf(" ORDER BY %s DESC, id DESC LIMIT %d", orderColumn, limit+1)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return relationships.Page{}, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	type row struct {
		other relationships.UserID
		ts    time.Time
		id    string
	}
	var fetched []row
	for rows.Next() {
		var rec row
		if err := rows.Scan(&rec.other, &rec.ts, &rec.id); err != nil {
			return relationships.Page{}, fmt.Errorf("scan relationship row: %w", err)
		}
		fetched = append(fetched, rec)
	}
	if err := rows.Err(); err != nil {
		return relationships.Page{}, fmt.Errorf("iterate relationship rows: %w", err)
	}

	var page relationships.Page
	if len(fetched) > limit {
		last := fetched[limit-1]
		page.NextCursor = encodeCursor(last.ts, last.id)
		fetched = fetched[:limit]
	}
	for _, rec := range fetched {
		page.IDs = append(page.IDs, rec.other)
	}
	return page, nil
}

// ListUsers returns one page of the user directory, newest accounts first.
func (r *PostgresRelationshipStore) ListUsers(ctx context.Context, cursor string, limit int) (directory.Page, error) {
	return r.listProfiles(ctx, "", cursor, limit)
}

// SearchUsers returns one page of directory entries whose display name
// matches the query.
func (r *PostgresRelationshipStore) SearchUsers(ctx context.Context, query, cursor string, limit int) (directory.Page, error) {
	return r.listProfiles(ctx, query, cursor, limit)
}

func (r *PostgresRelationshipStore) listProfiles(ctx context.Context, search, cursor string, limit int) (directory.Page, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return directory.Page{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if limit <= 0 {
		limit = 25
	}

	args := []any{r.self}
	query := `
        SELECT id, display_name, avatar_ref, friend_count, event_count, created_at
        FROM users
        WHERE id != $1
    `
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND display_name ILIKE $%d", len(args))
	}
	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return directory.Page{}, err
		}
		args = append(args, ts, id)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", limit+1)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return directory.Page{}, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	type row struct {
		profile directory.Profile
		ts      time.Time
	}
	var fetched []row
	for rows.Next() {
		var rec row
		if err := rows.Scan(&rec.profile.ID, &rec.profile.DisplayName, &rec.profile.AvatarRef,
			&rec.profile.FriendCount, &rec.profile.EventCount, &rec.ts); err != nil {
			return directory.Page{}, fmt.Errorf("scan user row: %w", err)
		}
		fetched = append(fetched, rec)
	}
	if err := rows.Err(); err != nil {
		return directory.Page{}, fmt.Errorf("iterate user rows: %w", err)
	}

	var page directory.Page
	if len(fetched) > limit {
		last := fetched[limit-1]
		page.NextCursor = encodeCursor(last.ts, string(last.profile.ID))
		fetched = fetched[:limit]
	}
	for _, rec := range fetched {
		page.Items = append(page.Items, rec.profile)
	}
	return page, nil
}

// CreateUser inserts a directory profile, used by seed tooling and tests.
func (r *PostgresRelationshipStore) CreateUser(ctx context.Context, profile directory.Profile) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, display_name, avatar_ref, friend_count, event_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, profile.ID, profile.DisplayName, profile.AvatarRef, profile.FriendCount, profile.EventCount, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return relationships.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindUser fetches a single directory profile.
func (r *PostgresRelationshipStore) FindUser(ctx context.Context, id relationships.UserID) (directory.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return directory.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var profile directory.Profile
	err = conn.QueryRow(ctx, `
        SELECT id, display_name, avatar_ref, friend_count, event_count
        FROM users
        WHERE id = $1
    `, id).Scan(&profile.ID, &profile.DisplayName, &profile.AvatarRef, &profile.FriendCount, &profile.EventCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return directory.Profile{}, ErrNotFound
		}
		return directory.Profile{}, fmt.Errorf("select user: %w", err)
	}
	return profile, nil
}

var _ relationships.Service = (*PostgresRelationshipStore)(nil)
var _ directory.Service = (*PostgresRelationshipStore)(nil)
