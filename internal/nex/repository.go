package nex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNexNotFound is returned when a nex id does not resolve.
var ErrNexNotFound = errors.New("nex not found")

// Repository reads nex and membership data. Creation and membership
// administration happen outside this service.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new nex repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a nex by its ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Nex, error) {
	query := `
		SELECT id, name, currency, created_at
		FROM nexes
		WHERE id = $1
	`

	n := &Nex{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&n.ID, &n.Name, &n.Currency, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNexNotFound
		}
		return nil, fmt.Errorf("failed to get nex: %w", err)
	}

	return n, nil
}

// ListMembers retrieves all members of a nex ordered by join time.
func (r *Repository) ListMembers(ctx context.Context, nexID string) ([]*Member, error) {
	query := `
		SELECT nex_id, user_id, display_name, COALESCE(email, ''), joined_at
		FROM nex_members
		WHERE nex_id = $1
		ORDER BY joined_at, user_id
	`

	rows, err := r.db.QueryContext(ctx, query, nexID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.NexID, &m.UserID, &m.DisplayName, &m.Email, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// MemberIDs returns the user ids of all members of a nex as a set.
func (r *Repository) MemberIDs(ctx context.Context, nexID string) (map[string]struct{}, error) {
	members, err := r.ListMembers(ctx, nexID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(members))
	for _, m := range members {
		ids[m.UserID] = struct{}{}
	}
	return ids, nil
}
