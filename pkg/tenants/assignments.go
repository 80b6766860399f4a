package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const assignmentColumns = `id, user_id, role_id, tenant_id, status, is_primary, expires_at, assigned_by, assigned_at, updated_at`

func scanAssignment(row rowScanner) (*UserAssignment, error) {
	a := &UserAssignment{}
	var status string
	var expiresAt sql.NullTime
	var assignedBy sql.NullInt64
	err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &a.TenantID, &status, &a.IsPrimary,
		&expiresAt, &assignedBy, &a.AssignedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = AssignmentStatus(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	if assignedBy.Valid {
		id := assignedBy.Int64
		a.AssignedBy = &id
	}
	return a, nil
}

// CreateAssignment assigns a role to a user in a tenant. New assignments
// start PENDING unless a status is given. A second primary assignment for
// the same user and tenant is accepted; see ListPrimaryConflicts.
func (s *PostgresService) CreateAssignment(ctx context.Context, a *UserAssignment) error {
	if a.Status == "" {
		a.Status = AssignmentPending
	}

	query := `
		INSERT INTO user_assignments (user_id, role_id, tenant_id, status, is_primary, expires_at, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, assigned_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, a.UserID, a.RoleID, a.TenantID, string(a.Status),
		a.IsPrimary, a.ExpiresAt, a.AssignedBy).
		Scan(&a.ID, &a.AssignedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

// GetAssignment retrieves an assignment by ID
func (s *PostgresService) GetAssignment(ctx context.Context, id int64) (*UserAssignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM user_assignments WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListTenantAssignments lists every assignment in a tenant
func (s *PostgresService) ListTenantAssignments(ctx context.Context, tenantID int64) ([]*UserAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM user_assignments
		WHERE tenant_id = $1
		ORDER BY assigned_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return collectAssignments(rows)
}

// ListActiveAssignments lists a user's ACTIVE assignments across tenants,
// primary ones first
func (s *PostgresService) ListActiveAssignments(ctx context.Context, userID int64) ([]*UserAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM user_assignments
		WHERE user_id = $1 AND status = 'ACTIVE'
		ORDER BY is_primary DESC, assigned_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return collectAssignments(rows)
}

// ListPastExpiry lists ACTIVE assignments whose ExpiresAt is before now
func (s *PostgresService) ListPastExpiry(ctx context.Context, now time.Time) ([]*UserAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM user_assignments
		WHERE status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired assignments: %w", err)
	}
	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]*UserAssignment, error) {
	defer rows.Close()

	out := make([]*UserAssignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return out, nil
}

// TransitionAssignment applies a status transition under a row lock
func (s *PostgresService) TransitionAssignment(ctx context.Context, id int64, t Transition) (*UserAssignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM user_assignments WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	next, err := t.Apply(a.Status)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_assignments SET status = $1, updated_at = $2 WHERE id = $3`,
		string(next), now, id); err != nil {
		return nil, fmt.Errorf("failed to update assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}

	a.Status = next
	a.UpdatedAt = now
	return a, nil
}

// ListPrimaryConflicts reports (user, tenant) pairs with more than one
// non-archived primary assignment
func (s *PostgresService) ListPrimaryConflicts(ctx context.Context) ([]PrimaryConflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, tenant_id, array_agg(id ORDER BY id)
		FROM user_assignments
		WHERE is_primary = TRUE AND status <> 'ARCHIVED'
		GROUP BY user_id, tenant_id
		HAVING COUNT(*) > 1
		ORDER BY user_id, tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list primary conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := make([]PrimaryConflict, 0)
	for rows.Next() {
		var c PrimaryConflict
		var ids pq.Int64Array
		if err := rows.Scan(&c.UserID, &c.TenantID, &ids); err != nil {
			return nil, fmt.Errorf("failed to scan primary conflict: %w", err)
		}
		c.AssignmentIDs = []int64(ids)
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate primary conflicts: %w", err)
	}
	return conflicts, nil
}
