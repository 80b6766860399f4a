package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Service defines tenant and assignment management
type Service interface {
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id int64) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
	ListTenantsForUser(ctx context.Context, userID int64) ([]*Tenant, error)
	UpdateTenantStatus(ctx context.Context, id int64, status TenantStatus) error

	CreateAssignment(ctx context.Context, a *UserAssignment) error
	GetAssignment(ctx context.Context, id int64) (*UserAssignment, error)
	ListTenantAssignments(ctx context.Context, tenantID int64) ([]*UserAssignment, error)
	ListActiveAssignments(ctx context.Context, userID int64) ([]*UserAssignment, error)
	TransitionAssignment(ctx context.Context, id int64, t Transition) (*UserAssignment, error)
	ListPrimaryConflicts(ctx context.Context) ([]PrimaryConflict, error)
	ListPastExpiry(ctx context.Context, now time.Time) ([]*UserAssignment, error)
}

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const tenantColumns = `id, name, slug, type, status, branding, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	var tenantType, status string
	var brandingJSON []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &tenantType, &status, &brandingJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = TenantType(tenantType)
	t.Status = TenantStatus(status)
	if len(brandingJSON) > 0 {
		if err := json.Unmarshal(brandingJSON, &t.Branding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal branding: %w", err)
		}
	}
	return t, nil
}

// CreateTenant creates a new tenant
func (s *PostgresService) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if tenant.Slug == "" {
		tenant.Slug = GenerateSlug(tenant.Name)
	}
	if tenant.Type == "" {
		tenant.Type = TypeBusiness
	}
	if !tenant.Type.Valid() {
		return fmt.Errorf("invalid tenant type %q", tenant.Type)
	}
	if tenant.Status == "" {
		tenant.Status = StatusActive
	}

	brandingJSON, err := json.Marshal(tenant.Branding)
	if err != nil {
		return fmt.Errorf("failed to marshal branding: %w", err)
	}

	query := `
		INSERT INTO tenants (name, slug, type, status, branding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, tenant.Name, tenant.Slug, string(tenant.Type), string(tenant.Status), brandingJSON).
		Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *PostgresService) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// GetTenantBySlug retrieves a tenant by slug
func (s *PostgresService) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// ListTenants lists all tenants that are not archived
func (s *PostgresService) ListTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE status <> 'ARCHIVED'
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return collectTenants(rows)
}

// ListTenantsForUser lists the tenants a user holds an ACTIVE assignment in
func (s *PostgresService) ListTenantsForUser(ctx context.Context, userID int64) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT t.id, t.name, t.slug, t.type, t.status, t.branding, t.created_at, t.updated_at
		FROM tenants t
		INNER JOIN user_assignments a ON a.tenant_id = t.id
		WHERE a.user_id = $1 AND a.status = 'ACTIVE' AND t.status <> 'ARCHIVED'
		ORDER BY t.name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return collectTenants(rows)
}

func collectTenants(rows *sql.Rows) ([]*Tenant, error) {
	defer rows.Close()

	tenants := make([]*Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}
	return tenants, nil
}

// UpdateTenantStatus moves a tenant to a new status
func (s *PostgresService) UpdateTenantStatus(ctx context.Context, id int64, status TenantStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tenant %d: %w", id, ErrNotFound)
	}
	return nil
}

// GenerateSlug derives the URL-safe slug used when a tenant is created without one
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}
