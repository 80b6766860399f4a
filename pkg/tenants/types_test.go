package tenants

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenant_IsCore(t *testing.T) {
	tests := []struct {
		name     string
		tenant   *Tenant
		coreSlug string
		expected bool
	}{
		{"core type", &Tenant{Type: TypeCore, Slug: "hq"}, DefaultCoreSlug, true},
		{"core slug", &Tenant{Type: TypeBusiness, Slug: "core"}, DefaultCoreSlug, true},
		{"custom core slug", &Tenant{Type: TypeEnterprise, Slug: "platform"}, "platform", true},
		{"regular tenant", &Tenant{Type: TypeRetail, Slug: "shop"}, DefaultCoreSlug, false},
		{"empty slug only checks type", &Tenant{Type: TypeBusiness, Slug: ""}, "", false},
		{"nil tenant", nil, DefaultCoreSlug, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tenant.IsCore(tt.coreSlug))
		})
	}
}

func TestTenantType_Valid(t *testing.T) {
	assert.True(t, TypeTrial.Valid())
	assert.False(t, TenantType("MEGACORP").Valid())
}

func TestTransition_Apply(t *testing.T) {
	tests := []struct {
		name       string
		transition Transition
		from       AssignmentStatus
		to         AssignmentStatus
		wantErr    bool
	}{
		{"activate pending", TransitionActivate, AssignmentPending, AssignmentActive, false},
		{"activate suspended", TransitionActivate, AssignmentSuspended, AssignmentActive, false},
		{"activate inactive", TransitionActivate, AssignmentInactive, AssignmentActive, false},
		{"activate active", TransitionActivate, AssignmentActive, "", true},
		{"activate expired", TransitionActivate, AssignmentExpired, "", true},
		{"suspend active", TransitionSuspend, AssignmentActive, AssignmentSuspended, false},
		{"suspend pending", TransitionSuspend, AssignmentPending, "", true},
		{"deactivate suspended", TransitionDeactivate, AssignmentSuspended, AssignmentInactive, false},
		{"deactivate pending", TransitionDeactivate, AssignmentPending, "", true},
		{"archive expired", TransitionArchive, AssignmentExpired, AssignmentArchived, false},
		{"archive archived", TransitionArchive, AssignmentArchived, "", true},
		{"unknown transition", Transition("promote"), AssignmentActive, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.transition.Apply(tt.from)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, got)
		})
	}
}

func TestParseTransition(t *testing.T) {
	tr, ok := ParseTransition("suspend")
	assert.True(t, ok)
	assert.Equal(t, TransitionSuspend, tr)

	_, ok = ParseTransition("expire")
	assert.False(t, ok)
}

func TestUserAssignment_IsPastExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&UserAssignment{ExpiresAt: &past}).IsPastExpiry(now))
	assert.False(t, (&UserAssignment{ExpiresAt: &future}).IsPastExpiry(now))
	assert.False(t, (&UserAssignment{}).IsPastExpiry(now))
}

func TestGenerateSlug(t *testing.T) {
	assert.Equal(t, "acme-retail", GenerateSlug("Acme Retail"))
	assert.Equal(t, "acme", GenerateSlug(" Acme! "))
}
