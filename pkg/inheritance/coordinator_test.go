package inheritance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/events"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/session"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

const (
	coreTenantID = int64(1)
	acmeTenantID = int64(2)
	betaTenantID = int64(3)

	adminUserID   = int64(100)
	managerUserID = int64(200)
)

type roleKey struct{ user, tenant int64 }

type fakeDirectory struct {
	mu          sync.Mutex
	superAdmins map[int64]bool
	tenants     map[int64]*tenants.Tenant
	roles       map[roleKey]rbac.Role
	superErr    error
	roleErr     error
	switchErr   error
	switchCalls int
	roleCalls   int
	roleHook    func(tenantID int64)
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		superAdmins: map[int64]bool{adminUserID: true},
		tenants: map[int64]*tenants.Tenant{
			coreTenantID: {ID: coreTenantID, Name: "Core", Slug: "core", Type: tenants.TypeCore, Status: tenants.StatusActive},
			acmeTenantID: {ID: acmeTenantID, Name: "Acme", Slug: "acme", Type: tenants.TypeBusiness, Status: tenants.StatusActive,
				Branding: tenants.Branding{PrimaryColor: "#ff0000", Theme: "dark"}},
			betaTenantID: {ID: betaTenantID, Name: "Beta", Slug: "beta", Type: tenants.TypeStartup, Status: tenants.StatusActive},
		},
		roles: map[roleKey]rbac.Role{
			{managerUserID, acmeTenantID}: {ID: 7, Name: "acme-manager", Level: rbac.LevelManager, Type: rbac.RoleTypeTenant, IsActive: true},
		},
	}
}

func (f *fakeDirectory) IsSuperAdmin(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.superErr != nil {
		return false, f.superErr
	}
	return f.superAdmins[userID], nil
}

func (f *fakeDirectory) GetTenant(_ context.Context, tenantID int64) (*tenants.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[tenantID]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	return t, nil
}

func (f *fakeDirectory) UserRoleInTenant(_ context.Context, userID, tenantID int64) (rbac.RoleResolution, error) {
	f.mu.Lock()
	hook := f.roleHook
	f.roleCalls++
	roleErr := f.roleErr
	role, ok := f.roles[roleKey{userID, tenantID}]
	f.mu.Unlock()

	if hook != nil {
		hook(tenantID)
	}
	if roleErr != nil {
		return rbac.NotAssigned(), roleErr
	}
	if !ok {
		return rbac.NotAssigned(), nil
	}
	return rbac.Resolved(role), nil
}

func (f *fakeDirectory) SwitchAsSuperAdmin(ctx context.Context, userID, tenantID int64) (*tenants.Tenant, error) {
	f.mu.Lock()
	f.switchCalls++
	switchErr := f.switchErr
	f.mu.Unlock()
	if switchErr != nil {
		return nil, switchErr
	}
	return f.GetTenant(ctx, tenantID)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) last() *audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type harness struct {
	dir         *fakeDirectory
	coordinator *Coordinator
	store       *session.Store
	audit       *recordingAudit
	metrics     *observability.Metrics
	bus         *events.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dir:     newFakeDirectory(),
		store:   session.NewStore(session.NewMemoryPersister(), session.DefaultConfig(), observability.NopLogger()),
		audit:   &recordingAudit{},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		bus:     events.NewBus(nil),
	}
	h.coordinator = NewCoordinator(h.dir, Options{
		CoreSlug: "core",
		Bus:      h.bus,
		Audit:    h.audit,
		Metrics:  h.metrics,
		Logger:   observability.NopLogger(),
	})
	return h
}

func (h *harness) login(t *testing.T, userID int64) *session.Session {
	t.Helper()
	sess, err := h.store.NewSession(context.Background(), session.AuthUser{ID: userID, Email: "user@example.com"})
	require.NoError(t, err)
	return sess
}

func TestSwitchTenant_RegularUserWithManagerRole(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, managerUserID)
	ctx := context.Background()

	rc, err := h.coordinator.SwitchTenant(ctx, sess, acmeTenantID)
	require.NoError(t, err)

	assert.Equal(t, acmeTenantID, rc.TenantID)
	assert.Equal(t, "acme", rc.TenantSlug)
	assert.Equal(t, rbac.LevelManager, rc.Role.Level)
	assert.Equal(t, session.SourceResolved, rc.RoleSource)
	assert.False(t, rc.IsOriginalSuperAdmin)
	assert.False(t, rc.IsCurrentlyImpersonating)
	assert.True(t, rc.EffectivePermissions.CanAccessManager)
	assert.True(t, rc.EffectivePermissions.CanAccessUsers)
	assert.False(t, rc.EffectivePermissions.CanAccessTenants)
	assert.Equal(t, 0, h.dir.switchCalls)

	stored, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, rc.TenantID, stored.TenantID)
	assert.Equal(t, rc.Generation, stored.Generation)

	current, err := sess.CurrentTenant(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "Acme", current.Name)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TenantSwitchesTotal.WithLabelValues(KindMember, "success")))
	assert.Equal(t, audit.EventTypeTenantSwitch, h.audit.last().Type)
}

func TestSwitchTenant_RegularUserWithoutAssignment(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, managerUserID)

	rc, err := h.coordinator.SwitchTenant(context.Background(), sess, betaTenantID)
	require.NoError(t, err)

	assert.Equal(t, session.SourceDefault, rc.RoleSource)
	assert.Equal(t, rbac.LevelUser, rc.Role.Level)
	assert.Equal(t, rbac.EffectivePermissions{}, rc.EffectivePermissions)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RoleFallbacksTotal.WithLabelValues("not_assigned")))
}

func TestSwitchTenant_RoleLookupErrorFallsBack(t *testing.T) {
	h := newHarness(t)
	h.dir.roleErr = errors.New("role service unavailable")
	sess := h.login(t, managerUserID)

	rc, err := h.coordinator.SwitchTenant(context.Background(), sess, acmeTenantID)
	require.NoError(t, err)

	assert.Equal(t, session.SourceFallback, rc.RoleSource)
	assert.Equal(t, rbac.LevelUser, rc.Role.Level)
	assert.False(t, rc.EffectivePermissions.CanAccessManager)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RoleFallbacksTotal.WithLabelValues("lookup_error")))
}

func TestSwitchTenant_SuperAdminReturnsToCore(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, adminUserID)
	ctx := context.Background()

	// impersonate first so the core switch has a non-core context to replace
	_, err := h.coordinator.SwitchTenant(ctx, sess, acmeTenantID)
	require.NoError(t, err)
	roleCallsBefore := h.dir.roleCalls

	rc, err := h.coordinator.SwitchTenant(ctx, sess, coreTenantID)
	require.NoError(t, err)

	assert.Equal(t, rbac.FullAccess(), rc.EffectivePermissions)
	assert.True(t, rc.EffectivePermissions.IsSuperAdmin)
	assert.False(t, rc.IsCurrentlyImpersonating)
	assert.True(t, rc.IsOriginalSuperAdmin)
	assert.Equal(t, session.SourceCore, rc.RoleSource)
	assert.Equal(t, rbac.LevelSuperAdmin, rc.Role.Level)
	assert.Equal(t, roleCallsBefore, h.dir.roleCalls, "core switch must not look up roles")
	assert.Equal(t, 1, h.dir.switchCalls)

	last := h.audit.last()
	assert.Equal(t, audit.EventTypeTenantCoreReturn, last.Type)
	require.NotNil(t, last.TenantID)
	assert.Equal(t, acmeTenantID, *last.TenantID)
}

func TestSwitchTenant_CoreBySlug(t *testing.T) {
	h := newHarness(t)
	h.dir.tenants[coreTenantID].Type = tenants.TypeEnterprise
	sess := h.login(t, adminUserID)

	rc, err := h.coordinator.SwitchTenant(context.Background(), sess, coreTenantID)
	require.NoError(t, err)
	assert.Equal(t, session.SourceCore, rc.RoleSource)
}

func TestSwitchTenant_SuperAdminImpersonates(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, adminUserID)

	rc, err := h.coordinator.SwitchTenant(context.Background(), sess, acmeTenantID)
	require.NoError(t, err)

	assert.True(t, rc.IsOriginalSuperAdmin)
	assert.True(t, rc.IsCurrentlyImpersonating)
	assert.Equal(t, session.SourceDefault, rc.RoleSource)
	assert.False(t, rc.EffectivePermissions.CanAccessManager)
	assert.True(t, rc.EffectivePermissions.CanAccessTenants)
	assert.False(t, rc.EffectivePermissions.IsSuperAdmin)
	assert.Equal(t, 1, h.dir.switchCalls)

	last := h.audit.last()
	assert.Equal(t, audit.EventTypeTenantImpersonate, last.Type)
	assert.Equal(t, audit.EventStatusSuccess, last.Status)
	assert.Equal(t, sess.ID(), last.SessionID)
}

func TestSwitchTenant_PrivilegedSwitchFailureCommitsNothing(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, adminUserID)
	ctx := context.Background()

	before, err := h.coordinator.SwitchTenant(ctx, sess, coreTenantID)
	require.NoError(t, err)

	h.dir.switchErr = ErrNotSuperAdmin
	_, err = h.coordinator.SwitchTenant(ctx, sess, acmeTenantID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSuperAdmin)

	stored, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TenantID, stored.TenantID)
	assert.Equal(t, before.Generation, stored.Generation)

	last := h.audit.last()
	assert.Equal(t, audit.EventTypeTenantImpersonate, last.Type)
	assert.Equal(t, audit.EventStatusDenied, last.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TenantSwitchesTotal.WithLabelValues(KindImpersonate, "error")))
}

func TestSwitchTenant_ErrorsPropagate(t *testing.T) {
	t.Run("super admin check", func(t *testing.T) {
		h := newHarness(t)
		h.dir.superErr = errors.New("auth service down")
		sess := h.login(t, managerUserID)

		_, err := h.coordinator.SwitchTenant(context.Background(), sess, acmeTenantID)
		assert.ErrorContains(t, err, "auth service down")
	})

	t.Run("unknown tenant", func(t *testing.T) {
		h := newHarness(t)
		sess := h.login(t, managerUserID)

		_, err := h.coordinator.SwitchTenant(context.Background(), sess, 999)
		assert.ErrorIs(t, err, tenants.ErrNotFound)

		rc, err := sess.RoleContext(context.Background())
		require.NoError(t, err)
		assert.Nil(t, rc)
	})

	t.Run("unauthenticated session", func(t *testing.T) {
		h := newHarness(t)
		sess := h.store.Session("anonymous")

		_, err := h.coordinator.SwitchTenant(context.Background(), sess, acmeTenantID)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("cancelled during role lookup", func(t *testing.T) {
		h := newHarness(t)
		sess := h.login(t, managerUserID)
		ctx, cancel := context.WithCancel(context.Background())
		h.dir.roleHook = func(int64) { cancel() }

		_, err := h.coordinator.SwitchTenant(ctx, sess, acmeTenantID)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSwitchTenant_PublishesEvents(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, managerUserID)

	var got []events.Event
	h.bus.Subscribe("", func(e events.Event) { got = append(got, e) })

	_, err := h.coordinator.SwitchTenant(context.Background(), sess, acmeTenantID)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, events.TenantChanged, got[0].Name)
	assert.Equal(t, events.TenantSwitched, got[1].Name)
	assert.Equal(t, events.TenantExperienceLoaded, got[2].Name)
	for _, e := range got {
		assert.Equal(t, sess.ID(), e.SessionID)
	}
	assert.Equal(t, "#ff0000", got[2].Detail["primaryColor"])
	assert.Equal(t, "dark", got[2].Detail["theme"])
}

func TestSwitchTenant_StaleSwitchIsSuperseded(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, managerUserID)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	h.dir.roleHook = func(tenantID int64) {
		if tenantID == acmeTenantID {
			close(entered)
			<-release
		}
	}

	slowErr := make(chan error, 1)
	go func() {
		_, err := h.coordinator.SwitchTenant(ctx, sess, acmeTenantID)
		slowErr <- err
	}()

	<-entered
	fast, err := h.coordinator.SwitchTenant(ctx, sess, betaTenantID)
	require.NoError(t, err)
	close(release)

	select {
	case err := <-slowErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("slow switch did not finish")
	}

	stored, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, betaTenantID, stored.TenantID)
	assert.Equal(t, fast.Generation, stored.Generation)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TenantSwitchesTotal.WithLabelValues(KindMember, "superseded")))
	assert.Equal(t, 0, h.coordinator.seq.inFlight())
}

func TestSwitchTenant_FailedNewerSwitchStillSupersedes(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, managerUserID)
	ctx := context.Background()

	before, err := h.coordinator.SwitchTenant(ctx, sess, betaTenantID)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.dir.roleHook = func(tenantID int64) {
		if tenantID == acmeTenantID {
			close(entered)
			<-release
		}
	}

	slowErr := make(chan error, 1)
	go func() {
		_, err := h.coordinator.SwitchTenant(ctx, sess, acmeTenantID)
		slowErr <- err
	}()

	<-entered
	_, err = h.coordinator.SwitchTenant(ctx, sess, 999)
	require.ErrorIs(t, err, tenants.ErrNotFound)
	close(release)

	select {
	case err := <-slowErr:
		assert.ErrorIs(t, err, ErrSuperseded, "the older switch loses to the newer one even though it failed")
	case <-time.After(5 * time.Second):
		t.Fatal("slow switch did not finish")
	}

	stored, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, betaTenantID, stored.TenantID, "the session keeps the context it had before both switches")
	assert.Equal(t, before.Generation, stored.Generation)
	assert.Equal(t, 0, h.coordinator.seq.inFlight())
}

func TestSwitchTenant_SessionsDoNotInterfere(t *testing.T) {
	h := newHarness(t)
	first := h.login(t, managerUserID)
	second := h.login(t, managerUserID)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.dir.roleHook = func(tenantID int64) {
		if tenantID == acmeTenantID {
			once.Do(func() { close(entered) })
			<-release
		}
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := h.coordinator.SwitchTenant(ctx, first, acmeTenantID)
		firstErr <- err
	}()

	<-entered
	_, err := h.coordinator.SwitchTenant(ctx, second, betaTenantID)
	require.NoError(t, err)
	close(release)

	assert.NoError(t, <-firstErr)
}

func TestUpdateRoleContext(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, managerUserID)
	ctx := context.Background()

	_, err := h.coordinator.UpdateRoleContext(ctx, sess)
	assert.ErrorIs(t, err, ErrNoActiveTenant)

	_, err = h.coordinator.SwitchTenant(ctx, sess, acmeTenantID)
	require.NoError(t, err)

	// promote the user and refresh
	h.dir.mu.Lock()
	h.dir.roles[roleKey{managerUserID, acmeTenantID}] = rbac.Role{ID: 8, Name: "acme-admin", Level: rbac.LevelAdmin, IsActive: true}
	h.dir.mu.Unlock()

	rc, err := h.coordinator.UpdateRoleContext(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, acmeTenantID, rc.TenantID)
	assert.Equal(t, rbac.LevelAdmin, rc.Role.Level)
	assert.True(t, rc.EffectivePermissions.CanAccessSettings)
}
