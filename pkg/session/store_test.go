package session

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisStore creates a miniredis-backed store and returns a cleanup function
func setupRedisStore(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(NewRedisPersister(client, time.Hour), DefaultConfig(), testLogger())

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return store, mr, client, cleanup
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
}

func sampleContext() *TenantRoleContext {
	tenantID := int64(4)
	return &TenantRoleContext{
		UserID:     10,
		TenantID:   4,
		TenantName: "Acme",
		TenantSlug: "acme",
		Role: rbac.Role{
			ID:       3,
			Name:     "acme-admin",
			Level:    rbac.LevelAdmin,
			Type:     rbac.RoleTypeTenant,
			TenantID: &tenantID,
			IsActive: true,
			Permissions: []rbac.Permission{
				{ID: 1, Name: rbac.PermManageTenants, Resource: "tenants", Action: "manage", Scope: rbac.ScopeAll, IsSystem: true},
			},
		},
		RoleSource:               SourceResolved,
		IsOriginalSuperAdmin:     true,
		IsCurrentlyImpersonating: true,
		EffectivePermissions: rbac.EffectivePermissions{
			CanAccessManager:  true,
			CanAccessTenants:  true,
			CanAccessUsers:    true,
			CanAccessRoles:    true,
			CanAccessSettings: true,
		},
		ResolvedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
		Generation: 7,
	}
}

func sampleTenant() CurrentTenant {
	return CurrentTenantFrom(&tenants.Tenant{
		ID:   4,
		Name: "Acme",
		Slug: "acme",
		Type: tenants.TypeRetail,
		Branding: tenants.Branding{
			PrimaryColor: "#112233",
			Features:     map[string]any{"pos": true},
		},
	})
}

func TestSession_RoleContextRoundTrip(t *testing.T) {
	store, _, _, cleanup := setupRedisStore(t)
	defer cleanup()
	ctx := context.Background()

	sess := store.Session("s1")
	rc := sampleContext()
	require.NoError(t, sess.SaveRoleContext(ctx, rc, sampleTenant()))

	got, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, rc, got)

	// a fresh store over the same redis loads from the durable tier
	cold := NewStore(store.persister, DefaultConfig(), testLogger())
	got, err = cold.Session("s1").RoleContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, rc, got)

	tenant, err := cold.Session("s1").CurrentTenant(ctx)
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, "acme", tenant.Slug)
	assert.Equal(t, true, tenant.Branding.Features["pos"])
}

func TestSession_MissingContextIsNil(t *testing.T) {
	store, _, _, cleanup := setupRedisStore(t)
	defer cleanup()

	rc, err := store.Session("nobody").RoleContext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rc)
}

func TestSession_CorruptValueIsCleared(t *testing.T) {
	store, mr, _, cleanup := setupRedisStore(t)
	defer cleanup()
	ctx := context.Background()

	key := "tenantgate:session:s2:" + KeyRoleContext
	require.NoError(t, mr.Set(key, "{not json"))

	rc, err := store.Session("s2").RoleContext(ctx)
	require.NoError(t, err)
	assert.Nil(t, rc)
	assert.False(t, mr.Exists(key))
}

func TestSession_MemoryTierIsAuthoritative(t *testing.T) {
	store, mr, _, cleanup := setupRedisStore(t)
	defer cleanup()
	ctx := context.Background()

	sess := store.Session("s3")
	require.NoError(t, sess.SaveRoleContext(ctx, sampleContext(), sampleTenant()))

	// an out-of-band change in redis is not seen while the memory tier holds the value
	mr.Del("tenantgate:session:s3:" + KeyRoleContext)

	got, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(4), got.TenantID)
}

func TestSession_ClearAndLogout(t *testing.T) {
	store, mr, _, cleanup := setupRedisStore(t)
	defer cleanup()
	ctx := context.Background()

	sess, err := store.NewSession(ctx, AuthUser{ID: 10, Email: "ada@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID())
	require.NoError(t, sess.SaveRoleContext(ctx, sampleContext(), sampleTenant()))

	require.NoError(t, sess.ClearRoleContext(ctx))
	rc, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	assert.Nil(t, rc)

	user, err := sess.AuthUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(10), user.ID)

	tenant, err := sess.CurrentTenant(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tenant)

	require.NoError(t, sess.Logout(ctx))
	assert.Empty(t, mr.Keys())

	user, err = sess.AuthUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
	tenant, err = sess.CurrentTenant(ctx)
	require.NoError(t, err)
	assert.Nil(t, tenant)
}

func TestSession_RedisUnavailable(t *testing.T) {
	store, mr, _, cleanup := setupRedisStore(t)
	defer cleanup()
	mr.Close()

	_, err := store.Session("s4").RoleContext(context.Background())
	assert.Error(t, err)

	err = store.Session("s4").SaveRoleContext(context.Background(), sampleContext(), sampleTenant())
	assert.Error(t, err)
}

type countingPersister struct {
	*MemoryPersister
	gets  int32
	delay time.Duration
}

func (p *countingPersister) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	atomic.AddInt32(&p.gets, 1)
	time.Sleep(p.delay)
	return p.MemoryPersister.Get(ctx, sessionID, key)
}

func TestStore_ConcurrentColdLoadsCoalesce(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryPersister()
	require.NoError(t, NewStore(backing, DefaultConfig(), testLogger()).
		Session("s5").SaveRoleContext(ctx, sampleContext(), sampleTenant()))

	persister := &countingPersister{MemoryPersister: backing, delay: 50 * time.Millisecond}
	store := NewStore(persister, DefaultConfig(), testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc, err := store.Session("s5").RoleContext(ctx)
			assert.NoError(t, err)
			assert.NotNil(t, rc)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&persister.gets))
}

// stallingPersister reads its value, then holds it until released, so a
// write can land between the read and the cache fill
type stallingPersister struct {
	*MemoryPersister
	entered chan struct{}
	release chan struct{}
	stall   int32
}

func (p *stallingPersister) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	data, err := p.MemoryPersister.Get(ctx, sessionID, key)
	if key == KeyRoleContext && atomic.CompareAndSwapInt32(&p.stall, 1, 0) {
		close(p.entered)
		<-p.release
	}
	return data, err
}

func TestStore_SlowLoadDoesNotOverwriteNewerSave(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryPersister()
	require.NoError(t, NewStore(backing, DefaultConfig(), testLogger()).
		Session("s7").SaveRoleContext(ctx, sampleContext(), sampleTenant()))

	persister := &stallingPersister{
		MemoryPersister: backing,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
		stall:           1,
	}
	store := NewStore(persister, DefaultConfig(), testLogger())
	sess := store.Session("s7")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := sess.RoleContext(ctx)
		assert.NoError(t, err)
	}()
	<-persister.entered

	newer := sampleContext()
	newer.TenantID = 9
	newer.TenantSlug = "globex"
	require.NoError(t, sess.SaveRoleContext(ctx, newer, sampleTenant()))

	// a reader arriving while the stale load is still blocked starts its own
	got, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.TenantID)

	close(persister.release)
	<-done

	got, err = sess.RoleContext(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.TenantID)
	assert.Equal(t, "globex", got.TenantSlug)
}

func TestStore_SlowLoadDoesNotResurrectClearedValue(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryPersister()
	require.NoError(t, NewStore(backing, DefaultConfig(), testLogger()).
		Session("s8").SaveRoleContext(ctx, sampleContext(), sampleTenant()))

	persister := &stallingPersister{
		MemoryPersister: backing,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
		stall:           1,
	}
	store := NewStore(persister, DefaultConfig(), testLogger())
	sess := store.Session("s8")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sess.RoleContext(ctx)
	}()
	<-persister.entered

	require.NoError(t, sess.ClearRoleContext(ctx))
	close(persister.release)
	<-done

	got, err := sess.RoleContext(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisPersister_ReadRefreshesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	p := NewRedisPersister(client, time.Hour)
	key := "tenantgate:session:s9:" + KeyAuthUser
	require.NoError(t, p.Set(ctx, "s9", KeyAuthUser, []byte(`{"id":1}`)))

	mr.FastForward(50 * time.Minute)
	data, err := p.Get(ctx, "s9", KeyAuthUser)
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Equal(t, time.Hour, mr.TTL(key))

	// an hour of activity in total outlives the original TTL
	mr.FastForward(50 * time.Minute)
	data, err = p.Get(ctx, "s9", KeyAuthUser)
	require.NoError(t, err)
	assert.NotNil(t, data)

	mr.FastForward(61 * time.Minute)
	data, err = p.Get(ctx, "s9", KeyAuthUser)
	require.NoError(t, err)
	assert.Nil(t, data, "idle sessions still expire")

	forever := NewRedisPersister(client, 0)
	require.NoError(t, forever.Set(ctx, "s10", KeyAuthUser, []byte(`{}`)))
	_, err = forever.Get(ctx, "s10", KeyAuthUser)
	require.NoError(t, err)
	assert.Zero(t, mr.TTL("tenantgate:session:s10:"+KeyAuthUser))
}

func TestFromContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	store := NewStore(NewMemoryPersister(), DefaultConfig(), testLogger())
	sess := store.Session("s6")
	got, err := FromContext(WithSession(context.Background(), sess))
	require.NoError(t, err)
	assert.Equal(t, "s6", got.ID())
}
