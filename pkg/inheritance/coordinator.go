package inheritance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/events"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/session"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
)

var coordinatorTracer = otel.Tracer("tenantgate/inheritance")

var (
	// ErrSuperseded is returned by a switch that lost to a newer switch on
	// the same session. Nothing was committed.
	ErrSuperseded = errors.New("tenant switch superseded by a newer switch")
	// ErrNoActiveTenant is returned when refreshing a session that has
	// never switched into a tenant
	ErrNoActiveTenant = errors.New("session has no active tenant")
	// ErrNotAuthenticated is returned when the session has no auth user
	ErrNotAuthenticated = errors.New("session is not authenticated")
)

// Switch kinds, used for metrics and audit
const (
	KindMember      = "member"
	KindImpersonate = "impersonate"
	KindCore        = "core"
)

// Options configures a Coordinator. Every field is optional.
type Options struct {
	CoreSlug string
	Bus      *events.Bus
	Audit    audit.Logger
	Metrics  *observability.Metrics
	Logger   *observability.Logger
}

// Coordinator switches sessions between tenants and derives the role
// context for the target tenant
type Coordinator struct {
	directory Directory
	coreSlug  string
	bus       *events.Bus
	auditor   audit.Logger
	metrics   *observability.Metrics
	logger    *observability.Logger
	seq       *sequencer
	now       func() time.Time
}

// NewCoordinator creates a coordinator over a directory
func NewCoordinator(directory Directory, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Audit == nil {
		opts.Audit = audit.NoopLogger{}
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus(nil)
	}
	if opts.CoreSlug == "" {
		opts.CoreSlug = tenants.DefaultCoreSlug
	}
	return &Coordinator{
		directory: directory,
		coreSlug:  opts.CoreSlug,
		bus:       opts.Bus,
		auditor:   opts.Audit,
		metrics:   opts.Metrics,
		logger:    opts.Logger.WithField("component", "inheritance"),
		seq:       newSequencer(),
		now:       time.Now,
	}
}

type switchPlan struct {
	kind   string
	rc     *session.TenantRoleContext
	tenant *tenants.Tenant
}

// SwitchTenant moves the session into the target tenant and stores the
// resulting role context. Nothing is written to the session when an error
// is returned.
func (c *Coordinator) SwitchTenant(ctx context.Context, sess *session.Session, targetTenantID int64) (*session.TenantRoleContext, error) {
	ctx, span := coordinatorTracer.Start(ctx, "SwitchTenant",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID()),
			attribute.Int64("tenant.target_id", targetTenantID),
		),
	)
	defer span.End()

	start := c.now()
	t := c.seq.begin(sess.ID())
	defer t.release()

	user, err := sess.AuthUser(ctx)
	if err != nil {
		return nil, c.fail(ctx, span, "", fmt.Errorf("failed to load auth user: %w", err))
	}
	if user == nil {
		return nil, c.fail(ctx, span, "", ErrNotAuthenticated)
	}

	previous, err := sess.RoleContext(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read previous role context")
	}

	plan, kind, err := c.assemble(ctx, user.ID, targetTenantID)
	if err != nil {
		c.auditFailure(ctx, sess, user.ID, targetTenantID, kind, err)
		return nil, c.fail(ctx, span, kind, err)
	}
	plan.rc.Generation = t.generation
	span.SetAttributes(
		attribute.String("switch.kind", kind),
		attribute.String("role.level", string(plan.rc.Role.Level)),
		attribute.String("role.source", string(plan.rc.RoleSource)),
	)

	err = t.commit(func() error {
		return sess.SaveRoleContext(ctx, plan.rc, session.CurrentTenantFrom(plan.tenant))
	})
	if errors.Is(err, ErrSuperseded) {
		observability.WithTraceContext(ctx, c.logger).WithFields(map[string]interface{}{
			"session_id": sess.ID(),
			"generation": t.generation,
		}).Debugf("Tenant switch to %d superseded", targetTenantID)
		c.countSwitch(kind, "superseded")
		span.SetStatus(codes.Error, "superseded")
		return nil, err
	}
	if err != nil {
		return nil, c.fail(ctx, span, kind, fmt.Errorf("failed to save role context: %w", err))
	}

	c.countSwitch(kind, "success")
	if c.metrics != nil {
		c.metrics.TenantSwitchDuration.WithLabelValues(kind).Observe(c.now().Sub(start).Seconds())
	}

	c.logger.WithFields(map[string]interface{}{
		"user_id":       user.ID,
		"tenant_id":     plan.rc.TenantID,
		"kind":          kind,
		"role_level":    string(plan.rc.Role.Level),
		"role_source":   string(plan.rc.RoleSource),
		"impersonating": plan.rc.IsCurrentlyImpersonating,
	}).Info("Tenant switched")

	c.auditSuccess(ctx, sess, plan, previous)
	c.publish(ctx, sess, plan, previous)
	return plan.rc, nil
}

// UpdateRoleContext re-derives the role context for the session's current
// tenant
func (c *Coordinator) UpdateRoleContext(ctx context.Context, sess *session.Session) (*session.TenantRoleContext, error) {
	current, err := sess.CurrentTenant(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current tenant: %w", err)
	}
	if current != nil {
		return c.SwitchTenant(ctx, sess, current.ID)
	}

	rc, err := sess.RoleContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load role context: %w", err)
	}
	if rc == nil {
		return nil, ErrNoActiveTenant
	}
	return c.SwitchTenant(ctx, sess, rc.TenantID)
}

// assemble builds the switch result without touching the session. The
// returned kind is set as soon as it is known, also on error.
func (c *Coordinator) assemble(ctx context.Context, userID, targetTenantID int64) (*switchPlan, string, error) {
	isSuperAdmin, err := c.directory.IsSuperAdmin(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check super admin status: %w", err)
	}

	if !isSuperAdmin {
		tenant, err := c.directory.GetTenant(ctx, targetTenantID)
		if err != nil {
			return nil, KindMember, fmt.Errorf("failed to get tenant: %w", err)
		}
		role, source, err := c.resolveRole(ctx, userID, targetTenantID)
		if err != nil {
			return nil, KindMember, err
		}
		rc := c.newContext(userID, tenant, role, source)
		rc.EffectivePermissions = rbac.CalculateEffectivePermissions(role, false)
		return &switchPlan{kind: KindMember, rc: rc, tenant: tenant}, KindMember, nil
	}

	tenant, err := c.directory.GetTenant(ctx, targetTenantID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get tenant: %w", err)
	}

	if tenant.IsCore(c.coreSlug) {
		rc := c.newContext(userID, tenant, coreRole(), session.SourceCore)
		rc.IsOriginalSuperAdmin = true
		rc.EffectivePermissions = rbac.FullAccess()
		return &switchPlan{kind: KindCore, rc: rc, tenant: tenant}, KindCore, nil
	}

	tenant, err = c.directory.SwitchAsSuperAdmin(ctx, userID, targetTenantID)
	if err != nil {
		return nil, KindImpersonate, fmt.Errorf("privileged switch failed: %w", err)
	}
	role, source, err := c.resolveRole(ctx, userID, targetTenantID)
	if err != nil {
		return nil, KindImpersonate, err
	}
	rc := c.newContext(userID, tenant, role, source)
	rc.IsOriginalSuperAdmin = true
	rc.IsCurrentlyImpersonating = true
	rc.EffectivePermissions = rbac.CalculateEffectivePermissions(role, true)
	return &switchPlan{kind: KindImpersonate, rc: rc, tenant: tenant}, KindImpersonate, nil
}

// resolveRole never fails on a lookup problem: a missing assignment or a
// failed lookup both substitute the default role. Only a cancelled
// context is returned as an error.
func (c *Coordinator) resolveRole(ctx context.Context, userID, tenantID int64) (rbac.Role, session.RoleSource, error) {
	resolution, err := c.directory.UserRoleInTenant(ctx, userID, tenantID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return rbac.Role{}, "", ctxErr
	}

	logger := c.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"tenant_id": tenantID,
	})
	if err != nil {
		logger.WithError(err).Warnf("Role lookup in tenant %d failed, using default role", tenantID)
		c.countFallback("lookup_error")
		return rbac.DefaultRole(), session.SourceFallback, nil
	}
	if role, ok := resolution.Role(); ok {
		return role, session.SourceResolved, nil
	}

	logger.Info("No role assignment in tenant, using default role")
	c.countFallback("not_assigned")
	return rbac.DefaultRole(), session.SourceDefault, nil
}

func (c *Coordinator) newContext(userID int64, tenant *tenants.Tenant, role rbac.Role, source session.RoleSource) *session.TenantRoleContext {
	return &session.TenantRoleContext{
		UserID:     userID,
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		TenantSlug: tenant.Slug,
		Role:       role,
		RoleSource: source,
		ResolvedAt: c.now().UTC(),
	}
}

// coreRole is the role synthesized for a super admin in the core tenant
func coreRole() rbac.Role {
	return rbac.Role{
		Name:        "core-super-admin",
		DisplayName: "Super Admin",
		Level:       rbac.LevelSuperAdmin,
		Type:        rbac.RoleTypeSystem,
		IsActive:    true,
		Permissions: []rbac.Permission{},
	}
}

func (c *Coordinator) fail(ctx context.Context, span trace.Span, kind string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind == "" {
		kind = "unknown"
	}
	c.countSwitch(kind, "error")
	observability.WithTraceContext(ctx, observability.FromContext(ctx)).WithError(err).WithField("kind", kind).Warn("Tenant switch failed")
	return err
}

func (c *Coordinator) countSwitch(kind, outcome string) {
	if c.metrics != nil {
		c.metrics.TenantSwitchesTotal.WithLabelValues(kind, outcome).Inc()
	}
}

func (c *Coordinator) countFallback(reason string) {
	if c.metrics != nil {
		c.metrics.RoleFallbacksTotal.WithLabelValues(reason).Inc()
	}
}

func auditType(kind string) audit.EventType {
	switch kind {
	case KindImpersonate:
		return audit.EventTypeTenantImpersonate
	case KindCore:
		return audit.EventTypeTenantCoreReturn
	default:
		return audit.EventTypeTenantSwitch
	}
}

func (c *Coordinator) auditSuccess(ctx context.Context, sess *session.Session, plan *switchPlan, previous *session.TenantRoleContext) {
	target := plan.rc.TenantID
	event := &audit.Event{
		Type:           auditType(plan.kind),
		Status:         audit.EventStatusSuccess,
		ActorID:        plan.rc.UserID,
		TargetTenantID: &target,
		SessionID:      sess.ID(),
		Message:        fmt.Sprintf("switched to tenant %s", plan.rc.TenantSlug),
		Metadata: map[string]interface{}{
			"role_level":  string(plan.rc.Role.Level),
			"role_source": string(plan.rc.RoleSource),
			"generation":  plan.rc.Generation,
		},
	}
	if previous != nil {
		from := previous.TenantID
		event.TenantID = &from
	}
	if err := c.auditor.Log(ctx, event); err != nil {
		c.logger.WithError(err).Error("Failed to write audit event")
	}
}

func (c *Coordinator) auditFailure(ctx context.Context, sess *session.Session, userID, targetTenantID int64, kind string, cause error) {
	event := &audit.Event{
		Type:           auditType(kind),
		Status:         audit.EventStatusFailure,
		ActorID:        userID,
		TargetTenantID: &targetTenantID,
		SessionID:      sess.ID(),
		Message:        cause.Error(),
	}
	if errors.Is(cause, ErrNotSuperAdmin) {
		event.Status = audit.EventStatusDenied
	}
	if err := c.auditor.Log(ctx, event); err != nil {
		c.logger.WithError(err).Error("Failed to write audit event")
	}
}

func (c *Coordinator) publish(ctx context.Context, sess *session.Session, plan *switchPlan, previous *session.TenantRoleContext) {
	rc := plan.rc

	changed := map[string]interface{}{
		"tenantId":   rc.TenantID,
		"tenantName": rc.TenantName,
		"tenantSlug": rc.TenantSlug,
	}
	if previous != nil {
		changed["previousTenantId"] = previous.TenantID
	}
	c.bus.Publish(ctx, events.Event{Name: events.TenantChanged, SessionID: sess.ID(), Detail: changed})

	c.bus.Publish(ctx, events.Event{
		Name:      events.TenantSwitched,
		SessionID: sess.ID(),
		Detail: map[string]interface{}{
			"tenantId":                 rc.TenantID,
			"roleLevel":                string(rc.Role.Level),
			"isOriginalSuperAdmin":     rc.IsOriginalSuperAdmin,
			"isCurrentlyImpersonating": rc.IsCurrentlyImpersonating,
			"effectivePermissions":     rc.EffectivePermissions,
		},
	})

	c.bus.Publish(ctx, events.Event{
		Name:      events.TenantExperienceLoaded,
		SessionID: sess.ID(),
		Detail: map[string]interface{}{
			"tenantId":     rc.TenantID,
			"tenantType":   string(plan.tenant.Type),
			"primaryColor": plan.tenant.Branding.PrimaryColor,
			"theme":        plan.tenant.Branding.Theme,
			"features":     plan.tenant.Branding.Features,
		},
	})
}
