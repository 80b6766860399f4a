package tenants

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// ExpiryReporter counts ACTIVE assignments that are past their ExpiresAt.
// It reports only; statuses are left untouched.
type ExpiryReporter struct {
	service Service
	logger  *observability.Logger
	gauge   prometheus.Gauge
	now     func() time.Time
}

// NewExpiryReporter creates a reporter. gauge may be nil.
func NewExpiryReporter(service Service, logger *observability.Logger, gauge prometheus.Gauge) *ExpiryReporter {
	return &ExpiryReporter{
		service: service,
		logger:  logger,
		gauge:   gauge,
		now:     time.Now,
	}
}

// Run performs one report pass and returns the overdue assignments
func (r *ExpiryReporter) Run(ctx context.Context) ([]*UserAssignment, error) {
	overdue, err := r.service.ListPastExpiry(ctx, r.now())
	if err != nil {
		r.logger.WithError(err).Error("Expiry report failed")
		return nil, err
	}

	if r.gauge != nil {
		r.gauge.Set(float64(len(overdue)))
	}

	for _, a := range overdue {
		r.logger.WithFields(map[string]interface{}{
			"assignment_id": a.ID,
			"user_id":       a.UserID,
			"tenant_id":     a.TenantID,
			"expires_at":    a.ExpiresAt,
		}).Warn("Assignment is past its expiry")
	}
	r.logger.Infof("Expiry report: %d active assignments past expiry", len(overdue))

	return overdue, nil
}
