package ports

import (
	"context"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

// IncidentRepository persists isolation incidents and serves them back as the
// alert outbox (pending rows) and the forensic trail (listings).
type IncidentRepository interface {
	RecordViolation(ctx context.Context, incident domain.IsolationIncident) error
	List(ctx context.Context, filter domain.IncidentFilter) ([]domain.IsolationIncident, error)
	FetchPending(ctx context.Context, limit int) ([]domain.IsolationIncident, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}

// AlertPublisher delivers an incident to an external alerting channel.
type AlertPublisher interface {
	Publish(ctx context.Context, incident domain.IsolationIncident) error
}
