package domain

import "time"

// TenantContext accompanies every isolation check. It is used purely to
// enrich the audit trail, never for the check itself.
type TenantContext struct {
	UserID    string
	SessionID string
	TraceID   string
}

// Incident alert-delivery states. Incidents double as the alert outbox:
// pending rows are picked up by the alert dispatcher.
const (
	IncidentStatusPending    = "pending"
	IncidentStatusDispatched = "dispatched"
	IncidentStatusFailed     = "failed"
	IncidentStatusDead       = "dead"
)

// IsolationIncident is the persisted forensic record of one tenant isolation
// violation: which path disagreed, what it carried, and the request context
// that produced it.
type IsolationIncident struct {
	ID            int64      `json:"id"`
	EventID       string     `json:"event_id"`
	TenantID      string     `json:"tenant_id"`
	FoundTenantID string     `json:"found_tenant_id"`
	Field         string     `json:"field"`
	SchemaName    string     `json:"schema,omitempty"`
	UserID        string     `json:"user_id"`
	SessionID     string     `json:"session_id"`
	TraceID       string     `json:"trace_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"-"`
	LastError     string     `json:"-"`
	OccurredAt    time.Time  `json:"occurred_at"`
	DispatchedAt  *time.Time `json:"dispatched_at,omitempty"`
}

// IncidentFilter narrows incident listings.
type IncidentFilter struct {
	TenantID string
	AfterID  int64
	Limit    int
}
