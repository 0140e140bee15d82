package events

import (
	"context"
	"log"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

// LogPublisher is the fallback alert channel used when no webhook is
// configured: incidents still surface in the service log.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, incident domain.IsolationIncident) error {
	log.Printf("isolation alert event_id=%s tenant=%s found=%s field=%s user=%s trace=%s",
		incident.EventID, incident.TenantID, incident.FoundTenantID, incident.Field, incident.UserID, incident.TraceID)
	return nil
}
