package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/Sb253/tenantguard/internal/adapters/sqlite/gormsqlite"
	"github.com/Sb253/tenantguard/internal/core/domain"
)

type incidentModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	FoundTenantID string     `gorm:"column:found_tenant_id;not null"`
	Field         string     `gorm:"column:field;not null"`
	SchemaName    string     `gorm:"column:schema_name;not null"`
	UserID        string     `gorm:"column:user_id;not null"`
	SessionID     string     `gorm:"column:session_id;not null"`
	TraceID       string     `gorm:"column:trace_id;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	OccurredAt    time.Time  `gorm:"column:occurred_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (incidentModel) TableName() string {
	return "isolation_incidents"
}

// IncidentRepository persists isolation incidents. The same table is the
// forensic trail and the alert outbox, so a violation is never recorded
// without also being queued for alerting.
type IncidentRepository struct {
	db *gormsqlite.DB
}

func NewIncidentRepository(db *gormsqlite.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

func (r *IncidentRepository) RecordViolation(ctx context.Context, incident domain.IsolationIncident) error {
	model := incidentModel{
		EventID:       incident.EventID,
		TenantID:      incident.TenantID,
		FoundTenantID: incident.FoundTenantID,
		Field:         incident.Field,
		SchemaName:    incident.SchemaName,
		UserID:        incident.UserID,
		SessionID:     incident.SessionID,
		TraceID:       incident.TraceID,
		Status:        incident.Status,
		Attempts:      incident.Attempts,
		NextAttemptAt: incident.OccurredAt,
		OccurredAt:    incident.OccurredAt,
	}
	if model.Status == "" {
		model.Status = domain.IncidentStatusPending
	}
	if model.OccurredAt.IsZero() {
		model.OccurredAt = time.Now().UTC()
		model.NextAttemptAt = model.OccurredAt
	}

	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("insert isolation incident: %w", err)
	}
	return nil
}

func (r *IncidentRepository) List(ctx context.Context, filter domain.IncidentFilter) ([]domain.IsolationIncident, error) {
	var models []incidentModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&incidentModel{}).Where("tenant_id = ?", filter.TenantID)
		if filter.AfterID > 0 {
			query = query.Where("id > ?", filter.AfterID)
		}
		return query.Order("id ASC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return toIncidentDomains(models), nil
}

func (r *IncidentRepository) FetchPending(ctx context.Context, limit int) ([]domain.IsolationIncident, error) {
	now := time.Now().UTC()
	var models []incidentModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&incidentModel{}).
			Where("status IN ? AND next_attempt_at <= ?",
				[]string{domain.IncidentStatusPending, domain.IncidentStatusFailed}, now).
			Order("id ASC").Limit(limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending incidents: %w", err)
	}
	return toIncidentDomains(models), nil
}

func (r *IncidentRepository) MarkDispatched(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&incidentModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":        domain.IncidentStatusDispatched,
			"dispatched_at": now,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("mark incident dispatched: %w", err)
	}
	return nil
}

func (r *IncidentRepository) MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error {
	next, err := time.Parse(time.RFC3339Nano, nextAttemptAt)
	if err != nil {
		next = time.Now().UTC()
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&incidentModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":          domain.IncidentStatusFailed,
			"attempts":        attempts,
			"next_attempt_at": next,
			"last_error":      errMsg,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("mark incident failed: %w", err)
	}
	return nil
}

func (r *IncidentRepository) MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&incidentModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":     domain.IncidentStatusDead,
			"attempts":   attempts,
			"last_error": errMsg,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("mark incident dead: %w", err)
	}
	return nil
}

func toIncidentDomains(models []incidentModel) []domain.IsolationIncident {
	incidents := make([]domain.IsolationIncident, 0, len(models))
	for _, m := range models {
		incidents = append(incidents, domain.IsolationIncident{
			ID:            m.ID,
			EventID:       m.EventID,
			TenantID:      m.TenantID,
			FoundTenantID: m.FoundTenantID,
			Field:         m.Field,
			SchemaName:    m.SchemaName,
			UserID:        m.UserID,
			SessionID:     m.SessionID,
			TraceID:       m.TraceID,
			Status:        m.Status,
			Attempts:      m.Attempts,
			NextAttemptAt: m.NextAttemptAt,
			LastError:     m.LastError,
			OccurredAt:    m.OccurredAt,
			DispatchedAt:  m.DispatchedAt,
		})
	}
	return incidents
}
