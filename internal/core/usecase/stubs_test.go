package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

// In-memory repository stubs shared by the service tests.

type memRecordRepo struct {
	mu         sync.Mutex
	records    map[string]domain.Record
	lastFilter domain.RecordListFilter
	upsertErr  error
}

func newMemRecordRepo() *memRecordRepo {
	return &memRecordRepo{records: make(map[string]domain.Record)}
}

func recordKey(tenantID, collection, id string) string {
	return tenantID + "|" + collection + "|" + id
}

func (r *memRecordRepo) Upsert(_ context.Context, rec domain.Record) (domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return domain.Record{}, r.upsertErr
	}
	now := time.Now().UTC()
	if prev, ok := r.records[recordKey(rec.TenantID, rec.Collection, rec.ID)]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.records[recordKey(rec.TenantID, rec.Collection, rec.ID)] = rec
	return rec, nil
}

func (r *memRecordRepo) Get(_ context.Context, tenantID, collection, id string) (domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey(tenantID, collection, id)]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *memRecordRepo) Delete(_ context.Context, tenantID, collection, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey(tenantID, collection, id)
	if _, ok := r.records[key]; !ok {
		return false, nil
	}
	delete(r.records, key)
	return true, nil
}

func (r *memRecordRepo) List(_ context.Context, tenantID, collection string, filter domain.RecordListFilter) ([]domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	var out []domain.Record
	for _, rec := range r.records {
		if rec.TenantID != tenantID || rec.Collection != collection {
			continue
		}
		if filter.IDPrefix != "" && !strings.HasPrefix(rec.ID, filter.IDPrefix) {
			continue
		}
		if filter.AfterID != "" && rec.ID <= filter.AfterID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memSchemaRepo struct {
	mu      sync.Mutex
	schemas map[string]domain.TenantSchema
	getErr  error
}

func newMemSchemaRepo() *memSchemaRepo {
	return &memSchemaRepo{schemas: make(map[string]domain.TenantSchema)}
}

func (r *memSchemaRepo) Upsert(_ context.Context, schema domain.TenantSchema) (domain.TenantSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schema.UpdatedAt = time.Now().UTC()
	r.schemas[schema.TenantID+"/"+schema.Name] = schema
	return schema, nil
}

func (r *memSchemaRepo) Get(_ context.Context, tenantID, name string) (domain.TenantSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.TenantSchema{}, r.getErr
	}
	schema, ok := r.schemas[tenantID+"/"+name]
	if !ok {
		return domain.TenantSchema{}, domain.ErrNotFound
	}
	return schema, nil
}

func (r *memSchemaRepo) Delete(_ context.Context, tenantID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantID + "/" + name
	if _, ok := r.schemas[key]; !ok {
		return false, nil
	}
	delete(r.schemas, key)
	return true, nil
}

type memIncidentRepo struct {
	mu         sync.Mutex
	incidents  []domain.IsolationIncident
	lastFilter domain.IncidentFilter
	nextID     int64
}

func newMemIncidentRepo() *memIncidentRepo {
	return &memIncidentRepo{}
}

func (r *memIncidentRepo) RecordViolation(_ context.Context, incident domain.IsolationIncident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	incident.ID = r.nextID
	if incident.Status == "" {
		incident.Status = domain.IncidentStatusPending
	}
	r.incidents = append(r.incidents, incident)
	return nil
}

func (r *memIncidentRepo) List(_ context.Context, filter domain.IncidentFilter) ([]domain.IsolationIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	var out []domain.IsolationIncident
	for _, inc := range r.incidents {
		if inc.TenantID != filter.TenantID || inc.ID <= filter.AfterID {
			continue
		}
		out = append(out, inc)
	}
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memIncidentRepo) FetchPending(_ context.Context, limit int) ([]domain.IsolationIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.IsolationIncident
	for _, inc := range r.incidents {
		if inc.Status != domain.IncidentStatusPending && inc.Status != domain.IncidentStatusFailed {
			continue
		}
		out = append(out, inc)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memIncidentRepo) MarkDispatched(_ context.Context, id int64) error {
	return r.setStatus(id, domain.IncidentStatusDispatched, 0, "")
}

func (r *memIncidentRepo) MarkFailed(_ context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error {
	return r.setStatus(id, domain.IncidentStatusFailed, attempts, errMsg)
}

func (r *memIncidentRepo) MarkDead(_ context.Context, id int64, attempts int, errMsg string) error {
	return r.setStatus(id, domain.IncidentStatusDead, attempts, errMsg)
}

func (r *memIncidentRepo) setStatus(id int64, status string, attempts int, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.incidents {
		if r.incidents[i].ID == id {
			r.incidents[i].Status = status
			r.incidents[i].Attempts = attempts
			r.incidents[i].LastError = errMsg
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memIncidentRepo) byStatus(status string) []domain.IsolationIncident {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.IsolationIncident
	for _, inc := range r.incidents {
		if inc.Status == status {
			out = append(out, inc)
		}
	}
	return out
}

type memKeyRepo struct {
	mu   sync.Mutex
	keys map[string]domain.APIKey
}

func newMemKeyRepo() *memKeyRepo {
	return &memKeyRepo{keys: make(map[string]domain.APIKey)}
}

func (r *memKeyRepo) FindByTokenHash(_ context.Context, tokenHash string) (domain.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[tokenHash]
	if !ok {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return key, nil
}

func (r *memKeyRepo) Upsert(_ context.Context, key domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key.TokenHash] = key
	return nil
}
