package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Sb253/tenantguard/internal/core/domain"
	"github.com/Sb253/tenantguard/internal/core/usecase"
	"github.com/Sb253/tenantguard/internal/core/validation"
)

type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[string]domain.Record
}

func (r *fakeRecordRepo) key(tenantID, collection, id string) string {
	return tenantID + "|" + collection + "|" + id
}

func (r *fakeRecordRepo) Upsert(_ context.Context, rec domain.Record) (domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.key(rec.TenantID, rec.Collection, rec.ID)] = rec
	return rec, nil
}

func (r *fakeRecordRepo) Get(_ context.Context, tenantID, collection, id string) (domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[r.key(tenantID, collection, id)]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *fakeRecordRepo) Delete(_ context.Context, tenantID, collection, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(tenantID, collection, id)
	if _, ok := r.records[k]; !ok {
		return false, nil
	}
	delete(r.records, k)
	return true, nil
}

func (r *fakeRecordRepo) List(_ context.Context, tenantID, collection string, filter domain.RecordListFilter) ([]domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Record
	for _, rec := range r.records {
		if rec.TenantID != tenantID || rec.Collection != collection {
			continue
		}
		if filter.IDPrefix != "" && !strings.HasPrefix(rec.ID, filter.IDPrefix) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type fakeSchemaRepo struct {
	mu      sync.Mutex
	schemas map[string]domain.TenantSchema
}

func (r *fakeSchemaRepo) Upsert(_ context.Context, schema domain.TenantSchema) (domain.TenantSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[schema.TenantID+"/"+schema.Name] = schema
	return schema, nil
}

func (r *fakeSchemaRepo) Get(_ context.Context, tenantID, name string) (domain.TenantSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schema, ok := r.schemas[tenantID+"/"+name]
	if !ok {
		return domain.TenantSchema{}, domain.ErrNotFound
	}
	return schema, nil
}

func (r *fakeSchemaRepo) Delete(_ context.Context, tenantID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := tenantID + "/" + name
	if _, ok := r.schemas[k]; !ok {
		return false, nil
	}
	delete(r.schemas, k)
	return true, nil
}

type fakeKeyRepo struct {
	mu   sync.Mutex
	keys map[string]domain.APIKey
}

func (r *fakeKeyRepo) FindByTokenHash(_ context.Context, tokenHash string) (domain.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[tokenHash]
	if !ok {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return key, nil
}

func (r *fakeKeyRepo) Upsert(_ context.Context, key domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key.TokenHash] = key
	return nil
}

type fakeIncidentRepo struct {
	mu        sync.Mutex
	incidents []domain.IsolationIncident
	nextID    int64
}

func (r *fakeIncidentRepo) RecordViolation(_ context.Context, incident domain.IsolationIncident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	incident.ID = r.nextID
	r.incidents = append(r.incidents, incident)
	return nil
}

func (r *fakeIncidentRepo) List(_ context.Context, filter domain.IncidentFilter) ([]domain.IsolationIncident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.IsolationIncident
	for _, inc := range r.incidents {
		if inc.TenantID != filter.TenantID || inc.ID <= filter.AfterID {
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}

func (r *fakeIncidentRepo) FetchPending(_ context.Context, _ int) ([]domain.IsolationIncident, error) {
	return nil, nil
}

func (r *fakeIncidentRepo) MarkDispatched(_ context.Context, _ int64) error { return nil }

func (r *fakeIncidentRepo) MarkFailed(_ context.Context, _ int64, _ int, _ string, _ string) error {
	return nil
}

func (r *fakeIncidentRepo) MarkDead(_ context.Context, _ int64, _ int, _ string) error { return nil }

type fixture struct {
	router    http.Handler
	records   *fakeRecordRepo
	incidents *fakeIncidentRepo
}

const (
	tokenTenantA = "token-tenant-a"
	tokenTenantB = "token-tenant-b"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	records := &fakeRecordRepo{records: make(map[string]domain.Record)}
	schemas := &fakeSchemaRepo{schemas: make(map[string]domain.TenantSchema)}
	keys := &fakeKeyRepo{keys: make(map[string]domain.APIKey)}
	incidents := &fakeIncidentRepo{}

	ctx := context.Background()
	for token, tenant := range map[string]string{
		tokenTenantA: "tenant-a",
		tokenTenantB: "tenant-b",
	} {
		err := keys.Upsert(ctx, domain.APIKey{
			TokenHash: usecase.HashToken(token),
			TenantID:  tenant,
			Name:      "test-" + tenant,
			Active:    true,
		})
		if err != nil {
			t.Fatalf("seed key: %v", err)
		}
	}

	validator := validation.NewValidator()
	validation.RegisterBuiltins(validator)
	schemaService := usecase.NewSchemaService(schemas, validator)
	checker := validation.NewIsolationChecker(incidents)
	recordService := usecase.NewRecordService(records, schemaService, checker)

	handler := NewHandler(
		recordService,
		schemaService,
		usecase.NewAuthService(keys),
		usecase.NewIncidentService(incidents),
	)
	return &fixture{router: handler.Router(), records: records, incidents: incidents}
}

func (f *fixture) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("X-API-Key", token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func validCustomerBody(tenantID string) string {
	return `{
		"id": "8f14e45f-ceea-4672-a2cf-4d41aab25a01",
		"tenant_id": "` + tenantID + `",
		"name": "Acme Plumbing",
		"email": "  BILLING@Acme.Example  ",
		"type": "commercial",
		"status": "active"
	}`
}

func TestHealthzIsPublic(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	if rr := f.do(t, http.MethodGet, "/v1/incidents", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/v1/incidents", "wrong-token", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/incidents", nil)
	req.Header.Set("Authorization", "Bearer "+tokenTenantA)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("bearer token: %d %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitRecordOK(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPut, "/v1/collections/customer/records/cust-1", tokenTenantA, validCustomerBody("tenant-a"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}

	resp := decodeBody[struct {
		Record struct {
			ID   string          `json:"id"`
			Data json.RawMessage `json:"data"`
		} `json:"record"`
		Result domain.ValidationResult `json:"result"`
	}](t, rr)

	if resp.Record.ID != "cust-1" {
		t.Fatalf("record id: %q", resp.Record.ID)
	}
	if !resp.Result.Valid {
		t.Fatalf("result: %+v", resp.Result)
	}

	var data map[string]any
	if err := json.Unmarshal(resp.Record.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data["email"] != "billing@acme.example" {
		t.Fatalf("stored email not sanitized: %v", data["email"])
	}
}

func TestSubmitRecordStructuralErrors(t *testing.T) {
	f := newFixture(t)

	body := `{
		"id": "not-a-uuid",
		"tenant_id": "tenant-a",
		"name": "",
		"email": "bad",
		"type": "commercial",
		"status": "active"
	}`
	rr := f.do(t, http.MethodPut, "/v1/collections/customer/records/cust-1", tokenTenantA, body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}

	result := decodeBody[domain.ValidationResult](t, rr)
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %+v", result.Errors)
	}
	if len(f.records.records) != 0 {
		t.Fatal("invalid record persisted")
	}
}

func TestSubmitRecordForgedTenant(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/collections/customer/records/cust-1",
		strings.NewReader(validCustomerBody("tenant-b")))
	req.Header.Set("X-API-Key", tokenTenantA)
	req.Header.Set("X-Session-Id", "session-9")
	req.Header.Set("X-Trace-Id", "trace-9")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}
	// No field detail in the response.
	if strings.Contains(rr.Body.String(), "tenant_id") || strings.Contains(rr.Body.String(), "tenant-b") {
		t.Fatalf("response leaks violation detail: %s", rr.Body.String())
	}
	if len(f.records.records) != 0 {
		t.Fatal("forged record persisted")
	}

	if len(f.incidents.incidents) != 1 {
		t.Fatalf("expected audited incident, got %d", len(f.incidents.incidents))
	}
	inc := f.incidents.incidents[0]
	if inc.TenantID != "tenant-a" || inc.FoundTenantID != "tenant-b" {
		t.Fatalf("incident: %+v", inc)
	}
	if inc.SessionID != "session-9" || inc.TraceID != "trace-9" {
		t.Fatalf("audit context lost: %+v", inc)
	}
	if inc.UserID != "test-tenant-a" {
		t.Fatalf("actor not recorded: %+v", inc)
	}

	// The incident shows up on the incident listing for the same tenant.
	list := f.do(t, http.MethodGet, "/v1/incidents", tokenTenantA, "")
	if list.Code != http.StatusOK {
		t.Fatalf("incidents: %d", list.Code)
	}
	listing := decodeBody[struct {
		Items []domain.IsolationIncident `json:"items"`
	}](t, list)
	if len(listing.Items) != 1 || listing.Items[0].FoundTenantID != "tenant-b" {
		t.Fatalf("listing: %+v", listing.Items)
	}

	// But never for another tenant.
	other := f.do(t, http.MethodGet, "/v1/incidents", tokenTenantB, "")
	otherListing := decodeBody[struct {
		Items []domain.IsolationIncident `json:"items"`
	}](t, other)
	if len(otherListing.Items) != 0 {
		t.Fatalf("incident leaked across tenants: %+v", otherListing.Items)
	}
}

func TestCheckEndpointDryRun(t *testing.T) {
	f := newFixture(t)

	body := `{"id": "not-a-uuid", "tenant_id": "tenant-a"}`
	rr := f.do(t, http.MethodPost, "/v1/schemas/customer:check", tokenTenantA, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("dry run always answers 200, got %d %s", rr.Code, rr.Body.String())
	}

	result := decodeBody[domain.ValidationResult](t, rr)
	if result.Valid {
		t.Fatal("expected diagnostics")
	}
	if len(f.records.records) != 0 {
		t.Fatal("dry run persisted a record")
	}
}

func TestCheckEndpointForgedTenant(t *testing.T) {
	f := newFixture(t)

	// A structurally valid payload carrying another tenant's id. The dry run
	// must answer exactly like submitRecord does for the same payload.
	req := httptest.NewRequest(http.MethodPost, "/v1/schemas/customer:check",
		strings.NewReader(validCustomerBody("tenant-b")))
	req.Header.Set("X-API-Key", tokenTenantA)
	req.Header.Set("X-Session-Id", "session-11")
	req.Header.Set("X-Trace-Id", "trace-11")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "tenant_id") || strings.Contains(rr.Body.String(), "tenant-b") {
		t.Fatalf("response leaks violation detail: %s", rr.Body.String())
	}
	if len(f.records.records) != 0 {
		t.Fatal("dry run persisted a record")
	}

	// The rejection is generic but the incident is still fully audited.
	if len(f.incidents.incidents) != 1 {
		t.Fatalf("expected audited incident, got %d", len(f.incidents.incidents))
	}
	inc := f.incidents.incidents[0]
	if inc.TenantID != "tenant-a" || inc.FoundTenantID != "tenant-b" {
		t.Fatalf("incident: %+v", inc)
	}
	if inc.SessionID != "session-11" || inc.TraceID != "trace-11" {
		t.Fatalf("audit context lost: %+v", inc)
	}
}

func TestListSchemas(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/schemas", tokenTenantA, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}
	listing := decodeBody[struct {
		Schemas []string `json:"schemas"`
	}](t, rr)
	want := []string{"customer", "invoice", "job", "user"}
	if len(listing.Schemas) != len(want) {
		t.Fatalf("schemas: %v", listing.Schemas)
	}
	for i, name := range want {
		if listing.Schemas[i] != name {
			t.Fatalf("schemas: got %v, want %v", listing.Schemas, want)
		}
	}
}

func TestSchemaLifecycle(t *testing.T) {
	f := newFixture(t)
	doc := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`

	if rr := f.do(t, http.MethodPut, "/v1/schemas/widget", tokenTenantA, doc); rr.Code != http.StatusOK {
		t.Fatalf("upsert: %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(t, http.MethodGet, "/v1/schemas/widget", tokenTenantA, ""); rr.Code != http.StatusOK {
		t.Fatalf("get: %d", rr.Code)
	}

	// The override is tenant scoped.
	if rr := f.do(t, http.MethodGet, "/v1/schemas/widget", tokenTenantB, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant get: %d", rr.Code)
	}

	// Submitting against the override uses it.
	if rr := f.do(t, http.MethodPut, "/v1/collections/widget/records/w-1", tokenTenantA, `{"name": "gear"}`); rr.Code != http.StatusOK {
		t.Fatalf("submit against override: %d %s", rr.Code, rr.Body.String())
	}

	rr := f.do(t, http.MethodDelete, "/v1/schemas/widget", tokenTenantA, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/v1/schemas/widget", tokenTenantA, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rr.Code)
	}
}

func TestSchemaUpsertRejectsBadDocument(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPut, "/v1/schemas/widget", tokenTenantA, `{"type": 42}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRecordLifecycle(t *testing.T) {
	f := newFixture(t)

	if rr := f.do(t, http.MethodPut, "/v1/collections/customer/records/cust-1", tokenTenantA, validCustomerBody("tenant-a")); rr.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rr.Code, rr.Body.String())
	}

	if rr := f.do(t, http.MethodGet, "/v1/collections/customer/records/cust-1", tokenTenantA, ""); rr.Code != http.StatusOK {
		t.Fatalf("get: %d", rr.Code)
	}

	// Records are tenant scoped.
	if rr := f.do(t, http.MethodGet, "/v1/collections/customer/records/cust-1", tokenTenantB, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant get: %d", rr.Code)
	}

	list := f.do(t, http.MethodGet, "/v1/collections/customer/records?prefix=cust", tokenTenantA, "")
	if list.Code != http.StatusOK {
		t.Fatalf("list: %d", list.Code)
	}
	listing := decodeBody[struct {
		Items []json.RawMessage `json:"items"`
	}](t, list)
	if len(listing.Items) != 1 {
		t.Fatalf("listing: %d items", len(listing.Items))
	}

	if rr := f.do(t, http.MethodDelete, "/v1/collections/customer/records/cust-1", tokenTenantA, ""); rr.Code != http.StatusOK {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/v1/collections/customer/records/cust-1", tokenTenantA, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rr.Code)
	}
}

func TestBadRequestShapes(t *testing.T) {
	f := newFixture(t)

	if rr := f.do(t, http.MethodPut, "/v1/collections/customer/records/cust-1", tokenTenantA, `{"name":`); rr.Code != http.StatusBadRequest {
		t.Fatalf("truncated body: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodPut, "/v1/collections/customer/records/cust-1", tokenTenantA, `{} trailing`); rr.Code != http.StatusBadRequest {
		t.Fatalf("trailing tokens: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/v1/collections/customer/records?limit=abc", tokenTenantA, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodGet, "/v1/incidents?after=abc", tokenTenantA, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad after: %d", rr.Code)
	}
}

func TestOpenAPIServed(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/openapi.json", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: %d", rr.Code)
	}
	spec := decodeBody[map[string]any](t, rr)
	if spec["openapi"] != "3.0.3" {
		t.Fatalf("spec: %v", spec["openapi"])
	}
}
