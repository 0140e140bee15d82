package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Sb253/tenantguard/internal/core/domain"
	"github.com/Sb253/tenantguard/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	tenantIDCtxKey  ctxKey = "tenant_id"
	apiActorCtxKey  ctxKey = "api_actor"
	maxJSONBodySize        = 1 << 20
	headerSessionID        = "X-Session-Id"
	headerTraceID          = "X-Trace-Id"
)

type Handler struct {
	recordService   *usecase.RecordService
	schemaService   *usecase.SchemaService
	authService     *usecase.AuthService
	incidentService *usecase.IncidentService
}

func NewHandler(recordService *usecase.RecordService, schemaService *usecase.SchemaService, authService *usecase.AuthService, incidentService *usecase.IncidentService) *Handler {
	return &Handler{
		recordService:   recordService,
		schemaService:   schemaService,
		authService:     authService,
		incidentService: incidentService,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)

		pr.Get("/v1/schemas", h.listSchemas)
		pr.Put("/v1/schemas/{name}", h.upsertSchema)
		pr.Get("/v1/schemas/{name}", h.getSchema)
		pr.Delete("/v1/schemas/{name}", h.deleteSchema)
		pr.Post("/v1/schemas/{name}:check", h.checkPayload)

		pr.Get("/v1/collections/{schema}/records", h.listRecords)
		pr.Put("/v1/collections/{schema}/records/{id}", h.submitRecord)
		pr.Get("/v1/collections/{schema}/records/{id}", h.getRecord)
		pr.Delete("/v1/collections/{schema}/records/{id}", h.deleteRecord)

		pr.Get("/v1/incidents", h.listIncidents)
	})

	return r
}

type schemaResponse struct {
	Name      string          `json:"name"`
	Document  json.RawMessage `json:"document"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type recordResponse struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type submitResponse struct {
	Record recordResponse          `json:"record"`
	Result domain.ValidationResult `json:"result"`
}

func (h *Handler) upsertSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tenantID := tenantIDFromContext(r.Context())

	doc, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	ts, err := h.schemaService.Upsert(r.Context(), tenantID, name, doc)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(ts))
}

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"schemas": h.schemaService.BuiltinNames()})
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tenantID := tenantIDFromContext(r.Context())

	ts, err := h.schemaService.Get(r.Context(), tenantID, name)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(ts))
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tenantID := tenantIDFromContext(r.Context())

	deleted, err := h.schemaService.Delete(r.Context(), tenantID, name)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// checkPayload is the dry-run endpoint: full pipeline, nothing persisted,
// the ValidationResult returned with 200. Isolation violations are redacted
// the same way submitRecord redacts them.
func (h *Handler) checkPayload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tenantID := tenantIDFromContext(r.Context())

	raw, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	_, result, err := h.recordService.Check(r.Context(), tenantID, name, raw, tenantContextFromRequest(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	// A dry run is still a probe. Echoing the offending path or value back
	// would confirm the probe landed, so the caller gets the same generic
	// rejection submitRecord gives. The incident is audited server-side.
	if result.HasCode(domain.CodeIsolationViolation) {
		writeError(w, http.StatusForbidden, "request rejected")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) submitRecord(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	id := chi.URLParam(r, "id")
	tenantID := tenantIDFromContext(r.Context())

	raw, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	rec, result, err := h.recordService.Submit(r.Context(), tenantID, schema, id, raw, tenantContextFromRequest(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if !result.Valid {
		// Isolation probes get no detail back: confirming which path tripped
		// the check would tell an attacker the probe landed. The incident is
		// fully logged and persisted server-side.
		if result.HasCode(domain.CodeIsolationViolation) {
			writeError(w, http.StatusForbidden, "request rejected")
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Record: toRecordResponse(rec),
		Result: result,
	})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	id := chi.URLParam(r, "id")
	tenantID := tenantIDFromContext(r.Context())

	rec, err := h.recordService.Get(r.Context(), tenantID, schema, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	id := chi.URLParam(r, "id")
	tenantID := tenantIDFromContext(r.Context())

	deleted, err := h.recordService.Delete(r.Context(), tenantID, schema, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	tenantID := tenantIDFromContext(r.Context())

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	records, err := h.recordService.List(r.Context(), tenantID, schema, domain.RecordListFilter{
		IDPrefix: r.URL.Query().Get("prefix"),
		AfterID:  r.URL.Query().Get("after"),
		Limit:    limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		result = append(result, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromContext(r.Context())

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	afterID := int64(0)
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be integer")
			return
		}
		afterID = parsed
	}

	incidents, err := h.incidentService.List(r.Context(), domain.IncidentFilter{
		TenantID: tenantID,
		AfterID:  afterID,
		Limit:    limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": incidents})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), tenantIDCtxKey, apiKey.TenantID)
		ctx = context.WithValue(ctx, apiActorCtxKey, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantContextFromRequest collects the audit context the isolation checker
// attaches to incidents. The trace id is generated when the caller sends none
// so every incident stays traceable.
func tenantContextFromRequest(r *http.Request) domain.TenantContext {
	traceID := strings.TrimSpace(r.Header.Get(headerTraceID))
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return domain.TenantContext{
		UserID:    actorFromContext(r.Context()),
		SessionID: strings.TrimSpace(r.Header.Get(headerSessionID)),
		TraceID:   traceID,
	}
}

func toSchemaResponse(ts domain.TenantSchema) schemaResponse {
	return schemaResponse{
		Name:      ts.Name,
		Document:  ts.Document,
		CreatedAt: ts.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt: ts.UpdatedAt.UTC().Format(timeFormat),
	}
}

func toRecordResponse(rec domain.Record) recordResponse {
	return recordResponse{
		ID:         rec.ID,
		Collection: rec.Collection,
		Data:       rec.Data,
		CreatedAt:  rec.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(timeFormat),
	}
}

// readJSONBody decodes the request body as a single JSON value, enforcing
// the size cap and rejecting trailing tokens.
func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	return raw, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("encode json response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTenant),
		errors.Is(err, domain.ErrInvalidSchemaName),
		errors.Is(err, domain.ErrInvalidRecordID),
		errors.Is(err, domain.ErrInvalidJSON),
		errors.Is(err, domain.ErrInvalidSchemaDoc):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func tenantIDFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantIDCtxKey).(string)
	return tenant
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(apiActorCtxKey).(string)
	if actor == "" {
		return "api"
	}
	return actor
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "tenantguard",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/schemas": map[string]any{
				"get": map[string]any{"summary": "List builtin schema names"},
			},
			"/v1/schemas/{name}": map[string]any{
				"put":    map[string]any{"summary": "Upsert tenant schema override"},
				"get":    map[string]any{"summary": "Get tenant schema override"},
				"delete": map[string]any{"summary": "Delete tenant schema override"},
			},
			"/v1/schemas/{name}:check": map[string]any{
				"post": map[string]any{"summary": "Validate a payload without persisting"},
			},
			"/v1/collections/{schema}/records": map[string]any{
				"get": map[string]any{"summary": "List records"},
			},
			"/v1/collections/{schema}/records/{id}": map[string]any{
				"put":    map[string]any{"summary": "Validate and store a record"},
				"get":    map[string]any{"summary": "Get record"},
				"delete": map[string]any{"summary": "Delete record"},
			},
			"/v1/incidents": map[string]any{
				"get": map[string]any{"summary": "List isolation incidents"},
			},
		},
	}
}
