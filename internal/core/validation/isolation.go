package validation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

// TenantField is the literal key the isolation checker anchors on. Schemas
// carry no tenant-aware annotation, so the key name is the sole anchor.
const TenantField = "tenant_id"

// isolationResultTag labels results produced by the checker; there is no
// registered schema behind them.
const isolationResultTag = "tenant-isolation"

// Auditor receives one entry per detected violation. Implementations persist
// it (sqlite incident repository) or forward it (alert publishers).
type Auditor interface {
	RecordViolation(ctx context.Context, incident domain.IsolationIncident) error
}

// IsolationChecker scans arbitrary decoded JSON for tenant fields that
// disagree with the expected tenant. It is independent of schema validation:
// a structurally perfect payload can still carry a forged tenant id.
type IsolationChecker struct {
	auditor Auditor
}

// NewIsolationChecker returns a checker that reports violations to auditor.
// A nil auditor still produces the log trail; persistence is just skipped.
func NewIsolationChecker(auditor Auditor) *IsolationChecker {
	return &IsolationChecker{auditor: auditor}
}

// Check walks data depth-first looking for every field named tenant_id whose
// value differs from expectedTenantID by strict equality. All violations are
// collected in one pass. Each violation is logged and handed to the auditor
// unconditionally; the forensic trail exists even if the caller discards the
// returned result.
func (c *IsolationChecker) Check(ctx context.Context, data any, expectedTenantID string, tc domain.TenantContext) domain.ValidationResult {
	result := domain.NewValidationResult(isolationResultTag, "")
	c.walk(ctx, data, expectedTenantID, tc, "", &result)
	return result
}

func (c *IsolationChecker) walk(ctx context.Context, data any, expected string, tc domain.TenantContext, path string, result *domain.ValidationResult) {
	switch v := data.(type) {
	case map[string]any:
		for key, value := range v {
			childPath := joinPath(path, key)
			if key == TenantField {
				if found, ok := value.(string); !ok || found != expected {
					c.report(ctx, expected, value, childPath, tc, result)
				}
				continue
			}
			c.walk(ctx, value, expected, tc, childPath, result)
		}
	case []any:
		for i, elem := range v {
			c.walk(ctx, elem, expected, tc, indexPath(path, i), result)
		}
	}
}

func (c *IsolationChecker) report(ctx context.Context, expected string, found any, path string, tc domain.TenantContext, result *domain.ValidationResult) {
	result.AddError(domain.ValidationError{
		Field:      path,
		Code:       domain.CodeIsolationViolation,
		Message:    "tenant id does not match the authenticated tenant",
		Value:      found,
		Constraint: fmt.Sprintf("tenant %s", expected),
	})

	foundStr := fmt.Sprintf("%v", found)
	log.Printf("SECURITY tenant isolation violation expected=%s found=%s path=%s user=%s session=%s trace=%s",
		expected, foundStr, path, tc.UserID, tc.SessionID, tc.TraceID)

	if c.auditor == nil {
		return
	}
	err := c.auditor.RecordViolation(ctx, domain.IsolationIncident{
		EventID:       uuid.NewString(),
		TenantID:      expected,
		FoundTenantID: foundStr,
		Field:         path,
		UserID:        tc.UserID,
		SessionID:     tc.SessionID,
		TraceID:       tc.TraceID,
		Status:        domain.IncidentStatusPending,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		log.Printf("record isolation incident: %v", err)
	}
}
