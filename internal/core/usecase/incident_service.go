package usecase

import (
	"context"

	"github.com/Sb253/tenantguard/internal/core/domain"
	"github.com/Sb253/tenantguard/internal/core/ports"
)

// IncidentService serves the isolation incident trail.
type IncidentService struct {
	repo ports.IncidentRepository
}

func NewIncidentService(repo ports.IncidentRepository) *IncidentService {
	return &IncidentService{repo: repo}
}

func (s *IncidentService) List(ctx context.Context, filter domain.IncidentFilter) ([]domain.IsolationIncident, error) {
	if err := domain.ValidateTenantID(filter.TenantID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, filter)
}
