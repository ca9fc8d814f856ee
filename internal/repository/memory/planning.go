package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
)

func (s *Store) FindActive(ctx context.Context, clinicID, productID int64) (*domain.FormulaRule, error) {
	rule, err := s.FindByPair(ctx, clinicID, productID)
	if err != nil || rule == nil || !rule.IsActive() {
		return nil, err
	}
	return rule, nil
}

func (s *Store) FindByPair(ctx context.Context, clinicID, productID int64) (*domain.FormulaRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.data.rules {
		if r.ClinicID == clinicID && r.ProductID == productID {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (s *Store) GetRule(ctx context.Context, id int64) (*domain.FormulaRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data.rules[id]
	if !ok {
		return nil, fmt.Errorf("formula rule %d: %w", id, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) ListRules(ctx context.Context, filter domain.FormulaRuleFilter) ([]*domain.FormulaRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.FormulaRule, 0)
	for _, r := range s.data.rules {
		if filter.ClinicID != 0 && r.ClinicID != filter.ClinicID {
			continue
		}
		if filter.ProductID != 0 && r.ProductID != filter.ProductID {
			continue
		}
		if !filter.IncludeArchived && !r.IsActive() {
			continue
		}
		r := r
		result = append(result, &r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ClinicID != result[j].ClinicID {
			return result[i].ClinicID < result[j].ClinicID
		}
		return result[i].ProductID < result[j].ProductID
	})
	return result, nil
}

func (s *Store) CreateRule(ctx context.Context, rule *domain.FormulaRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.data.rules {
		if r.ClinicID == rule.ClinicID && r.ProductID == rule.ProductID {
			return domain.NewValidationError("product_id", "each clinic can only have one rule per product")
		}
	}
	rule.ID = s.newID()
	rule.CreatedAt = s.now()
	rule.UpdatedAt = rule.CreatedAt
	s.data.rules[rule.ID] = *rule
	return nil
}

func (s *Store) UpdateRule(ctx context.Context, rule *domain.FormulaRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.rules[rule.ID]; !ok {
		return fmt.Errorf("formula rule %d: %w", rule.ID, domain.ErrNotFound)
	}
	for id, r := range s.data.rules {
		if id != rule.ID && r.ClinicID == rule.ClinicID && r.ProductID == rule.ProductID {
			return domain.NewValidationError("product_id", "each clinic can only have one rule per product")
		}
	}
	rule.UpdatedAt = s.now()
	s.data.rules[rule.ID] = *rule
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.rules[id]; !ok {
		return fmt.Errorf("formula rule %d: %w", id, domain.ErrNotFound)
	}
	delete(s.data.rules, id)
	return nil
}

func (s *Store) GetRegion(ctx context.Context, id int64) (*domain.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data.regions[id]
	if !ok {
		return nil, fmt.Errorf("region %d: %w", id, domain.ErrNotFound)
	}
	r = cloneRegion(r)
	return &r, nil
}

func (s *Store) ListRegions(ctx context.Context, includeArchived bool) ([]*domain.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.Region, 0)
	for _, r := range s.data.regions {
		if !includeArchived && r.Status == domain.StatusArchived {
			continue
		}
		r := cloneRegion(r)
		result = append(result, &r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) CreateRegion(ctx context.Context, region *domain.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	region.ID = s.newID()
	region.CreatedAt = s.now()
	region.UpdatedAt = region.CreatedAt
	s.data.regions[region.ID] = cloneRegion(*region)
	return nil
}

func (s *Store) UpdateRegion(ctx context.Context, region *domain.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.regions[region.ID]; !ok {
		return fmt.Errorf("region %d: %w", region.ID, domain.ErrNotFound)
	}
	region.UpdatedAt = s.now()
	s.data.regions[region.ID] = cloneRegion(*region)
	return nil
}

func (s *Store) DeleteRegion(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.regions[id]; !ok {
		return fmt.Errorf("region %d: %w", id, domain.ErrNotFound)
	}
	delete(s.data.regions, id)
	return nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (*domain.ReplenishmentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data.runs[id]
	if !ok {
		return nil, fmt.Errorf("replenishment run %d: %w", id, domain.ErrNotFound)
	}
	r = cloneRun(r)
	return &r, nil
}

// GetRunForUpdate is GetRun; transactions are already serialised
func (s *Store) GetRunForUpdate(ctx context.Context, id int64) (*domain.ReplenishmentRun, error) {
	return s.GetRun(ctx, id)
}

func (s *Store) ListRuns(ctx context.Context, filter domain.RunFilter) ([]*domain.ReplenishmentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.ReplenishmentRun, 0)
	for _, r := range s.data.runs {
		if filter.State != "" && r.State != filter.State {
			continue
		}
		if !filter.IncludeArchived && r.Status == domain.StatusArchived {
			continue
		}
		r := cloneRun(r)
		result = append(result, &r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (s *Store) CreateRun(ctx context.Context, run *domain.ReplenishmentRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = s.newID()
	run.CreatedAt = s.now()
	run.UpdatedAt = run.CreatedAt
	s.data.runs[run.ID] = cloneRun(*run)
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, run *domain.ReplenishmentRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.runs[run.ID]; !ok {
		return fmt.Errorf("replenishment run %d: %w", run.ID, domain.ErrNotFound)
	}
	run.UpdatedAt = s.now()
	s.data.runs[run.ID] = cloneRun(*run)
	return nil
}

func (s *Store) DeleteRun(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.runs[id]; !ok {
		return fmt.Errorf("replenishment run %d: %w", id, domain.ErrNotFound)
	}
	delete(s.data.runs, id)
	return nil
}
