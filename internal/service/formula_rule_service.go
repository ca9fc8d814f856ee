package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/formula"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/rs/zerolog/log"
)

// YesterdayTarget is the target a rule yields for yesterday's sessions
type YesterdayTarget struct {
	RuleID       int64     `json:"rule_id"`
	Date         time.Time `json:"date"`
	TherapyCount int       `json:"therapy_count"`
	Target       float64   `json:"target"`
}

type FormulaRuleService struct {
	tx       repository.Transactor
	calendar *Calendar
}

func NewFormulaRuleService(tx repository.Transactor, calendar *Calendar) *FormulaRuleService {
	if calendar == nil {
		calendar, _ = NewCalendar("UTC", nil)
	}
	return &FormulaRuleService{tx: tx, calendar: calendar}
}

// Create stores a new active rule. Zero multiplier and weekend factor fall
// back to 1.
func (s *FormulaRuleService) Create(ctx context.Context, rule *domain.FormulaRule) (*domain.FormulaRule, error) {
	created := *rule
	created.ID = 0
	created.Status = domain.StatusActive
	created.ApplyNeutralFactors()

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := s.prepare(ctx, repos, &created); err != nil {
			return err
		}
		return repos.Rules.CreateRule(ctx, &created)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("rule_id", created.ID).Str("name", created.DisplayName).Msg("formula rule: created")
	return &created, nil
}

// Update replaces the parameters of an existing rule; status is kept.
// Zero multiplier and weekend factor fall back to 1 as on create.
func (s *FormulaRuleService) Update(ctx context.Context, id int64, rule *domain.FormulaRule) (*domain.FormulaRule, error) {
	updated := *rule
	updated.ApplyNeutralFactors()
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		existing, err := repos.Rules.GetRule(ctx, id)
		if err != nil {
			return err
		}
		updated.ID = existing.ID
		updated.Status = existing.Status
		updated.CreatedAt = existing.CreatedAt
		if err := s.prepare(ctx, repos, &updated); err != nil {
			return err
		}
		return repos.Rules.UpdateRule(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Upsert creates the rule of a clinic/product pair or updates the existing one
func (s *FormulaRuleService) Upsert(ctx context.Context, rule *domain.FormulaRule) (*domain.FormulaRule, bool, error) {
	existing, err := s.tx.Repositories().Rules.FindByPair(ctx, rule.ClinicID, rule.ProductID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		created, err := s.Create(ctx, rule)
		return created, true, err
	}
	updated, err := s.Update(ctx, existing.ID, rule)
	return updated, false, err
}

// prepare names and validates a rule before it is saved
func (s *FormulaRuleService) prepare(ctx context.Context, repos repository.Repositories, rule *domain.FormulaRule) error {
	if err := formula.Validate(rule); err != nil {
		return err
	}

	clinic, err := repos.Warehouses.GetWarehouse(ctx, rule.ClinicID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError("clinic_id", fmt.Sprintf("warehouse %d does not exist", rule.ClinicID))
		}
		return err
	}
	product, err := repos.Warehouses.GetProduct(ctx, rule.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError("product_id", fmt.Sprintf("product %d does not exist", rule.ProductID))
		}
		return err
	}
	rule.DisplayName = domain.RuleDisplayName(clinic.Name, product.Name)

	other, err := repos.Rules.FindByPair(ctx, rule.ClinicID, rule.ProductID)
	if err != nil {
		return err
	}
	if other != nil && other.ID != rule.ID {
		return domain.NewValidationError("product_id", "each clinic can only have one rule per product")
	}
	return nil
}

func (s *FormulaRuleService) Get(ctx context.Context, id int64) (*domain.FormulaRule, error) {
	return s.tx.Repositories().Rules.GetRule(ctx, id)
}

func (s *FormulaRuleService) List(ctx context.Context, filter domain.FormulaRuleFilter) ([]*domain.FormulaRule, error) {
	return s.tx.Repositories().Rules.ListRules(ctx, filter)
}

func (s *FormulaRuleService) Archive(ctx context.Context, id int64) (*domain.FormulaRule, error) {
	return s.setStatus(ctx, id, domain.StatusArchived)
}

func (s *FormulaRuleService) Restore(ctx context.Context, id int64) (*domain.FormulaRule, error) {
	return s.setStatus(ctx, id, domain.StatusActive)
}

func (s *FormulaRuleService) setStatus(ctx context.Context, id int64, status domain.RecordStatus) (*domain.FormulaRule, error) {
	var rule *domain.FormulaRule
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		rule, err = repos.Rules.GetRule(ctx, id)
		if err != nil {
			return err
		}
		rule.Status = status
		return repos.Rules.UpdateRule(ctx, rule)
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// Remove archives an active rule and deletes an archived one.
// It reports whether the rule was deleted.
func (s *FormulaRuleService) Remove(ctx context.Context, id int64) (bool, error) {
	deleted := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		rule, err := repos.Rules.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if rule.IsActive() {
			rule.Status = domain.StatusArchived
			return repos.Rules.UpdateRule(ctx, rule)
		}
		deleted = true
		return repos.Rules.DeleteRule(ctx, id)
	})
	return deleted, err
}

// Preview evaluates a stored rule for a sample therapy count
func (s *FormulaRuleService) Preview(ctx context.Context, id int64, sample int) (domain.FormulaBreakdown, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return domain.FormulaBreakdown{}, err
	}
	return s.PreviewDraft(rule, sample)
}

// PreviewDraft evaluates an unsaved rule
func (s *FormulaRuleService) PreviewDraft(rule *domain.FormulaRule, sample int) (domain.FormulaBreakdown, error) {
	if sample < 0 {
		return domain.FormulaBreakdown{}, domain.NewValidationError("therapy_count", "sample therapy count cannot be negative")
	}
	draft := *rule
	draft.ApplyNeutralFactors()
	return formula.Preview(&draft, sample), nil
}

// TargetForYesterday evaluates a rule against its clinic's sessions of yesterday
func (s *FormulaRuleService) TargetForYesterday(ctx context.Context, id int64) (*YesterdayTarget, error) {
	repos := s.tx.Repositories()
	rule, err := repos.Rules.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	date := s.calendar.Yesterday()
	count, err := repos.Demand.TherapyCount(ctx, rule.ClinicID, date)
	if err != nil {
		return nil, fmt.Errorf("count therapy sessions of warehouse %d: %w", rule.ClinicID, err)
	}

	return &YesterdayTarget{
		RuleID:       rule.ID,
		Date:         date,
		TherapyCount: count,
		Target:       formula.Compute(rule, count),
	}, nil
}
