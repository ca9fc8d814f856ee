package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const ruleColumns = `id, clinic_id, product_id, display_name, multiplier, starting_round_up,
	weekend_factor, buffer, ending_round_up, minimum_value, maximum_value, fixed_value,
	status, created_at, updated_at`

func (s *store) FindActive(ctx context.Context, clinicID, productID int64) (*domain.FormulaRule, error) {
	return s.findRule(ctx, clinicID, productID, true)
}

func (s *store) FindByPair(ctx context.Context, clinicID, productID int64) (*domain.FormulaRule, error) {
	return s.findRule(ctx, clinicID, productID, false)
}

func (s *store) findRule(ctx context.Context, clinicID, productID int64, activeOnly bool) (*domain.FormulaRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM formula_rules WHERE clinic_id = $1 AND product_id = $2`
	if activeOnly {
		query += ` AND status = 'active'`
	}

	var rule domain.FormulaRule
	err := sqlx.GetContext(ctx, s.q, &rule, query, clinicID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find formula rule: %w", err)
	}
	return &rule, nil
}

func (s *store) GetRule(ctx context.Context, id int64) (*domain.FormulaRule, error) {
	var rule domain.FormulaRule
	if err := sqlx.GetContext(ctx, s.q, &rule, `SELECT `+ruleColumns+` FROM formula_rules WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "formula rule", id)
	}
	return &rule, nil
}

func (s *store) ListRules(ctx context.Context, filter domain.FormulaRuleFilter) ([]*domain.FormulaRule, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.ClinicID != 0 {
		args = append(args, filter.ClinicID)
		conditions = append(conditions, fmt.Sprintf("clinic_id = $%d", len(args)))
	}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, "status = 'active'")
	}

	query := `SELECT ` + ruleColumns + ` FROM formula_rules`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY clinic_id, product_id"

	rules := make([]*domain.FormulaRule, 0)
	if err := sqlx.SelectContext(ctx, s.q, &rules, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list formula rules: %w", err)
	}
	return rules, nil
}

func (s *store) CreateRule(ctx context.Context, rule *domain.FormulaRule) error {
	query := `
		INSERT INTO formula_rules (
			clinic_id, product_id, display_name, multiplier, starting_round_up, weekend_factor,
			buffer, ending_round_up, minimum_value, maximum_value, fixed_value, status
		) VALUES (
			:clinic_id, :product_id, :display_name, :multiplier, :starting_round_up, :weekend_factor,
			:buffer, :ending_round_up, :minimum_value, :maximum_value, :fixed_value, :status
		)
		RETURNING id, created_at, updated_at
	`
	return s.namedReturning(ctx, query, rule, &rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (s *store) UpdateRule(ctx context.Context, rule *domain.FormulaRule) error {
	query := `
		UPDATE formula_rules SET
			clinic_id = :clinic_id,
			product_id = :product_id,
			display_name = :display_name,
			multiplier = :multiplier,
			starting_round_up = :starting_round_up,
			weekend_factor = :weekend_factor,
			buffer = :buffer,
			ending_round_up = :ending_round_up,
			minimum_value = :minimum_value,
			maximum_value = :maximum_value,
			fixed_value = :fixed_value,
			status = :status,
			updated_at = NOW()
		WHERE id = :id
		RETURNING updated_at
	`
	err := s.namedReturning(ctx, query, rule, &rule.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("formula rule %d: %w", rule.ID, domain.ErrNotFound)
	}
	return err
}

func (s *store) DeleteRule(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "formula_rules", "formula rule", id)
}

type regionRow struct {
	domain.Region
	WarehouseIDs pq.Int64Array `db:"warehouse_ids"`
}

func (r regionRow) toDomain() *domain.Region {
	region := r.Region
	region.WarehouseIDs = []int64(r.WarehouseIDs)
	if region.WarehouseIDs == nil {
		region.WarehouseIDs = make([]int64, 0)
	}
	return &region
}

const regionColumns = `id, name, warehouse_ids, status, created_at, updated_at`

func (s *store) GetRegion(ctx context.Context, id int64) (*domain.Region, error) {
	var row regionRow
	if err := sqlx.GetContext(ctx, s.q, &row, `SELECT `+regionColumns+` FROM regions WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "region", id)
	}
	return row.toDomain(), nil
}

func (s *store) ListRegions(ctx context.Context, includeArchived bool) ([]*domain.Region, error) {
	query := `SELECT ` + regionColumns + ` FROM regions`
	if !includeArchived {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY name`

	var rows []regionRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	regions := make([]*domain.Region, 0, len(rows))
	for _, row := range rows {
		regions = append(regions, row.toDomain())
	}
	return regions, nil
}

func (s *store) CreateRegion(ctx context.Context, region *domain.Region) error {
	query := `
		INSERT INTO regions (name, warehouse_ids, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	row := s.q.QueryRowxContext(ctx, query, region.Name, pq.Array(region.WarehouseIDs), region.Status)
	if err := row.Scan(&region.ID, &region.CreatedAt, &region.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert region: %w", err)
	}
	return nil
}

func (s *store) UpdateRegion(ctx context.Context, region *domain.Region) error {
	query := `
		UPDATE regions SET name = $1, warehouse_ids = $2, status = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`
	row := s.q.QueryRowxContext(ctx, query, region.Name, pq.Array(region.WarehouseIDs), region.Status, region.ID)
	if err := row.Scan(&region.UpdatedAt); err != nil {
		return notFound(err, "region", region.ID)
	}
	return nil
}

func (s *store) DeleteRegion(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "regions", "region", id)
}

type runRow struct {
	domain.ReplenishmentRun
	DestinationWarehouseIDs pq.Int64Array `db:"destination_warehouse_ids"`
}

func (r runRow) toDomain() *domain.ReplenishmentRun {
	run := r.ReplenishmentRun
	run.DestinationWarehouseIDs = []int64(r.DestinationWarehouseIDs)
	if run.DestinationWarehouseIDs == nil {
		run.DestinationWarehouseIDs = make([]int64, 0)
	}
	return &run
}

const runColumns = `id, name, run_date, source_warehouse_id, destination_warehouse_ids, region_id,
	state, status, generated_at, created_at, updated_at`

func (s *store) GetRun(ctx context.Context, id int64) (*domain.ReplenishmentRun, error) {
	return s.getRun(ctx, id, false)
}

// GetRunForUpdate takes a row lock when called inside a transaction
func (s *store) GetRunForUpdate(ctx context.Context, id int64) (*domain.ReplenishmentRun, error) {
	return s.getRun(ctx, id, s.inTx)
}

func (s *store) getRun(ctx context.Context, id int64, lock bool) (*domain.ReplenishmentRun, error) {
	query := `SELECT ` + runColumns + ` FROM replenishment_runs WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var row runRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, id); err != nil {
		return nil, notFound(err, "replenishment run", id)
	}
	return row.toDomain(), nil
}

func (s *store) ListRuns(ctx context.Context, filter domain.RunFilter) ([]*domain.ReplenishmentRun, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.State != "" {
		args = append(args, filter.State)
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, "status = 'active'")
	}

	query := `SELECT ` + runColumns + ` FROM replenishment_runs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	var rows []runRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list replenishment runs: %w", err)
	}
	runs := make([]*domain.ReplenishmentRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toDomain())
	}
	return runs, nil
}

func (s *store) CreateRun(ctx context.Context, run *domain.ReplenishmentRun) error {
	query := `
		INSERT INTO replenishment_runs (
			name, run_date, source_warehouse_id, destination_warehouse_ids, region_id, state, status, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	row := s.q.QueryRowxContext(ctx, query,
		run.Name,
		run.Date,
		run.SourceWarehouseID,
		pq.Array(run.DestinationWarehouseIDs),
		nullInt64(run.RegionID),
		run.State,
		run.Status,
		nullTime(run.GeneratedAt),
	)
	if err := row.Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert replenishment run: %w", err)
	}
	return nil
}

func (s *store) UpdateRun(ctx context.Context, run *domain.ReplenishmentRun) error {
	query := `
		UPDATE replenishment_runs SET
			name = $1,
			run_date = $2,
			source_warehouse_id = $3,
			destination_warehouse_ids = $4,
			region_id = $5,
			state = $6,
			status = $7,
			generated_at = $8,
			updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at
	`
	row := s.q.QueryRowxContext(ctx, query,
		run.Name,
		run.Date,
		run.SourceWarehouseID,
		pq.Array(run.DestinationWarehouseIDs),
		nullInt64(run.RegionID),
		run.State,
		run.Status,
		nullTime(run.GeneratedAt),
		run.ID,
	)
	if err := row.Scan(&run.UpdatedAt); err != nil {
		return notFound(err, "replenishment run", run.ID)
	}
	return nil
}

func (s *store) DeleteRun(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "replenishment_runs", "replenishment run", id)
}

// namedReturning runs a named statement and scans its RETURNING columns into dest
func (s *store) namedReturning(ctx context.Context, query string, arg interface{}, dest ...interface{}) error {
	bound, args, err := s.q.BindNamed(query, arg)
	if err != nil {
		return fmt.Errorf("failed to bind query: %w", err)
	}
	if err := s.q.QueryRowxContext(ctx, bound, args...).Scan(dest...); err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("product_id", "each clinic can only have one rule per product")
		}
		return err
	}
	return nil
}

func (s *store) deleteByID(ctx context.Context, table, entity string, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", entity, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", entity, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
