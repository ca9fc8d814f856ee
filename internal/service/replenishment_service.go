// backend-go/internal/service/replenishment_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/cache"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// transferNamespace scopes the idempotency keys of emitted batches
var transferNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("clinic-stock/replenishment/transfers"))

// TransferKey is the idempotency key of the batch a run emits for a destination
func TransferKey(runID, warehouseID int64) string {
	return uuid.NewSHA1(transferNamespace, []byte(fmt.Sprintf("run/%d/warehouse/%d", runID, warehouseID))).String()
}

// ReportExporter publishes the batches of a generated run and returns the report key
type ReportExporter interface {
	Export(ctx context.Context, run *domain.ReplenishmentRun, batches []*domain.TransferBatch, names map[int64]string) (string, error)
}

type ReplenishmentService struct {
	tx          repository.Transactor
	locker      cache.RunLocker
	calendar    *Calendar
	demandCache cache.DemandCache
	exporter    ReportExporter
}

type ReplenishmentOption func(*ReplenishmentService)

// WithDemandCache reads therapy counts through c
func WithDemandCache(c cache.DemandCache) ReplenishmentOption {
	return func(s *ReplenishmentService) { s.demandCache = c }
}

// WithReportExporter publishes a transfer report after each generation
func WithReportExporter(e ReportExporter) ReplenishmentOption {
	return func(s *ReplenishmentService) { s.exporter = e }
}

func NewReplenishmentService(tx repository.Transactor, locker cache.RunLocker, calendar *Calendar, opts ...ReplenishmentOption) *ReplenishmentService {
	if locker == nil {
		locker = cache.NewLocalRunLocker()
	}
	if calendar == nil {
		calendar, _ = NewCalendar("UTC", nil)
	}
	s := &ReplenishmentService{
		tx:          tx,
		locker:      locker,
		calendar:    calendar,
		demandCache: cache.NewNoopDemandCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRun stores a draft run. Destinations come from the region when none are given.
func (s *ReplenishmentService) CreateRun(ctx context.Context, req domain.CreateRunRequest) (*domain.ReplenishmentRun, error) {
	run := &domain.ReplenishmentRun{
		Name:   strings.TrimSpace(req.Name),
		State:  domain.RunStateDraft,
		Status: domain.StatusActive,
	}
	if run.Name == "" {
		run.Name = domain.DefaultRunName
	}
	if req.Date != nil {
		run.Date = *req.Date
	} else {
		run.Date = s.calendar.Today()
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := s.applyPlan(ctx, repos, run, req.SourceWarehouseID, req.DestinationWarehouseIDs, req.RegionID); err != nil {
			return err
		}
		return repos.Runs.CreateRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("run_id", run.ID).Str("name", run.Name).Int("destinations", len(run.DestinationWarehouseIDs)).Msg("replenishment: run created")
	return run, nil
}

// UpdateRun changes the plan of a draft run
func (s *ReplenishmentService) UpdateRun(ctx context.Context, id int64, req domain.CreateRunRequest) (*domain.ReplenishmentRun, error) {
	var run *domain.ReplenishmentRun
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		run, err = repos.Runs.GetRunForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if run.IsGenerated() {
			return domain.ErrRunAlreadyGenerated
		}
		if name := strings.TrimSpace(req.Name); name != "" {
			run.Name = name
		}
		if req.Date != nil {
			run.Date = *req.Date
		}
		if req.SourceWarehouseID == 0 {
			req.SourceWarehouseID = run.SourceWarehouseID
		}
		if len(req.DestinationWarehouseIDs) == 0 && req.RegionID == nil {
			req.DestinationWarehouseIDs = run.DestinationWarehouseIDs
			req.RegionID = run.RegionID
		}
		if err := s.applyPlan(ctx, repos, run, req.SourceWarehouseID, req.DestinationWarehouseIDs, req.RegionID); err != nil {
			return err
		}
		return repos.Runs.UpdateRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *ReplenishmentService) applyPlan(ctx context.Context, repos repository.Repositories, run *domain.ReplenishmentRun, sourceID int64, destinationIDs []int64, regionID *int64) error {
	if sourceID <= 0 {
		return domain.NewValidationError("source_warehouse_id", "source warehouse is required")
	}
	if _, err := repos.Warehouses.GetWarehouse(ctx, sourceID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewValidationError("source_warehouse_id", fmt.Sprintf("warehouse %d does not exist", sourceID))
		}
		return err
	}
	run.SourceWarehouseID = sourceID
	run.RegionID = regionID

	if len(destinationIDs) == 0 && regionID != nil {
		region, err := repos.Regions.GetRegion(ctx, *regionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewValidationError("region_id", fmt.Sprintf("region %d does not exist", *regionID))
			}
			return err
		}
		destinationIDs = region.WarehouseIDs
	}

	ids := uniqueIDs(destinationIDs)
	for _, id := range ids {
		if _, err := repos.Warehouses.GetWarehouse(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewValidationError("destination_warehouse_ids", fmt.Sprintf("warehouse %d does not exist", id))
			}
			return err
		}
	}
	run.DestinationWarehouseIDs = ids
	return nil
}

func (s *ReplenishmentService) GetRun(ctx context.Context, id int64) (*domain.ReplenishmentRun, error) {
	return s.tx.Repositories().Runs.GetRun(ctx, id)
}

func (s *ReplenishmentService) ListRuns(ctx context.Context, filter domain.RunFilter) ([]*domain.ReplenishmentRun, error) {
	return s.tx.Repositories().Runs.ListRuns(ctx, filter)
}

// ListTransfers returns the batches emitted by a run
func (s *ReplenishmentService) ListTransfers(ctx context.Context, runID int64) ([]*domain.TransferBatch, error) {
	repos := s.tx.Repositories()
	if _, err := repos.Runs.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return repos.Transfers.ListTransfersByRun(ctx, runID)
}

// RemoveRun archives an active run and deletes an archived one.
// It reports whether the run was deleted.
func (s *ReplenishmentService) RemoveRun(ctx context.Context, id int64) (bool, error) {
	deleted := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		run, err := repos.Runs.GetRunForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if run.Status == domain.StatusArchived {
			deleted = true
			return repos.Runs.DeleteRun(ctx, id)
		}
		run.Status = domain.StatusArchived
		return repos.Runs.UpdateRun(ctx, run)
	})
	return deleted, err
}

// Generate computes the shortages of every destination of a run and emits one
// transfer batch per destination that has any. The run moves to generated only
// when every destination was processed; any failure leaves no batch behind.
func (s *ReplenishmentService) Generate(ctx context.Context, runID int64) (*domain.GenerationResult, error) {
	run, err := s.tx.Repositories().Runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == domain.StatusArchived {
		return nil, fmt.Errorf("replenishment run %d is archived: %w", runID, domain.ErrNotFound)
	}

	lockedSource := run.SourceWarehouseID
	release, err := s.locker.Acquire(ctx, cache.SourceWarehouseLockKey(lockedSource))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn().Err(err).Int64("run_id", runID).Msg("replenishment: release run lock failed")
		}
	}()

	demandDate := s.calendar.Yesterday()
	var (
		result *domain.GenerationResult
		names  map[int64]string
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		p := &planner{
			repos:      repos,
			demand:     cache.CachedDemandSignal(repos.Demand, s.demandCache),
			demandDate: demandDate,
		}
		var err error
		run, err = repos.Runs.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status == domain.StatusArchived {
			return fmt.Errorf("replenishment run %d is archived: %w", runID, domain.ErrNotFound)
		}
		// the lock covers the source read before the transaction
		if run.SourceWarehouseID != lockedSource {
			return fmt.Errorf("replenishment run %d changed source warehouse: %w", runID, domain.ErrRunInProgress)
		}
		result, names, err = p.plan(ctx, run)
		if err != nil {
			return err
		}

		generatedAt := s.calendar.Now().UTC()
		run.State = domain.RunStateGenerated
		run.GeneratedAt = &generatedAt
		return repos.Runs.UpdateRun(ctx, run)
	})
	if err != nil {
		log.Error().Err(err).Int64("run_id", runID).Msg("replenishment: generation aborted")
		return nil, err
	}

	log.Info().
		Int64("run_id", runID).
		Int("batches", len(result.Batches)).
		Int("skipped", len(result.SkippedWarehouseIDs)).
		Str("demand_date", demandDate.Format("2006-01-02")).
		Msg("replenishment: run generated")

	if s.exporter != nil && len(result.Batches) > 0 {
		key, err := s.exporter.Export(ctx, run, result.Batches, names)
		if err != nil {
			log.Warn().Err(err).Int64("run_id", runID).Msg("replenishment: export transfer report failed")
		} else {
			result.ReportKey = key
		}
	}

	return result, nil
}
