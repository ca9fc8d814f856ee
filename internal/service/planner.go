package service

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/formula"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/rs/zerolog/log"
)

// planner holds the collaborators of one generation inside its unit of work
type planner struct {
	repos      repository.Repositories
	demand     repository.DemandSignal
	demandDate time.Time

	route *domain.InternalRoute
}

func (p *planner) plan(ctx context.Context, run *domain.ReplenishmentRun) (*domain.GenerationResult, map[int64]string, error) {
	if run.IsGenerated() {
		return nil, nil, domain.ErrRunAlreadyGenerated
	}
	if len(run.DestinationWarehouseIDs) == 0 {
		return nil, nil, domain.NewConfigurationError("replenishment run %q has no destination warehouses", run.Name)
	}

	products, err := p.repos.Catalog.StorableProducts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load product catalog: %w", err)
	}
	source, err := p.repos.Warehouses.GetWarehouse(ctx, run.SourceWarehouseID)
	if err != nil {
		return nil, nil, fmt.Errorf("load source warehouse: %w", err)
	}

	names := map[int64]string{source.ID: source.Name}
	result := &domain.GenerationResult{
		RunID:               run.ID,
		DemandDate:          p.demandDate,
		Batches:             make([]*domain.TransferBatch, 0),
		SkippedWarehouseIDs: make([]int64, 0),
	}

	for _, destID := range run.DestinationWarehouseIDs {
		dest, err := p.repos.Warehouses.GetWarehouse(ctx, destID)
		if err != nil {
			return nil, nil, fmt.Errorf("load destination warehouse %d: %w", destID, err)
		}
		names[dest.ID] = dest.Name

		lines, err := p.shortages(ctx, dest, products)
		if err != nil {
			return nil, nil, err
		}
		if len(lines) == 0 {
			log.Debug().Int64("run_id", run.ID).Str("warehouse", dest.Name).Msg("replenishment: no shortages")
			result.SkippedWarehouseIDs = append(result.SkippedWarehouseIDs, dest.ID)
			continue
		}

		batch, err := p.emit(ctx, run, source, dest, lines)
		if err != nil {
			return nil, nil, err
		}
		result.Batches = append(result.Batches, batch)
	}

	return result, names, nil
}

// shortages evaluates every storable product for one clinic warehouse
func (p *planner) shortages(ctx context.Context, dest *domain.Warehouse, products []domain.Product) ([]domain.TransferLine, error) {
	var (
		lines        []domain.TransferLine
		therapyCount = -1
	)

	for _, product := range products {
		rule, err := p.repos.Rules.FindActive(ctx, dest.ID, product.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup formula rule for warehouse %d product %d: %w", dest.ID, product.ID, err)
		}

		target := 0.0
		if rule != nil {
			if err := formula.Validate(rule); err != nil {
				return nil, domain.NewConfigurationError("formula rule %q is invalid: %v", rule.DisplayName, err)
			}
			if therapyCount < 0 {
				therapyCount, err = p.demand.TherapyCount(ctx, dest.ID, p.demandDate)
				if err != nil {
					return nil, fmt.Errorf("count therapy sessions of warehouse %d: %w", dest.ID, err)
				}
			}
			target = formula.Compute(rule, therapyCount)
		}

		position, err := p.repos.Stock.StockPosition(ctx, product.ID, dest.ID)
		if err != nil {
			return nil, fmt.Errorf("read stock of product %d in warehouse %d: %w", product.ID, dest.ID, err)
		}
		shortage := formula.Shortage(target, position)

		evt := log.Debug().
			Str("clinic", dest.Name).
			Str("product", product.Name)
		if rule != nil {
			evt = evt.Int("therapy_count", therapyCount)
		}
		evt.Float64("target", target).
			Float64("available", position.Net()).
			Float64("shortage", shortage).
			Msg("replenishment: product evaluated")

		if shortage > 0 {
			lines = append(lines, domain.TransferLine{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    shortage,
			})
		}
	}

	return lines, nil
}

func (p *planner) emit(ctx context.Context, run *domain.ReplenishmentRun, source, dest *domain.Warehouse, lines []domain.TransferLine) (*domain.TransferBatch, error) {
	if p.route == nil {
		route, err := p.repos.Routes.InternalRoute(ctx, source.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve internal route of warehouse %d: %w", source.ID, err)
		}
		if route == nil {
			return nil, domain.NewConfigurationError("no internal transfer route configured for warehouse %q", source.Name)
		}
		p.route = route
	}

	batch := &domain.TransferBatch{
		IdempotencyKey:         TransferKey(run.ID, dest.ID),
		RunID:                  run.ID,
		RouteID:                p.route.ID,
		SourceWarehouseID:      source.ID,
		DestinationWarehouseID: dest.ID,
		SourceLocationID:       source.StockLocationID,
		DestinationLocationID:  dest.StockLocationID,
		Origin:                 run.Name,
		Lines:                  lines,
	}

	id, err := p.repos.Transfers.CreateTransfer(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("create transfer to warehouse %d: %w", dest.ID, err)
	}
	batch.ID = id

	log.Info().
		Int64("run_id", run.ID).
		Int64("transfer_id", id).
		Str("reference", batch.Reference).
		Str("destination", dest.Name).
		Int("lines", len(lines)).
		Float64("quantity", batch.TotalQuantity()).
		Msg("replenishment: transfer created")

	return batch, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
