// backend-go/internal/repository/replenishment_repository.go
package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
)

// DemandSignal counts qualifying therapy sessions of a clinic on a date
type DemandSignal interface {
	TherapyCount(ctx context.Context, clinicID int64, date time.Time) (int, error)
}

// StockPositions reads available and reserved quantity of a product in a warehouse
type StockPositions interface {
	StockPosition(ctx context.Context, productID, warehouseID int64) (domain.StockPosition, error)
}

// ProductCatalog lists the storable products considered for replenishment
type ProductCatalog interface {
	StorableProducts(ctx context.Context) ([]domain.Product, error)
}

// TransferSink persists an internal transfer batch and returns its id.
// Implementations fail with domain.ErrDuplicateTransfer when the batch's
// idempotency key was already used.
type TransferSink interface {
	CreateTransfer(ctx context.Context, batch *domain.TransferBatch) (int64, error)
	ListTransfersByRun(ctx context.Context, runID int64) ([]*domain.TransferBatch, error)
}

// RouteResolver finds the internal transfer route of a source warehouse.
// A nil route with a nil error means none is configured.
type RouteResolver interface {
	InternalRoute(ctx context.Context, sourceWarehouseID int64) (*domain.InternalRoute, error)
}

type WarehouseRepository interface {
	GetWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]*domain.Warehouse, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type FormulaRuleRepository interface {
	// FindActive returns the active rule for a clinic/product pair, or nil
	FindActive(ctx context.Context, clinicID, productID int64) (*domain.FormulaRule, error)
	FindByPair(ctx context.Context, clinicID, productID int64) (*domain.FormulaRule, error)
	GetRule(ctx context.Context, id int64) (*domain.FormulaRule, error)
	ListRules(ctx context.Context, filter domain.FormulaRuleFilter) ([]*domain.FormulaRule, error)
	CreateRule(ctx context.Context, rule *domain.FormulaRule) error
	UpdateRule(ctx context.Context, rule *domain.FormulaRule) error
	DeleteRule(ctx context.Context, id int64) error
}

type RegionRepository interface {
	GetRegion(ctx context.Context, id int64) (*domain.Region, error)
	ListRegions(ctx context.Context, includeArchived bool) ([]*domain.Region, error)
	CreateRegion(ctx context.Context, region *domain.Region) error
	UpdateRegion(ctx context.Context, region *domain.Region) error
	DeleteRegion(ctx context.Context, id int64) error
}

type RunRepository interface {
	GetRun(ctx context.Context, id int64) (*domain.ReplenishmentRun, error)
	// GetRunForUpdate locks the run row for the rest of the transaction
	GetRunForUpdate(ctx context.Context, id int64) (*domain.ReplenishmentRun, error)
	ListRuns(ctx context.Context, filter domain.RunFilter) ([]*domain.ReplenishmentRun, error)
	CreateRun(ctx context.Context, run *domain.ReplenishmentRun) error
	UpdateRun(ctx context.Context, run *domain.ReplenishmentRun) error
	DeleteRun(ctx context.Context, id int64) error
}

// Repositories bundles every collaborator bound to one unit of work
type Repositories struct {
	Demand     DemandSignal
	Stock      StockPositions
	Catalog    ProductCatalog
	Transfers  TransferSink
	Routes     RouteResolver
	Warehouses WarehouseRepository
	Rules      FormulaRuleRepository
	Regions    RegionRepository
	Runs       RunRepository
}

// Transactor opens units of work. Changes made through the Repositories
// passed to fn are committed when fn returns nil and rolled back otherwise.
type Transactor interface {
	Repositories() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
