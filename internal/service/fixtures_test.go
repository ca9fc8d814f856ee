package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository/memory"
)

// 2024-03-05 10:30 in Asia/Kolkata
var fixedNow = time.Date(2024, 3, 5, 5, 0, 0, 0, time.UTC)

var demandDay = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	central domain.Warehouse
	clinicA domain.Warehouse
	clinicB domain.Warehouse
	saline  domain.Product
	gauze   domain.Product
	route   domain.InternalRoute
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixture(t, true)
}

// newFixtureWithoutRoute has no internal transfer route for the central warehouse
func newFixtureWithoutRoute(t *testing.T) *fixture {
	t.Helper()
	return buildFixture(t, false)
}

func buildFixture(t *testing.T, withRoute bool) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{store: store}
	f.central = store.AddWarehouse(domain.Warehouse{Code: "CEN", Name: "Central"})
	f.clinicA = store.AddWarehouse(domain.Warehouse{Code: "CLA", Name: "Clinic A"})
	f.clinicB = store.AddWarehouse(domain.Warehouse{Code: "CLB", Name: "Clinic B"})
	f.saline = store.AddProduct(domain.Product{Code: "SAL", Name: "Saline", Storable: true})
	f.gauze = store.AddProduct(domain.Product{Code: "GAU", Name: "Gauze", Storable: true})
	store.AddProduct(domain.Product{Code: "SVC", Name: "Consultation", Storable: false})
	if withRoute {
		f.route = store.AddRoute(domain.InternalRoute{Name: "Central: Internal Transfers", WarehouseID: f.central.ID})
	}
	return f
}

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := NewCalendar("Asia/Kolkata", func() time.Time { return fixedNow })
	if err != nil {
		t.Fatalf("Failed to build calendar: %v", err)
	}
	return cal
}

func (f *fixture) addRule(t *testing.T, rule *domain.FormulaRule) *domain.FormulaRule {
	t.Helper()
	if rule.Status == "" {
		rule.Status = domain.StatusActive
	}
	if err := f.store.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}
	return rule
}

func (f *fixture) draftRun(t *testing.T, destinations ...int64) *domain.ReplenishmentRun {
	t.Helper()
	run := &domain.ReplenishmentRun{
		Name:                    "Weekly",
		Date:                    time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		SourceWarehouseID:       f.central.ID,
		DestinationWarehouseIDs: destinations,
		State:                   domain.RunStateDraft,
		Status:                  domain.StatusActive,
	}
	if err := f.store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	return run
}

// wrappingTransactor lets a test replace collaborators inside the unit of work
type wrappingTransactor struct {
	*memory.Store
	wrap func(repository.Repositories) repository.Repositories
}

func (w *wrappingTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return w.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return fn(ctx, w.wrap(repos))
	})
}

// changedRuns hands out the run as another writer left it after the first read
type changedRuns struct {
	repository.RunRepository
	change func(*domain.ReplenishmentRun)
}

func (c *changedRuns) GetRunForUpdate(ctx context.Context, id int64) (*domain.ReplenishmentRun, error) {
	run, err := c.RunRepository.GetRunForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	c.change(run)
	return run, nil
}

var errStockUnavailable = errors.New("stock service unavailable")

type failingStock struct {
	inner  repository.StockPositions
	failOn int64
}

func (f *failingStock) StockPosition(ctx context.Context, productID, warehouseID int64) (domain.StockPosition, error) {
	if warehouseID == f.failOn {
		return domain.StockPosition{}, errStockUnavailable
	}
	return f.inner.StockPosition(ctx, productID, warehouseID)
}

type countingDemand struct {
	inner repository.DemandSignal
	calls map[int64]int
}

func (c *countingDemand) TherapyCount(ctx context.Context, clinicID int64, date time.Time) (int, error) {
	c.calls[clinicID]++
	return c.inner.TherapyCount(ctx, clinicID, date)
}

type recordingExporter struct {
	runs    []int64
	batches int
	err     error
}

func (r *recordingExporter) Export(ctx context.Context, run *domain.ReplenishmentRun, batches []*domain.TransferBatch, names map[int64]string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.runs = append(r.runs, run.ID)
	r.batches += len(batches)
	return "replenishment/report.csv", nil
}
