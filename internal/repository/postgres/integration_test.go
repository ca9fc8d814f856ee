package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/service"
	"github.com/jmoiron/sqlx"
)

// openTestDB migrates a throwaway schema on DATABASE_URL. The pool is held to
// one connection so the schema search path applies to every query.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres integration test")
	}

	ctx := context.Background()
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	conn.SetMaxOpenConns(1)

	schema := fmt.Sprintf("clinic_stock_test_%d", time.Now().UnixNano())
	if _, err := conn.ExecContext(ctx, `CREATE SCHEMA `+schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() {
		if _, err := conn.ExecContext(context.Background(), `DROP SCHEMA `+schema+` CASCADE`); err != nil {
			t.Errorf("Failed to drop schema %s: %v", schema, err)
		}
		conn.Close()
	})
	if _, err := conn.ExecContext(ctx, `SET search_path TO `+schema); err != nil {
		t.Fatalf("Failed to set search path: %v", err)
	}
	if err := Migrate(ctx, conn.DB); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return Wrap(conn, 1)
}

type seeded struct {
	central, clinic domain.Warehouse
	saline          domain.Product
	routeID         int64
}

func seedInventory(t *testing.T, db *DB) seeded {
	t.Helper()
	ctx := context.Background()
	var s seeded

	insertID := func(query string, args ...interface{}) int64 {
		t.Helper()
		var id int64
		if err := db.GetContext(ctx, &id, query, args...); err != nil {
			t.Fatalf("Failed to seed with %q: %v", query, err)
		}
		return id
	}
	warehouse := func(code, name string) domain.Warehouse {
		loc := insertID(`INSERT INTO stock_locations (name) VALUES ($1) RETURNING id`, code+"/Stock")
		id := insertID(`INSERT INTO warehouses (code, name, stock_location_id) VALUES ($1, $2, $3) RETURNING id`, code, name, loc)
		return domain.Warehouse{ID: id, Code: code, Name: name, StockLocationID: loc}
	}

	s.central = warehouse("CEN", "Central")
	s.clinic = warehouse("CLA", "Clinic A")
	s.saline = domain.Product{Code: "SAL", Name: "Saline", Storable: true}
	s.saline.ID = insertID(`INSERT INTO products (code, name, storable) VALUES ($1, $2, TRUE) RETURNING id`, s.saline.Code, s.saline.Name)
	insertID(`INSERT INTO products (code, name, storable) VALUES ('SVC', 'Consultation', FALSE) RETURNING id`)
	s.routeID = insertID(`INSERT INTO internal_routes (name, warehouse_id) VALUES ('Central: Internal Transfers', $1) RETURNING id`, s.central.ID)

	shelf := insertID(`INSERT INTO stock_locations (name, parent_id) VALUES ('CLA/Stock/Shelf', $1) RETURNING id`, s.clinic.StockLocationID)
	bin := insertID(`INSERT INTO stock_locations (name, parent_id) VALUES ('CLA/Stock/Shelf/Bin', $1) RETURNING id`, shelf)

	quants := []struct {
		location           int64
		quantity, reserved float64
	}{
		{s.clinic.StockLocationID, 3, 1},
		{bin, 2, 0.5},
		{s.central.StockLocationID, 100, 0},
	}
	for _, q := range quants {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO stock_quants (product_id, location_id, quantity, reserved_quantity) VALUES ($1, $2, $3, $4)`,
			s.saline.ID, q.location, q.quantity, q.reserved); err != nil {
			t.Fatalf("Failed to seed quant: %v", err)
		}
	}
	return s
}

func TestStockPositionIncludesChildLocations(t *testing.T) {
	db := openTestDB(t)
	s := seedInventory(t, db)
	repos := NewTransactor(db).Repositories()

	pos, err := repos.Stock.StockPosition(context.Background(), s.saline.ID, s.clinic.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if pos.Available != 5 || pos.Reserved != 1.5 {
		t.Errorf("Expected available 5 reserved 1.5, got %+v", pos)
	}

	products, err := repos.Catalog.StorableProducts(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(products) != 1 || products[0].ID != s.saline.ID {
		t.Errorf("Expected only storable products, got %+v", products)
	}
}

func TestTherapyCountSkipsInactiveSessions(t *testing.T) {
	db := openTestDB(t)
	s := seedInventory(t, db)
	ctx := context.Background()
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	sessions := []struct {
		date   string
		active bool
	}{
		{"2024-03-04", true},
		{"2024-03-04", true},
		{"2024-03-04", false},
		{"2024-03-05", true},
	}
	for _, sess := range sessions {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO patient_sessions (clinic_warehouse_id, session_date, active) VALUES ($1, $2::date, $3)`,
			s.clinic.ID, sess.date, sess.active); err != nil {
			t.Fatalf("Failed to seed session: %v", err)
		}
	}

	count, err := NewTransactor(db).Repositories().Demand.TherapyCount(ctx, s.clinic.ID, day)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 active sessions, got %d", count)
	}
}

func TestCreateTransferRejectsDuplicateKeyInDatabase(t *testing.T) {
	db := openTestDB(t)
	s := seedInventory(t, db)
	ctx := context.Background()
	tx := NewTransactor(db)

	run := &domain.ReplenishmentRun{
		Name: "Weekly", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		SourceWarehouseID: s.central.ID, DestinationWarehouseIDs: []int64{s.clinic.ID},
		State: domain.RunStateDraft, Status: domain.StatusActive,
	}
	if err := tx.Repositories().Runs.CreateRun(ctx, run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	batch := func() *domain.TransferBatch {
		return &domain.TransferBatch{
			IdempotencyKey: "run/1/warehouse/2", RunID: run.ID, RouteID: s.routeID,
			SourceWarehouseID: s.central.ID, DestinationWarehouseID: s.clinic.ID,
			SourceLocationID: s.central.StockLocationID, DestinationLocationID: s.clinic.StockLocationID,
			Origin: run.Name,
			Lines:  []domain.TransferLine{{ProductID: s.saline.ID, ProductName: s.saline.Name, Quantity: 2.1235}},
		}
	}

	err := tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, err := repos.Transfers.CreateTransfer(ctx, batch())
		return err
	})
	if err != nil {
		t.Fatalf("Expected first transfer to be stored, got %v", err)
	}

	err = tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, err := repos.Transfers.CreateTransfer(ctx, batch())
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateTransfer) {
		t.Fatalf("Expected ErrDuplicateTransfer, got %v", err)
	}

	transfers, err := tx.Repositories().Transfers.ListTransfersByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(transfers) != 1 || len(transfers[0].Lines) != 1 {
		t.Fatalf("Expected one transfer with one line, got %+v", transfers)
	}
	if transfers[0].Lines[0].Quantity != 2.1235 {
		t.Errorf("Expected stored quantity 2.1235, got %v", transfers[0].Lines[0].Quantity)
	}
	if transfers[0].Reference == "" {
		t.Error("Expected a transfer reference")
	}
}

func TestGenerateAgainstDatabase(t *testing.T) {
	db := openTestDB(t)
	s := seedInventory(t, db)
	ctx := context.Background()
	tx := NewTransactor(db)

	cal, err := service.NewCalendar("UTC", func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) })
	if err != nil {
		t.Fatalf("Failed to build calendar: %v", err)
	}
	rules := service.NewFormulaRuleService(tx, cal)
	if _, err := rules.Create(ctx, &domain.FormulaRule{ClinicID: s.clinic.ID, ProductID: s.saline.ID, FixedValue: 10}); err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}

	svc := service.NewReplenishmentService(tx, nil, cal)
	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{SourceWarehouseID: s.central.ID, DestinationWarehouseIDs: []int64{s.clinic.ID}})
	if err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	result, err := svc.Generate(ctx, run.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// target 10, net 5 - 1.5 = 3.5
	if len(result.Batches) != 1 || result.Batches[0].Lines[0].Quantity != 6.5 {
		t.Fatalf("Expected one line of 6.5, got %+v", result.Batches)
	}

	if _, err := svc.Generate(ctx, run.ID); !errors.Is(err, domain.ErrRunAlreadyGenerated) {
		t.Errorf("Expected ErrRunAlreadyGenerated, got %v", err)
	}
	stored, err := svc.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("Expected run, got %v", err)
	}
	if stored.State != domain.RunStateGenerated {
		t.Errorf("Expected generated run, got %s", stored.State)
	}
}
