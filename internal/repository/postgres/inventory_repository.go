package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func (s *store) TherapyCount(ctx context.Context, clinicID int64, date time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM patient_sessions
		WHERE clinic_warehouse_id = $1
		  AND session_date = $2::date
		  AND active = TRUE
	`
	if err := sqlx.GetContext(ctx, s.q, &count, query, clinicID, date.Format("2006-01-02")); err != nil {
		return 0, fmt.Errorf("failed to count therapy sessions: %w", err)
	}
	return count, nil
}

// StockPosition sums quants held in the warehouse's stock location and all of its children
func (s *store) StockPosition(ctx context.Context, productID, warehouseID int64) (domain.StockPosition, error) {
	var pos domain.StockPosition
	query := `
		WITH RECURSIVE locations AS (
			SELECT sl.id
			FROM stock_locations sl
			JOIN warehouses w ON w.stock_location_id = sl.id
			WHERE w.id = $2
			UNION ALL
			SELECT child.id
			FROM stock_locations child
			JOIN locations parent ON child.parent_id = parent.id
		)
		SELECT
			COALESCE(SUM(q.quantity), 0)::float8 AS available,
			COALESCE(SUM(q.reserved_quantity), 0)::float8 AS reserved
		FROM stock_quants q
		WHERE q.product_id = $1
		  AND q.location_id IN (SELECT id FROM locations)
	`
	if err := sqlx.GetContext(ctx, s.q, &pos, query, productID, warehouseID); err != nil {
		return domain.StockPosition{}, fmt.Errorf("failed to read stock position: %w", err)
	}
	return pos, nil
}

func (s *store) StorableProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0)
	query := `SELECT id, code, name, storable FROM products WHERE storable = TRUE ORDER BY id`
	if err := sqlx.SelectContext(ctx, s.q, &products, query); err != nil {
		return nil, fmt.Errorf("failed to list storable products: %w", err)
	}
	return products, nil
}

func (s *store) InternalRoute(ctx context.Context, sourceWarehouseID int64) (*domain.InternalRoute, error) {
	var route domain.InternalRoute
	query := `SELECT id, name, warehouse_id FROM internal_routes WHERE warehouse_id = $1 LIMIT 1`
	err := sqlx.GetContext(ctx, s.q, &route, query, sourceWarehouseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve internal route: %w", err)
	}
	return &route, nil
}

func (s *store) GetWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error) {
	var w domain.Warehouse
	query := `SELECT id, code, name, stock_location_id FROM warehouses WHERE id = $1`
	if err := sqlx.GetContext(ctx, s.q, &w, query, id); err != nil {
		return nil, notFound(err, "warehouse", id)
	}
	return &w, nil
}

func (s *store) ListWarehouses(ctx context.Context) ([]*domain.Warehouse, error) {
	warehouses := make([]*domain.Warehouse, 0)
	query := `SELECT id, code, name, stock_location_id FROM warehouses ORDER BY name`
	if err := sqlx.SelectContext(ctx, s.q, &warehouses, query); err != nil {
		return nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	return warehouses, nil
}

func (s *store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	query := `SELECT id, code, name, storable FROM products WHERE id = $1`
	if err := sqlx.GetContext(ctx, s.q, &p, query, id); err != nil {
		return nil, notFound(err, "product", id)
	}
	return &p, nil
}

func (s *store) CreateTransfer(ctx context.Context, batch *domain.TransferBatch) (int64, error) {
	var header struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	query := `
		INSERT INTO transfers (
			idempotency_key, run_id, route_id, source_warehouse_id, destination_warehouse_id,
			source_location_id, destination_location_id, origin
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at
	`
	err := sqlx.GetContext(ctx, s.q, &header, query,
		batch.IdempotencyKey,
		nullableID(batch.RunID),
		batch.RouteID,
		batch.SourceWarehouseID,
		batch.DestinationWarehouseID,
		batch.SourceLocationID,
		batch.DestinationLocationID,
		batch.Origin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrDuplicateTransfer
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert transfer: %w", err)
	}

	reference := fmt.Sprintf("INT/%s/%05d", header.CreatedAt.Format("200601"), header.ID)
	if _, err := s.q.ExecContext(ctx, `UPDATE transfers SET reference = $1 WHERE id = $2`, reference, header.ID); err != nil {
		return 0, fmt.Errorf("failed to set transfer reference: %w", err)
	}

	for _, line := range batch.Lines {
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO transfer_lines (transfer_id, product_id, product_name, quantity) VALUES ($1, $2, $3, $4)`,
			header.ID, line.ProductID, line.ProductName, line.Quantity,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transfer line: %w", err)
		}
	}

	batch.ID = header.ID
	batch.Reference = reference
	batch.CreatedAt = header.CreatedAt
	return header.ID, nil
}

func (s *store) ListTransfersByRun(ctx context.Context, runID int64) ([]*domain.TransferBatch, error) {
	var batches []domain.TransferBatch
	query := `
		SELECT id, reference, idempotency_key, COALESCE(run_id, 0) AS run_id, route_id, source_warehouse_id,
			destination_warehouse_id, source_location_id, destination_location_id, origin, created_at
		FROM transfers
		WHERE run_id = $1
		ORDER BY id
	`
	if err := sqlx.SelectContext(ctx, s.q, &batches, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	result := make([]*domain.TransferBatch, 0, len(batches))
	index := make(map[int64]*domain.TransferBatch, len(batches))
	ids := make([]int64, 0, len(batches))
	for i := range batches {
		b := &batches[i]
		b.Lines = make([]domain.TransferLine, 0)
		result = append(result, b)
		index[b.ID] = b
		ids = append(ids, b.ID)
	}
	if len(ids) == 0 {
		return result, nil
	}

	var lines []struct {
		TransferID int64 `db:"transfer_id"`
		domain.TransferLine
	}
	query = `
		SELECT transfer_id, product_id, product_name, quantity::float8 AS quantity
		FROM transfer_lines
		WHERE transfer_id = ANY($1)
		ORDER BY id
	`
	if err := sqlx.SelectContext(ctx, s.q, &lines, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list transfer lines: %w", err)
	}
	for _, l := range lines {
		if b, ok := index[l.TransferID]; ok {
			b.Lines = append(b.Lines, l.TransferLine)
		}
	}
	return result, nil
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %d: %w", entity, id, err)
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
