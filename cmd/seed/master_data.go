package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andresuchdata/clinic-stock/backend-go/pkg/logger"
)

// rowFunc receives one CSV record through a column accessor
type rowFunc func(get func(col string) string) error

// masterFile is one seed CSV. Optional files may be absent.
type masterFile struct {
	name     string
	required []string
	optional bool
	apply    func(ctx context.Context, tx *sql.Tx) rowFunc
}

var masterFiles = []masterFile{
	{name: "warehouses.csv", required: []string{"code", "name"}, apply: upsertWarehouse},
	{name: "products.csv", required: []string{"code", "name"}, apply: upsertProduct},
	{name: "routes.csv", required: []string{"warehouse_code", "name"}, optional: true, apply: upsertRoute},
	{name: "stock.csv", required: []string{"warehouse_code", "product_code", "quantity"}, optional: true, apply: upsertStock},
	{name: "sessions.csv", required: []string{"clinic_code", "session_date", "count"}, optional: true, apply: insertSessions},
}

func seedMasterData(ctx context.Context, tx *sql.Tx, dataDir string) error {
	for _, mf := range masterFiles {
		path := filepath.Join(dataDir, mf.name)
		count, err := readSeedCSV(path, mf.required, mf.apply(ctx, tx))
		if err != nil {
			if mf.optional && errors.Is(err, os.ErrNotExist) {
				logger.Log.Info().Str("file", mf.name).Msg("optional seed file missing, skipped")
				continue
			}
			return fmt.Errorf("failed to seed %s: %w", mf.name, err)
		}
		logger.Log.Info().Str("file", mf.name).Int("rows", count).Msg("seeded")
	}
	return nil
}

func readSeedCSV(path string, required []string, fn rowFunc) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	colMap := make(map[string]int, len(header))
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range required {
		if _, ok := colMap[col]; !ok {
			return 0, fmt.Errorf("missing required column: %s", col)
		}
	}

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read CSV record: %w", err)
		}

		get := func(col string) string {
			if idx, ok := colMap[col]; ok && idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
			return ""
		}
		if err := fn(get); err != nil {
			return rows, fmt.Errorf("row %d: %w", rows+2, err)
		}
		rows++
	}
	return rows, nil
}

func upsertWarehouse(ctx context.Context, tx *sql.Tx) rowFunc {
	return func(get func(string) string) error {
		code := strings.ToUpper(get("code"))
		name := get("name")

		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM warehouses WHERE code = $1`, code).Scan(&id)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `UPDATE warehouses SET name = $2 WHERE id = $1`, id, name)
			return err
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		var locationID int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO stock_locations (name) VALUES ($1) RETURNING id`, code+"/Stock",
		).Scan(&locationID); err != nil {
			return fmt.Errorf("failed to create stock location for %s: %w", code, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO warehouses (code, name, stock_location_id) VALUES ($1, $2, $3)`,
			code, name, locationID)
		return err
	}
}

func upsertProduct(ctx context.Context, tx *sql.Tx) rowFunc {
	return func(get func(string) string) error {
		storable := true
		if raw := get("storable"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("invalid storable value %q", raw)
			}
			storable = v
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (code, name, storable) VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, storable = EXCLUDED.storable`,
			strings.ToUpper(get("code")), get("name"), storable)
		return err
	}
}

func upsertRoute(ctx context.Context, tx *sql.Tx) rowFunc {
	return func(get func(string) string) error {
		return expectOne(tx.ExecContext(ctx, `
			INSERT INTO internal_routes (name, warehouse_id)
			SELECT $2, id FROM warehouses WHERE code = $1
			ON CONFLICT (warehouse_id) DO UPDATE SET name = EXCLUDED.name`,
			strings.ToUpper(get("warehouse_code")), get("name")))
	}
}

func upsertStock(ctx context.Context, tx *sql.Tx) rowFunc {
	return func(get func(string) string) error {
		quantity, err := parseSeedFloat(get("quantity"))
		if err != nil {
			return err
		}
		reserved, err := parseSeedFloat(get("reserved_quantity"))
		if err != nil {
			return err
		}
		return expectOne(tx.ExecContext(ctx, `
			INSERT INTO stock_quants (product_id, location_id, quantity, reserved_quantity)
			SELECT p.id, w.stock_location_id, $3, $4
			FROM products p, warehouses w
			WHERE w.code = $1 AND p.code = $2
			ON CONFLICT (product_id, location_id) DO UPDATE
			SET quantity = EXCLUDED.quantity, reserved_quantity = EXCLUDED.reserved_quantity`,
			strings.ToUpper(get("warehouse_code")), strings.ToUpper(get("product_code")), quantity, reserved))
	}
}

// insertSessions adds count active sessions for a clinic day
func insertSessions(ctx context.Context, tx *sql.Tx) rowFunc {
	return func(get func(string) string) error {
		count, err := strconv.Atoi(get("count"))
		if err != nil || count < 0 {
			return fmt.Errorf("invalid count %q", get("count"))
		}
		if count == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO patient_sessions (clinic_warehouse_id, session_date, state)
			SELECT w.id, $2::date, 'done'
			FROM warehouses w, generate_series(1, $3::int) AS n
			WHERE w.code = $1`,
			strings.ToUpper(get("clinic_code")), get("session_date"), count)
		return err
	}
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("unknown warehouse or product code")
	}
	return nil
}

func parseSeedFloat(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", value)
	}
	return f, nil
}
