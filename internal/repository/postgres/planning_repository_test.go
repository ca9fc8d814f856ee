package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/lib/pq"
)

func TestRunRowToDomain(t *testing.T) {
	row := runRow{
		ReplenishmentRun:        domain.ReplenishmentRun{ID: 4, Name: "Weekly"},
		DestinationWarehouseIDs: pq.Int64Array{3, 1, 2},
	}
	run := row.toDomain()
	if len(run.DestinationWarehouseIDs) != 3 || run.DestinationWarehouseIDs[0] != 3 {
		t.Errorf("Expected ordered destinations, got %v", run.DestinationWarehouseIDs)
	}

	empty := runRow{}.toDomain()
	if empty.DestinationWarehouseIDs == nil {
		t.Error("Expected an empty destination slice, got nil")
	}
}

func TestRegionRowToDomain(t *testing.T) {
	region := regionRow{Region: domain.Region{Name: "North"}}.toDomain()
	if region.WarehouseIDs == nil || len(region.WarehouseIDs) != 0 {
		t.Errorf("Expected empty warehouse ids, got %v", region.WarehouseIDs)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"foreign key violation", &pq.Error{Code: "23503"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUniqueViolation(tc.err); got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestNullHelpers(t *testing.T) {
	if nullInt64(nil).Valid {
		t.Error("Expected nil id to be NULL")
	}
	id := int64(9)
	if v := nullInt64(&id); !v.Valid || v.Int64 != 9 {
		t.Errorf("Expected 9, got %+v", v)
	}
	if nullableID(0).Valid {
		t.Error("Expected zero id to be NULL")
	}
	if nullTime(nil).Valid {
		t.Error("Expected nil time to be NULL")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil || len(names) == 0 {
		t.Fatalf("Expected embedded migrations, got %v err=%v", names, err)
	}
	body, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatalf("Expected readable migration, got %v", err)
	}
	for _, table := range []string{"formula_rules", "replenishment_runs", "transfers", "patient_sessions", "stock_quants"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("Expected table %s in %s", table, names[0])
		}
	}
	if !strings.Contains(string(body), "idempotency_key           TEXT NOT NULL UNIQUE") {
		t.Error("Expected unique idempotency key on transfers")
	}
}
