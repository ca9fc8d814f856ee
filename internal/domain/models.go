// backend-go/internal/domain/models.go
package domain

import "time"

// RecordStatus is the archive flag shared by rules, regions and runs.
// Archived records are hidden from active queries and may then be hard deleted.
type RecordStatus string

const (
	StatusActive   RecordStatus = "active"
	StatusArchived RecordStatus = "archived"
)

// Warehouse represents a clinic (or central) warehouse
type Warehouse struct {
	ID              int64  `json:"id" db:"id"`
	Code            string `json:"code" db:"code"`
	Name            string `json:"name" db:"name"`
	StockLocationID int64  `json:"stock_location_id" db:"stock_location_id"`
}

// Product represents a catalog product
type Product struct {
	ID       int64  `json:"id" db:"id"`
	Code     string `json:"code" db:"code"`
	Name     string `json:"name" db:"name"`
	Storable bool   `json:"storable" db:"storable"`
}

// StockPosition is the on-hand picture of one product in one warehouse
type StockPosition struct {
	Available float64 `json:"available" db:"available"`
	Reserved  float64 `json:"reserved" db:"reserved"`
}

// Net returns available minus reserved quantity. It may be negative.
func (p StockPosition) Net() float64 {
	return p.Available - p.Reserved
}

// InternalRoute is the internal transfer type configured for a source warehouse
type InternalRoute struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	WarehouseID int64  `json:"warehouse_id" db:"warehouse_id"`
}

// Region groups clinic warehouses so a run can target all of them at once
type Region struct {
	ID           int64        `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	WarehouseIDs []int64      `json:"warehouse_ids" db:"-"`
	Status       RecordStatus `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// TransferLine is one product movement inside a transfer batch
type TransferLine struct {
	ProductID   int64   `json:"product_id" db:"product_id"`
	ProductName string  `json:"product_name" db:"product_name"`
	Quantity    float64 `json:"quantity" db:"quantity"`
}

// TransferBatch is the internal transfer emitted for one destination warehouse
type TransferBatch struct {
	ID                     int64          `json:"id" db:"id"`
	Reference              string         `json:"reference" db:"reference"`
	IdempotencyKey         string         `json:"idempotency_key" db:"idempotency_key"`
	RunID                  int64          `json:"run_id" db:"run_id"`
	RouteID                int64          `json:"route_id" db:"route_id"`
	SourceWarehouseID      int64          `json:"source_warehouse_id" db:"source_warehouse_id"`
	DestinationWarehouseID int64          `json:"destination_warehouse_id" db:"destination_warehouse_id"`
	SourceLocationID       int64          `json:"source_location_id" db:"source_location_id"`
	DestinationLocationID  int64          `json:"destination_location_id" db:"destination_location_id"`
	Origin                 string         `json:"origin" db:"origin"`
	Lines                  []TransferLine `json:"lines" db:"-"`
	CreatedAt              time.Time      `json:"created_at" db:"created_at"`
}

// TotalQuantity sums the quantities of all lines
func (b *TransferBatch) TotalQuantity() float64 {
	var total float64
	for _, l := range b.Lines {
		total += l.Quantity
	}
	return total
}

// GenerationResult summarises one planner execution
type GenerationResult struct {
	RunID               int64            `json:"run_id"`
	DemandDate          time.Time        `json:"demand_date"`
	Batches             []*TransferBatch `json:"batches"`
	SkippedWarehouseIDs []int64          `json:"skipped_warehouse_ids"`
	ReportKey           string           `json:"report_key,omitempty"`
}
