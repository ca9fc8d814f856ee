package domain

import "time"

// RunState is the planning state of a replenishment run
type RunState string

const (
	RunStateDraft     RunState = "draft"
	RunStateGenerated RunState = "generated"
)

// DefaultRunName is used when a run is created without a label
const DefaultRunName = "New"

// ReplenishmentRun is one planning execution from a source warehouse to a set
// of destination clinic warehouses. State only moves from draft to generated.
type ReplenishmentRun struct {
	ID                      int64        `json:"id" db:"id"`
	Name                    string       `json:"name" db:"name"`
	Date                    time.Time    `json:"date" db:"run_date"`
	SourceWarehouseID       int64        `json:"source_warehouse_id" db:"source_warehouse_id"`
	DestinationWarehouseIDs []int64      `json:"destination_warehouse_ids" db:"-"`
	RegionID                *int64       `json:"region_id,omitempty" db:"region_id"`
	State                   RunState     `json:"state" db:"state"`
	Status                  RecordStatus `json:"status" db:"status"`
	GeneratedAt             *time.Time   `json:"generated_at,omitempty" db:"generated_at"`
	CreatedAt               time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time    `json:"updated_at" db:"updated_at"`
}

// IsGenerated reports whether transfers were already produced for the run
func (r *ReplenishmentRun) IsGenerated() bool {
	return r.State == RunStateGenerated
}

// RunFilter narrows run listings
type RunFilter struct {
	State           RunState `json:"state"`
	IncludeArchived bool     `json:"include_archived"`
}

// CreateRunRequest is the input for creating a run
type CreateRunRequest struct {
	Name                    string     `json:"name"`
	Date                    *time.Time `json:"date"`
	SourceWarehouseID       int64      `json:"source_warehouse_id"`
	DestinationWarehouseIDs []int64    `json:"destination_warehouse_ids"`
	RegionID                *int64     `json:"region_id"`
}
