package memory

import (
	"context"
	"sync"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
)

type stockKey struct {
	ProductID   int64
	WarehouseID int64
}

type sessionKey struct {
	ClinicID int64
	Date     string
}

type state struct {
	warehouses   map[int64]domain.Warehouse
	products     map[int64]domain.Product
	routes       map[int64]domain.InternalRoute
	stock        map[stockKey]domain.StockPosition
	sessions     map[sessionKey]int
	rules        map[int64]domain.FormulaRule
	regions      map[int64]domain.Region
	runs         map[int64]domain.ReplenishmentRun
	transfers    map[int64]domain.TransferBatch
	transferKeys map[string]int64
	nextID       int64
}

func newState() state {
	return state{
		warehouses:   make(map[int64]domain.Warehouse),
		products:     make(map[int64]domain.Product),
		routes:       make(map[int64]domain.InternalRoute),
		stock:        make(map[stockKey]domain.StockPosition),
		sessions:     make(map[sessionKey]int),
		rules:        make(map[int64]domain.FormulaRule),
		regions:      make(map[int64]domain.Region),
		runs:         make(map[int64]domain.ReplenishmentRun),
		transfers:    make(map[int64]domain.TransferBatch),
		transferKeys: make(map[string]int64),
	}
}

func (s state) clone() state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.warehouses {
		c.warehouses[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.routes {
		c.routes[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.regions {
		c.regions[k] = cloneRegion(v)
	}
	for k, v := range s.runs {
		c.runs[k] = cloneRun(v)
	}
	for k, v := range s.transfers {
		c.transfers[k] = cloneTransfer(v)
	}
	for k, v := range s.transferKeys {
		c.transferKeys[k] = v
	}
	return c
}

// Store is an in-process implementation of every replenishment repository.
// Transactions are serialised and work on a private copy of the data that
// replaces the shared state on commit. Writes made outside WithinTx while a
// transaction is open are lost when it commits.
type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	data  state
	clock func() time.Time
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		data:  newState(),
		clock: time.Now,
	}
}

var _ repository.Transactor = (*Store)(nil)

// Repositories returns the store bound to every collaborator interface
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Demand:     s,
		Stock:      s,
		Catalog:    s,
		Transfers:  s,
		Routes:     s,
		Warehouses: s,
		Rules:      s,
		Regions:    s,
		Runs:       s,
	}
}

// WithinTx runs fn as one unit of work. Readers outside the transaction keep
// seeing the last committed state until fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := &Store{data: s.data.clone(), clock: s.clock}
	s.mu.RUnlock()

	if err := fn(ctx, work.Repositories()); err != nil {
		return err
	}

	work.mu.RLock()
	committed := work.data
	work.mu.RUnlock()

	s.mu.Lock()
	s.data = committed
	s.mu.Unlock()
	return nil
}

func (s *Store) newID() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

func cloneIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	return append([]int64(nil), ids...)
}

func cloneRegion(r domain.Region) domain.Region {
	r.WarehouseIDs = cloneIDs(r.WarehouseIDs)
	return r
}

func cloneRun(r domain.ReplenishmentRun) domain.ReplenishmentRun {
	r.DestinationWarehouseIDs = cloneIDs(r.DestinationWarehouseIDs)
	if r.RegionID != nil {
		id := *r.RegionID
		r.RegionID = &id
	}
	if r.GeneratedAt != nil {
		at := *r.GeneratedAt
		r.GeneratedAt = &at
	}
	return r
}

func cloneTransfer(b domain.TransferBatch) domain.TransferBatch {
	b.Lines = append([]domain.TransferLine(nil), b.Lines...)
	return b
}
