package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
)

// AddWarehouse registers a warehouse, assigning an id when missing
func (s *Store) AddWarehouse(w domain.Warehouse) domain.Warehouse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == 0 {
		w.ID = s.newID()
	}
	if w.StockLocationID == 0 {
		w.StockLocationID = s.newID()
	}
	s.data.warehouses[w.ID] = w
	return w
}

// AddProduct registers a product, assigning an id when missing
func (s *Store) AddProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.newID()
	}
	s.data.products[p.ID] = p
	return p
}

// AddRoute configures the internal transfer route of a warehouse
func (s *Store) AddRoute(r domain.InternalRoute) domain.InternalRoute {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.newID()
	}
	s.data.routes[r.WarehouseID] = r
	return r
}

// SetStock sets the stock position of a product in a warehouse
func (s *Store) SetStock(productID, warehouseID int64, pos domain.StockPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.stock[stockKey{ProductID: productID, WarehouseID: warehouseID}] = pos
}

// SetTherapyCount sets the number of sessions of a clinic on a date
func (s *Store) SetTherapyCount(clinicID int64, date time.Time, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.sessions[sessionKey{ClinicID: clinicID, Date: date.Format("2006-01-02")}] = count
}

func (s *Store) TherapyCount(ctx context.Context, clinicID int64, date time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.sessions[sessionKey{ClinicID: clinicID, Date: date.Format("2006-01-02")}], nil
}

func (s *Store) StockPosition(ctx context.Context, productID, warehouseID int64) (domain.StockPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.stock[stockKey{ProductID: productID, WarehouseID: warehouseID}], nil
}

func (s *Store) StorableProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		if p.Storable {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) InternalRoute(ctx context.Context, sourceWarehouseID int64) (*domain.InternalRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	route, ok := s.data.routes[sourceWarehouseID]
	if !ok {
		return nil, nil
	}
	return &route, nil
}

func (s *Store) GetWarehouse(ctx context.Context, id int64) (*domain.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.data.warehouses[id]
	if !ok {
		return nil, fmt.Errorf("warehouse %d: %w", id, domain.ErrNotFound)
	}
	return &w, nil
}

func (s *Store) ListWarehouses(ctx context.Context) ([]*domain.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.Warehouse, 0, len(s.data.warehouses))
	for _, w := range s.data.warehouses {
		w := w
		result = append(result, &w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) CreateTransfer(ctx context.Context, batch *domain.TransferBatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.IdempotencyKey != "" {
		if _, exists := s.data.transferKeys[batch.IdempotencyKey]; exists {
			return 0, domain.ErrDuplicateTransfer
		}
	}

	batch.ID = s.newID()
	if batch.Reference == "" {
		batch.Reference = fmt.Sprintf("INT/%s/%05d", s.now().Format("200601"), batch.ID)
	}
	batch.CreatedAt = s.now()
	s.data.transfers[batch.ID] = cloneTransfer(*batch)
	if batch.IdempotencyKey != "" {
		s.data.transferKeys[batch.IdempotencyKey] = batch.ID
	}
	return batch.ID, nil
}

func (s *Store) ListTransfersByRun(ctx context.Context, runID int64) ([]*domain.TransferBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.TransferBatch, 0)
	for _, b := range s.data.transfers {
		if b.RunID == runID {
			b := cloneTransfer(b)
			result = append(result, &b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
