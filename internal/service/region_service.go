package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
)

// RegionService manages named groups of clinic warehouses
type RegionService struct {
	tx repository.Transactor
}

func NewRegionService(tx repository.Transactor) *RegionService {
	return &RegionService{tx: tx}
}

func (s *RegionService) Create(ctx context.Context, name string, warehouseIDs []int64) (*domain.Region, error) {
	region := &domain.Region{Status: domain.StatusActive}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := s.apply(ctx, repos, region, name, warehouseIDs); err != nil {
			return err
		}
		return repos.Regions.CreateRegion(ctx, region)
	})
	if err != nil {
		return nil, err
	}
	return region, nil
}

func (s *RegionService) Update(ctx context.Context, id int64, name string, warehouseIDs []int64) (*domain.Region, error) {
	var region *domain.Region
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		region, err = repos.Regions.GetRegion(ctx, id)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, repos, region, name, warehouseIDs); err != nil {
			return err
		}
		return repos.Regions.UpdateRegion(ctx, region)
	})
	if err != nil {
		return nil, err
	}
	return region, nil
}

func (s *RegionService) apply(ctx context.Context, repos repository.Repositories, region *domain.Region, name string, warehouseIDs []int64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.NewValidationError("name", "region name is required")
	}

	ids := uniqueIDs(warehouseIDs)
	for _, id := range ids {
		if _, err := repos.Warehouses.GetWarehouse(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewValidationError("warehouse_ids", fmt.Sprintf("warehouse %d does not exist", id))
			}
			return err
		}
	}

	region.Name = name
	region.WarehouseIDs = ids
	return nil
}

func (s *RegionService) Get(ctx context.Context, id int64) (*domain.Region, error) {
	return s.tx.Repositories().Regions.GetRegion(ctx, id)
}

func (s *RegionService) List(ctx context.Context, includeArchived bool) ([]*domain.Region, error) {
	return s.tx.Repositories().Regions.ListRegions(ctx, includeArchived)
}

// Remove archives an active region and deletes an archived one
func (s *RegionService) Remove(ctx context.Context, id int64) (bool, error) {
	deleted := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		region, err := repos.Regions.GetRegion(ctx, id)
		if err != nil {
			return err
		}
		if region.Status == domain.StatusArchived {
			deleted = true
			return repos.Regions.DeleteRegion(ctx, id)
		}
		region.Status = domain.StatusArchived
		return repos.Regions.UpdateRegion(ctx, region)
	})
	return deleted, err
}
