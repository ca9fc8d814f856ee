// backend-go/internal/app/app.go
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/api"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/cache"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/config"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/drive"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/report"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository/memory"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/service"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// App holds the wired services of one process
type App struct {
	Tx             repository.Transactor
	Rules          *service.FormulaRuleService
	Regions        *service.RegionService
	Replenishments *service.ReplenishmentService
	Importer       *drive.RuleImporter
	// Drive is nil when no credentials file is configured
	Drive *drive.Service

	closers []func() error
}

// New builds the repository backend, caches, storage and services from cfg
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	tx, err := a.openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.Tx = tx

	calendar, err := service.NewCalendar(cfg.App.Timezone, nil)
	if err != nil {
		return nil, err
	}

	locker, err := cache.NewRunLocker(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to init run lock: %w", err)
	}
	demandCache, err := cache.NewDemandCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to init demand cache: %w", err)
	}

	objects, err := storage.New(cfg.Storage, cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init object storage: %w", err)
	}

	a.Rules = service.NewFormulaRuleService(tx, calendar)
	a.Regions = service.NewRegionService(tx)
	a.Replenishments = service.NewReplenishmentService(tx, locker, calendar,
		service.WithDemandCache(demandCache),
		service.WithReportExporter(report.NewTransferExporter(objects)),
	)

	repos := tx.Repositories()
	a.Importer = drive.NewRuleImporter(a.Rules, repos.Warehouses, repos.Catalog)

	if cfg.Drive.CredentialsFile != "" {
		a.Drive, err = drive.NewServiceFromFile(ctx, cfg.Drive.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to init google drive: %w", err)
		}
	}

	log.Info().
		Str("store", cfg.App.StoreKind).
		Str("timezone", calendar.Location().String()).
		Bool("cache", cfg.Cache.Enabled).
		Bool("object_storage", cfg.Storage.Enabled).
		Bool("drive", a.Drive != nil).
		Msg("app: services ready")

	return a, nil
}

func (a *App) openStore(cfg *config.Config) (repository.Transactor, error) {
	switch strings.ToLower(cfg.App.StoreKind) {
	case "memory":
		log.Warn().Msg("app: using in-memory store, data is lost on exit")
		return memory.NewStore(), nil
	case "", "postgres":
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return postgres.NewTransactor(db), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.App.StoreKind)
	}
}

// Router returns the HTTP API over the app's services
func (a *App) Router(cfg *config.Config) *gin.Engine {
	return api.NewRouter(&api.Services{
		Rules:          a.Rules,
		Regions:        a.Regions,
		Replenishments: a.Replenishments,
		Imports:        drive.NewHandler(a.Importer, a.Drive, cfg.Drive.FolderID),
	}, cfg.Server.AllowedOrigins)
}

func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
