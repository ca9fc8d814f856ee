package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/cache"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/config"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/clinic-stock/backend-go/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

type dbKey struct{}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func initDB(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.Context = context.WithValue(c.Context, dbKey{}, db)
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey{}).(*sql.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) *sql.DB {
	db, _ := c.Context.Value(dbKey{}).(*sql.DB)
	return db
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logger.Log.Debug().Err(err).Msg("no .env file loaded")
	}

	app := &cli.App{
		Name:  "seed",
		Usage: "Prepare the clinic stock database and run replenishment jobs",
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply the embedded schema migrations",
				Flags:  []cli.Flag{newDBURLFlag()},
				Before: initDB,
				After:  closeDB,
				Action: func(c *cli.Context) error {
					return postgres.Migrate(c.Context, dbFrom(c))
				},
			},
			{
				Name:  "master",
				Usage: "Seed master data (warehouses, products, routes, stock, sessions)",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:    "data-dir",
						Usage:   "Directory containing master seed data",
						Value:   "./data/seeds/master_data",
						EnvVars: []string{"SEED_DATA_DIR"},
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: runSeeder,
			},
			importRulesCommand(),
			generateCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("seed failed")
	}
}

func runSeeder(c *cli.Context) error {
	db := dbFrom(c)
	ctx := c.Context

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	logger.Log.Info().Str("data_dir", c.String("data-dir")).Msg("Starting database seeding")

	if err := seedMasterData(ctx, tx, c.String("data-dir")); err != nil {
		return fmt.Errorf("failed to seed master data: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Log.Info().Msg("Database seeding completed successfully")

	// seeded sessions change therapy counts the server may have cached
	demandCache, err := cache.NewDemandCache(config.Load().Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("demand cache unavailable, skipping invalidation")
		return nil
	}
	if err := demandCache.InvalidateAll(ctx); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to invalidate demand cache")
	}
	return nil
}
