package main

import (
	"fmt"
	"os"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/app"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/config"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/drive"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/storage"
	"github.com/andresuchdata/clinic-stock/backend-go/pkg/logger"
	"github.com/urfave/cli/v2"
)

func importRulesCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-rules",
		Usage:     "Import formula rules from local sheets, a drive folder or object storage",
		ArgsUsage: "[file.csv|file.xlsx ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "drive-folder",
				Usage:   "Google Drive folder ID to import every sheet from",
				EnvVars: []string{"DRIVE_RULES_FOLDER_ID"},
			},
			&cli.StringFlag{
				Name:  "storage-prefix",
				Usage: "Object storage prefix to import every sheet from",
			},
			&cli.StringFlag{
				Name:  "storage-key",
				Usage: "Single object key (relative to --storage-prefix) to import",
			},
			&cli.StringFlag{
				Name:  "download-dir",
				Usage: "Where remote sheets are stored before import",
				Value: "./data/tmp/rule_sheets",
			},
		},
		Action: runImportRules,
	}
}

func runImportRules(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	paths := c.Args().Slice()

	if folderID := c.String("drive-folder"); folderID != "" && len(paths) == 0 && c.String("storage-prefix") == "" {
		if application.Drive == nil {
			return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS is required to import from drive")
		}
		dir, err := os.MkdirTemp("", "rule-sheets-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		downloaded, err := drive.NewDownloader(application.Drive).DownloadFolderCSV(ctx, drive.DownloadOptions{
			FolderID:    folderID,
			DownloadDir: dir,
		})
		if err != nil {
			return err
		}
		paths = append(paths, downloaded...)
	}

	if prefix := c.String("storage-prefix"); prefix != "" || c.String("storage-key") != "" {
		client, err := storage.New(cfg.Storage, cfg.App.DataDir)
		if err != nil {
			return fmt.Errorf("failed to init object storage: %w", err)
		}
		downloader, err := newSheetDownloader(client, c.String("download-dir"))
		if err != nil {
			return err
		}
		downloaded, err := downloader.download(ctx, prefix, c.String("storage-key"))
		if err != nil {
			return err
		}
		paths = append(paths, downloaded...)
	}

	if len(paths) == 0 {
		return fmt.Errorf("no sheets given: pass files, --drive-folder or --storage-prefix")
	}

	result, err := application.Importer.ImportFiles(ctx, paths)
	if result != nil {
		for _, f := range result.Failed {
			logger.Log.Warn().Str("file", f.File).Int("line", f.Line).Str("error", f.Error).Msg("rule row rejected")
		}
		logger.Log.Info().
			Int("files", len(paths)).
			Int("created", result.Created).
			Int("updated", result.Updated).
			Int("failed", len(result.Failed)).
			Msg("rule import finished")
	}
	return err
}

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate the transfers of a draft replenishment run",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "run-id",
				Usage:    "Replenishment run to generate",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			application, err := app.New(ctx, config.Load())
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Replenishments.Generate(ctx, c.Int64("run-id"))
			if err != nil {
				return err
			}

			for _, batch := range result.Batches {
				logger.Log.Info().
					Str("reference", batch.Reference).
					Int64("destination_warehouse_id", batch.DestinationWarehouseID).
					Int("lines", len(batch.Lines)).
					Float64("quantity", batch.TotalQuantity()).
					Msg("transfer emitted")
			}
			if result.ReportKey != "" {
				logger.Log.Info().Str("key", result.ReportKey).Msg("transfer report stored")
			}
			return nil
		},
	}
}
