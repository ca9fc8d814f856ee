package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DownloadOptions controls how rule sheets are pulled from Google Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
}

// FileSource lists and downloads drive files
type FileSource interface {
	ListFiles(ctx context.Context, folderID string) ([]*File, error)
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
}

// Downloader pulls rule sheets out of a drive folder.
type Downloader struct {
	source FileSource
}

func NewDownloader(source FileSource) *Downloader {
	return &Downloader{source: source}
}

// DownloadFolderCSV downloads all CSV and XLSX files of a folder into
// DownloadDir and returns local CSV paths. XLSX files are converted from
// their first sheet and the downloaded workbook is removed.
func (d *Downloader) DownloadFolderCSV(ctx context.Context, opts DownloadOptions) ([]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	files, err := d.source.ListFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}

	var localPaths []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ext := strings.ToLower(filepath.Ext(f.Name))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}

		localPath := filepath.Join(opts.DownloadDir, filepath.Base(f.Name))
		if err := d.download(ctx, f, localPath); err != nil {
			return nil, err
		}

		if ext == ".xlsx" {
			csvPath := strings.TrimSuffix(localPath, filepath.Ext(localPath)) + ".csv"
			if err := convertXLSXToCSV(localPath, csvPath); err != nil {
				return nil, fmt.Errorf("failed to convert %s to csv: %w", f.Name, err)
			}
			_ = os.Remove(localPath)
			localPath = csvPath
		}

		log.Info().Str("file", f.Name).Str("path", localPath).Msg("drive: rule sheet downloaded")
		localPaths = append(localPaths, localPath)
	}

	return localPaths, nil
}

func (d *Downloader) download(ctx context.Context, f *File, localPath string) error {
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	defer out.Close()

	if err := d.source.DownloadFile(ctx, f.ID, out); err != nil {
		return fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	return nil
}
