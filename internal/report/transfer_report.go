package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/storage"
)

var reportHeader = []string{"reference", "origin", "source", "destination", "product", "quantity"}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// TransferExporter writes the batches of a generated run as a CSV object.
type TransferExporter struct {
	store storage.ObjectStorage
}

func NewTransferExporter(store storage.ObjectStorage) *TransferExporter {
	return &TransferExporter{store: store}
}

// ReportKey is the object key of a run's transfer report
func ReportKey(run *domain.ReplenishmentRun) string {
	name := unsafeKeyChars.ReplaceAllString(run.Name, "_")
	if name == "" {
		name = domain.DefaultRunName
	}
	return fmt.Sprintf("replenishment/%s/%s-%d.csv", run.Date.Format("2006-01-02"), name, run.ID)
}

// Export uploads the report and returns its key. Warehouse names are looked
// up in names and fall back to the id.
func (e *TransferExporter) Export(ctx context.Context, run *domain.ReplenishmentRun, batches []*domain.TransferBatch, names map[int64]string) (string, error) {
	data, err := Render(batches, names)
	if err != nil {
		return "", err
	}

	key := ReportKey(run)
	if err := e.store.UploadObject(ctx, key, data); err != nil {
		return "", fmt.Errorf("upload transfer report: %w", err)
	}
	return key, nil
}

// Render encodes batches one line per row
func Render(batches []*domain.TransferBatch, names map[int64]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(reportHeader); err != nil {
		return nil, fmt.Errorf("write report header: %w", err)
	}

	for _, b := range batches {
		for _, line := range b.Lines {
			record := []string{
				b.Reference,
				b.Origin,
				warehouseName(names, b.SourceWarehouseID),
				warehouseName(names, b.DestinationWarehouseID),
				line.ProductName,
				strconv.FormatFloat(line.Quantity, 'f', -1, 64),
			}
			if err := w.Write(record); err != nil {
				return nil, fmt.Errorf("write report row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush report: %w", err)
	}
	return buf.Bytes(), nil
}

func warehouseName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return strconv.FormatInt(id, 10)
}
