package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/storage"
)

func sampleBatches() []*domain.TransferBatch {
	return []*domain.TransferBatch{
		{
			Reference:              "INT/202403/00010",
			Origin:                 "Weekly",
			SourceWarehouseID:      1,
			DestinationWarehouseID: 2,
			Lines: []domain.TransferLine{
				{ProductID: 7, ProductName: "Saline", Quantity: 25},
				{ProductID: 8, ProductName: "Gauze, sterile", Quantity: 2.5},
			},
		},
	}
}

func TestRender(t *testing.T) {
	data, err := Render(sampleBatches(), map[int64]string{1: "Central", 2: "Clinic A"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expected := "reference,origin,source,destination,product,quantity\n" +
		"INT/202403/00010,Weekly,Central,Clinic A,Saline,25\n" +
		"INT/202403/00010,Weekly,Central,Clinic A,\"Gauze, sterile\",2.5\n"
	if string(data) != expected {
		t.Errorf("Expected %q, got %q", expected, string(data))
	}
}

func TestRenderFallsBackToIDs(t *testing.T) {
	data, err := Render(sampleBatches()[:1], nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expected := "reference,origin,source,destination,product,quantity\n" +
		"INT/202403/00010,Weekly,1,2,Saline,25\n" +
		"INT/202403/00010,Weekly,1,2,\"Gauze, sterile\",2.5\n"
	if string(data) != expected {
		t.Errorf("Expected %q, got %q", expected, string(data))
	}
}

func TestReportKey(t *testing.T) {
	run := &domain.ReplenishmentRun{ID: 42, Name: "North / week 10", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}
	if got := ReportKey(run); got != "replenishment/2024-03-05/North_week_10-42.csv" {
		t.Errorf("Unexpected key %s", got)
	}
}

func TestExportUploads(t *testing.T) {
	root := t.TempDir()
	exporter := NewTransferExporter(storage.NewLocalStorage(root))
	run := &domain.ReplenishmentRun{ID: 3, Name: "New", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}

	key, err := exporter.Export(context.Background(), run, sampleBatches(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(key))); err != nil {
		t.Errorf("Expected report at %s, got %v", key, err)
	}
}
