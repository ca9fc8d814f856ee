package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = previous })
	return &buf
}

func TestPlannerLogsTherapyCountOnlyForRuledProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// saline is evaluated first and has no rule
	f.addRule(t, &domain.FormulaRule{ClinicID: f.clinicA.ID, ProductID: f.gauze.ID, Multiplier: 1, WeekendFactor: 1})
	f.store.SetTherapyCount(f.clinicA.ID, demandDay, 7)

	run := f.draftRun(t, f.clinicA.ID)
	svc := NewReplenishmentService(f.store, nil, testCalendar(t))

	buf := captureLogs(t)
	if _, err := svc.Generate(ctx, run.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	seen := make(map[string]map[string]interface{})
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("Failed to decode log line %q: %v", scanner.Text(), err)
		}
		if entry["message"] == "replenishment: product evaluated" {
			seen[entry["product"].(string)] = entry
		}
	}

	saline, ok := seen["Saline"]
	if !ok {
		t.Fatal("Expected a log entry for Saline")
	}
	if _, ok := saline["therapy_count"]; ok {
		t.Errorf("Expected no therapy_count for a product without rule, got %v", saline["therapy_count"])
	}

	gauze, ok := seen["Gauze"]
	if !ok {
		t.Fatal("Expected a log entry for Gauze")
	}
	if gauze["therapy_count"] != float64(7) {
		t.Errorf("Expected therapy_count 7, got %v", gauze["therapy_count"])
	}
}
