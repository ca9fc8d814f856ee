package drive

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository"
	"github.com/rs/zerolog/log"
)

var requiredRuleColumns = []string{"clinic_code", "product_code"}

// RuleUpserter saves an imported rule, creating it when the pair is new
type RuleUpserter interface {
	Upsert(ctx context.Context, rule *domain.FormulaRule) (*domain.FormulaRule, bool, error)
}

// RowError describes a sheet row that could not be imported
type RowError struct {
	File  string `json:"file,omitempty"`
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// ImportResult summarises one or more imported sheets
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Failed  []RowError `json:"failed"`
}

func (r *ImportResult) merge(other *ImportResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Failed = append(r.Failed, other.Failed...)
}

// RuleImporter loads formula rules from CSV or XLSX sheets keyed by
// warehouse and product codes.
type RuleImporter struct {
	rules      RuleUpserter
	warehouses repository.WarehouseRepository
	catalog    repository.ProductCatalog
}

func NewRuleImporter(rules RuleUpserter, warehouses repository.WarehouseRepository, catalog repository.ProductCatalog) *RuleImporter {
	return &RuleImporter{rules: rules, warehouses: warehouses, catalog: catalog}
}

// ImportFiles imports several local sheets concurrently
func (i *RuleImporter) ImportFiles(ctx context.Context, paths []string) (*ImportResult, error) {
	var (
		wg       sync.WaitGroup
		resultCh = make(chan *ImportResult, len(paths))
		errCh    = make(chan error, len(paths))
	)

	for _, path := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()

			result, err := i.ImportFile(ctx, p)
			if err != nil {
				errCh <- fmt.Errorf("error importing file %s: %w", p, err)
				return
			}
			resultCh <- result
		}(path)
	}

	go func() {
		wg.Wait()
		close(resultCh)
		close(errCh)
	}()

	total := &ImportResult{Failed: make([]RowError, 0)}
	for result := range resultCh {
		total.merge(result)
	}

	if len(errCh) > 0 {
		var errs []error
		for err := range errCh {
			errs = append(errs, err)
		}
		return total, fmt.Errorf("errors importing files: %w", errors.Join(errs...))
	}

	return total, nil
}

// ImportFile imports a local .csv or .xlsx sheet
func (i *RuleImporter) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	result, err := i.Import(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Import reads one sheet. XLSX content is detected from the file name.
func (i *RuleImporter) Import(ctx context.Context, name string, r io.Reader) (*ImportResult, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		var buf bytes.Buffer
		if err := writeFirstSheetCSV(r, &buf); err != nil {
			return nil, sheetError(err.Error())
		}
		r = &buf
	}

	clinics, products, err := i.lookups(ctx)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, sheetError(fmt.Sprintf("failed to read CSV header: %v", err))
	}
	colMap := make(map[string]int)
	for idx, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(col))] = idx
	}
	for _, col := range requiredRuleColumns {
		if _, ok := colMap[col]; !ok {
			return nil, sheetError("missing required column: " + col)
		}
	}

	result := &ImportResult{Failed: make([]RowError, 0)}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, sheetError(fmt.Sprintf("failed to read CSV record on line %d: %v", line, err))
		}

		rule, err := parseRuleRow(record, colMap, clinics, products)
		if err != nil {
			result.Failed = append(result.Failed, RowError{File: name, Line: line, Error: err.Error()})
			continue
		}

		_, created, err := i.rules.Upsert(ctx, rule)
		if err != nil {
			if domain.IsValidationError(err) {
				result.Failed = append(result.Failed, RowError{File: name, Line: line, Error: err.Error()})
				continue
			}
			return nil, fmt.Errorf("failed to save rule on line %d: %w", line, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	log.Info().
		Str("file", name).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("failed", len(result.Failed)).
		Msg("rule import: sheet processed")

	return result, nil
}

// sheetError marks a malformed sheet, as opposed to a storage failure
func sheetError(msg string) error {
	return domain.NewValidationError("file", msg)
}

// IsSheetError reports whether every error joined into err is a sheet problem
func IsSheetError(err error) bool {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			if !IsSheetError(e) {
				return false
			}
		}
		return true
	}
	return domain.IsValidationError(err)
}

func (i *RuleImporter) lookups(ctx context.Context) (map[string]int64, map[string]int64, error) {
	warehouses, err := i.warehouses.ListWarehouses(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list warehouses: %w", err)
	}
	clinics := make(map[string]int64, len(warehouses))
	for _, w := range warehouses {
		clinics[strings.ToUpper(w.Code)] = w.ID
	}

	catalog, err := i.catalog.StorableProducts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list products: %w", err)
	}
	products := make(map[string]int64, len(catalog))
	for _, p := range catalog {
		products[strings.ToUpper(p.Code)] = p.ID
	}
	return clinics, products, nil
}

func parseRuleRow(record []string, colMap map[string]int, clinics, products map[string]int64) (*domain.FormulaRule, error) {
	getValue := func(col string) string {
		if idx, ok := colMap[col]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	getFloat := func(col string, fallback float64) (float64, error) {
		val := getValue(col)
		if val == "" {
			return fallback, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid number %q", col, val)
		}
		return f, nil
	}

	getBool := func(col string) bool {
		switch strings.ToLower(getValue(col)) {
		case "1", "true", "yes", "y":
			return true
		}
		return false
	}

	clinicCode := strings.ToUpper(getValue("clinic_code"))
	clinicID, ok := clinics[clinicCode]
	if !ok {
		return nil, fmt.Errorf("unknown clinic code %q", clinicCode)
	}
	productCode := strings.ToUpper(getValue("product_code"))
	productID, ok := products[productCode]
	if !ok {
		return nil, fmt.Errorf("unknown product code %q", productCode)
	}

	rule := domain.NewFormulaRule(clinicID, productID)
	rule.StartingRoundUp = getBool("starting_round_up")
	rule.EndingRoundUp = getBool("ending_round_up")

	numbers := []struct {
		col      string
		fallback float64
		dest     *float64
	}{
		{"multiplier", 1, &rule.Multiplier},
		{"weekend_factor", 1, &rule.WeekendFactor},
		{"buffer", 0, &rule.Buffer},
		{"minimum_value", 0, &rule.MinimumValue},
		{"maximum_value", 0, &rule.MaximumValue},
		{"fixed_value", 0, &rule.FixedValue},
	}
	for _, n := range numbers {
		v, err := getFloat(n.col, n.fallback)
		if err != nil {
			return nil, err
		}
		*n.dest = v
	}

	return rule, nil
}
