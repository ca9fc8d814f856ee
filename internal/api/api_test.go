package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/drive"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/repository/memory"
	"github.com/andresuchdata/clinic-stock/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type testServer struct {
	router  *gin.Engine
	store   *memory.Store
	central domain.Warehouse
	clinic  domain.Warehouse
	saline  domain.Product
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	ts := &testServer{store: store}
	ts.central = store.AddWarehouse(domain.Warehouse{Code: "CEN", Name: "Central"})
	ts.clinic = store.AddWarehouse(domain.Warehouse{Code: "CLA", Name: "Clinic A"})
	ts.saline = store.AddProduct(domain.Product{Code: "SAL", Name: "Saline", Storable: true})
	store.AddRoute(domain.InternalRoute{Name: "Central: Internal Transfers", WarehouseID: ts.central.ID})

	cal, err := service.NewCalendar("UTC", func() time.Time {
		return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("Failed to build calendar: %v", err)
	}

	rules := service.NewFormulaRuleService(store, cal)
	repos := store.Repositories()
	importer := drive.NewRuleImporter(rules, repos.Warehouses, repos.Catalog)

	ts.router = NewRouter(&Services{
		Rules:          rules,
		Regions:        service.NewRegionService(store),
		Replenishments: service.NewReplenishmentService(store, nil, cal),
		Imports:        drive.NewHandler(importer, nil, ""),
	}, nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a request id header")
	}
}

func TestFormulaRuleRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/formula_rules", map[string]interface{}{
		"clinic_id":  ts.clinic.ID,
		"product_id": ts.saline.ID,
		"multiplier": 2,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var rule domain.FormulaRule
	decode(t, w, &rule)
	if rule.DisplayName != "Clinic A - Saline" || rule.WeekendFactor != 1 {
		t.Errorf("Unexpected rule: %+v", rule)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/formula_rules", map[string]interface{}{
		"clinic_id":  ts.clinic.ID,
		"product_id": ts.saline.ID,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 for duplicate pair, got %d", w.Code)
	}
	var errBody map[string]string
	decode(t, w, &errBody)
	if errBody["field"] != "product_id" {
		t.Errorf("Expected field product_id, got %v", errBody)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/formula_rules/"+itoa(rule.ID)+"/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var breakdown domain.FormulaBreakdown
	decode(t, w, &breakdown)
	if breakdown.TherapyCount != domain.DefaultPreviewCount || breakdown.Final != 40 {
		t.Errorf("Unexpected preview: %+v", breakdown)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/formula_rules/preview", map[string]interface{}{
		"multiplier":     1,
		"weekend_factor": 1,
		"fixed_value":    7,
		"therapy_count":  3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &breakdown)
	if breakdown.TherapyCount != 3 || breakdown.Final != 7 {
		t.Errorf("Unexpected draft preview: %+v", breakdown)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/formula_rules/"+itoa(rule.ID)+"/preview?therapy_count=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad therapy_count, got %d", w.Code)
	}

	w = ts.do(t, http.MethodDelete, "/api/v1/formula_rules/"+itoa(rule.ID), nil)
	var status map[string]string
	decode(t, w, &status)
	if status["status"] != "archived" {
		t.Errorf("Expected first delete to archive, got %v", status)
	}
	w = ts.do(t, http.MethodDelete, "/api/v1/formula_rules/"+itoa(rule.ID), nil)
	decode(t, w, &status)
	if status["status"] != "deleted" {
		t.Errorf("Expected second delete to remove, got %v", status)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/formula_rules/"+itoa(rule.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestReplenishmentRoutes(t *testing.T) {
	ts := newTestServer(t)
	rule := domain.NewFormulaRule(ts.clinic.ID, ts.saline.ID)
	rule.FixedValue = 5
	if err := ts.store.CreateRule(t.Context(), rule); err != nil {
		t.Fatalf("Failed to seed rule: %v", err)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/replenishments", map[string]interface{}{
		"destination_warehouse_ids": []int64{ts.clinic.ID},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422 without source, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/replenishments", map[string]interface{}{
		"source_warehouse_id":       ts.central.ID,
		"destination_warehouse_ids": []int64{ts.clinic.ID},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var run domain.ReplenishmentRun
	decode(t, w, &run)
	if run.Name != domain.DefaultRunName || run.State != domain.RunStateDraft {
		t.Errorf("Unexpected run: %+v", run)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/replenishments/"+itoa(run.ID)+"/generate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result domain.GenerationResult
	decode(t, w, &result)
	if len(result.Batches) != 1 || result.Batches[0].TotalQuantity() != 5 {
		t.Fatalf("Unexpected generation result: %+v", result)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/replenishments/"+itoa(run.ID)+"/generate", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 on second generate, got %d", w.Code)
	}

	w = ts.do(t, http.MethodPut, "/api/v1/replenishments/"+itoa(run.ID), map[string]interface{}{"name": "Late"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 when editing a generated run, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/replenishments/"+itoa(run.ID)+"/transfers", nil)
	var transfers []domain.TransferBatch
	decode(t, w, &transfers)
	if len(transfers) != 1 || transfers[0].DestinationWarehouseID != ts.clinic.ID {
		t.Errorf("Unexpected transfers: %+v", transfers)
	}
}

func TestGenerateWithoutDestinationsIsBadRequest(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/replenishments", map[string]interface{}{
		"source_warehouse_id": ts.central.ID,
	})
	var run domain.ReplenishmentRun
	decode(t, w, &run)

	w = ts.do(t, http.MethodPost, "/api/v1/replenishments/"+itoa(run.ID)+"/generate", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInvalidIDs(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/formula_rules/abc", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/regions/0", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/regions/99", http.StatusNotFound},
		{http.MethodPost, "/api/v1/replenishments/99/generate", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, nil)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestRegionRoutes(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/regions", map[string]interface{}{
		"name":          " North ",
		"warehouse_ids": []int64{ts.clinic.ID, ts.clinic.ID},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var region domain.Region
	decode(t, w, &region)
	if region.Name != "North" || len(region.WarehouseIDs) != 1 {
		t.Errorf("Unexpected region: %+v", region)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/regions", nil)
	var regions []domain.Region
	decode(t, w, &regions)
	if len(regions) != 1 {
		t.Errorf("Expected 1 region, got %d", len(regions))
	}
}

func TestImportRoutes(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "rules.csv")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write([]byte("clinic_code,product_code,multiplier\ncla,sal,3\nCLX,SAL,1\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/formula_rules/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result drive.ImportResult
	decode(t, w, &result)
	if result.Created != 1 || len(result.Failed) != 1 || result.Failed[0].Line != 3 {
		t.Errorf("Unexpected import result: %+v", result)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/formula_rules/import/drive", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without drive, got %d", w.Code)
	}
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, allowAll := normalizeAllowedOrigins([]string{"http://a.test, http://b.test", " "})
	if allowAll || len(origins) != 2 {
		t.Errorf("Unexpected origins %v allowAll=%v", origins, allowAll)
	}
	_, allowAll = normalizeAllowedOrigins([]string{"*"})
	if !allowAll {
		t.Error("Expected * to allow all origins")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
