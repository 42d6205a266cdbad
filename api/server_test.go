package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"yad2-pipeline/config"
	"yad2-pipeline/models"
	"yad2-pipeline/services"
	"yad2-pipeline/storage"
	"yad2-pipeline/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, withModel bool) (*Server, *gin.Engine) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		CleanPath: filepath.Join(dir, "listings_clean.csv"),
		ModelPath: filepath.Join(dir, "price_model.json"),
		Pipeline:  config.DefaultPipeline(),
	}

	ppsqm := func(v float64) *float64 { return &v }
	table := &models.CleanedTable{
		Columns: []string{"title", "url", "price_shekels", "rooms", "area_sqm", "floor", "city", "neighborhood", "price_per_sqm"},
		Listings: []*models.Listing{
			{PriceShekels: 3000000, Rooms: 3, AreaSqm: 75, Floor: 4, City: "תל אביב", PricePerSqm: ppsqm(40000), Raw: models.RawRecord{"title": "a", "url": "u1"}},
			{PriceShekels: 4000000, Rooms: 5, AreaSqm: 120, Floor: 8, City: "תל אביב", PricePerSqm: ppsqm(33333), Raw: models.RawRecord{"title": "b", "url": "u2"}},
			{PriceShekels: 2000000, Rooms: 4, AreaSqm: 100, Floor: 1, City: "ירושלים", PricePerSqm: ppsqm(20000), Raw: models.RawRecord{"title": "c", "url": "u3"}},
		},
	}
	if err := storage.WriteCleanedCSV(cfg.CleanPath, table); err != nil {
		t.Fatalf("WriteCleanedCSV: %v", err)
	}
	if withModel {
		if err := services.SaveModel(cfg.ModelPath, &services.MedianModel{Value: 3000000}); err != nil {
			t.Fatalf("SaveModel: %v", err)
		}
	}

	srv := NewServer(cfg, utils.NewLoggerTo(io.Discard, utils.LevelError))
	if err := srv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return srv, srv.Router()
}

func do(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPredictWithoutModel(t *testing.T) {
	_, router := newTestServer(t, false)

	w := do(router, http.MethodPost, "/predict", `{"area_sqm": 80, "rooms": 3, "floor": 2, "city": "חיפה"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["available"] != false {
		t.Errorf("available: got %v, want false", resp["available"])
	}

	w = do(router, http.MethodGet, "/model", "")
	if !strings.Contains(w.Body.String(), `"available":false`) {
		t.Errorf("/model: got %s", w.Body.String())
	}
}

func TestPredictWithModel(t *testing.T) {
	_, router := newTestServer(t, true)

	w := do(router, http.MethodPost, "/predict", `{"area_sqm": 80, "rooms": 3, "floor": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		Variant string  `json:"variant"`
		Price   float64 `json:"price"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Variant != services.VariantBaseline || resp.Price != 3000000 {
		t.Errorf("prediction: got %+v", resp)
	}

	w = do(router, http.MethodPost, "/predict", `{"area_sqm": 5, "rooms": 3, "floor": 2}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range area: got %d, want 400", w.Code)
	}
}

func TestListingsFilter(t *testing.T) {
	_, router := newTestServer(t, false)

	tests := []struct {
		query string
		total int
	}{
		{"", 3},
		{"?city=" + url.QueryEscape("תל אביב"), 2},
		{"?city=" + url.QueryEscape("תל אביב,ירושלים"), 3},
		{"?city=" + url.QueryEscape("ירושלים") + "&city=" + url.QueryEscape("תל אביב"), 3},
		{"?min_rooms=4", 2},
		{"?max_area=100&min_area=80", 1},
		{"?city=" + url.QueryEscape("חיפה"), 0},
	}
	for _, tt := range tests {
		w := do(router, http.MethodGet, "/listings"+tt.query, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d", tt.query, w.Code)
			continue
		}
		var resp struct {
			Total int               `json:"total"`
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", tt.query, err)
		}
		if resp.Total != tt.total || len(resp.Items) != tt.total {
			t.Errorf("%s: got total %d / %d items, want %d", tt.query, resp.Total, len(resp.Items), tt.total)
		}
	}

	w := do(router, http.MethodGet, "/listings?limit=1&offset=1", "")
	if !strings.Contains(w.Body.String(), `"url":"u2"`) {
		t.Errorf("pagination: got %s", w.Body.String())
	}
}

func TestKPIsAndCities(t *testing.T) {
	_, router := newTestServer(t, false)

	w := do(router, http.MethodGet, "/kpis?city="+url.QueryEscape("תל אביב"), "")
	var k models.KPIs
	if err := json.Unmarshal(w.Body.Bytes(), &k); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if k.Count != 2 || k.MeanPrice != 3500000 {
		t.Errorf("kpis: got %+v", k)
	}

	w = do(router, http.MethodGet, "/cities", "")
	var cities []struct {
		City  string `json:"city"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &cities); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cities) != 2 || cities[0].City != "תל אביב" || cities[0].Count != 2 {
		t.Errorf("cities: got %+v", cities)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, router := newTestServer(t, true)

	w := do(router, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"listings":3`) {
		t.Errorf("/health: %d %s", w.Code, w.Body.String())
	}

	do(router, http.MethodPost, "/predict", `{"area_sqm": 80, "rooms": 3, "floor": 2}`)
	w = do(router, http.MethodGet, "/metrics", "")
	body := w.Body.String()
	for _, want := range []string{
		`dashboard_predictions_total{outcome="ok"} 1`,
		`dashboard_snapshot_rows 3`,
		`dashboard_model_available 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestReloadWithoutSnapshot(t *testing.T) {
	cfg := &config.Config{
		CleanPath: filepath.Join(t.TempDir(), "absent.csv"),
		ModelPath: filepath.Join(t.TempDir(), "absent.json"),
		Pipeline:  config.DefaultPipeline(),
	}
	srv := NewServer(cfg, utils.NewLoggerTo(io.Discard, utils.LevelError))
	if err := srv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	w := do(srv.Router(), http.MethodPost, "/reload", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"listings":0`) {
		t.Errorf("/reload: %d %s", w.Code, w.Body.String())
	}
}
