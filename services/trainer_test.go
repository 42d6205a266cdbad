package services

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"yad2-pipeline/config"
	"yad2-pipeline/models"
)

func linearListings(n int) []*models.Listing {
	var out []*models.Listing
	for i := 0; i < n; i++ {
		area := 50 + float64(i*7%90)
		rooms := 2 + float64(i%4)
		floor := float64(i % 9)
		out = append(out, &models.Listing{
			PriceShekels: 200000 + 20000*area + 50000*rooms + 10000*floor,
			AreaSqm:      area,
			Rooms:        rooms,
			Floor:        floor,
			City:         "חיפה",
		})
	}
	return out
}

func TestTrainerSmallDatasetUsesBaseline(t *testing.T) {
	trainer := NewTrainer(config.DefaultPipeline(), newTestLogger())
	listings := []*models.Listing{
		{PriceShekels: 1000000, AreaSqm: 60, Rooms: 3, Floor: 1, City: "חיפה"},
		{PriceShekels: 2000000, AreaSqm: 90, Rooms: 4, Floor: 2, City: "חיפה"},
		{PriceShekels: 1500000, AreaSqm: 75, Rooms: 3, Floor: 5, City: "חיפה"},
	}

	m, report, err := trainer.Train(listings)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if m.Name() != VariantBaseline {
		t.Errorf("variant: got %s, want %s", m.Name(), VariantBaseline)
	}
	if got := m.Predict(models.Features{AreaSqm: 200}); got != 1500000 {
		t.Errorf("baseline prediction: got %v, want 1500000", got)
	}
	if _, ok := report[VariantBaseline]; !ok || len(report) != 1 {
		t.Errorf("report: got %v", report)
	}
}

func TestTrainerSingleRow(t *testing.T) {
	trainer := NewTrainer(config.DefaultPipeline(), newTestLogger())
	_, report, err := trainer.Train([]*models.Listing{{PriceShekels: 900000, AreaSqm: 50, Rooms: 2, Floor: 1}})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if report[VariantBaseline].R2 != 0 {
		t.Errorf("r2 for a single row: got %v, want 0", report[VariantBaseline].R2)
	}
}

func TestTrainerEmpty(t *testing.T) {
	trainer := NewTrainer(config.DefaultPipeline(), newTestLogger())
	if _, _, err := trainer.Train(nil); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("got %v, want ErrEmptyDataset", err)
	}
}

func TestTrainerPicksLinearOnLinearData(t *testing.T) {
	trainer := NewTrainer(config.DefaultPipeline(), newTestLogger())

	m, report, err := trainer.Train(linearListings(60))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if _, ok := report[VariantKNN]; !ok {
		t.Error("report is missing the knn variant")
	}
	if m.Name() != VariantLinear {
		t.Errorf("variant: got %s, want %s (report %v)", m.Name(), VariantLinear, report)
	}
	if r := report[VariantLinear]; r.R2 < 0.99 {
		t.Errorf("linear r2: got %v, want > 0.99", r.R2)
	}

	want := 200000 + 20000*80.0 + 50000*3.0 + 10000*4.0
	got := m.Predict(models.Features{AreaSqm: 80, Rooms: 3, Floor: 4, City: "חיפה"})
	if math.Abs(got-want)/want > 0.01 {
		t.Errorf("prediction: got %.0f, want about %.0f", got, want)
	}
}

func TestTrainerImputesNaN(t *testing.T) {
	trainer := NewTrainer(config.DefaultPipeline(), newTestLogger())
	fs, ys := trainer.prepare([]*models.Listing{
		{PriceShekels: 1000000, AreaSqm: math.NaN(), Rooms: 3, Floor: math.NaN(), City: ""},
		{PriceShekels: 1200000, AreaSqm: 80, Rooms: math.NaN(), Floor: math.NaN(), City: "nan"},
		{PriceShekels: math.NaN(), AreaSqm: 90, Rooms: 4, Floor: 3},
	})
	if len(fs) != 2 || len(ys) != 2 {
		t.Fatalf("rows: got %d, want 2", len(fs))
	}
	if fs[0].AreaSqm != 80 || fs[1].Rooms != 3 || fs[0].Floor != 2 {
		t.Errorf("imputed features: got %+v / %+v", fs[0], fs[1])
	}
	if fs[0].City != "Unknown" || fs[1].City != "Unknown" {
		t.Errorf("cities: got %q, %q", fs[0].City, fs[1].City)
	}
}

func TestTestShare(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{100, 0.2},
		{50, 0.2},
		{20, 0.1},
		{10, 0.1},
		{8, 0.125},
	}
	for _, tt := range tests {
		if got := testShare(tt.n); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("testShare(%d) = %v; want %v", tt.n, got, tt.want)
		}
	}
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "price_model.json")
	trainer := NewTrainer(config.DefaultPipeline(), newTestLogger())
	m, _, err := trainer.Train(linearListings(30))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if err := SaveModel(path, m); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}

	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if loaded.Name() != m.Name() {
		t.Errorf("variant: got %s, want %s", loaded.Name(), m.Name())
	}
	f := models.Features{AreaSqm: 95, Rooms: 4, Floor: 6, City: "חיפה"}
	if a, b := m.Predict(f), loaded.Predict(f); math.Abs(a-b) > 1e-6 {
		t.Errorf("prediction changed after reload: %v vs %v", a, b)
	}
}

func TestLoadModelMissing(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("got %v, want ErrModelUnavailable", err)
	}
}
