package services

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"strings"

	"yad2-pipeline/config"
	"yad2-pipeline/models"
	"yad2-pipeline/utils"
)

// ErrEmptyDataset means there is nothing to train or summarise.
var ErrEmptyDataset = errors.New("cleaned dataset is empty")

const (
	splitSeed     = 42
	minTrainRows  = 10
	knnNeighbours = 5
)

// Trainer fits the price model variants and keeps the best one.
type Trainer struct {
	cfg    config.Pipeline
	logger *utils.Logger
}

func NewTrainer(cfg config.Pipeline, logger *utils.Logger) *Trainer {
	return &Trainer{cfg: cfg, logger: logger}
}

// Train fits on the cleaned listings and returns the lowest-RMSE model with
// the held-out metrics of every variant. Below minTrainRows rows only the
// median baseline is fitted, on the whole set.
func (t *Trainer) Train(listings []*models.Listing) (PriceModel, models.TrainingReport, error) {
	fs, ys := t.prepare(listings)
	n := len(fs)
	if n == 0 {
		return nil, nil, ErrEmptyDataset
	}

	report := make(models.TrainingReport)

	if n < minTrainRows {
		t.logger.Warn("[trainer] Small dataset (n=%d) — fitting the median baseline", n)
		base := &MedianModel{Value: median(ys)}
		m := score(base, fs, ys)
		if n <= 1 {
			m.R2 = 0
		}
		report[VariantBaseline] = m
		return base, report, nil
	}

	trainF, trainY, testF, testY := split(fs, ys, testShare(n))
	t.logger.Info("[trainer] Split %d rows → train %d / test %d", n, len(trainF), len(testF))

	candidates := []PriceModel{fitKNN(trainF, trainY, knnNeighbours)}
	if lin, err := fitLinear(trainF, trainY); err != nil {
		t.logger.Warn("[trainer] Linear regression skipped: %v", err)
	} else {
		candidates = append(candidates, lin)
	}

	var best PriceModel
	for _, m := range candidates {
		s := score(m, testF, testY)
		report[m.Name()] = s
		t.logger.Info("[trainer] %-18s rmse=%.0f r2=%.3f", m.Name(), s.RMSE, s.R2)
		if best == nil || s.RMSE < report[best.Name()].RMSE ||
			(s.RMSE == report[best.Name()].RMSE && m.Name() < best.Name()) {
			best = m
		}
	}
	return best, report, nil
}

// prepare turns listings into features, re-imputing any NaN left in the
// snapshot the same way the cleaner does.
func (t *Trainer) prepare(listings []*models.Listing) ([]models.Features, []float64) {
	var kept []*models.Listing
	for _, l := range listings {
		if !math.IsNaN(l.PriceShekels) {
			kept = append(kept, l)
		}
	}

	fill := func(get func(*models.Listing) float64, def float64) float64 {
		var present []float64
		for _, l := range kept {
			if v := get(l); !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			return def
		}
		return median(present)
	}
	roomsFill := fill(func(l *models.Listing) float64 { return l.Rooms }, t.cfg.DefaultRooms)
	areaFill := fill(func(l *models.Listing) float64 { return l.AreaSqm }, t.cfg.DefaultArea)
	floorFill := fill(func(l *models.Listing) float64 { return l.Floor }, t.cfg.DefaultFloor)

	fs := make([]models.Features, 0, len(kept))
	ys := make([]float64, 0, len(kept))
	for _, l := range kept {
		f := models.Features{AreaSqm: l.AreaSqm, Rooms: l.Rooms, Floor: l.Floor, City: l.City}
		if math.IsNaN(f.AreaSqm) {
			f.AreaSqm = areaFill
		}
		if math.IsNaN(f.Rooms) {
			f.Rooms = roomsFill
		}
		if math.IsNaN(f.Floor) {
			f.Floor = floorFill
		}
		if c := strings.TrimSpace(f.City); c == "" || c == "nan" {
			f.City = t.cfg.UnknownCity
		}
		fs = append(fs, f)
		ys = append(ys, l.PriceShekels)
	}
	return fs, ys
}

// testShare is 0.2 from 50 rows up, otherwise clamped to [0.1, 0.2] around 1/n.
func testShare(n int) float64 {
	if n >= 50 {
		return 0.2
	}
	return math.Max(0.1, math.Min(0.2, 1/float64(n)))
}

// split shuffles with a fixed seed so repeated runs pick the same rows.
func split(fs []models.Features, ys []float64, share float64) ([]models.Features, []float64, []models.Features, []float64) {
	n := len(fs)
	nTest := int(math.Ceil(float64(n) * share))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}

	perm := rand.New(rand.NewSource(splitSeed)).Perm(n)
	testIdx := append([]int(nil), perm[:nTest]...)
	sort.Ints(testIdx)
	isTest := make(map[int]bool, nTest)
	for _, i := range testIdx {
		isTest[i] = true
	}

	var trF, teF []models.Features
	var trY, teY []float64
	for i := range fs {
		if isTest[i] {
			teF, teY = append(teF, fs[i]), append(teY, ys[i])
		} else {
			trF, trY = append(trF, fs[i]), append(trY, ys[i])
		}
	}
	return trF, trY, teF, teY
}

func score(m PriceModel, fs []models.Features, ys []float64) models.ModelMetrics {
	preds := make([]float64, len(fs))
	for i, f := range fs {
		preds[i] = m.Predict(f)
	}
	return models.ModelMetrics{RMSE: rmse(ys, preds), R2: r2(ys, preds)}
}

func rmse(ys, preds []float64) float64 {
	if len(ys) == 0 {
		return 0
	}
	var ss float64
	for i := range ys {
		d := ys[i] - preds[i]
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(ys)))
}

// r2 is the coefficient of determination. A constant target scores 1 when
// predicted exactly and 0 otherwise.
func r2(ys, preds []float64) float64 {
	if len(ys) == 0 {
		return 0
	}
	var mean float64
	for _, y := range ys {
		mean += y
	}
	mean /= float64(len(ys))

	var ssRes, ssTot float64
	for i := range ys {
		ssRes += (ys[i] - preds[i]) * (ys[i] - preds[i])
		ssTot += (ys[i] - mean) * (ys[i] - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
