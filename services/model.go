package services

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/mat"

	"yad2-pipeline/models"
	"yad2-pipeline/storage"
)

// ErrModelUnavailable means no trained model artifact exists yet.
var ErrModelUnavailable = errors.New("no trained price model")

// Model variant names, also used as keys of the training report.
const (
	VariantBaseline = "baseline"
	VariantLinear   = "linear_regression"
	VariantKNN      = "knn"
)

// PriceModel predicts a listing price from its features.
type PriceModel interface {
	Name() string
	Predict(f models.Features) float64
}

// scaler standardizes the numeric features (area, rooms, floor).
type scaler struct {
	Means  [3]float64 `json:"means"`
	Scales [3]float64 `json:"scales"`
}

func fitScaler(xs [][3]float64) scaler {
	var s scaler
	n := float64(len(xs))
	for j := 0; j < 3; j++ {
		var sum float64
		for _, x := range xs {
			sum += x[j]
		}
		mean := sum / n
		var ss float64
		for _, x := range xs {
			ss += (x[j] - mean) * (x[j] - mean)
		}
		s.Means[j] = mean
		s.Scales[j] = math.Sqrt(ss / n)
		if s.Scales[j] == 0 {
			s.Scales[j] = 1
		}
	}
	return s
}

func (s scaler) transform(x [3]float64) [3]float64 {
	var out [3]float64
	for j := range x {
		out[j] = (x[j] - s.Means[j]) / s.Scales[j]
	}
	return out
}

func numeric(f models.Features) [3]float64 {
	return [3]float64{f.AreaSqm, f.Rooms, f.Floor}
}

// MedianModel always predicts the training median.
type MedianModel struct {
	Value float64 `json:"value"`
}

func (m *MedianModel) Name() string                  { return VariantBaseline }
func (m *MedianModel) Predict(models.Features) float64 { return m.Value }

// LinearModel is a ridge-stabilised least-squares fit on standardized
// numerics plus a one-hot city encoding. Unknown cities encode as all zeros.
type LinearModel struct {
	Scaler    scaler    `json:"scaler"`
	Cities    []string  `json:"cities"`
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

const ridgeLambda = 1e-3

func fitLinear(fs []models.Features, ys []float64) (*LinearModel, error) {
	xs := make([][3]float64, len(fs))
	for i, f := range fs {
		xs[i] = numeric(f)
	}
	m := &LinearModel{Scaler: fitScaler(xs), Cities: distinctCities(fs)}

	p := 1 + 3 + len(m.Cities)
	X := mat.NewDense(len(fs), p, nil)
	for i, f := range fs {
		X.SetRow(i, m.row(f))
	}
	y := mat.NewVecDense(len(ys), ys)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := xtx.At(i, j)
			if i == j && i > 0 {
				v += ridgeLambda
			}
			sym.SetSym(i, j, v)
		}
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("trainer: linear system is not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("trainer: solve: %w", err)
	}

	m.Intercept = beta.AtVec(0)
	m.Coef = make([]float64, p-1)
	for j := 1; j < p; j++ {
		m.Coef[j-1] = beta.AtVec(j)
	}
	return m, nil
}

// row is the design-matrix row of f, intercept column first.
func (m *LinearModel) row(f models.Features) []float64 {
	r := make([]float64, 1+3+len(m.Cities))
	r[0] = 1
	z := m.Scaler.transform(numeric(f))
	copy(r[1:4], z[:])
	if idx := sort.SearchStrings(m.Cities, f.City); idx < len(m.Cities) && m.Cities[idx] == f.City {
		r[4+idx] = 1
	}
	return r
}

func (m *LinearModel) Name() string { return VariantLinear }

func (m *LinearModel) Predict(f models.Features) float64 {
	r := m.row(f)
	pred := m.Intercept
	for j, c := range m.Coef {
		pred += c * r[j+1]
	}
	return pred
}

// KNNModel averages the prices of the K closest training listings.
// Distance is Euclidean over standardized numerics plus 1 for a city mismatch.
type KNNModel struct {
	K       int          `json:"k"`
	Scaler  scaler       `json:"scaler"`
	Points  [][3]float64 `json:"points"`
	Cities  []string     `json:"cities"`
	Targets []float64    `json:"targets"`
}

func fitKNN(fs []models.Features, ys []float64, k int) *KNNModel {
	xs := make([][3]float64, len(fs))
	for i, f := range fs {
		xs[i] = numeric(f)
	}
	m := &KNNModel{K: k, Scaler: fitScaler(xs)}
	for i, f := range fs {
		m.Points = append(m.Points, m.Scaler.transform(xs[i]))
		m.Cities = append(m.Cities, f.City)
	}
	m.Targets = append([]float64(nil), ys...)
	return m
}

func (m *KNNModel) Name() string { return VariantKNN }

func (m *KNNModel) Predict(f models.Features) float64 {
	if len(m.Points) == 0 {
		return 0
	}
	z := m.Scaler.transform(numeric(f))

	type neighbour struct {
		idx  int
		dist float64
	}
	ns := make([]neighbour, len(m.Points))
	for i, p := range m.Points {
		var d float64
		for j := range p {
			d += (p[j] - z[j]) * (p[j] - z[j])
		}
		if m.Cities[i] != f.City {
			d++
		}
		ns[i] = neighbour{idx: i, dist: d}
	}
	sort.SliceStable(ns, func(a, b int) bool { return ns[a].dist < ns[b].dist })

	k := m.K
	if k > len(ns) {
		k = len(ns)
	}
	var sum float64
	for _, n := range ns[:k] {
		sum += m.Targets[n.idx]
	}
	return sum / float64(k)
}

// modelArtifact is the on-disk form of a PriceModel.
type modelArtifact struct {
	Variant  string       `json:"variant"`
	Baseline *MedianModel `json:"baseline,omitempty"`
	Linear   *LinearModel `json:"linear_regression,omitempty"`
	KNN      *KNNModel    `json:"knn,omitempty"`
}

// SaveModel replaces the artifact at path.
func SaveModel(path string, m PriceModel) error {
	a := modelArtifact{Variant: m.Name()}
	switch t := m.(type) {
	case *MedianModel:
		a.Baseline = t
	case *LinearModel:
		a.Linear = t
	case *KNNModel:
		a.KNN = t
	default:
		return fmt.Errorf("trainer: cannot serialise model %T", m)
	}
	return storage.WriteJSON(path, a)
}

// LoadModel reads an artifact written by SaveModel. A missing file is
// reported as ErrModelUnavailable.
func LoadModel(path string) (PriceModel, error) {
	var a modelArtifact
	if err := storage.ReadJSON(path, &a); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrModelUnavailable
		}
		return nil, err
	}

	switch {
	case a.Variant == VariantBaseline && a.Baseline != nil:
		return a.Baseline, nil
	case a.Variant == VariantLinear && a.Linear != nil:
		return a.Linear, nil
	case a.Variant == VariantKNN && a.KNN != nil:
		return a.KNN, nil
	}
	return nil, fmt.Errorf("trainer: artifact %s has unknown variant %q", path, a.Variant)
}

func distinctCities(fs []models.Features) []string {
	set := make(map[string]struct{})
	for _, f := range fs {
		set[f.City] = struct{}{}
	}
	cities := make([]string, 0, len(set))
	for c := range set {
		cities = append(cities, c)
	}
	sort.Strings(cities)
	return cities
}
