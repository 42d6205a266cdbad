package models

import "time"

// Features is the single-row input of a price prediction.
type Features struct {
	AreaSqm float64 `json:"area_sqm"`
	Rooms   float64 `json:"rooms"`
	Floor   float64 `json:"floor"`
	City    string  `json:"city"`
}

// ModelMetrics is the held-out score of one model variant.
type ModelMetrics struct {
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// TrainingReport maps a model variant name to its metrics.
type TrainingReport map[string]ModelMetrics

// DescriptiveStats summarises the cleaned dataset.
type DescriptiveStats struct {
	N           int            `json:"n"`
	PriceMean   float64        `json:"price_mean"`
	PriceMedian float64        `json:"price_median"`
	PriceStd    float64        `json:"price_std"`
	PPSqmMean   float64        `json:"ppsqm_mean"`
	RoomsDist   map[string]int `json:"rooms_dist"`
}

// TTestResult is a Welch two-sample comparison of prices in two cities.
type TTestResult struct {
	CityA  string  `json:"city_a"`
	CityB  string  `json:"city_b"`
	TStat  float64 `json:"t_stat"`
	PValue float64 `json:"p_value"`
	NA     int     `json:"n_a"`
	NB     int     `json:"n_b"`
}

// StatsReport is the document written by the stats stage.
type StatsReport struct {
	Desc  DescriptiveStats `json:"desc"`
	TTest *TTestResult     `json:"t_test"`
}

// KPIs are the headline figures the dashboard shows for a filtered view.
type KPIs struct {
	Count           int     `json:"count"`
	MeanPrice       float64 `json:"mean_price"`
	MeanPricePerSqm float64 `json:"mean_price_per_sqm"`
	MedianArea      float64 `json:"median_area_sqm"`
}

// SnapshotEvent announces that a new cleaned snapshot replaced the old one.
type SnapshotEvent struct {
	RunID string    `json:"run_id"`
	Event string    `json:"event"`
	Path  string    `json:"path"`
	Rows  int       `json:"rows"`
	At    time.Time `json:"at"`
}
