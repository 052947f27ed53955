package health

import (
	"sort"

	"github.com/aerobless/thereabout/internal/backend"
	"github.com/aerobless/thereabout/internal/trend"
)

// Metric name aliases. Exports from different source system versions name
// the same logical metric differently, so lookups try each variant.
var weightAliases = []string{"weight_body_mass", "weight", "body_mass"}

const (
	metricActiveEnergy = "active_energy"
	metricBasalEnergy  = "basal_energy_burned"

	defaultEnergyUnits = "kcal"
)

// TrendRange selects how far back the weight trend window reaches.
type TrendRange string

const (
	TrendRange7d  TrendRange = "7d"
	TrendRange30d TrendRange = "30d"
)

// Days returns the number of days the range spans.
func (r TrendRange) Days() int {
	if r == TrendRange30d {
		return 30
	}
	return 7
}

// WindowStart returns the first date of the trend window ending on selected.
func (r TrendRange) WindowStart(selected backend.Date) backend.Date {
	return selected.AddDays(-r.Days())
}

// WeightPoint is one dated weight reading.
type WeightPoint struct {
	Date  string
	Value float64
}

// WeightSeries extracts the chronological weight series from a health
// response, tolerating the known alias names and skipping samples without a
// reading.
func WeightSeries(resp backend.HealthResponse) []WeightPoint {
	var samples []backend.HealthSample
	for _, alias := range weightAliases {
		if s, ok := resp.Metrics[alias]; ok && len(s) > 0 {
			samples = s
			break
		}
	}

	var points []WeightPoint
	for _, s := range samples {
		if s.Qty == nil {
			continue
		}
		points = append(points, WeightPoint{Date: s.Date, Value: *s.Qty})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// TrendOverlay returns the fitted trend value for each point of the series.
func TrendOverlay(points []WeightPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return trend.Linear(values)
}

// DaySummary carries the health readings shown for one selected day. Nil
// pointers mean the source has no reading for that day.
type DaySummary struct {
	Weight       *float64
	ActiveEnergy *float64
	BasalEnergy  *float64
	EnergyUnits  string
	Workouts     []backend.WorkoutSummary
}

// SummarizeDay derives the selected-day health readings from a range
// response: the day's weight, active and basal energy, the energy units in
// use and the day's workouts sorted by start time.
func SummarizeDay(resp backend.HealthResponse, day backend.Date) DaySummary {
	summary := DaySummary{EnergyUnits: defaultEnergyUnits}
	dayStr := day.String()

	for _, alias := range weightAliases {
		if sample := sampleForDay(resp.Metrics[alias], dayStr); sample != nil {
			summary.Weight = sample.Qty
			break
		}
	}

	if sample := sampleForDay(resp.Metrics[metricActiveEnergy], dayStr); sample != nil {
		summary.ActiveEnergy = sample.Qty
		if sample.Units != "" {
			summary.EnergyUnits = sample.Units
		}
	}
	if sample := sampleForDay(resp.Metrics[metricBasalEnergy], dayStr); sample != nil {
		summary.BasalEnergy = sample.Qty
		if summary.ActiveEnergy == nil && sample.Units != "" {
			summary.EnergyUnits = sample.Units
		}
	}

	for _, w := range resp.Workouts {
		if w.Start == nil {
			continue
		}
		if backend.DateOf(*w.Start).String() != dayStr {
			continue
		}
		summary.Workouts = append(summary.Workouts, w)
	}
	sort.Slice(summary.Workouts, func(i, j int) bool {
		return summary.Workouts[i].Start.Before(*summary.Workouts[j].Start)
	})

	return summary
}

func sampleForDay(samples []backend.HealthSample, day string) *backend.HealthSample {
	for i := range samples {
		if samples[i].Date == day && samples[i].Qty != nil {
			return &samples[i]
		}
	}
	return nil
}
