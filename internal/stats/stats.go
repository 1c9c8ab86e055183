// Package stats computes trend summaries over glucose readings. All
// functions are pure; callers supply the samples.
package stats

import (
	"math"
	"time"
)

// Standard glycemic range bounds in mg/dL.
const (
	RangeLow  = 70.0
	RangeHigh = 180.0
)

// Trend labels for the direction of a window's readings.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
)

// trendThreshold is the mg/dL mean shift between window halves below which
// the trend counts as stable.
const trendThreshold = 5.0

// Sample is a single glucose reading.
type Sample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Summary aggregates a window of glucose readings.
type Summary struct {
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	StdDev       float64 `json:"std_dev"`
	InRangePct   float64 `json:"in_range_pct"`
	BelowPct     float64 `json:"below_range_pct"`
	AbovePct     float64 `json:"above_range_pct"`
	EstimatedA1c float64 `json:"estimated_a1c"`
	Trend        string  `json:"trend"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Summarize computes a Summary over samples, which must be ordered oldest
// first for the trend direction to be meaningful. An empty window yields a
// zero Summary with a stable trend.
func Summarize(samples []Sample) Summary {
	if len(samples) == 0 {
		return Summary{Trend: TrendStable}
	}

	sum := 0.0
	min := samples[0].Value
	max := samples[0].Value
	inRange, below, above := 0, 0, 0

	for _, s := range samples {
		sum += s.Value
		if s.Value < min {
			min = s.Value
		}
		if s.Value > max {
			max = s.Value
		}
		switch {
		case s.Value < RangeLow:
			below++
		case s.Value > RangeHigh:
			above++
		default:
			inRange++
		}
	}

	n := float64(len(samples))
	mean := sum / n

	variance := 0.0
	for _, s := range samples {
		d := s.Value - mean
		variance += d * d
	}
	variance /= n

	return Summary{
		Count:        len(samples),
		Mean:         round1(mean),
		Min:          min,
		Max:          max,
		StdDev:       round1(math.Sqrt(variance)),
		InRangePct:   round1(float64(inRange) / n * 100),
		BelowPct:     round1(float64(below) / n * 100),
		AbovePct:     round1(float64(above) / n * 100),
		EstimatedA1c: estimateA1c(mean),
		Trend:        trend(samples),
	}
}

// estimateA1c converts mean glucose to an estimated HbA1c percentage using
// the ADAG regression: eA1c = (mean + 46.7) / 28.7.
func estimateA1c(mean float64) float64 {
	return round1((mean + 46.7) / 28.7)
}

// trend compares the mean of the older half against the newer half.
func trend(samples []Sample) string {
	if len(samples) < 4 {
		return TrendStable
	}

	mid := len(samples) / 2
	older := meanOf(samples[:mid])
	newer := meanOf(samples[mid:])

	switch {
	case newer-older > trendThreshold:
		return TrendRising
	case older-newer > trendThreshold:
		return TrendFalling
	default:
		return TrendStable
	}
}

func meanOf(samples []Sample) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples))
}
