// Package report summarizes a generated dataset: funnel fractions,
// distributions of the modeled quantities and the generation metrics.
package report

import (
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Summary describes a recorded distribution
type Summary struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Distribution records values in fixed point with `scale` units per 1.0,
// so 2 decimal places are kept at scale 100
type Distribution struct {
	hist  *hdrhistogram.Histogram
	scale float64
	max   int64
}

// NewDistribution creates a distribution tracking values in [0, maxValue]
func NewDistribution(maxValue float64, scale float64) *Distribution {
	highest := int64(math.Ceil(maxValue * scale))
	if highest < 2 {
		highest = 2
	}
	return &Distribution{
		hist:  hdrhistogram.New(1, highest, 3),
		scale: scale,
		max:   highest,
	}
}

// Record adds v, clamped to the tracked range
func (d *Distribution) Record(v float64) {
	n := int64(math.Round(v * d.scale))
	if n < 0 {
		n = 0
	}
	if n > d.max {
		n = d.max
	}
	_ = d.hist.RecordValue(n) // in range
}

// Summary returns the distribution summary; an empty distribution is all zeros
func (d *Distribution) Summary() Summary {
	if d.hist.TotalCount() == 0 {
		return Summary{}
	}
	return Summary{
		Count: d.hist.TotalCount(),
		Min:   d.unscale(d.hist.Min()),
		Max:   d.unscale(d.hist.Max()),
		Mean:  round(d.hist.Mean()/d.scale, 4),
		P50:   d.unscale(d.hist.ValueAtQuantile(50)),
		P95:   d.unscale(d.hist.ValueAtQuantile(95)),
		P99:   d.unscale(d.hist.ValueAtQuantile(99)),
	}
}

func (d *Distribution) unscale(v int64) float64 {
	return round(float64(v)/d.scale, 4)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
