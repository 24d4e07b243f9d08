package stats

import (
	"bytes"
	"math"
	"sort"
	"strconv"
)

// SummaryOptions controls summary rounding.
type SummaryOptions struct {
	// Decimals is the number of decimals every value is rounded to.
	Decimals int
}

// Summary describes one bucket. Values are already rounded.
type Summary struct {
	Min    float64
	Max    float64
	P10    float64
	P70    float64
	P80    float64
	P90    float64
	P99    float64
	Median float64
	Mean   float64

	// Decimals is used when marshalling.
	Decimals int
	// Count is the number of samples, not marshalled.
	Count int
}

// Summarize computes a Summary over values. The input is not modified.
func Summarize(values []float64, opts SummaryOptions) Summary {
	if len(values) == 0 {
		return Summary{Decimals: opts.Decimals}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	d := opts.Decimals
	return Summary{
		Min:      round(sorted[0], d),
		Max:      round(sorted[len(sorted)-1], d),
		P10:      round(percentileSorted(sorted, 10), d),
		P70:      round(percentileSorted(sorted, 70), d),
		P80:      round(percentileSorted(sorted, 80), d),
		P90:      round(percentileSorted(sorted, 90), d),
		P99:      round(percentileSorted(sorted, 99), d),
		Median:   round(medianSorted(sorted), d),
		Mean:     round(mean(sorted), d),
		Decimals: d,
		Count:    len(sorted),
	}
}

// Percentile returns the nearest-rank percentile p (0..100) of values.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

// percentileSorted uses rank = ceil(p/100 * n), clamped to 1..n.
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// MarshalJSON writes every value with exactly Decimals decimals, e.g.
// {"min":1.0,...} for one decimal.
func (s Summary) MarshalJSON() ([]byte, error) {
	fields := []struct {
		name  string
		value float64
	}{
		{"min", s.Min},
		{"max", s.Max},
		{"p10", s.P10},
		{"p70", s.P70},
		{"p80", s.P80},
		{"p90", s.P90},
		{"p99", s.P99},
		{"median", s.Median},
		{"mean", s.Mean},
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(f.name))
		buf.WriteByte(':')
		buf.WriteString(s.format(f.value))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// format renders v with the summary's decimals.
func (s Summary) format(v float64) string {
	d := s.Decimals
	if d < 0 {
		d = 0
	}
	return strconv.FormatFloat(v, 'f', d, 64)
}
