// Package returns derives daily return series from NAV series and provides
// the alignment and windowing helpers the analytics engines share.
package returns

import (
	"errors"
	"time"

	"github.com/portlight/portlight/internal/domain"
)

// Minimum overlapping points required before benchmark-relative metrics
// are computed.
const (
	MinPerformancePoints = 30
	MinRiskPoints        = 60
)

// ErrInsufficientOverlap is returned by Align when the two series share fewer
// dated points than the requested minimum.
var ErrInsufficientOverlap = errors.New("insufficient overlapping observations")

// ErrInsufficientData is returned when a series is too short for the
// requested calculation.
var ErrInsufficientData = errors.New("insufficient data points")

// Series is a dated daily return series, ascending by date.
type Series []domain.ReturnPoint

// Values extracts the raw return values in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Dates extracts the observation dates in order.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// FromNAVSeries converts a NAV series into daily simple returns. A series of
// N NAV points yields at most N-1 returns. Points where the previous NAV is
// zero or negative are dropped rather than producing an undefined return.
func FromNAVSeries(dates []time.Time, navs []float64) Series {
	if len(dates) != len(navs) || len(navs) < 2 {
		return nil
	}
	series := make(Series, 0, len(navs)-1)
	for i := 1; i < len(navs); i++ {
		prev := navs[i-1]
		if prev <= 0 {
			continue
		}
		series = append(series, domain.ReturnPoint{
			Date:  dates[i],
			Value: navs[i]/prev - 1,
		})
	}
	return series
}

// Align intersects two return series on date, keeping only dates present in
// both. It returns ErrInsufficientOverlap when fewer than minOverlap dates
// survive the intersection.
func Align(a, b Series, minOverlap int) (Series, Series, error) {
	byDate := make(map[time.Time]float64, len(b))
	for _, p := range b {
		byDate[p.Date] = p.Value
	}

	alignedA := make(Series, 0, len(a))
	alignedB := make(Series, 0, len(a))
	for _, p := range a {
		if v, ok := byDate[p.Date]; ok {
			alignedA = append(alignedA, p)
			alignedB = append(alignedB, domain.ReturnPoint{Date: p.Date, Value: v})
		}
	}

	if len(alignedA) < minOverlap {
		return nil, nil, ErrInsufficientOverlap
	}
	return alignedA, alignedB, nil
}

// Rolling applies fn to each trailing window of the given size and returns
// one dated point per complete window, dated at the window's last observation.
func Rolling(s Series, window int, fn func(window []float64) float64) Series {
	if window <= 0 || len(s) < window {
		return nil
	}
	values := s.Values()
	out := make(Series, 0, len(s)-window+1)
	for i := window; i <= len(values); i++ {
		out = append(out, domain.ReturnPoint{
			Date:  s[i-1].Date,
			Value: fn(values[i-window : i]),
		})
	}
	return out
}

// Cumulative returns the running compound growth of the series, one point per
// observation: (1+r1)(1+r2)...(1+ri) - 1.
func Cumulative(s Series) Series {
	out := make(Series, 0, len(s))
	growth := 1.0
	for _, p := range s {
		growth *= 1 + p.Value
		out = append(out, domain.ReturnPoint{Date: p.Date, Value: growth - 1})
	}
	return out
}

// Excess subtracts b from a pointwise. The two series must already be
// aligned; it returns nil on length mismatch.
func Excess(a, b Series) Series {
	if len(a) != len(b) {
		return nil
	}
	out := make(Series, len(a))
	for i := range a {
		out[i] = domain.ReturnPoint{Date: a[i].Date, Value: a[i].Value - b[i].Value}
	}
	return out
}
