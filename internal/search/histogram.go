// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"math"

	"github.com/tessera-dev/tessera/pkg/slice"
)

// Range is one resource's continuous-facet value span.
type Range struct {
	Lower float64
	Upper float64
}

// Bin is one histogram bucket. The interval is half-open except for the last
// bin, which includes its upper edge.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram is the binned distribution of a continuous facet over the match
// set.
type Histogram struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Bins []Bin   `json:"bins,omitempty"`
}

/*
BuildHistogram bins resource value ranges adaptively.

The bin count is capped by maxBins; when the observed value range is smaller
than the requested bin count, the bin width snaps to 1 so bins never
degenerate to zero width. Bin edges are rounded to the given number of
decimal places. A range counts toward every bin it overlaps.
*/
func BuildHistogram(ranges []Range, bins, precision, maxBins int) Histogram {
	if len(ranges) == 0 {
		return Histogram{}
	}

	bounds := slice.Reduce(ranges[1:], ranges[0], func(acc Range, r Range) Range {
		return Range{Lower: math.Min(acc.Lower, r.Lower), Upper: math.Max(acc.Upper, r.Upper)}
	})
	lo, hi := bounds.Lower, bounds.Upper
	h := Histogram{Min: lo, Max: hi}

	if bins <= 0 || bins > maxBins {
		bins = maxBins
	}
	if bins <= 0 {
		return h
	}

	span := hi - lo
	if span == 0 {
		h.Bins = []Bin{{Lower: round(lo, precision), Upper: round(hi, precision), Count: len(ranges)}}
		return h
	}

	width := span / float64(bins)
	if span < float64(bins) {
		// A span narrower than the bin count would produce sub-unit bins;
		// snap the width to 1 instead.
		width = 1
		bins = int(math.Ceil(span))
	}

	h.Bins = make([]Bin, bins)
	for i := range h.Bins {
		binLo := lo + float64(i)*width
		binHi := binLo + width
		if i == bins-1 {
			binHi = hi
		}
		h.Bins[i] = Bin{Lower: round(binLo, precision), Upper: round(binHi, precision)}

		for _, r := range ranges {
			if overlaps(r, binLo, binHi, i == bins-1) {
				h.Bins[i].Count++
			}
		}
	}
	return h
}

// overlaps reports whether a range intersects the [lo, hi) interval, or
// [lo, hi] for the last bin.
func overlaps(r Range, lo, hi float64, closed bool) bool {
	if closed {
		return r.Upper >= lo && r.Lower <= hi
	}
	return r.Upper >= lo && r.Lower < hi
}

// round rounds a value to the given number of decimal places.
func round(v float64, precision int) float64 {
	if precision <= 0 {
		return math.Round(v)
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}
