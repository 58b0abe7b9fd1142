// Copyright (c) 2026 Tessera. All rights reserved.

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHistogram_Empty(t *testing.T) {
	h := BuildHistogram(nil, 10, 0, 20)
	assert.Empty(t, h.Bins)
}

func TestBuildHistogram_SingleValue(t *testing.T) {
	h := BuildHistogram([]Range{{Lower: 5, Upper: 5}, {Lower: 5, Upper: 5}}, 10, 0, 20)
	assert.Equal(t, 5.0, h.Min)
	assert.Equal(t, 5.0, h.Max)
	require.Len(t, h.Bins, 1)
	assert.Equal(t, 2, h.Bins[0].Count)
}

func TestBuildHistogram_EvenSplit(t *testing.T) {
	ranges := []Range{
		{Lower: 0, Upper: 0},
		{Lower: 25, Upper: 25},
		{Lower: 50, Upper: 50},
		{Lower: 75, Upper: 75},
		{Lower: 100, Upper: 100},
	}
	h := BuildHistogram(ranges, 4, 0, 20)

	require.Len(t, h.Bins, 4)
	assert.Equal(t, 0.0, h.Bins[0].Lower)
	assert.Equal(t, 100.0, h.Bins[3].Upper)
	assert.Equal(t, []int{1, 1, 1, 2}, []int{
		h.Bins[0].Count, h.Bins[1].Count, h.Bins[2].Count, h.Bins[3].Count,
	})
}

// A span narrower than the requested bin count must snap the bin width to 1
// instead of producing sub-unit bins.
func TestBuildHistogram_WidthSnapsToOne(t *testing.T) {
	ranges := []Range{{Lower: 1000, Upper: 1000}, {Lower: 1003, Upper: 1003}}
	h := BuildHistogram(ranges, 10, 0, 20)

	require.Len(t, h.Bins, 3)
	for _, b := range h.Bins[:len(h.Bins)-1] {
		assert.Equal(t, 1.0, b.Upper-b.Lower)
	}
}

func TestBuildHistogram_BinCountCapped(t *testing.T) {
	ranges := []Range{{Lower: 0, Upper: 1000}}
	h := BuildHistogram(ranges, 50, 0, 20)
	assert.Len(t, h.Bins, 20)
}

// A range spanning several bins counts toward each of them.
func TestBuildHistogram_RangeOverlap(t *testing.T) {
	ranges := []Range{
		{Lower: 0, Upper: 100},
		{Lower: 0, Upper: 10},
	}
	h := BuildHistogram(ranges, 4, 0, 20)

	require.Len(t, h.Bins, 4)
	assert.Equal(t, 2, h.Bins[0].Count)
	assert.Equal(t, 1, h.Bins[3].Count)
}

func TestBuildHistogram_Precision(t *testing.T) {
	ranges := []Range{{Lower: 0, Upper: 10}}
	h := BuildHistogram(ranges, 3, 2, 20)

	require.Len(t, h.Bins, 3)
	assert.Equal(t, 3.33, h.Bins[0].Upper)
	assert.Equal(t, 6.67, h.Bins[1].Upper)
}