package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparklineIdle(t *testing.T) {
	assert.Equal(t, "▁▁▁▁▁", Sparkline([]float64{0, 0, 0, 0, 0}, 5))
}

func TestSparklineSingleSample(t *testing.T) {
	runes := []rune(Sparkline([]float64{4096}, 5))
	assert.Len(t, runes, 5)
	// Short history pads left with idle; the lone sample is the max.
	assert.Equal(t, '▁', runes[0])
	assert.Equal(t, '█', runes[4])
}

func TestSparklineRampUp(t *testing.T) {
	rates := []float64{1024, 2048, 3072, 4096, 5120, 6144, 7168, 8192}
	runes := []rune(Sparkline(rates, 8))
	assert.Len(t, runes, 8)
	// The slowest sample still registers above idle; the fastest fills.
	assert.Equal(t, '▂', runes[0])
	assert.Equal(t, '█', runes[7])
}

func TestSparklineTrickleAboveIdle(t *testing.T) {
	// A near-stalled transfer next to a fast one must not flatten into
	// the idle block.
	runes := []rune(Sparkline([]float64{0, 1, 1 << 20}, 3))
	assert.Equal(t, '▁', runes[0])
	assert.Equal(t, '▂', runes[1])
	assert.Equal(t, '█', runes[2])
}

func TestSparklineSteadyRate(t *testing.T) {
	for _, r := range Sparkline([]float64{5120, 5120, 5120, 5120}, 4) {
		assert.Equal(t, '█', r)
	}
}

func TestSparklineZeroWidth(t *testing.T) {
	assert.Equal(t, "", Sparkline([]float64{1024, 2048, 3072}, 0))
}

func TestSparklineWindowKeepsNewest(t *testing.T) {
	rates := []float64{0, 0, 1024, 2048, 4096}
	runes := []rune(Sparkline(rates, 3))
	assert.Len(t, runes, 3)
	// Only the last three samples survive; the leading zeros scrolled off.
	for _, r := range runes {
		assert.NotEqual(t, '▁', r)
	}
}
