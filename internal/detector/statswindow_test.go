package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsWindow_Empty(t *testing.T) {
	w := NewStatsWindow(10)
	assert.Equal(t, 0, w.N())
	assert.Equal(t, 0.0, w.Mean())
	assert.Equal(t, 0.0, w.StdDev())
}

func TestStatsWindow_MeanAndStdDev(t *testing.T) {
	w := NewStatsWindow(10)
	for _, x := range []float64{1, 2, 3, 4, 5} {
		w.Add(x)
	}
	assert.Equal(t, 5, w.N())
	assert.InDelta(t, 3.0, w.Mean(), 1e-9)
	assert.InDelta(t, math.Sqrt(2.5), w.StdDev(), 1e-9)
}

func TestStatsWindow_SingleSampleStdDevZero(t *testing.T) {
	w := NewStatsWindow(10)
	w.Add(42)
	assert.Equal(t, 1, w.N())
	assert.Equal(t, 42.0, w.Mean())
	assert.Equal(t, 0.0, w.StdDev())
}

func TestStatsWindow_FIFOEviction(t *testing.T) {
	w := NewStatsWindow(3)
	for _, x := range []float64{1, 2, 3, 4} {
		w.Add(x)
	}
	// 1 evicted, window holds 2,3,4
	assert.Equal(t, 3, w.N())
	assert.InDelta(t, 3.0, w.Mean(), 1e-9)
	assert.InDelta(t, 1.0, w.StdDev(), 1e-9)

	for _, x := range []float64{5, 6, 7} {
		w.Add(x)
	}
	assert.Equal(t, 3, w.N())
	assert.InDelta(t, 6.0, w.Mean(), 1e-9)
}

func TestStatsWindow_BoundedN(t *testing.T) {
	w := NewStatsWindow(100)
	for i := 0; i < 1000; i++ {
		w.Add(float64(i))
	}
	assert.Equal(t, 100, w.N())
	// holds 900..999
	assert.InDelta(t, 949.5, w.Mean(), 1e-9)
}

func TestStatsWindow_IgnoresMalformedSamples(t *testing.T) {
	w := NewStatsWindow(10)
	w.Add(math.NaN())
	w.Add(math.Inf(1))
	w.Add(math.Inf(-1))
	assert.Equal(t, 0, w.N())

	w.Add(5)
	assert.Equal(t, 1, w.N())
	assert.Equal(t, 5.0, w.Mean())
}

func TestStatsWindow_ConstantSamples(t *testing.T) {
	w := NewStatsWindow(50)
	for i := 0; i < 20; i++ {
		w.Add(7.5)
	}
	assert.InDelta(t, 7.5, w.Mean(), 1e-9)
	assert.InDelta(t, 0.0, w.StdDev(), 1e-9)
}
