package voiceyou

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argmax(bins []uint8) int {
	best := 0
	for i, b := range bins {
		if b > bins[best] {
			best = i
		}
	}
	return best
}

func TestAnalyserSilenceIsZero(t *testing.T) {
	a := NewAnalyser(256)
	a.Write(make([]float32, 256))

	frame := a.FrequencyData()
	require.Len(t, frame.FrequencyBins, 128)
	for i, b := range frame.FrequencyBins {
		assert.Equal(t, uint8(0), b, "bin %d", i)
	}
}

func TestAnalyserPeakLandsInToneBin(t *testing.T) {
	a := NewAnalyser(256)
	a.Smoothing = 0
	a.Write(sine(256, 16, 0.01))

	bins := a.FrequencyData().FrequencyBins
	require.Len(t, bins, a.FrequencyBinCount())
	assert.Equal(t, 16, argmax(bins))
	assert.Greater(t, bins[16], bins[15])
	assert.Greater(t, bins[16], bins[17])
	assert.Less(t, bins[16], uint8(255))
	assert.Equal(t, uint8(0), bins[60])
}

func TestAnalyserSmoothingRisesTowardsSteadyState(t *testing.T) {
	a := NewAnalyser(256)
	a.Write(sine(256, 16, 0.01))

	first := a.FrequencyData().FrequencyBins[16]
	second := a.FrequencyData().FrequencyBins[16]
	assert.Greater(t, second, first)
}

func TestAnalyserReset(t *testing.T) {
	a := NewAnalyser(256)
	a.Smoothing = 0
	a.Write(sine(256, 16, 0.5))
	require.NotZero(t, a.FrequencyData().FrequencyBins[16])

	a.Reset()
	assert.Equal(t, uint8(0), a.FrequencyData().FrequencyBins[16])
}

func TestAnalyserDefaultSize(t *testing.T) {
	a := NewAnalyser(0)
	assert.Equal(t, 128, a.FrequencyBinCount())
}
