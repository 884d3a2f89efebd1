package voiceyou

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

const (
	DefaultFFTSize     = 256
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	blackmanAlpha      = 0.16
)

// Analyser turns the most recent FFTSize time-domain samples into byte
// frequency data with the same scaling browsers use for visualizers.
type Analyser struct {
	mu          sync.Mutex
	fftSize     int
	history     []float64
	pos         int
	window      []float64
	smoothed    []float64
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
}

func NewAnalyser(fftSize int) *Analyser {
	if fftSize <= 0 {
		fftSize = DefaultFFTSize
	}
	a := &Analyser{
		fftSize:     fftSize,
		history:     make([]float64, fftSize),
		window:      blackmanWindow(fftSize),
		smoothed:    make([]float64, fftSize/2),
		Smoothing:   DefaultSmoothing,
		MinDecibels: DefaultMinDecibels,
		MaxDecibels: DefaultMaxDecibels,
	}
	return a
}

func blackmanWindow(n int) []float64 {
	a0 := (1 - blackmanAlpha) / 2
	a1 := 0.5
	a2 := blackmanAlpha / 2
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

// FrequencyBinCount is half the transform size.
func (a *Analyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

// Write appends live samples to the rolling analysis window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.history[a.pos] = float64(s)
		a.pos = (a.pos + 1) % a.fftSize
	}
}

// FrequencyData computes a new frame from the current window.
func (a *Analyser) FrequencyData() VisualizationFrame {
	a.mu.Lock()
	defer a.mu.Unlock()

	frame := make([]float64, a.fftSize)
	for i := 0; i < a.fftSize; i++ {
		frame[i] = a.history[(a.pos+i)%a.fftSize] * a.window[i]
	}

	spectrum := fft.FFTReal(frame)

	bins := make([]uint8, a.fftSize/2)
	rangeDB := a.MaxDecibels - a.MinDecibels
	for k := range bins {
		magnitude := cmplx.Abs(spectrum[k]) / float64(a.fftSize)
		a.smoothed[k] = a.Smoothing*a.smoothed[k] + (1-a.Smoothing)*magnitude
		if a.smoothed[k] <= 0 {
			continue
		}
		db := 20 * math.Log10(a.smoothed[k])
		scaled := 255 * (db - a.MinDecibels) / rangeDB
		switch {
		case scaled <= 0:
			bins[k] = 0
		case scaled >= 255:
			bins[k] = 255
		default:
			bins[k] = uint8(scaled)
		}
	}

	return VisualizationFrame{FrequencyBins: bins}
}

// Reset clears the window and smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.history {
		a.history[i] = 0
	}
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.pos = 0
}
