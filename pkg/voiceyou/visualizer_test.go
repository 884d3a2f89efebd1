package voiceyou

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaveformPointsLayout(t *testing.T) {
	points := WaveformPoints(VisualizationFrame{FrequencyBins: []uint8{0, 128, 64}}, 300, 150)

	require.Len(t, points, 4)
	assert.Equal(t, Point{X: 0, Y: 0}, points[0])
	assert.Equal(t, Point{X: 100, Y: 75}, points[1])
	assert.Equal(t, Point{X: 200, Y: 37.5}, points[2])
	assert.Equal(t, Point{X: 300, Y: 75}, points[3])
}

func TestWaveformPointsNeverRescale(t *testing.T) {
	quiet := WaveformPoints(VisualizationFrame{FrequencyBins: []uint8{64, 64}}, 500, 150)
	loud := WaveformPoints(VisualizationFrame{FrequencyBins: []uint8{64, 255}}, 500, 150)

	assert.Equal(t, quiet[0].Y, loud[0].Y)
	assert.Greater(t, loud[1].Y, quiet[1].Y)
	for _, p := range loud {
		assert.GreaterOrEqual(t, p.Y, 0.0)
		assert.LessOrEqual(t, p.Y, 150.0)
	}
}

func TestWaveformPointsClipToHeight(t *testing.T) {
	// A short canvas still keeps the loudest bin on the surface.
	points := WaveformPoints(VisualizationFrame{FrequencyBins: []uint8{255}}, 10, 1)
	assert.LessOrEqual(t, points[0].Y, 1.0)
}

func TestWaveformPointsEmptyFrame(t *testing.T) {
	assert.Nil(t, WaveformPoints(VisualizationFrame{}, 500, 150))
}

func TestRenderDrawsOnFixedCanvas(t *testing.T) {
	v := NewAudioVisualizer(500, 150)
	w, h := v.Size()
	assert.Equal(t, 500, w)
	assert.Equal(t, 150, h)

	v.Render(VisualizationFrame{FrequencyBins: make([]uint8, 128)})
	img := v.Image()

	r, g, b, _ := img.At(250, 140).RGBA()
	assert.Equal(t, uint32(200), r>>8)
	assert.Equal(t, uint32(200), g>>8)
	assert.Equal(t, uint32(200), b>>8)

	r, g, _, _ = img.At(250, 0).RGBA()
	assert.Greater(t, r>>8, uint32(150))
	assert.Less(t, g>>8, uint32(100))
	assert.Equal(t, int64(1), v.FramesRendered())
}

func TestRunStopsWhenRecordingEnds(t *testing.T) {
	v := NewAudioVisualizer(100, 50)
	var recording atomic.Bool
	recording.Store(true)

	var rendered atomic.Int32
	v.AddFrameHandler(func(VisualizationFrame) {
		rendered.Add(1)
		recording.Store(false)
	})

	ticks := make(chan time.Time, 3)
	for i := 0; i < 3; i++ {
		ticks <- time.Now()
	}

	done := make(chan struct{})
	go func() {
		v.Run(context.Background(), ticks, func() VisualizationFrame {
			return VisualizationFrame{FrequencyBins: []uint8{1, 2, 3}}
		}, recording.Load)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("redraw loop kept running after recording ended")
	}
	assert.Equal(t, int32(1), rendered.Load())
	assert.Equal(t, int64(1), v.FramesRendered())
}

func TestRunStopsOnCancel(t *testing.T) {
	v := NewAudioVisualizer(100, 50)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		v.Run(ctx, make(chan time.Time), func() VisualizationFrame { return VisualizationFrame{} }, func() bool { return true })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("redraw loop ignored cancellation")
	}
	assert.Equal(t, int64(0), v.FramesRendered())
}

func TestFrameHandlerRemoval(t *testing.T) {
	v := NewAudioVisualizer(100, 50)
	calls := 0
	remove := v.AddFrameHandler(func(VisualizationFrame) { calls++ })

	v.Render(VisualizationFrame{FrequencyBins: []uint8{10}})
	remove()
	v.Render(VisualizationFrame{FrequencyBins: []uint8{10}})

	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(2), v.FramesRendered())
}

func TestSavePNG(t *testing.T) {
	v := NewAudioVisualizer(100, 50)
	v.Render(VisualizationFrame{FrequencyBins: []uint8{10, 200, 30}})

	path := filepath.Join(t.TempDir(), "wave.png")
	require.NoError(t, v.SavePNG(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
