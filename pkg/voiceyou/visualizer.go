package voiceyou

import (
	"context"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/fogleman/gg"
)

// ReferenceLevel is the bin magnitude drawn at half the canvas height.
// It is fixed: traces grow with loudness and clip, they are never rescaled.
const ReferenceLevel = 128.0

const DefaultFrameInterval = time.Second / 60

// Point is a vertex of the rendered polyline in canvas coordinates.
type Point struct {
	X, Y float64
}

// WaveformPoints lays out frame bins across a width×height surface.
func WaveformPoints(frame VisualizationFrame, width, height float64) []Point {
	n := len(frame.FrequencyBins)
	if n == 0 {
		return nil
	}
	sliceWidth := width / float64(n)
	points := make([]Point, 0, n+1)
	x := 0.0
	for _, bin := range frame.FrequencyBins {
		y := float64(bin) / ReferenceLevel * height / 2
		if y > height {
			y = height
		}
		points = append(points, Point{X: x, Y: y})
		x += sliceWidth
	}
	return append(points, Point{X: width, Y: height / 2})
}

// AudioVisualizer draws frequency frames onto a fixed-size canvas.
type AudioVisualizer struct {
	mu       sync.Mutex
	dc       *gg.Context
	width    int
	height   int
	frames   int64
	handlers map[int]FrameHandler
	nextID   int
	logger   *Logger
}

func NewAudioVisualizer(width, height int) *AudioVisualizer {
	v := &AudioVisualizer{
		dc:       gg.NewContext(width, height),
		width:    width,
		height:   height,
		handlers: make(map[int]FrameHandler),
		logger:   GetGlobalLogger().WithComponent("AudioVisualizer"),
	}
	v.clear()
	return v
}

func (v *AudioVisualizer) clear() {
	v.dc.SetRGB255(200, 200, 200)
	v.dc.Clear()
}

// Render replaces the canvas contents with frame.
func (v *AudioVisualizer) Render(frame VisualizationFrame) {
	v.mu.Lock()
	v.clear()
	points := WaveformPoints(frame, float64(v.width), float64(v.height))
	if len(points) > 0 {
		v.dc.SetRGB255(200, 0, 0)
		v.dc.SetLineWidth(2)
		v.dc.MoveTo(points[0].X, points[0].Y)
		for _, p := range points[1:] {
			v.dc.LineTo(p.X, p.Y)
		}
		v.dc.Stroke()
	}
	v.frames++
	handlers := make([]FrameHandler, 0, len(v.handlers))
	for _, h := range v.handlers {
		handlers = append(handlers, h)
	}
	v.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}

// Run redraws on every tick while recording reports true. The check runs on
// every iteration, so the loop ends by itself once the session stops.
func (v *AudioVisualizer) Run(ctx context.Context, ticks <-chan time.Time, source func() VisualizationFrame, recording func() bool) {
	v.logger.Debug("Redraw loop started")
	defer v.logger.Debug("Redraw loop stopped")
	for recording() {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if !recording() {
				return
			}
			v.Render(source())
		}
	}
}

// AddFrameHandler registers h for every rendered frame and returns its remover.
func (v *AudioVisualizer) AddFrameHandler(h FrameHandler) func() {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.handlers[id] = h
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.handlers, id)
		v.mu.Unlock()
	}
}

func (v *AudioVisualizer) FramesRendered() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frames
}

func (v *AudioVisualizer) Size() (int, int) {
	return v.width, v.height
}

// Image returns a copy of the canvas.
func (v *AudioVisualizer) Image() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()
	src := v.dc.Image()
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

func (v *AudioVisualizer) SavePNG(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.dc.SavePNG(path); err != nil {
		return NewIOError("failed to save waveform snapshot", err)
	}
	return nil
}
