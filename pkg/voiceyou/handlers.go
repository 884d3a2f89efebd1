package voiceyou

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Factory functions for common handlers
func CreateErrorLoggingHandler(prefix string) ErrorHandler {
	logger := GetGlobalLogger().WithComponent(prefix)
	return func(err *VoiceError) {
		if err != nil {
			logger.LogError(err)
		}
	}
}

func CreateStateLoggingHandler(callback func(SessionState)) StateHandler {
	logger := GetGlobalLogger().WithComponent("Session")
	return func(state SessionState) {
		logger.WithField("state", string(state)).Info("Recording state changed")
		if callback != nil {
			callback(state)
		}
	}
}

// CreateNoticeWriter prints every non-empty notice as one line.
func CreateNoticeWriter(w io.Writer) NoticeHandler {
	var mu sync.Mutex
	return func(n Notice) {
		if n.IsZero() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%s] %s\n", n.Severity, n.Text)
	}
}

// frameLevels returns the mean and peak bin of a frame scaled to 0..1.
func frameLevels(frame VisualizationFrame) (avg, peak float32) {
	if len(frame.FrequencyBins) == 0 {
		return 0, 0
	}
	var sum int
	var max uint8
	for _, b := range frame.FrequencyBins {
		sum += int(b)
		if b > max {
			max = b
		}
	}
	return float32(sum) / float32(len(frame.FrequencyBins)) / 255, float32(max) / 255
}

func CreateLevelMonitor(callback func(avg, peak float32)) FrameHandler {
	return func(frame VisualizationFrame) {
		if len(frame.FrequencyBins) == 0 {
			return
		}
		avg, peak := frameLevels(frame)
		callback(avg, peak)
	}
}

// CreateSilenceDetector calls callback once each time the frame peak stays
// below threshold for silenceDuration.
func CreateSilenceDetector(threshold float32, silenceDuration time.Duration, clock Clock, callback func()) FrameHandler {
	if clock == nil {
		clock = SystemClock
	}
	var mu sync.Mutex
	var silenceStart time.Time

	return func(frame VisualizationFrame) {
		mu.Lock()
		defer mu.Unlock()

		_, peak := frameLevels(frame)
		now := clock.Now()
		if peak >= threshold {
			silenceStart = time.Time{}
			return
		}
		if silenceStart.IsZero() {
			silenceStart = now
		} else if now.Sub(silenceStart) >= silenceDuration {
			callback()
			silenceStart = time.Time{}
		}
	}
}

var sparkRunes = []rune(" ▁▂▃▄▅▆▇█")

// Sparkline folds a frame into width columns of block characters.
func Sparkline(frame VisualizationFrame, width int) string {
	bins := frame.FrequencyBins
	if width <= 0 || len(bins) == 0 {
		return ""
	}
	if width > len(bins) {
		width = len(bins)
	}
	var sb strings.Builder
	per := len(bins) / width
	for col := 0; col < width; col++ {
		start := col * per
		end := start + per
		if col == width-1 {
			end = len(bins)
		}
		var max uint8
		for _, b := range bins[start:end] {
			if b > max {
				max = b
			}
		}
		sb.WriteRune(sparkRunes[int(max)*(len(sparkRunes)-1)/255])
	}
	return sb.String()
}

// CreateTerminalWaveformHandler redraws a sparkline in place, at most once
// per interval.
func CreateTerminalWaveformHandler(w io.Writer, width int, interval time.Duration, elapsed func() string) FrameHandler {
	var mu sync.Mutex
	var last time.Time
	return func(frame VisualizationFrame) {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if now.Sub(last) < interval {
			return
		}
		last = now
		label := ""
		if elapsed != nil {
			label = elapsed() + " "
		}
		fmt.Fprintf(w, "\r%s%s", label, Sparkline(frame, width))
	}
}

// Composability functions
func ChainFrameHandlers(handlers ...FrameHandler) FrameHandler {
	return func(frame VisualizationFrame) {
		for _, h := range handlers {
			if h != nil {
				h(frame)
			}
		}
	}
}

func SequentialErrorHandlers(handlers ...ErrorHandler) ErrorHandler {
	return func(err *VoiceError) {
		for _, h := range handlers {
			if h != nil {
				h(err)
			}
		}
	}
}
