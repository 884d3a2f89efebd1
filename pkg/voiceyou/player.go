package voiceyou

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Player renders decoded audio to an output device, blocking until the
// track ends or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio *DecodedAudio) error
}

// PortAudioPlayer plays through the default output device.
type PortAudioPlayer struct {
	bufferSize int
	logger     *Logger
}

func NewPortAudioPlayer(bufferSize int) *PortAudioPlayer {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &PortAudioPlayer{
		bufferSize: bufferSize,
		logger:     GetGlobalLogger().WithComponent("Player"),
	}
}

func (p *PortAudioPlayer) Play(ctx context.Context, audio *DecodedAudio) error {
	if audio == nil || len(audio.Samples) == 0 {
		return NewPlaybackError("nothing to play", nil)
	}

	if err := portaudio.Initialize(); err != nil {
		return NewPlaybackError("failed to initialize audio", err)
	}
	defer portaudio.Terminate()

	done := make(chan struct{})
	var once sync.Once
	sampleIndex := 0
	samples := audio.Samples

	stream, err := portaudio.OpenDefaultStream(0, audio.Channels, float64(audio.SampleRate), p.bufferSize, func(out []float32) {
		for i := range out {
			if sampleIndex < len(samples) {
				out[i] = samples[sampleIndex]
				sampleIndex++
			} else {
				out[i] = 0
			}
		}
		if sampleIndex >= len(samples) {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return NewPlaybackError("failed to open playback stream", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return NewPlaybackError("failed to start playback stream", err)
	}

	p.logger.WithField("samples", len(samples)).Debug("Playback started")

	// Output latency can swallow the tail; allow some slack past the track length.
	timeout := time.Duration(audio.Duration()*1.5*float64(time.Second)) + time.Second
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(timeout):
		p.logger.Warn("Playback timeout")
	}

	if err := stream.Stop(); err != nil {
		return NewPlaybackError("failed to stop playback stream", err)
	}
	return ctx.Err()
}

// PlaybackHandle is a transient playable view over a finished recording.
// Each handle owns its reader; handles never share position.
type PlaybackHandle struct {
	blob   *Blob
	reader io.ReadSeeker
}

func newPlaybackHandle(blob *Blob) *PlaybackHandle {
	return &PlaybackHandle{blob: blob, reader: blob.Reader()}
}

func (h *PlaybackHandle) Reader() io.ReadSeeker {
	return h.reader
}

func (h *PlaybackHandle) MIMEType() string {
	return h.blob.MIMEType()
}

// Play decodes the handle's audio and hands it to player.
func (h *PlaybackHandle) Play(ctx context.Context, player Player) error {
	if _, err := h.reader.Seek(0, io.SeekStart); err != nil {
		return NewPlaybackError("failed to rewind recording", err)
	}
	decoded, err := DecodeWAV(h.reader)
	if err != nil {
		return NewPlaybackError("failed to decode recording", err)
	}
	return player.Play(ctx, decoded)
}
