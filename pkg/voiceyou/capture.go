package voiceyou

import (
	"context"
	"sync"
	"time"
)

const elapsedTickInterval = time.Second

// captureResources are the hardware and goroutine handles owned by one
// recording. release is the only teardown path.
type captureResources struct {
	stream InputStream
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// release stops the tick and redraw goroutines, waits for them, then stops and
// closes the stream so the device can be reopened.
func (r *captureResources) release() error {
	r.cancel()
	r.wg.Wait()
	var err error
	if stopErr := r.stream.Stop(); stopErr != nil {
		err = stopErr
	}
	if closeErr := r.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// SessionSnapshot is a consistent read of the session for rendering.
type SessionSnapshot struct {
	State          SessionState
	ElapsedSeconds int
	BlobSize       int
}

func (s SessionSnapshot) HasBlob() bool {
	return s.State == StateStopped
}

type SessionOption func(*AudioCaptureSession)

func WithClock(clock Clock) SessionOption {
	return func(s *AudioCaptureSession) { s.clock = clock }
}

func WithVisualizer(v *AudioVisualizer) SessionOption {
	return func(s *AudioCaptureSession) { s.visualizer = v }
}

func WithFrameInterval(d time.Duration) SessionOption {
	return func(s *AudioCaptureSession) { s.frameInterval = d }
}

// AudioCaptureSession owns the microphone for one recording at a time and
// walks idle → recording → stopped → idle.
type AudioCaptureSession struct {
	mu            sync.Mutex
	audioConfig   *AudioConfig
	mic           Microphone
	clock         Clock
	analyser      *Analyser
	visualizer    *AudioVisualizer
	frameInterval time.Duration

	state     SessionState
	starting  bool
	elapsed   int
	chunks    [][]byte
	finalBlob *Blob
	res       *captureResources

	stateHandlers map[int]StateHandler
	nextID        int
	logger        *Logger
}

func NewAudioCaptureSession(audioConfig *AudioConfig, mic Microphone, opts ...SessionOption) *AudioCaptureSession {
	if audioConfig == nil {
		audioConfig = NewAudioConfig()
	}
	s := &AudioCaptureSession{
		audioConfig:   audioConfig,
		mic:           mic,
		clock:         SystemClock,
		analyser:      NewAnalyser(audioConfig.FFTSize),
		frameInterval: DefaultFrameInterval,
		state:         StateIdle,
		stateHandlers: make(map[int]StateHandler),
		logger:        GetGlobalLogger().WithComponent("AudioCaptureSession"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start acquires the microphone and begins recording. It is only valid from
// idle; a stopped session must be discarded or uploaded first.
func (s *AudioCaptureSession) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return NewDeviceError("start cancelled", err)
	}

	s.mu.Lock()
	if s.state != StateIdle || s.starting {
		state := s.state
		s.mu.Unlock()
		return NewInvalidStateError("start", state)
	}
	s.starting = true
	s.mu.Unlock()

	s.analyser.Reset()

	stream, err := s.mic.Open(s.audioConfig, s.onSamples)
	if err == nil {
		if startErr := stream.Start(); startErr != nil {
			if closeErr := stream.Close(); closeErr != nil {
				s.logger.WithError(closeErr).Warn("Error while closing input stream")
			}
			err = NewDeviceError("failed to start microphone", startErr)
		}
	}
	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		vErr := WrapError(err, ErrCodeDevice)
		s.logger.LogError(vErr)
		return vErr
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	res := &captureResources{stream: stream, cancel: cancel}

	s.mu.Lock()
	s.starting = false
	s.res = res
	s.chunks = nil
	s.elapsed = 0
	s.state = StateRecording

	ticker := s.clock.NewTicker(elapsedTickInterval)
	res.wg.Add(1)
	go s.runElapsedTicker(loopCtx, ticker, res)

	if s.visualizer != nil {
		frames := s.clock.NewTicker(s.frameInterval)
		res.wg.Add(1)
		go func() {
			defer res.wg.Done()
			defer frames.Stop()
			s.visualizer.Run(loopCtx, frames.C(), s.analyser.FrequencyData, func() bool {
				return s.isActive(res)
			})
		}()
	}
	s.mu.Unlock()

	s.logger.LogAudioEvent("recording_started", map[string]interface{}{
		"sample_rate": s.audioConfig.SampleRate,
		"channels":    s.audioConfig.Channels,
	})
	s.emitState(StateIdle, StateRecording)
	return nil
}

func (s *AudioCaptureSession) runElapsedTicker(ctx context.Context, ticker Ticker, res *captureResources) {
	defer res.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.mu.Lock()
			if s.res == res {
				s.elapsed++
			}
			s.mu.Unlock()
		}
	}
}

func (s *AudioCaptureSession) isActive(res *captureResources) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRecording && s.res == res
}

// onSamples runs on the audio thread.
func (s *AudioCaptureSession) onSamples(in []float32) {
	s.analyser.Write(in)
	chunk := Float32ToPCM16(in)

	s.mu.Lock()
	if s.state == StateRecording && s.res != nil {
		s.chunks = append(s.chunks, chunk)
	}
	s.mu.Unlock()
}

// Stop ends the recording, releases the device and produces the final blob.
// Calling it outside recording is a precondition violation.
func (s *AudioCaptureSession) Stop() error {
	s.mu.Lock()
	if s.state != StateRecording || s.res == nil {
		state := s.state
		s.mu.Unlock()
		return NewInvalidStateError("stop", state)
	}
	res := s.res
	s.res = nil
	s.mu.Unlock()

	releaseErr := res.release()
	if releaseErr != nil {
		s.logger.WithError(releaseErr).Warn("Error while releasing input stream")
	}

	s.mu.Lock()
	if s.state != StateRecording {
		// Closed while the stream was being released.
		state := s.state
		s.mu.Unlock()
		return NewInvalidStateError("stop", state)
	}
	chunks := s.chunks
	s.chunks = nil
	data, err := EncodeWAV(chunks, s.audioConfig.SampleRate, s.audioConfig.Channels)
	if err != nil {
		s.state = StateIdle
		s.elapsed = 0
		s.mu.Unlock()
		vErr := NewIOError("failed to package recording", err)
		s.logger.LogError(vErr)
		s.emitState(StateRecording, StateIdle)
		return vErr
	}
	s.finalBlob = &Blob{data: data, mimeType: WAVMimeType}
	s.state = StateStopped
	elapsed := s.elapsed
	s.mu.Unlock()

	s.logger.LogAudioEvent("recording_stopped", map[string]interface{}{
		"chunks":          len(chunks),
		"blob_bytes":      len(data),
		"elapsed_seconds": elapsed,
	})
	s.emitState(StateRecording, StateStopped)
	return nil
}

// Discard drops the finished recording and returns to idle.
func (s *AudioCaptureSession) Discard() error {
	return s.reset("discard", nil)
}

// CompleteUpload records a successful upload of blob. It only resets the
// session while blob is still the finished recording; a newer recording made
// during the upload is left alone.
func (s *AudioCaptureSession) CompleteUpload(blob *Blob) error {
	if blob == nil {
		return NewInvalidStateError("complete upload", s.State())
	}
	return s.reset("complete upload", blob)
}

// reset returns a stopped session to idle. A non-nil want must be the
// current final blob.
func (s *AudioCaptureSession) reset(op string, want *Blob) error {
	s.mu.Lock()
	if s.state != StateStopped {
		state := s.state
		s.mu.Unlock()
		return NewInvalidStateError(op, state)
	}
	if want != nil && s.finalBlob != want {
		s.mu.Unlock()
		return NewInvalidStateError(op, StateStopped).AddDetail("reason", "recording replaced")
	}
	s.finalBlob = nil
	s.elapsed = 0
	s.state = StateIdle
	s.mu.Unlock()

	s.emitState(StateStopped, StateIdle)
	return nil
}

// RequestPlayback returns a new independent playable handle.
func (s *AudioCaptureSession) RequestPlayback() (*PlaybackHandle, error) {
	blob, err := s.stoppedBlob("playback")
	if err != nil {
		return nil, err
	}
	return newPlaybackHandle(blob), nil
}

// RequestDownload saves the finished recording as dir/suggestedName and
// returns the written path.
func (s *AudioCaptureSession) RequestDownload(dir, suggestedName string) (string, error) {
	blob, err := s.stoppedBlob("download")
	if err != nil {
		return "", err
	}
	return SaveBlob(dir, suggestedName, blob)
}

func (s *AudioCaptureSession) stoppedBlob(op string) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return nil, NewInvalidStateError(op, s.state)
	}
	return s.finalBlob, nil
}

// Close tears the session down from any state.
func (s *AudioCaptureSession) Close() error {
	s.mu.Lock()
	prev := s.state
	res := s.res
	s.res = nil
	s.chunks = nil
	s.finalBlob = nil
	s.elapsed = 0
	s.state = StateIdle
	s.mu.Unlock()

	var err error
	if res != nil {
		err = res.release()
	}
	if prev != StateIdle {
		s.emitState(prev, StateIdle)
	}
	return err
}

func (s *AudioCaptureSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *AudioCaptureSession) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// FinalBlob is nil unless the session is stopped.
func (s *AudioCaptureSession) FinalBlob() *Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalBlob
}

func (s *AudioCaptureSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := SessionSnapshot{State: s.state, ElapsedSeconds: s.elapsed}
	if s.finalBlob != nil {
		snap.BlobSize = s.finalBlob.Size()
	}
	return snap
}

func (s *AudioCaptureSession) Visualizer() *AudioVisualizer {
	return s.visualizer
}

// AddStateHandler registers h for every transition and returns its remover.
func (s *AudioCaptureSession) AddStateHandler(h StateHandler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.stateHandlers[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.stateHandlers, id)
		s.mu.Unlock()
	}
}

func (s *AudioCaptureSession) emitState(from, to SessionState) {
	s.logger.LogStateChange(from, to)
	s.mu.Lock()
	handlers := make([]StateHandler, 0, len(s.stateHandlers))
	for _, h := range s.stateHandlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(to)
	}
}
