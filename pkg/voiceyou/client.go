package voiceyou

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type clientDeps struct {
	mic           Microphone
	player        Player
	clock         Clock
	frameInterval time.Duration
}

type ClientOption func(*clientDeps)

func WithMicrophone(mic Microphone) ClientOption {
	return func(d *clientDeps) { d.mic = mic }
}

func WithPlayer(p Player) ClientOption {
	return func(d *clientDeps) { d.player = p }
}

func WithClientClock(c Clock) ClientOption {
	return func(d *clientDeps) { d.clock = c }
}

func WithRedrawInterval(interval time.Duration) ClientOption {
	return func(d *clientDeps) { d.frameInterval = interval }
}

// Client composes capture, visualization, upload and the catalog behind the
// controls a recorder screen exposes, and keeps the inline notice.
type Client struct {
	config      *Config
	audioConfig *AudioConfig
	api         *APIClient
	session     *AudioCaptureSession
	visualizer  *AudioVisualizer
	gateway     *UploadGateway
	catalog     *VoiceCatalog
	player      Player
	clock       Clock
	logger      *Logger

	mu             sync.Mutex
	notice         Notice
	noticeHandlers map[int]NoticeHandler
	nextID         int
	uploading      bool
}

func NewClient(config *Config, audioConfig *AudioConfig, opts ...ClientOption) *Client {
	if config == nil {
		config = NewConfig()
	}
	if audioConfig == nil {
		audioConfig = NewAudioConfig()
	}
	if audioConfig.DeviceID == nil && config.AudioDeviceID != nil {
		audioConfig.DeviceID = config.AudioDeviceID
	}

	deps := &clientDeps{clock: SystemClock, frameInterval: DefaultFrameInterval}
	for _, opt := range opts {
		opt(deps)
	}
	if deps.mic == nil {
		deps.mic = NewPortAudioMicrophone()
	}
	if deps.player == nil {
		deps.player = NewPortAudioPlayer(audioConfig.BufferSize)
	}

	api := NewAPIClient(config)
	visualizer := NewAudioVisualizer(config.CanvasWidth, config.CanvasHeight)
	session := NewAudioCaptureSession(audioConfig, deps.mic,
		WithClock(deps.clock),
		WithVisualizer(visualizer),
		WithFrameInterval(deps.frameInterval),
	)

	c := &Client{
		config:         config,
		audioConfig:    audioConfig,
		api:            api,
		session:        session,
		visualizer:     visualizer,
		gateway:        NewUploadGateway(api),
		catalog:        NewVoiceCatalog(api, deps.player),
		player:         deps.player,
		clock:          deps.clock,
		logger:         GetGlobalLogger().WithComponent("Client"),
		noticeHandlers: make(map[int]NoticeHandler),
	}

	c.catalog.AddErrorHandler(func(err *VoiceError) {
		c.setNotice(NoticeError, "Playback failed: "+err.UserMessage())
	})

	return c
}

func (c *Client) StartRecording(ctx context.Context) error {
	if err := c.session.Start(ctx); err != nil {
		c.failed(err, "")
		return err
	}
	c.DismissNotice()
	return nil
}

func (c *Client) StopRecording() error {
	if err := c.session.Stop(); err != nil {
		c.failed(err, "")
		return err
	}
	return nil
}

// DiscardRecording throws away the finished recording.
func (c *Client) DiscardRecording() error {
	if err := c.session.Discard(); err != nil {
		c.failed(err, "")
		return err
	}
	c.setNotice(NoticeInfo, "Recording discarded")
	return nil
}

// PlayRecording plays the finished recording and blocks until it ends.
func (c *Client) PlayRecording(ctx context.Context) error {
	handle, err := c.session.RequestPlayback()
	if err == nil {
		err = handle.Play(ctx, c.player)
	}
	if err != nil {
		c.failed(err, "Playback failed: ")
		return err
	}
	return nil
}

// DownloadRecording saves the finished recording into the configured output
// directory.
func (c *Client) DownloadRecording() (string, error) {
	path, err := c.session.RequestDownload(c.config.OutputDir, DownloadFileName(c.clock.Now()))
	if err != nil {
		c.failed(err, "Download failed: ")
		return "", err
	}
	c.setNotice(NoticeInfo, "Saved "+path)
	return path, nil
}

// UploadRecording sends the finished recording. On success the session goes
// back to idle and the catalog is refreshed; on failure the recording is kept
// so the user can retry.
func (c *Client) UploadRecording(ctx context.Context) (*UploadResult, error) {
	c.mu.Lock()
	if c.uploading {
		c.mu.Unlock()
		err := NewVoiceError("an upload is already in progress", ErrCodeInvalidState).
			AddDetail("operation", "upload")
		c.failed(err, "Upload failed: ")
		return nil, err
	}
	c.uploading = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.uploading = false
		c.mu.Unlock()
	}()

	blob := c.session.FinalBlob()
	if blob == nil {
		err := NewInvalidStateError("upload", c.session.State())
		c.failed(err, "Upload failed: ")
		return nil, err
	}

	fileName := UploadFileName(c.clock.Now())
	result, err := c.gateway.Upload(ctx, blob, fileName)
	if err != nil {
		c.failed(err, "Upload failed: ")
		return nil, err
	}

	if err := c.session.CompleteUpload(blob); err != nil {
		c.logger.WithError(err).Warn("Session changed during upload")
	}
	c.setNotice(NoticeSuccess, "Audio uploaded successfully! File: "+result.RemoteFileName)

	if _, err := c.catalog.Refresh(ctx); err != nil {
		c.logger.WithError(err).Warn("Catalog refresh after upload failed")
	}
	return result, nil
}

func (c *Client) IsUploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}

func (c *Client) RefreshVoices(ctx context.Context) ([]VoiceEntry, error) {
	entries, err := c.catalog.Refresh(ctx)
	if err != nil {
		c.failed(err, "")
	}
	return entries, err
}

// WatchVoices mirrors remote changes into the catalog until ctx is cancelled
// or the change feed gives up. configure runs before the first dial, so
// handlers added there see every connection state.
func (c *Client) WatchVoices(ctx context.Context, configure ...func(*EventStream)) error {
	stream := NewEventStream(c.config)
	for _, fn := range configure {
		fn(stream)
	}
	err := c.catalog.Watch(ctx, stream)
	if err != nil && ctx.Err() == nil {
		c.failed(err, "Watch failed: ")
	}
	return err
}

func (c *Client) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	status, err := c.api.HealthCheck(ctx).Unwrap()
	if err != nil {
		c.failed(err, "Health check failed: ")
		return nil, err
	}
	return status, nil
}

func (c *Client) Notice() Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

func (c *Client) DismissNotice() {
	c.setNotice(NoticeNone, "")
}

// AddNoticeHandler observes every notice change, including dismissal.
func (c *Client) AddNoticeHandler(h NoticeHandler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.noticeHandlers[id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.noticeHandlers, id)
		c.mu.Unlock()
	}
}

func (c *Client) failed(err error, prefix string) {
	vErr := WrapError(err, ErrCodeClient)
	c.logger.LogError(vErr)
	c.setNotice(NoticeError, prefix+vErr.UserMessage())
}

func (c *Client) setNotice(severity NoticeSeverity, text string) {
	n := Notice{Severity: severity, Text: text}
	c.mu.Lock()
	c.notice = n
	handlers := make([]NoticeHandler, 0, len(c.noticeHandlers))
	for _, h := range c.noticeHandlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(n)
	}
}

func (c *Client) State() SessionState {
	return c.session.State()
}

// Elapsed renders the recording timer as mm:ss.
func (c *Client) Elapsed() string {
	return FormatElapsed(c.session.ElapsedSeconds())
}

func (c *Client) Session() *AudioCaptureSession {
	return c.session
}

func (c *Client) Visualizer() *AudioVisualizer {
	return c.visualizer
}

func (c *Client) Catalog() *VoiceCatalog {
	return c.catalog
}

func (c *Client) API() *APIClient {
	return c.api
}

func (c *Client) Config() *Config {
	return c.config
}

func (c *Client) Cleanup() {
	c.catalog.Stop()
	if err := c.session.Close(); err != nil {
		c.logger.WithError(err).Warn("Error closing capture session")
	}
	c.logger.Info("Client cleaned up")
}

func (c *Client) String() string {
	return fmt.Sprintf("voiceyou.Client{api=%s state=%s}", c.api.BaseURL(), c.session.State())
}
