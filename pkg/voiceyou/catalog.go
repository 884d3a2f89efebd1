package voiceyou

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// VoiceCatalog mirrors the remote listing and plays entries from it.
type VoiceCatalog struct {
	api    *APIClient
	player Player
	logger *Logger

	mu       sync.Mutex
	entries  []VoiceEntry
	lastErr  *VoiceError
	inFlight int

	playingURL string
	stopPlay   context.CancelFunc
	playDone   chan struct{}

	errorHandlers []ErrorHandler
}

func NewVoiceCatalog(api *APIClient, player Player) *VoiceCatalog {
	return &VoiceCatalog{
		api:     api,
		player:  player,
		entries: []VoiceEntry{},
		logger:  GetGlobalLogger().WithComponent("VoiceCatalog"),
	}
}

// Refresh replaces the entries with the server listing. On failure the
// previous entries are kept and Err reports the failure.
func (c *VoiceCatalog) Refresh(ctx context.Context) ([]VoiceEntry, error) {
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()

	entries, err := c.api.ListVoices(ctx).Unwrap()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if err != nil {
		c.lastErr = WrapError(err, ErrCodeServerRejected)
		c.logger.WithError(err).Warn("Failed to refresh voices")
		return c.copyEntries(), err
	}
	c.entries = entries
	c.lastErr = nil
	c.logger.WithField("count", len(entries)).Debug("Voices refreshed")
	return c.copyEntries(), nil
}

func (c *VoiceCatalog) copyEntries() []VoiceEntry {
	out := make([]VoiceEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *VoiceCatalog) Entries() []VoiceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyEntries()
}

func (c *VoiceCatalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Err is the failure of the most recent refresh, nil after a success.
func (c *VoiceCatalog) Err() *VoiceError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *VoiceCatalog) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

func (c *VoiceCatalog) PlayingURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playingURL
}

// Play toggles playback of entry. Playing the entry that is already playing
// stops it and reports false; any other entry replaces the current one.
// The track is fetched and decoded before Play returns; output runs in the
// background and clears PlayingURL when it ends.
func (c *VoiceCatalog) Play(ctx context.Context, entry VoiceEntry) (bool, error) {
	c.mu.Lock()
	if c.playingURL != "" && c.playingURL == entry.URL {
		c.stopLocked()
		c.mu.Unlock()
		return false, nil
	}
	c.stopLocked()
	c.mu.Unlock()

	data, err := c.api.Fetch(ctx, entry.URL).Unwrap()
	if err != nil {
		return false, err
	}
	decoded, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return false, NewPlaybackError("failed to decode "+entry.FileName, err)
	}

	playCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.stopLocked()
	c.playingURL = entry.URL
	c.stopPlay = cancel
	c.playDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := c.player.Play(playCtx, decoded)

		c.mu.Lock()
		if c.playDone == done {
			c.playingURL = ""
			c.stopPlay = nil
		}
		handlers := append([]ErrorHandler(nil), c.errorHandlers...)
		c.mu.Unlock()
		cancel()

		if err != nil && !errors.Is(err, context.Canceled) {
			vErr := WrapError(err, ErrCodePlayback)
			c.logger.LogError(vErr)
			for _, h := range handlers {
				h(vErr)
			}
		}
	}()

	c.logger.WithField("file_name", entry.FileName).Info("Playing voice")
	return true, nil
}

// Stop halts any playback in progress.
func (c *VoiceCatalog) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

func (c *VoiceCatalog) stopLocked() {
	if c.stopPlay != nil {
		c.stopPlay()
	}
	c.stopPlay = nil
	c.playingURL = ""
}

// PlaybackDone is closed when the current track finishes. With nothing
// playing it is already closed.
func (c *VoiceCatalog) PlaybackDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playDone == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.playDone
}

// Download saves entry into dir under its remote file name.
func (c *VoiceCatalog) Download(ctx context.Context, entry VoiceEntry, dir string) (string, error) {
	data, err := c.api.Fetch(ctx, entry.URL).Unwrap()
	if err != nil {
		return "", err
	}
	return saveBytes(dir, entry.FileName, data)
}

// Delete removes entry remotely and drops it from the local mirror.
func (c *VoiceCatalog) Delete(ctx context.Context, entry VoiceEntry) error {
	if _, err := c.api.DeleteVoice(ctx, entry.FileName).Unwrap(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playingURL == entry.URL {
		c.stopLocked()
	}
	kept := c.entries[:0:0]
	for _, e := range c.entries {
		if e.FileName != entry.FileName {
			kept = append(kept, e)
		}
	}
	c.entries = kept
	return nil
}

// Watch keeps the entries current: it refreshes on every (re)connect and on
// every change the stream reports. It blocks until ctx is cancelled or the
// stream gives up.
func (c *VoiceCatalog) Watch(ctx context.Context, stream *EventStream) error {
	refresh := func() {
		if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Warn("Refresh after change failed")
		}
	}

	removeConn := stream.AddConnectionHandler(func(state ConnectionState) {
		if state == Connected {
			refresh()
		}
	})
	defer removeConn()
	removeEvents := stream.AddEventHandler(func(VoiceEvent) { refresh() })
	defer removeEvents()

	return stream.Run(ctx)
}

// AddErrorHandler receives background playback failures.
func (c *VoiceCatalog) AddErrorHandler(h ErrorHandler) {
	c.mu.Lock()
	c.errorHandlers = append(c.errorHandlers, h)
	c.mu.Unlock()
}
