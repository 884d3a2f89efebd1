package voiceserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	EventVoiceUploaded = "voice_uploaded"
	EventVoiceDeleted  = "voice_deleted"

	eventWriteWait    = 10 * time.Second
	eventPingInterval = 30 * time.Second
	subscriberBuffer  = 16
)

// VoiceEvent tells watchers that the stored set of recordings changed.
type VoiceEvent struct {
	Type     string    `json:"type"`
	FileName string    `json:"file_name"`
	At       time.Time `json:"at"`
}

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is already open for the REST routes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventHub fans catalog changes out to connected watchers. A watcher that
// falls behind by more than subscriberBuffer events misses the overflow.
type EventHub struct {
	mu     sync.Mutex
	subs   map[chan VoiceEvent]struct{}
	closed bool
	logger zerolog.Logger
}

func NewEventHub(logger zerolog.Logger) *EventHub {
	return &EventHub{
		subs:   make(map[chan VoiceEvent]struct{}),
		logger: logger,
	}
}

func (h *EventHub) Publish(ev VoiceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn().Str("type", ev.Type).Msg("Dropping event for slow watcher")
		}
	}
}

func (h *EventHub) subscribe() (chan VoiceEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan VoiceEvent, subscriberBuffer)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *EventHub) unsubscribe(ch chan VoiceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers reports how many watchers are attached.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every watcher and refuses new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (s *Server) events(c *gin.Context) {
	conn, err := eventUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Event stream upgrade failed")
		return
	}
	defer conn.Close()

	ch, ok := s.hub.subscribe()
	if !ok {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(eventWriteWait))
		return
	}
	defer s.hub.unsubscribe(ch)

	// Watchers never send; reading only surfaces the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(eventWriteWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug().Err(err).Msg("Event write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
