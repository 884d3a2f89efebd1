package voiceyou

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const eventsPath = "/api/events"

const (
	EventVoiceUploaded = "voice_uploaded"
	EventVoiceDeleted  = "voice_deleted"
)

// VoiceEvent is one change notification from the upload service.
type VoiceEvent struct {
	Type     string    `json:"type"`
	FileName string    `json:"file_name"`
	At       time.Time `json:"at"`
}

// ConnectionState enum
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Reconnecting ConnectionState = "reconnecting"
)

type EventHandler func(VoiceEvent)
type ConnectionHandler func(ConnectionState)

// EventsURL maps an API base URL onto its websocket change feed.
func EventsURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", NewClientError("invalid API URL: " + err.Error())
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", NewClientError("unsupported API URL scheme: " + u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + eventsPath
	return u.String(), nil
}

// EventStream follows the service's change feed and re-dials when the
// connection drops.
type EventStream struct {
	apiURL               string
	headers              http.Header
	dialer               *websocket.Dialer
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	logger               *Logger

	mu                 sync.Mutex
	state              ConnectionState
	running            bool
	eventHandlers      map[int]EventHandler
	connectionHandlers map[int]ConnectionHandler
	nextID             int
}

func NewEventStream(cfg *Config) *EventStream {
	headers := make(http.Header)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	headers.Set("User-Agent", userAgent)

	attempts := cfg.MaxReconnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &EventStream{
		apiURL:  cfg.APIURL,
		headers: headers,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HTTPTimeout,
		},
		maxReconnectAttempts: attempts,
		reconnectDelay:       cfg.ReconnectDelay,
		logger:               GetGlobalLogger().WithComponent("EventStream"),
		state:                Disconnected,
		eventHandlers:        make(map[int]EventHandler),
		connectionHandlers:   make(map[int]ConnectionHandler),
	}
}

// Run delivers events until ctx is cancelled. It fails once
// maxReconnectAttempts consecutive dials have failed.
func (es *EventStream) Run(ctx context.Context) error {
	endpoint, err := EventsURL(es.apiURL)
	if err != nil {
		return err
	}

	es.mu.Lock()
	if es.running {
		es.mu.Unlock()
		return NewVoiceError("event stream is already running", ErrCodeInvalidState)
	}
	es.running = true
	es.mu.Unlock()

	defer func() {
		es.mu.Lock()
		es.running = false
		es.mu.Unlock()
		es.setState(Disconnected)
	}()

	es.setState(Connecting)
	for {
		conn, err := es.connectWithRetry(ctx, endpoint)
		if err != nil {
			return err
		}
		es.setState(Connected)

		err = es.messageLoop(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		es.logger.WithError(err).Warn("Event stream dropped, reconnecting")
		es.setState(Reconnecting)
	}
}

func (es *EventStream) connectWithRetry(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= es.maxReconnectAttempts; attempt++ {
		conn, _, err := es.dialer.DialContext(ctx, endpoint, es.headers)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		es.logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		}).Debug("Event stream connect failed")

		if attempt == es.maxReconnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(es.reconnectDelay):
		}
	}
	return nil, NewUnreachableError(lastErr).AddDetail("attempts", es.maxReconnectAttempts)
}

func (es *EventStream) messageLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev VoiceEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			es.logger.WithField("payload", string(data)).Warn("Ignoring malformed event")
			continue
		}
		es.logger.WithFields(map[string]interface{}{
			"type":      ev.Type,
			"file_name": ev.FileName,
		}).Debug("Voice event received")
		es.handleEvent(ev)
	}
}

func (es *EventStream) handleEvent(ev VoiceEvent) {
	es.mu.Lock()
	handlers := make([]EventHandler, 0, len(es.eventHandlers))
	for id := 0; id < es.nextID; id++ {
		if h, ok := es.eventHandlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	es.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (es *EventStream) setState(state ConnectionState) {
	es.mu.Lock()
	if es.state == state {
		es.mu.Unlock()
		return
	}
	es.state = state
	handlers := make([]ConnectionHandler, 0, len(es.connectionHandlers))
	for id := 0; id < es.nextID; id++ {
		if h, ok := es.connectionHandlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	es.mu.Unlock()

	for _, h := range handlers {
		h(state)
	}
}

// AddEventHandler registers h in arrival order and returns its remover.
func (es *EventStream) AddEventHandler(h EventHandler) func() {
	es.mu.Lock()
	defer es.mu.Unlock()
	id := es.nextID
	es.nextID++
	es.eventHandlers[id] = h
	return func() {
		es.mu.Lock()
		delete(es.eventHandlers, id)
		es.mu.Unlock()
	}
}

func (es *EventStream) AddConnectionHandler(h ConnectionHandler) func() {
	es.mu.Lock()
	defer es.mu.Unlock()
	id := es.nextID
	es.nextID++
	es.connectionHandlers[id] = h
	return func() {
		es.mu.Lock()
		delete(es.connectionHandlers, id)
		es.mu.Unlock()
	}
}

func (es *EventStream) State() ConnectionState {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.state
}

func (es *EventStream) IsConnected() bool {
	return es.State() == Connected
}
