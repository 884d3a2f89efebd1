package voiceserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialEvents(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return srv.Events().Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func TestEventsFollowUploadsAndDeletes(t *testing.T) {
	srv, _ := newTestServer()
	conn := dialEvents(t, srv)

	rec := doUpload(t, srv, "file", "voice_a.wav", []byte("RIFF"))
	require.Equal(t, http.StatusCreated, rec.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev VoiceEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventVoiceUploaded, ev.Type)
	assert.Equal(t, "voice_a.wav", ev.FileName)
	assert.True(t, ev.At.Equal(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/voices/voice_a.wav", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventVoiceDeleted, ev.Type)
	assert.Equal(t, "voice_a.wav", ev.FileName)
}

func TestFailedUploadPublishesNothing(t *testing.T) {
	srv, mock := newTestServer()
	mock.putErr = awserr.New("AccessDenied", "denied", nil)
	conn := dialEvents(t, srv)

	rec := doUpload(t, srv, "file", "voice_a.wav", []byte("RIFF"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestEventHubCloseDisconnectsWatchers(t *testing.T) {
	srv, _ := newTestServer()
	conn := dialEvents(t, srv)

	srv.Events().Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, srv.Events().Subscribers())
}

func TestEventHubDropsOverflow(t *testing.T) {
	hub := NewEventHub(zerolog.Nop())
	ch, ok := hub.subscribe()
	require.True(t, ok)

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(VoiceEvent{Type: EventVoiceUploaded})
	}
	assert.Len(t, ch, subscriberBuffer)

	hub.unsubscribe(ch)
	assert.Equal(t, 0, hub.Subscribers())

	hub.Close()
	_, ok = hub.subscribe()
	assert.False(t, ok)
}
