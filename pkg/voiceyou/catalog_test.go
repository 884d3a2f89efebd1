package voiceyou

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// voicesBackend serves a listing and the files it points at.
type voicesBackend struct {
	srv     *httptest.Server
	failing atomic.Bool
	listing atomic.Value
	wav     []byte
}

func newVoicesBackend(t *testing.T) *voicesBackend {
	t.Helper()
	b := &voicesBackend{wav: testWAV(sine(800, 4, 0.3))}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/voices", func(w http.ResponseWriter, r *http.Request) {
		if b.failing.Load() {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "bucket unavailable"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(b.listing.Load().(string)))
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/files/missing.wav" {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(b.wav)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	b.setListing(`[]`)
	return b
}

func (b *voicesBackend) setListing(body string) {
	b.listing.Store(body)
}

func (b *voicesBackend) twoEntries() string {
	return `[
		{"file_name":"voice_b.wav","size":2048,"last_modified":"2024-01-02T08:30:00.123456","url":"` + b.srv.URL + `/files/voice_b.wav"},
		{"file_name":"voice_a.wav","size":1024,"last_modified":"2024-01-01T12:00:00+00:00","url":"` + b.srv.URL + `/files/voice_a.wav"}
	]`
}

func TestRefreshKeepsServerOrder(t *testing.T) {
	backend := newVoicesBackend(t)
	backend.setListing(backend.twoEntries())
	catalog := NewVoiceCatalog(NewAPIClient(testConfig(backend.srv.URL)), &fakePlayer{})

	entries, err := catalog.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "voice_b.wav", entries[0].FileName)
	assert.Equal(t, int64(2048), entries[0].SizeBytes)
	assert.True(t, entries[0].LastModified.Equal(time.Date(2024, 1, 2, 8, 30, 0, 123456000, time.UTC)))
	assert.Equal(t, "voice_a.wav", entries[1].FileName)
	assert.True(t, entries[1].LastModified.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))

	assert.Equal(t, entries, catalog.Entries())
	assert.Equal(t, 2, catalog.Len())
	assert.Nil(t, catalog.Err())
	assert.False(t, catalog.Loading())
}

func TestRefreshFailureKeepsPreviousEntries(t *testing.T) {
	backend := newVoicesBackend(t)
	backend.setListing(backend.twoEntries())
	catalog := NewVoiceCatalog(NewAPIClient(testConfig(backend.srv.URL)), &fakePlayer{})

	_, err := catalog.Refresh(context.Background())
	require.NoError(t, err)

	backend.failing.Store(true)
	entries, err := catalog.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerRejected))
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, catalog.Len())
	require.NotNil(t, catalog.Err())
	assert.Equal(t, "bucket unavailable", catalog.Err().Message)

	backend.failing.Store(false)
	backend.setListing(`[]`)
	entries, err = catalog.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
	assert.Nil(t, catalog.Err())
}

func TestRefreshUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	catalog := NewVoiceCatalog(NewAPIClient(testConfig(url)), &fakePlayer{})
	_, err := catalog.Refresh(context.Background())
	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.Equal(t, 0, catalog.Len())
	assert.Equal(t, ErrCodeUnreachable, catalog.Err().Code)
}

func TestPlayTogglesEntry(t *testing.T) {
	backend := newVoicesBackend(t)
	backend.setListing(backend.twoEntries())
	player := newBlockingPlayer()
	catalog := NewVoiceCatalog(NewAPIClient(testConfig(backend.srv.URL)), player)

	entries, err := catalog.Refresh(context.Background())
	require.NoError(t, err)

	playing, err := catalog.Play(context.Background(), entries[0])
	require.NoError(t, err)
	assert.True(t, playing)
	assert.Equal(t, entries[0].URL, catalog.PlayingURL())
	done := catalog.PlaybackDone()

	playing, err = catalog.Play(context.Background(), entries[0])
	require.NoError(t, err)
	assert.False(t, playing)
	assert.Equal(t, "", catalog.PlayingURL())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("playback was not cancelled")
	}
	assert.Equal(t, 1, player.count())
}

func TestPlaySwitchesEntries(t *testing.T) {
	backend := newVoicesBackend(t)
	backend.setListing(backend.twoEntries())
	player := newBlockingPlayer()
	catalog := NewVoiceCatalog(NewAPIClient(testConfig(backend.srv.URL)), player)
	t.Cleanup(catalog.Stop)

	entries, err := catalog.Refresh(context.Background())
	require.NoError(t, err)

	_, err = catalog.Play(context.Background(), entries[0])
	require.NoError(t, err)
	first := catalog.PlaybackDone()

	playing, err := catalog.Play(context.Background(), entries[1])
	require.NoError(t, err)
	assert.True(t, playing)
	assert.Equal(t, entries[1].URL, catalog.PlayingURL())

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("previous track kept playing")
	}
	assert.Equal(t, entries[1].URL, catalog.PlayingURL())
}

func TestPlayClearsWhenTrackEnds(t *testing.T) {
	backend := newVoicesBackend(t)
	backend.setListing(backend.twoEntries())
	player := &fakePlayer{}
	catalog := NewVoiceCatalog(NewAPIClient(testConfig(backend.srv.URL)), player)

	entries, err := catalog.Refresh(context.Background())
	require.NoError(t, err)

	_, err = catalog.Play(context.Background(), entries[1])
	require.NoError(t, err)
	<-catalog.PlaybackDone()

	assert.Equal(t, "", catalog.PlayingURL())
	require.Equal(t, 1, player.count())
	assert.Len(t, player.played[0].Samples, 800)
}

func TestPlayReportsBackgroundFailure(t *testing.T) {
	backend := newVoicesBackend(t)
	backend.setListing(backend.twoEntries())
	player := &fakePlayer{err: errors.New("output device gone")}
	catalog := NewVoiceCatalog(NewAPIClient(testConfig(backend.srv.URL)), player)

	reported := make(chan *VoiceError, 1)
	catalog.AddErrorHandler(func(err *VoiceError) { reported <- err })

	entries, err := catalog.Refresh(context.Background())
	require.NoError(t, err)
	_, err = catalog.Play(context.Background(), entries[0])
	require.NoError(t, err)

	select {
	case vErr := <-reported:
		assert.Equal(t, ErrCodePlayback, vErr.Code)
	case <-time.After(time.Second):
		t.Fatal("playback failure was not reported")
	}
}

func TestPlayMissingFile(t *testing.T) {
	backend := newVoicesBackend(t)
	catalog := NewVoiceCatalog(NewAPIClient(testConfig(backend.srv.URL)), &fakePlayer{})

	entry := VoiceEntry{FileName: "missing.wav", URL: backend.srv.URL + "/files/missing.wav"}
	playing, err := catalog.Play(context.Background(), entry)
	assert.False(t, playing)
	assert.True(t, errors.Is(err, ErrServerRejected))
	assert.Equal(t, "", catalog.PlayingURL())
}

func TestCatalogDownload(t *testing.T) {
	backend := newVoicesBackend(t)
	backend.setListing(backend.twoEntries())
	catalog := NewVoiceCatalog(NewAPIClient(testConfig(backend.srv.URL)), &fakePlayer{})

	entries, err := catalog.Refresh(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := catalog.Download(context.Background(), entries[1], dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "voice_a.wav"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, backend.wav, data)
}

func TestCatalogDelete(t *testing.T) {
	var deleted atomic.Value
	backend := newVoicesBackend(t)
	backend.setListing(backend.twoEntries())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted.Store(r.URL.Path)
			writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
			return
		}
		backend.srv.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	catalog := NewVoiceCatalog(NewAPIClient(testConfig(srv.URL)), &fakePlayer{})
	entries, err := catalog.Refresh(context.Background())
	require.NoError(t, err)

	require.NoError(t, catalog.Delete(context.Background(), entries[0]))
	assert.Equal(t, "/api/voices/voice_b.wav", deleted.Load())
	require.Equal(t, 1, catalog.Len())
	assert.Equal(t, "voice_a.wav", catalog.Entries()[0].FileName)
}
