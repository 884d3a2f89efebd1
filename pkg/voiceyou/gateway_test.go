package voiceyou

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(apiURL string) *Config {
	cfg := NewConfig()
	cfg.APIURL = apiURL
	return cfg
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestUploadSendsMultipartWAV(t *testing.T) {
	payload := bytes.Repeat([]byte{0x52}, 10*1024)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/upload", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "VoiceYouSDK-Go/1.0", r.Header.Get("User-Agent"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, _ := io.ReadAll(file)

		assert.Equal(t, "voice_2024-01-02T03-04-05-678Z.wav", header.Filename)
		assert.Equal(t, "audio/wav", header.Header.Get("Content-Type"))
		assert.Len(t, body, 10*1024)

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"message":     "File uploaded successfully",
			"file_name":   header.Filename,
			"file_key":    "uploads/" + header.Filename,
			"file_size":   len(body),
			"s3_url":      "https://voices.s3.us-east-1.amazonaws.com/uploads/" + header.Filename,
			"uploaded_at": "2024-01-02T03:04:05.678000",
		})
	}))
	defer srv.Close()

	gateway := NewUploadGateway(NewAPIClient(testConfig(srv.URL)))
	result, err := gateway.Upload(context.Background(), NewBlob(payload, WAVMimeType), "voice_2024-01-02T03-04-05-678Z.wav")
	require.NoError(t, err)

	assert.Equal(t, "voice_2024-01-02T03-04-05-678Z.wav", result.RemoteFileName)
	assert.Equal(t, "https://voices.s3.us-east-1.amazonaws.com/uploads/voice_2024-01-02T03-04-05-678Z.wav", result.RemoteURL)
	assert.Equal(t, "uploads/voice_2024-01-02T03-04-05-678Z.wav", result.FileKey)
	assert.Equal(t, int64(10*1024), result.FileSize)
}

func TestUploadServerRejectedCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "disk full"})
	}))
	defer srv.Close()

	gateway := NewUploadGateway(NewAPIClient(testConfig(srv.URL)))
	_, err := gateway.Upload(context.Background(), NewBlob([]byte("RIFF"), WAVMimeType), "voice.wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerRejected))

	var vErr *VoiceError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "disk full", vErr.Message)
	assert.Equal(t, "disk full", vErr.UserMessage())
	status, ok := vErr.GetDetail("status_code")
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestUploadRejectedWithoutDetailUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	gateway := NewUploadGateway(NewAPIClient(testConfig(srv.URL)))
	_, err := gateway.Upload(context.Background(), NewBlob([]byte("RIFF"), WAVMimeType), "voice.wav")

	var vErr *VoiceError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, ErrCodeServerRejected, vErr.Code)
	assert.Equal(t, "Failed to upload audio", vErr.Message)
}

func TestUploadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gateway := NewUploadGateway(NewAPIClient(testConfig(url)))
	_, err := gateway.Upload(context.Background(), NewBlob([]byte("RIFF"), WAVMimeType), "voice.wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))

	var vErr *VoiceError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "No response from server. Make sure the backend server is running.", vErr.UserMessage())
}

func TestUploadIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "try later"})
	}))
	defer srv.Close()

	gateway := NewUploadGateway(NewAPIClient(testConfig(srv.URL)))
	_, err := gateway.Upload(context.Background(), NewBlob([]byte("RIFF"), WAVMimeType), "voice.wav")
	assert.True(t, errors.Is(err, ErrServerRejected))
	assert.Equal(t, int32(1), hits.Load())
}

func TestUploadWithoutBlobIsClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	gateway := NewUploadGateway(NewAPIClient(testConfig(srv.URL)))
	_, err := gateway.Upload(context.Background(), nil, "voice.wav")
	assert.True(t, errors.Is(err, ErrClientError))

	_, err = gateway.Upload(context.Background(), NewBlob(nil, WAVMimeType), "voice.wav")
	assert.True(t, errors.Is(err, ErrClientError))
	assert.Equal(t, int32(0), hits.Load())
}

func TestMalformedBaseURLIsClientError(t *testing.T) {
	gateway := NewUploadGateway(NewAPIClient(testConfig("http://[::1")))
	_, err := gateway.Upload(context.Background(), NewBlob([]byte("RIFF"), WAVMimeType), "voice.wav")
	assert.True(t, errors.Is(err, ErrClientError))
}

func TestMalformedSuccessBodyIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	gateway := NewUploadGateway(NewAPIClient(testConfig(srv.URL)))
	_, err := gateway.Upload(context.Background(), NewBlob([]byte("RIFF"), WAVMimeType), "voice.wav")
	assert.True(t, errors.Is(err, ErrServerRejected))
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}))
	defer srv.Close()

	status, err := NewAPIClient(testConfig(srv.URL)).HealthCheck(context.Background()).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
}

func TestExtractDetail(t *testing.T) {
	assert.Equal(t, "disk full", extractDetail([]byte(`{"detail":"disk full"}`), "fallback"))
	assert.Equal(t, "fallback", extractDetail([]byte(`{"detail":""}`), "fallback"))
	assert.Equal(t, "fallback", extractDetail([]byte(`{"detail":null}`), "fallback"))
	assert.Equal(t, "fallback", extractDetail([]byte(`<html>`), "fallback"))
	assert.Equal(t, `[{"msg":"field required"}]`, extractDetail([]byte(`{"detail":[{"msg":"field required"}]}`), "fallback"))
}
