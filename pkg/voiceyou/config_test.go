package voiceyou

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	for _, key := range []string{"VOICEYOU_API_URL", "VOICEYOU_HTTP_TIMEOUT", "VOICEYOU_DEBUG_LEVEL", "VOICEYOU_OUTPUT_DIR", "VOICEYOU_AUDIO_DEVICE_ID", "VOICEYOU_CANVAS_WIDTH", "VOICEYOU_CANVAS_HEIGHT", "VOICEYOU_MAX_RECONNECT_ATTEMPTS", "VOICEYOU_RECONNECT_DELAY"} {
		t.Setenv(key, "")
	}
	cfg := NewConfig()

	assert.Equal(t, "http://localhost:3000", cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "INFO", cfg.DebugLevel)
	assert.Equal(t, 500, cfg.CanvasWidth)
	assert.Equal(t, 150, cfg.CanvasHeight)
	assert.Nil(t, cfg.AudioDeviceID)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Empty(t, cfg.Validate())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("VOICEYOU_API_URL", "https://voices.example.com/")
	t.Setenv("VOICEYOU_HTTP_TIMEOUT", "5s")
	t.Setenv("VOICEYOU_DEBUG_LEVEL", "debug")
	t.Setenv("VOICEYOU_OUTPUT_DIR", "/tmp/voices")
	t.Setenv("VOICEYOU_AUDIO_DEVICE_ID", "3")
	t.Setenv("VOICEYOU_CANVAS_WIDTH", "800")
	t.Setenv("VOICEYOU_CANVAS_HEIGHT", "200")
	t.Setenv("VOICEYOU_MAX_RECONNECT_ATTEMPTS", "9")
	t.Setenv("VOICEYOU_RECONNECT_DELAY", "250ms")

	cfg := NewConfig()
	assert.Equal(t, "https://voices.example.com", cfg.APIURL)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "DEBUG", cfg.DebugLevel)
	assert.Equal(t, DebugLevel, cfg.LogLevel())
	assert.Equal(t, "/tmp/voices", cfg.OutputDir)
	require.NotNil(t, cfg.AudioDeviceID)
	assert.Equal(t, 3, *cfg.AudioDeviceID)
	assert.Equal(t, 800, cfg.CanvasWidth)
	assert.Equal(t, 200, cfg.CanvasHeight)
	assert.Equal(t, 9, cfg.MaxReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{
		APIURL:       "not a url",
		HTTPTimeout:  0,
		DebugLevel:   "LOUD",
		OutputDir:    ".",
		CanvasWidth:  500,
		CanvasHeight: 150,

		MaxReconnectAttempts: 3,
	}
	issues := cfg.Validate()
	assert.Len(t, issues, 3)
	assert.Contains(t, issues, "Invalid debug level: LOUD")
}

func TestValidateAudioConfig(t *testing.T) {
	assert.NoError(t, ValidateAudioConfig(NewAudioConfig()))

	cfg := NewAudioConfig()
	cfg.FFTSize = 300
	assert.True(t, IsErrorCode(ValidateAudioConfig(cfg), ErrCodeConfigInvalid))

	cfg = NewAudioConfig()
	cfg.SampleRate = 0
	assert.Error(t, ValidateAudioConfig(cfg))
}
