package voiceyou

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const DefaultAPIURL = "http://localhost:3000"

type Config struct {
	APIURL        string            `json:"api_url" validate:"required,url"`
	HTTPTimeout   time.Duration     `json:"http_timeout" validate:"gt=0"`
	Headers       map[string]string `json:"headers,omitempty"`
	DebugLevel    string            `json:"debug_level"`
	LogFile       string            `json:"log_file,omitempty"`
	OutputDir     string            `json:"output_dir" validate:"required"`
	AudioDeviceID *int              `json:"audio_device_id,omitempty" validate:"omitempty,gte=0"`
	CanvasWidth   int               `json:"canvas_width" validate:"gt=0"`
	CanvasHeight  int               `json:"canvas_height" validate:"gt=0"`

	// Event stream reconnection
	MaxReconnectAttempts int           `json:"max_reconnect_attempts" validate:"gt=0"`
	ReconnectDelay       time.Duration `json:"reconnect_delay" validate:"gte=0"`
}

func NewConfig() *Config {
	c := &Config{
		APIURL:       DefaultAPIURL,
		HTTPTimeout:  30 * time.Second,
		DebugLevel:   "INFO",
		OutputDir:    ".",
		CanvasWidth:  500,
		CanvasHeight: 150,
		Headers:      make(map[string]string),

		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
	}

	// Load from env
	c.loadFromEnv()

	return c
}

func (c *Config) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	if apiURL := os.Getenv("VOICEYOU_API_URL"); apiURL != "" {
		c.APIURL = strings.TrimRight(apiURL, "/")
	}

	if timeout := os.Getenv("VOICEYOU_HTTP_TIMEOUT"); timeout != "" {
		if val, err := time.ParseDuration(timeout); err == nil {
			c.HTTPTimeout = val
		}
	}

	if level := os.Getenv("VOICEYOU_DEBUG_LEVEL"); level != "" {
		c.DebugLevel = strings.ToUpper(level)
	}

	c.LogFile = os.Getenv("VOICEYOU_LOG_FILE")

	if dir := os.Getenv("VOICEYOU_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}

	if deviceIDStr := os.Getenv("VOICEYOU_AUDIO_DEVICE_ID"); deviceIDStr != "" {
		if deviceID, err := strconv.Atoi(deviceIDStr); err == nil {
			c.AudioDeviceID = &deviceID
		}
	}

	if width := os.Getenv("VOICEYOU_CANVAS_WIDTH"); width != "" {
		if val, err := strconv.Atoi(width); err == nil {
			c.CanvasWidth = val
		}
	}

	if height := os.Getenv("VOICEYOU_CANVAS_HEIGHT"); height != "" {
		if val, err := strconv.Atoi(height); err == nil {
			c.CanvasHeight = val
		}
	}

	if attempts := os.Getenv("VOICEYOU_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if val, err := strconv.Atoi(attempts); err == nil {
			c.MaxReconnectAttempts = val
		}
	}

	if delay := os.Getenv("VOICEYOU_RECONNECT_DELAY"); delay != "" {
		if val, err := time.ParseDuration(delay); err == nil {
			c.ReconnectDelay = val
		}
	}
}

var configValidator = validator.New()

// Validate returns list of issues
func (c *Config) Validate() []string {
	issues := []string{}

	if err := configValidator.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				issues = append(issues, fmt.Sprintf("Invalid %s: failed '%s' check", fe.Field(), fe.Tag()))
			}
		} else {
			issues = append(issues, err.Error())
		}
	}

	// Check debug level
	validLevels := []string{"TRACE", "DEBUG", "INFO", "WARNING", "ERROR"}
	found := false
	for _, level := range validLevels {
		if level == c.DebugLevel {
			found = true
			break
		}
	}
	if !found {
		issues = append(issues, fmt.Sprintf("Invalid debug level: %s", c.DebugLevel))
	}

	return issues
}

func (c *Config) PrintConfig() {
	fmt.Println("🎤 VoiceYou SDK Configuration")
	fmt.Println("==================================================")
	fmt.Printf("API URL: %s\n", c.APIURL)
	fmt.Printf("HTTP Timeout: %s\n", c.HTTPTimeout)
	fmt.Printf("Debug Level: %s\n", c.DebugLevel)
	if c.LogFile != "" {
		fmt.Printf("Log File: %s\n", c.LogFile)
	}
	fmt.Printf("Output Directory: %s\n", c.OutputDir)
	fmt.Printf("Canvas: %dx%d\n", c.CanvasWidth, c.CanvasHeight)
	fmt.Printf("Reconnect: %d attempts, %s apart\n", c.MaxReconnectAttempts, c.ReconnectDelay)

	if c.AudioDeviceID != nil {
		fmt.Printf("Audio Device ID: %d\n", *c.AudioDeviceID)
	} else {
		fmt.Println("Audio Device: Default")
	}
}

// LogLevel maps the configured debug level onto the logger's levels.
func (c *Config) LogLevel() LogLevel {
	switch c.DebugLevel {
	case "TRACE":
		return TraceLevel
	case "DEBUG":
		return DebugLevel
	case "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

type AudioConfig struct {
	SampleRate int
	Channels   int
	BufferSize int
	FFTSize    int
	DeviceID   *int
}

func NewAudioConfig() *AudioConfig {
	return &AudioConfig{
		SampleRate: 44100,
		Channels:   1,
		BufferSize: 1024,
		FFTSize:    256,
	}
}

// Validation utilities
func ValidateAudioConfig(config *AudioConfig) error {
	if config.SampleRate <= 0 {
		return NewConfigError("Invalid sample rate")
	}
	if config.Channels <= 0 {
		return NewConfigError("Invalid channel count")
	}
	if config.BufferSize <= 0 {
		return NewConfigError("Invalid buffer size")
	}
	if config.FFTSize <= 0 || config.FFTSize&(config.FFTSize-1) != 0 {
		return NewConfigError("FFT size must be a positive power of two")
	}
	return nil
}
