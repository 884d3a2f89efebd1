package voiceserver

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Settings configure the upload service. Values come from the environment,
// with a .env file honoured when present.
type Settings struct {
	AWSAccessKeyID     string `validate:"required_with=AWSSecretAccessKey"`
	AWSSecretAccessKey string `validate:"required_with=AWSAccessKeyID"`
	AWSRegion          string `validate:"required"`
	S3BucketName       string `validate:"required"`
	// S3Endpoint overrides the AWS endpoint, for S3-compatible stores.
	S3Endpoint string `validate:"omitempty,url"`

	Debug      bool
	AppName    string `validate:"required"`
	AppVersion string `validate:"required"`
	Port       int    `validate:"gt=0,lte=65535"`
	// MaxUploadBytes bounds the multipart body.
	MaxUploadBytes int64 `validate:"gt=0"`
}

func DefaultSettings() *Settings {
	return &Settings{
		AWSRegion:      "us-east-1",
		AppName:        "VoiceYou Upload Service",
		AppVersion:     "1.0.0",
		Port:           3000,
		MaxUploadBytes: 50 << 20,
	}
}

// LoadSettings reads DefaultSettings overridden by the environment.
func LoadSettings() *Settings {
	_ = godotenv.Load()

	s := DefaultSettings()
	s.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	s.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	if v := os.Getenv("AWS_REGION"); v != "" {
		s.AWSRegion = v
	}
	s.S3BucketName = os.Getenv("S3_BUCKET_NAME")
	s.S3Endpoint = os.Getenv("S3_ENDPOINT")

	if v := os.Getenv("DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Debug = b
		}
	}
	if v := os.Getenv("APP_NAME"); v != "" {
		s.AppName = v
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		s.AppVersion = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			s.Port = p
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.MaxUploadBytes = n
		}
	}
	return s
}

var settingsValidator = validator.New()

// Validate reports every invalid field at once.
func (s *Settings) Validate() error {
	err := settingsValidator.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	issues := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(issues, "; "))
}

func (s *Settings) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
