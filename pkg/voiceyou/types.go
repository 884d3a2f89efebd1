package voiceyou

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// Result types for error handling
type Result[T any] struct {
	Data    T
	Error   *VoiceError
	Success bool
}

func Ok[T any](data T) Result[T] {
	return Result[T]{Data: data, Success: true}
}

func Err[T any](err *VoiceError) Result[T] {
	return Result[T]{Error: err, Success: false}
}

// Unwrap converts a Result into the (value, error) pair callers expect.
func (r Result[T]) Unwrap() (T, error) {
	if !r.Success {
		var zero T
		if r.Error == nil {
			return zero, NewClientError("empty result")
		}
		return zero, r.Error
	}
	return r.Data, nil
}

// SessionState enum
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateRecording SessionState = "recording"
	StateStopped   SessionState = "stopped"
)

// WAVMimeType is declared on every finished recording regardless of how it was captured.
const WAVMimeType = "audio/wav"

// Blob is an immutable audio buffer with its declared MIME type.
type Blob struct {
	data     []byte
	mimeType string
}

func NewBlob(data []byte, mimeType string) *Blob {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Blob{data: buf, mimeType: mimeType}
}

func (b *Blob) Size() int {
	return len(b.data)
}

func (b *Blob) MIMEType() string {
	return b.mimeType
}

// Bytes returns a copy of the blob contents.
func (b *Blob) Bytes() []byte {
	buf := make([]byte, len(b.data))
	copy(buf, b.data)
	return buf
}

// Reader returns a fresh reader positioned at the start of the blob.
func (b *Blob) Reader() io.ReadSeeker {
	return bytes.NewReader(b.data)
}

// VisualizationFrame holds one snapshot of byte frequency data.
type VisualizationFrame struct {
	FrequencyBins []uint8
}

// UploadResult is produced once per successful upload.
type UploadResult struct {
	RemoteURL      string
	RemoteFileName string
	FileKey        string
	FileSize       int64
}

// VoiceEntry is one recording in the remote listing.
type VoiceEntry struct {
	FileName     string    `json:"file_name"`
	SizeBytes    int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url"`
}

var lastModifiedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON accepts the ISO-8601 variants backends emit for
// last_modified, with or without a zone.
func (v *VoiceEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		FileName     string `json:"file_name"`
		SizeBytes    int64  `json:"size"`
		LastModified string `json:"last_modified"`
		URL          string `json:"url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.FileName = raw.FileName
	v.SizeBytes = raw.SizeBytes
	v.URL = raw.URL
	v.LastModified = time.Time{}
	if raw.LastModified == "" {
		return nil
	}
	for _, layout := range lastModifiedLayouts {
		if t, err := time.Parse(layout, raw.LastModified); err == nil {
			v.LastModified = t
			return nil
		}
	}
	return &time.ParseError{Layout: time.RFC3339, Value: raw.LastModified, Message: ": unrecognised last_modified"}
}

// NoticeSeverity enum
type NoticeSeverity string

const (
	NoticeNone    NoticeSeverity = ""
	NoticeSuccess NoticeSeverity = "success"
	NoticeInfo    NoticeSeverity = "info"
	NoticeError   NoticeSeverity = "error"
)

// Notice is the dismissible inline message shown to the user.
type Notice struct {
	Severity NoticeSeverity
	Text     string
}

func (n Notice) IsZero() bool {
	return n.Text == ""
}

// AudioDevice represents an audio device
type AudioDevice struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefault         bool
	IsInput           bool
	IsOutput          bool
	HostAPI           string
}

// Handler types
type StateHandler func(SessionState)
type FrameHandler func(VisualizationFrame)
type ErrorHandler func(*VoiceError)
type NoticeHandler func(Notice)
