package voiceyou

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const uploadNameLayout = "2006-01-02T15:04:05.000Z"

// UploadFileName builds the remote name for a recording finished at t:
// voice_<UTC ISO-8601 with ':' and '.' replaced by '-'>.wav.
func UploadFileName(t time.Time) string {
	stamp := t.UTC().Format(uploadNameLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "voice_" + stamp + ".wav"
}

// DownloadFileName is the local name offered for a finished recording.
func DownloadFileName(t time.Time) string {
	return fmt.Sprintf("voice_%d.wav", t.UnixMilli())
}

// FormatElapsed renders whole seconds as mm:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatFileSize renders a byte count with a binary unit and two decimals,
// dropping trailing zeros.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	s := fmt.Sprintf("%.2f", value)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + " " + units[i]
}

// FormatUploadDate renders a catalog timestamp in local time.
func FormatUploadDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 2, 2006 3:04 PM")
}

// SaveBlob writes blob to dir/name, creating dir when needed, and returns the
// full path.
func SaveBlob(dir, name string, blob *Blob) (string, error) {
	if blob == nil {
		return "", NewClientError("nothing to save")
	}
	return saveBytes(dir, name, blob.data)
}

func saveBytes(dir, name string, data []byte) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", NewClientError(fmt.Sprintf("invalid file name %q", name))
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", NewIOError("failed to create output directory", err)
	}
	fullPath := filepath.Join(dir, name)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", NewIOError("failed to write "+fullPath, err)
	}
	return fullPath, nil
}
