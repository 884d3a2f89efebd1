package voiceyou

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth    = 16
	wavPCMFormat   = 1
	pcm16MaxAmpl   = 32767.0
	bytesPerSample = 2
)

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes once the data length is known.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}

func (w *writeSeeker) Bytes() []byte {
	return w.buf
}

// Float32ToPCM16 converts samples in [-1, 1] to little-endian 16-bit PCM.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(int16(math.Round(v*pcm16MaxAmpl))))
	}
	return out
}

// EncodeWAV packages PCM16LE chunks as a WAV file.
func EncodeWAV(chunks [][]byte, sampleRate, channels int) ([]byte, error) {
	total := 0
	for _, c := range chunks {
		total += len(c) / bytesPerSample
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, 0, total),
		SourceBitDepth: wavBitDepth,
	}
	for _, c := range chunks {
		for i := 0; i+1 < len(c); i += bytesPerSample {
			buf.Data = append(buf.Data, int(int16(binary.LittleEndian.Uint16(c[i:]))))
		}
	}

	out := &writeSeeker{}
	enc := wav.NewEncoder(out, sampleRate, wavBitDepth, channels, wavPCMFormat)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecodedAudio is interleaved float samples ready for an output stream.
type DecodedAudio struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

func (d *DecodedAudio) Duration() float64 {
	if d.SampleRate == 0 || d.Channels == 0 {
		return 0
	}
	return float64(len(d.Samples)) / float64(d.Channels) / float64(d.SampleRate)
}

// DecodeWAV reads a WAV stream into normalized float32 samples.
func DecodeWAV(r io.ReadSeeker) (*DecodedAudio, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	scale := float32(math.Pow(2, float64(dec.BitDepth)-1))
	samples := make([]float32, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = float32(v) / scale
	}

	return &DecodedAudio{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}
