package voiceyou

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// InputStream is an opened capture stream; Close releases the hardware.
type InputStream interface {
	Start() error
	Stop() error
	Close() error
}

// Microphone opens capture streams. onSamples is invoked from the audio
// thread with a buffer that is reused between calls.
type Microphone interface {
	Open(config *AudioConfig, onSamples func([]float32)) (InputStream, error)
}

// PortAudioMicrophone captures from the default or a configured input device.
type PortAudioMicrophone struct {
	logger *Logger
}

func NewPortAudioMicrophone() *PortAudioMicrophone {
	return &PortAudioMicrophone{
		logger: GetGlobalLogger().WithComponent("Microphone"),
	}
}

func (m *PortAudioMicrophone) Open(config *AudioConfig, onSamples func([]float32)) (InputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, NewDeviceError("failed to initialize audio subsystem", err)
	}

	callback := func(in []float32) {
		onSamples(in)
	}

	var (
		stream *portaudio.Stream
		err    error
	)
	if config.DeviceID != nil {
		stream, err = m.openDevice(*config.DeviceID, config, callback)
	} else {
		stream, err = portaudio.OpenDefaultStream(config.Channels, 0, float64(config.SampleRate), config.BufferSize, callback)
	}
	if err != nil {
		portaudio.Terminate()
		return nil, NewDeviceError("failed to open microphone", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"sample_rate": config.SampleRate,
		"channels":    config.Channels,
		"buffer_size": config.BufferSize,
	}).Debug("Input stream opened")

	return &portAudioInput{stream: stream}, nil
}

func (m *PortAudioMicrophone) openDevice(id int, config *AudioConfig, callback func([]float32)) (*portaudio.Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("device with ID %d not found", id)
	}
	dev := devices[id]
	if dev.MaxInputChannels < config.Channels {
		return nil, fmt.Errorf("device '%s' supports max %d input channels, requested %d",
			dev.Name, dev.MaxInputChannels, config.Channels)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = config.Channels
	params.SampleRate = float64(config.SampleRate)
	params.FramesPerBuffer = config.BufferSize
	return portaudio.OpenStream(params, callback)
}

type portAudioInput struct {
	stream *portaudio.Stream
}

func (p *portAudioInput) Start() error {
	return p.stream.Start()
}

func (p *portAudioInput) Stop() error {
	return p.stream.Stop()
}

// Close closes the stream and drops this stream's hold on PortAudio.
func (p *portAudioInput) Close() error {
	err := p.stream.Close()
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	return err
}
