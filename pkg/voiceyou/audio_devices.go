package voiceyou

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// DeviceLister enumerates the host's audio devices.
type DeviceLister func() ([]AudioDevice, error)

// ListPortAudioDevices enumerates devices through PortAudio. IDs are indexes
// into portaudio.Devices, the same numbering AudioConfig.DeviceID uses.
func ListPortAudioDevices() ([]AudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, NewDeviceError("failed to initialize audio", err)
	}
	defer portaudio.Terminate()

	defaultInput, _ := portaudio.DefaultInputDevice()
	defaultOutput, _ := portaudio.DefaultOutputDevice()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, NewDeviceError("failed to list audio devices", err)
	}

	devices := make([]AudioDevice, 0, len(infos))
	for i, dev := range infos {
		hostAPIName := "Unknown"
		if dev.HostApi != nil {
			hostAPIName = dev.HostApi.Name
		}
		devices = append(devices, AudioDevice{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         (defaultInput != nil && dev == defaultInput) || (defaultOutput != nil && dev == defaultOutput),
			IsInput:           dev.MaxInputChannels > 0,
			IsOutput:          dev.MaxOutputChannels > 0,
			HostAPI:           hostAPIName,
		})
	}
	return devices, nil
}

// AudioDeviceManager caches the device list and checks devices against an
// AudioConfig before a recording opens them.
type AudioDeviceManager struct {
	mu      sync.RWMutex
	lister  DeviceLister
	devices []AudioDevice
	logger  *Logger
}

func NewAudioDeviceManager(lister DeviceLister) *AudioDeviceManager {
	if lister == nil {
		lister = ListPortAudioDevices
	}
	return &AudioDeviceManager{
		lister:  lister,
		devices: make([]AudioDevice, 0),
		logger:  GetGlobalLogger().WithComponent("AudioDeviceManager"),
	}
}

// RefreshDevices reloads the device list.
func (adm *AudioDeviceManager) RefreshDevices() error {
	devices, err := adm.lister()
	if err != nil {
		adm.logger.WithError(err).Error("Failed to refresh device list")
		return WrapError(err, ErrCodeDevice)
	}

	adm.mu.Lock()
	adm.devices = devices
	adm.mu.Unlock()

	adm.logger.WithField("device_count", len(devices)).Debug("Device list refreshed")
	return nil
}

// GetDevices returns a copy of all known devices.
func (adm *AudioDeviceManager) GetDevices() []AudioDevice {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	devices := make([]AudioDevice, len(adm.devices))
	copy(devices, adm.devices)
	return devices
}

func (adm *AudioDeviceManager) GetInputDevices() []AudioDevice {
	return adm.filter(func(d AudioDevice) bool { return d.IsInput })
}

func (adm *AudioDeviceManager) GetOutputDevices() []AudioDevice {
	return adm.filter(func(d AudioDevice) bool { return d.IsOutput })
}

func (adm *AudioDeviceManager) filter(keep func(AudioDevice) bool) []AudioDevice {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	out := make([]AudioDevice, 0)
	for _, device := range adm.devices {
		if keep(device) {
			out = append(out, device)
		}
	}
	return out
}

func (adm *AudioDeviceManager) GetDefaultInputDevice() (*AudioDevice, error) {
	for _, device := range adm.GetInputDevices() {
		if device.IsDefault {
			d := device
			return &d, nil
		}
	}
	return nil, NewDeviceError("no default input device found", nil)
}

func (adm *AudioDeviceManager) GetDeviceByID(id int) (*AudioDevice, error) {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	for _, device := range adm.devices {
		if device.ID == id {
			d := device
			return &d, nil
		}
	}
	return nil, NewDeviceError(fmt.Sprintf("device with ID %d not found", id), nil)
}

// ValidateInputDevice checks that deviceID can record with cfg.
func (adm *AudioDeviceManager) ValidateInputDevice(deviceID int, cfg *AudioConfig) error {
	device, err := adm.GetDeviceByID(deviceID)
	if err != nil {
		return err
	}
	if !device.IsInput {
		return NewDeviceError(fmt.Sprintf("device '%s' is not an input device", device.Name), nil)
	}
	if device.MaxInputChannels < cfg.Channels {
		return NewDeviceError(fmt.Sprintf("device '%s' supports max %d input channels, requested %d",
			device.Name, device.MaxInputChannels, cfg.Channels), nil)
	}

	if device.DefaultSampleRate > 0 {
		ratio := float64(cfg.SampleRate) / device.DefaultSampleRate
		if ratio < 0.5 || ratio > 2.0 {
			adm.logger.WithFields(map[string]interface{}{
				"device_name":           device.Name,
				"device_sample_rate":    device.DefaultSampleRate,
				"requested_sample_rate": cfg.SampleRate,
			}).Warn("Sample rate significantly different from device default")
		}
	}
	return nil
}

// DeviceInfo renders a device for terminal output.
func DeviceInfo(device AudioDevice) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Device: %s\n", device.Name)
	fmt.Fprintf(&sb, "  ID: %d\n", device.ID)
	fmt.Fprintf(&sb, "  Host API: %s\n", device.HostAPI)
	fmt.Fprintf(&sb, "  Input Channels: %d\n", device.MaxInputChannels)
	fmt.Fprintf(&sb, "  Output Channels: %d\n", device.MaxOutputChannels)
	fmt.Fprintf(&sb, "  Default Sample Rate: %.1f Hz\n", device.DefaultSampleRate)
	fmt.Fprintf(&sb, "  Is Default: %v\n", device.IsDefault)

	caps := make([]string, 0, 2)
	if device.IsInput {
		caps = append(caps, "Input")
	}
	if device.IsOutput {
		caps = append(caps, "Output")
	}
	if len(caps) == 0 {
		caps = append(caps, "None")
	}
	fmt.Fprintf(&sb, "  Capabilities: %s\n", strings.Join(caps, ", "))
	return sb.String()
}

// DeviceTestResult summarises a short capture from one device.
type DeviceTestResult struct {
	Device    AudioDevice
	Callbacks int
	Samples   int
	PeakLevel float64
	RMSLevel  float64
}

// HasSignal reports whether anything above the noise floor was heard.
func (r DeviceTestResult) HasSignal() bool {
	return r.PeakLevel > 0.001
}

// TestInputDevice records from deviceID through mic for duration and reports
// the levels it saw.
func (adm *AudioDeviceManager) TestInputDevice(mic Microphone, deviceID int, duration time.Duration) (*DeviceTestResult, error) {
	cfg := NewAudioConfig()
	id := deviceID
	cfg.DeviceID = &id
	if err := adm.ValidateInputDevice(deviceID, cfg); err != nil {
		return nil, err
	}
	device, _ := adm.GetDeviceByID(deviceID)

	var mu sync.Mutex
	result := &DeviceTestResult{Device: *device}
	var sumSquares float64

	stream, err := mic.Open(cfg, func(in []float32) {
		mu.Lock()
		defer mu.Unlock()
		result.Callbacks++
		for _, s := range in {
			v := math.Abs(float64(s))
			if v > result.PeakLevel {
				result.PeakLevel = v
			}
			sumSquares += float64(s) * float64(s)
		}
		result.Samples += len(in)
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeDevice)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, NewDeviceError("failed to start device test", err)
	}
	time.Sleep(duration)
	if err := stream.Stop(); err != nil {
		return nil, NewDeviceError("failed to stop device test", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if result.Samples > 0 {
		result.RMSLevel = math.Sqrt(sumSquares / float64(result.Samples))
	}
	adm.logger.WithFields(map[string]interface{}{
		"device_name": device.Name,
		"callbacks":   result.Callbacks,
		"peak":        result.PeakLevel,
	}).Info("Device test completed")
	return result, nil
}
