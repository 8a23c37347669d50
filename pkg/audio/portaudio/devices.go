package portaudio

import (
	"fmt"

	pa "github.com/gordonklaus/portaudio"
)

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListInputDevices returns every device with at least one input channel.
func ListInputDevices() ([]DeviceInfo, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer pa.Terminate()

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}

	var defaultName string
	if def, err := pa.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var out []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultName,
		})
	}
	return out, nil
}
