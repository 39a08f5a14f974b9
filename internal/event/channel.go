package event

import (
	"fmt"
	"strings"
)

// Channel groups events for subscription filtering.
type Channel string

// Domain channels.
const (
	Equipment Channel = "Equipment"
	Sequence  Channel = "Sequence"
	Image     Channel = "Image"
	Process   Channel = "Process"
	General   Channel = "General"
)

// Per-device info channels carry high-rate info snapshots.
const (
	CameraInfo        Channel = "CameraInfo"
	MountInfo         Channel = "MountInfo"
	DomeInfo          Channel = "DomeInfo"
	FocuserInfo       Channel = "FocuserInfo"
	FilterWheelInfo   Channel = "FilterWheelInfo"
	RotatorInfo       Channel = "RotatorInfo"
	GuiderInfo        Channel = "GuiderInfo"
	FlatPanelInfo     Channel = "FlatPanelInfo"
	SwitchInfo        Channel = "SwitchInfo"
	WeatherInfo       Channel = "WeatherInfo"
	SafetyMonitorInfo Channel = "SafetyMonitorInfo"
)

var allChannels = []Channel{
	Equipment, Sequence, Image, Process, General,
	CameraInfo, MountInfo, DomeInfo, FocuserInfo, FilterWheelInfo,
	RotatorInfo, GuiderInfo, FlatPanelInfo, SwitchInfo, WeatherInfo,
	SafetyMonitorInfo,
}

var deviceInfoChannels = map[string]Channel{
	"camera":        CameraInfo,
	"mount":         MountInfo,
	"dome":          DomeInfo,
	"focuser":       FocuserInfo,
	"filterwheel":   FilterWheelInfo,
	"rotator":       RotatorInfo,
	"guider":        GuiderInfo,
	"flatpanel":     FlatPanelInfo,
	"switch":        SwitchInfo,
	"weather":       WeatherInfo,
	"safetymonitor": SafetyMonitorInfo,
}

// Channels returns every channel in declaration order.
func Channels() []Channel {
	return append([]Channel(nil), allChannels...)
}

// ParseChannel resolves a channel name, ignoring case.
func ParseChannel(name string) (Channel, error) {
	for _, ch := range allChannels {
		if strings.EqualFold(string(ch), name) {
			return ch, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

// InfoChannel returns the info channel for a device name such as "focuser".
func InfoChannel(device string) (Channel, bool) {
	ch, ok := deviceInfoChannels[strings.ToLower(device)]
	return ch, ok
}
