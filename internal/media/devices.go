// internal/media/devices.go
package media

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// PermissionState mirrors PermissionStatus.state.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionPrompt  PermissionState = "prompt"
)

// DeviceInfo mirrors MediaDeviceInfo.
type DeviceInfo struct {
	DeviceID string `json:"deviceId"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	GroupID  string `json:"groupId"`
}

// Constraints is the subset of MediaStreamConstraints the facade looks at.
type Constraints struct {
	Audio bool
	Video bool
}

// Devices stands in for navigator.mediaDevices and the Permissions API
// query: capture requests always succeed and always produce the synthetic
// stream.
type Devices struct {
	source  *StreamSource
	logger  *zap.Logger
	granted atomic.Bool
}

// NewDevices wires the facade to its stream source.
func NewDevices(source *StreamSource, logger *zap.Logger) *Devices {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Devices{source: source, logger: logger.Named("devices")}
}

// GetUserMedia resolves with the synthetic session stream and marks the
// permission as granted. It never denies.
func (d *Devices) GetUserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.granted.Store(true)
	d.logger.Debug("getUserMedia resolved with synthetic stream.",
		zap.Bool("audio", c.Audio), zap.Bool("video", c.Video))
	return d.source.GetStream(ctx), nil
}

// EnumerateDevices returns a fixed two-entry microphone list so
// device-selection UI has plausible options to render.
func (d *Devices) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []DeviceInfo{
		{
			DeviceID: "default",
			Kind:     "audioinput",
			Label:    "Default - Synthetic Microphone",
			GroupID:  "fauxmic",
		},
		{
			DeviceID: "communications",
			Kind:     "audioinput",
			Label:    "Communications - Synthetic Microphone",
			GroupID:  "fauxmic",
		},
	}, nil
}

// QueryPermission answers the Permissions API query. Microphone and camera
// are reported granted unconditionally; anything else stays at prompt.
func (d *Devices) QueryPermission(name string) PermissionState {
	switch name {
	case "microphone", "camera":
		return PermissionGranted
	default:
		return PermissionPrompt
	}
}

// Granted reports whether getUserMedia has been answered this session.
func (d *Devices) Granted() bool {
	return d.granted.Load()
}
