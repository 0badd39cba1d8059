package capture

import (
	"math"
	"strings"

	"github.com/gen2brain/malgo"
)

func f32frombits(b uint32) float32 { return math.Float32frombits(b) }

// Device is one enumerated audio endpoint.
type Device struct {
	ID        malgo.DeviceID
	UID       string
	Name      string
	IsInput   bool
	IsDefault bool
}

// ListInputs enumerates capture devices.
func (e *Engine) ListInputs() ([]Device, error) {
	return e.list(malgo.Capture, true)
}

// ListOutputs enumerates playback devices.
func (e *Engine) ListOutputs() ([]Device, error) {
	return e.list(malgo.Playback, false)
}

func (e *Engine) list(kind malgo.DeviceType, isInput bool) ([]Device, error) {
	infos, err := e.ctx.Devices(kind)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:        info.ID,
			UID:       info.ID.String(),
			Name:      info.Name(),
			IsInput:   isInput,
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}

// DeviceState is the introspection snapshot the channel-mode policy reads.
type DeviceState struct {
	IsHeadphone       *bool
	IsFoldable        bool
	IsDisplayInactive bool
	HasBuiltinMic     bool
	IsInputExternal   bool
	IsOutputExternal  bool
}

var headphoneMarkers = []string{
	"headphone", "headset", "airpods", "earbuds", "earphone", "buds",
}

var builtinMarkers = []string{
	"built-in", "builtin", "internal", "macbook",
}

func nameMatchesAny(name string, markers []string) bool {
	lower := strings.ToLower(name)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// DetectDeviceState infers the state from the default devices' names. The
// headphone probe returns nil when nothing conclusive is found.
func (e *Engine) DetectDeviceState() DeviceState {
	var state DeviceState

	if outputs, err := e.ListOutputs(); err == nil {
		for _, d := range outputs {
			if !d.IsDefault {
				continue
			}
			if nameMatchesAny(d.Name, headphoneMarkers) {
				yes := true
				state.IsHeadphone = &yes
			}
			state.IsOutputExternal = !nameMatchesAny(d.Name, builtinMarkers)
		}
	}

	if inputs, err := e.ListInputs(); err == nil {
		for _, d := range inputs {
			if nameMatchesAny(d.Name, builtinMarkers) {
				state.HasBuiltinMic = true
			}
			if d.IsDefault {
				state.IsInputExternal = !nameMatchesAny(d.Name, builtinMarkers)
			}
		}
	}

	return state
}
