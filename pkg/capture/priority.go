package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PriorityFileName is the sidecar the device preferences persist into.
const PriorityFileName = "audio-priority.json"

// StoredDevice remembers an endpoint across restarts.
type StoredDevice struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	IsInput  bool   `json:"is_input"`
	LastSeen int64  `json:"last_seen"`
}

// LastSeenRelative renders the age for display ("now", "5m ago", ...).
func (d StoredDevice) LastSeenRelative(now time.Time) string {
	interval := now.Unix() - d.LastSeen
	if interval < 0 {
		interval = 0
	}

	switch {
	case interval < 60:
		return "now"
	case interval < 3600:
		return fmt.Sprintf("%dm ago", interval/60)
	case interval < 86400:
		return fmt.Sprintf("%dh ago", interval/3600)
	case interval < 604800:
		return fmt.Sprintf("%dd ago", interval/86400)
	case interval < 2592000:
		return fmt.Sprintf("%dw ago", interval/604800)
	default:
		return fmt.Sprintf("%dmo ago", interval/2592000)
	}
}

// PriorityState is the persisted shape. The aliases keep files written by
// earlier builds loadable.
type PriorityState struct {
	InputPriorities  []string       `json:"input_priorities"`
	OutputPriorities []string       `json:"output_priorities"`
	HiddenInputs     []string       `json:"hidden_inputs"`
	HiddenOutputs    []string       `json:"hidden_outputs"`
	KnownDevices     []StoredDevice `json:"known_devices"`
}

type priorityStateCompat struct {
	PriorityState
	SpeakerPriorities []string `json:"speaker_priorities"`
	HiddenMics        []string `json:"hidden_mics"`
	HiddenSpeakers    []string `json:"hidden_speakers"`
}

// LoadPriorityState reads the sidecar; a missing file yields the zero state.
func LoadPriorityState(dir string) (PriorityState, error) {
	data, err := os.ReadFile(filepath.Join(dir, PriorityFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return PriorityState{}, nil
		}
		return PriorityState{}, err
	}

	var compat priorityStateCompat
	if err := json.Unmarshal(data, &compat); err != nil {
		return PriorityState{}, fmt.Errorf("parse %s: %w", PriorityFileName, err)
	}

	state := compat.PriorityState
	if len(state.OutputPriorities) == 0 {
		state.OutputPriorities = compat.SpeakerPriorities
	}
	if len(state.HiddenInputs) == 0 {
		state.HiddenInputs = compat.HiddenMics
	}
	if len(state.HiddenOutputs) == 0 {
		state.HiddenOutputs = compat.HiddenSpeakers
	}
	return state, nil
}

// SavePriorityState writes the sidecar atomically.
func SavePriorityState(dir string, state PriorityState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dir, PriorityFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// PriorityManager applies the stored preferences to live device lists.
type PriorityManager struct {
	state PriorityState
	now   func() time.Time
}

func NewPriorityManager(state PriorityState) *PriorityManager {
	return &PriorityManager{state: state, now: time.Now}
}

func (m *PriorityManager) State() PriorityState { return m.state }

// RememberDevice records or refreshes a device in the known list.
func (m *PriorityManager) RememberDevice(uid, name string, isInput bool) {
	for i := range m.state.KnownDevices {
		if m.state.KnownDevices[i].UID == uid {
			m.state.KnownDevices[i].Name = name
			m.state.KnownDevices[i].LastSeen = m.now().Unix()
			return
		}
	}
	m.state.KnownDevices = append(m.state.KnownDevices, StoredDevice{
		UID:      uid,
		Name:     name,
		IsInput:  isInput,
		LastSeen: m.now().Unix(),
	})
}

// ForgetDevice removes a device from every list.
func (m *PriorityManager) ForgetDevice(uid string) {
	m.state.KnownDevices = filterDevices(m.state.KnownDevices, uid)
	m.state.InputPriorities = filterUIDs(m.state.InputPriorities, uid)
	m.state.OutputPriorities = filterUIDs(m.state.OutputPriorities, uid)
	m.state.HiddenInputs = filterUIDs(m.state.HiddenInputs, uid)
	m.state.HiddenOutputs = filterUIDs(m.state.HiddenOutputs, uid)
}

func (m *PriorityManager) IsHidden(d Device) bool {
	if d.IsInput {
		return containsUID(m.state.HiddenInputs, d.UID)
	}
	return containsUID(m.state.HiddenOutputs, d.UID)
}

func (m *PriorityManager) HideDevice(d Device) {
	list := &m.state.HiddenOutputs
	if d.IsInput {
		list = &m.state.HiddenInputs
	}
	if !containsUID(*list, d.UID) {
		*list = append(*list, d.UID)
	}
}

func (m *PriorityManager) UnhideDevice(d Device) {
	if d.IsInput {
		m.state.HiddenInputs = filterUIDs(m.state.HiddenInputs, d.UID)
	} else {
		m.state.HiddenOutputs = filterUIDs(m.state.HiddenOutputs, d.UID)
	}
}

// Promote moves a device to the front of its direction's priority list.
func (m *PriorityManager) Promote(d Device) {
	list := &m.state.OutputPriorities
	if d.IsInput {
		list = &m.state.InputPriorities
	}
	*list = append([]string{d.UID}, filterUIDs(*list, d.UID)...)
}

// Ordered sorts devices by stored priority; unknown devices keep their
// enumeration order at the tail, so the ordering is stable across restarts.
func (m *PriorityManager) Ordered(devices []Device) []Device {
	priorities := m.state.OutputPriorities
	if len(devices) > 0 && devices[0].IsInput {
		priorities = m.state.InputPriorities
	}

	rank := make(map[string]int, len(priorities))
	for i, uid := range priorities {
		rank[uid] = i
	}

	ordered := make([]Device, 0, len(devices))
	for _, uid := range priorities {
		for _, d := range devices {
			if d.UID == uid {
				ordered = append(ordered, d)
			}
		}
	}
	for _, d := range devices {
		if _, known := rank[d.UID]; !known {
			ordered = append(ordered, d)
		}
	}
	return ordered
}

func filterUIDs(list []string, uid string) []string {
	out := list[:0]
	for _, u := range list {
		if u != uid {
			out = append(out, u)
		}
	}
	return out
}

func filterDevices(list []StoredDevice, uid string) []StoredDevice {
	out := list[:0]
	for _, d := range list {
		if d.UID != uid {
			out = append(out, d)
		}
	}
	return out
}

func containsUID(list []string, uid string) bool {
	for _, u := range list {
		if u == uid {
			return true
		}
	}
	return false
}
