package session

import "github.com/echonote-ai/echonote/pkg/capture"

// SampleRate is the session's working rate; everything downstream of the
// resampler runs at 16 kHz.
const SampleRate = 16000

// ChannelMode says which capture channels a session consumes. It is derived
// once at session start and immutable afterwards.
type ChannelMode int

const (
	MicOnly ChannelMode = iota
	SpeakerOnly
	MicAndSpeaker
)

func (m ChannelMode) String() string {
	switch m {
	case MicOnly:
		return "mic_only"
	case SpeakerOnly:
		return "speaker_only"
	default:
		return "mic_and_speaker"
	}
}

func (m ChannelMode) UsesMic() bool { return m == MicOnly || m == MicAndSpeaker }

func (m ChannelMode) UsesSpeaker() bool { return m == SpeakerOnly || m == MicAndSpeaker }

// DetermineChannelMode picks the mode from the onboarding flag and the device
// snapshot:
//
//   - onboarding sessions listen to the speaker only;
//   - headphones always allow both channels (no echo path);
//   - a builtin mic on a folded, inactive display cannot hear anyone;
//   - builtin mic plus builtin output would feed back, so mic only.
func DetermineChannelMode(onboarding bool, state capture.DeviceState) ChannelMode {
	if onboarding {
		return SpeakerOnly
	}

	if state.IsHeadphone != nil && *state.IsHeadphone {
		return MicAndSpeaker
	}

	inputIsBuiltin := state.HasBuiltinMic && !state.IsInputExternal
	outputIsBuiltin := !state.IsOutputExternal

	if inputIsBuiltin && state.IsFoldable && state.IsDisplayInactive {
		return SpeakerOnly
	}

	if inputIsBuiltin && outputIsBuiltin {
		return MicOnly
	}

	return MicAndSpeaker
}
