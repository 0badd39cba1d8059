package session

import (
	"time"

	"github.com/echonote-ai/echonote/pkg/language"
	"github.com/echonote-ai/echonote/pkg/stt"
)

// SessionParams is the caller-facing configuration of one session.
type SessionParams struct {
	SessionID     string
	Languages     []language.Language
	Onboarding    bool
	RecordEnabled bool
	Model         string
	BaseURL       string
	APIKey        string
	Keywords      []string
}

// Context is created by the supervisor and read-only for children. Both
// clocks are kept: monotonic for offset arithmetic, wall for user-facing
// timestamps.
type Context struct {
	Params           SessionParams
	DataDir          string
	StartedAtInstant time.Time
	StartedAtSystem  time.Time
}

type EventType string

const (
	EventConnecting     EventType = "connecting"
	EventConnected      EventType = "connected"
	EventStreamResponse EventType = "stream_response"
	EventAudioAmplitude EventType = "audio_amplitude"
	EventError          EventType = "error"
	EventEnded          EventType = "ended"
)

// Event is what a session surfaces to its consumer (UI, CLI, tests).
type Event struct {
	Type      EventType
	SessionID string

	// EventConnected
	Adapter string

	// EventStreamResponse
	Response stt.StreamResponse

	// EventAudioAmplitude, levels scaled to 0..100
	MicLevel     uint16
	SpeakerLevel uint16

	// EventError
	Error string
}

// emitter fans events out over one buffered channel; a slow consumer loses
// events rather than stalling the audio path.
type emitter struct {
	sessionID string
	ch        chan Event
}

func newEmitter(sessionID string) *emitter {
	return &emitter{sessionID: sessionID, ch: make(chan Event, 1024)}
}

func (e *emitter) emit(ev Event) {
	ev.SessionID = e.sessionID
	select {
	case e.ch <- ev:
	default:
	}
}

func (e *emitter) close() { close(e.ch) }
