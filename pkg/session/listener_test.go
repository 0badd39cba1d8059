package session

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echonote-ai/echonote/pkg/language"
	"github.com/echonote-ai/echonote/pkg/stt"
)

func testListener(params SessionParams, mode ChannelMode) *listenerChild {
	sctx := Context{Params: params}
	return newListenerChild(sctx, mode, newEmitter(params.SessionID), log.Default())
}

func TestListenerAdapterSelection(t *testing.T) {
	en := []language.Language{language.New("en")}
	ko := []language.Language{language.New("ko"), language.New("en")}

	l := testListener(SessionParams{BaseURL: "https://api.hyprnote.com/stt", Languages: en}, MicOnly)
	assert.Equal(t, stt.KindDeepgram, l.adapterKind())

	l = testListener(SessionParams{BaseURL: "https://api.hyprnote.com/stt", Languages: ko}, MicOnly)
	assert.Equal(t, stt.KindSoniox, l.adapterKind())

	l = testListener(SessionParams{BaseURL: "http://localhost:50060/v1", Languages: en}, MicOnly)
	assert.Equal(t, stt.KindArgmax, l.adapterKind())
}

func TestListenerParamsRedemptionTime(t *testing.T) {
	l := testListener(SessionParams{Model: "nova-3"}, MicOnly)
	params := l.listenParams()
	assert.Equal(t, "400", params.CustomQuery["redemption_time_ms"])
	assert.Equal(t, SampleRate, params.SampleRate)

	l = testListener(SessionParams{Model: "nova-3", Onboarding: true}, SpeakerOnly)
	assert.Equal(t, "60", l.listenParams().CustomQuery["redemption_time_ms"])
}

func TestListenerHandleResponseRemapsSingleModes(t *testing.T) {
	l := testListener(SessionParams{SessionID: "s"}, MicOnly)
	tr := stt.NewTranscript()
	stop := l.handleResponse(tr)
	assert.False(t, stop)
	assert.Equal(t, []int{0, 2}, tr.ChannelIndex)

	l = testListener(SessionParams{SessionID: "s"}, SpeakerOnly)
	tr = stt.NewTranscript()
	l.handleResponse(tr)
	assert.Equal(t, []int{1, 2}, tr.ChannelIndex)

	// Dual mode leaves the upstream index alone.
	l = testListener(SessionParams{SessionID: "s"}, MicAndSpeaker)
	tr = stt.NewTranscript()
	l.handleResponse(tr)
	assert.Equal(t, []int{0, 1}, tr.ChannelIndex)
}

func TestListenerHandleResponseStopsOnProviderError(t *testing.T) {
	l := testListener(SessionParams{SessionID: "s"}, MicOnly)

	stop := l.handleResponse(stt.NewStreamError("deepgram", "boom", nil))
	assert.True(t, stop)

	// The error event reaches the consumer.
	var sawError bool
	for {
		select {
		case ev := <-l.emit.ch:
			if ev.Type == EventError {
				sawError = true
				continue
			}
			continue
		default:
		}
		break
	}
	require.True(t, sawError)
}

func TestListenerSinkUnavailableBeforeStart(t *testing.T) {
	l := testListener(SessionParams{}, MicAndSpeaker)
	assert.False(t, l.Ready())

	// Sends before the client exists are dropped, never blocking.
	l.SendSingle([]byte{1})
	l.SendDual([]byte{1}, []byte{2})
}
