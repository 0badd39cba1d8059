package stt

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIWSURL(t *testing.T) {
	u, err := OpenAIAdapter{}.BuildWSURL("wss://api.openai.com", DefaultListenParams(), 1)
	require.NoError(t, err)
	assert.Contains(t, u.String(), "api.openai.com")
	assert.Contains(t, u.String(), "intent=transcription")
}

func TestOpenAIAudioToMessageBase64(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	msg := OpenAIAdapter{}.AudioToMessage(pcm)
	require.True(t, msg.Text)

	var event struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "input_audio_buffer.append", event.Type)

	decoded, err := base64.StdEncoding.DecodeString(event.Audio)
	require.NoError(t, err)
	assert.Equal(t, pcm, decoded)
}

func TestOpenAIInitialMessage(t *testing.T) {
	params := DefaultListenParams()
	params.Model = "gpt-4o-transcribe"
	params.Languages = langs("en")
	params.SampleRate = 24000

	msg, ok := OpenAIAdapter{}.InitialMessage("", params, 1)
	require.True(t, ok)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "session.update", event["type"])

	session := event["session"].(map[string]interface{})
	assert.Equal(t, "transcription", session["type"])
	input := session["audio"].(map[string]interface{})["input"].(map[string]interface{})
	assert.Equal(t, float64(24000), input["format"].(map[string]interface{})["rate"])
	assert.Equal(t, "gpt-4o-transcribe", input["transcription"].(map[string]interface{})["model"])
}

func TestOpenAIParseCompletedAndDelta(t *testing.T) {
	completed := `{"type":"conversation.item.input_audio_transcription.completed",` +
		`"item_id":"i1","content_index":0,"transcript":"hello world"}`
	responses := OpenAIAdapter{}.ParseResponse(completed)
	require.Len(t, responses, 1)
	tr := responses[0].(*Transcript)
	assert.True(t, tr.IsFinal)
	assert.Equal(t, "hello world", tr.Channel.Alternatives[0].Transcript)
	assert.Len(t, tr.Channel.Alternatives[0].Words, 2)

	delta := `{"type":"conversation.item.input_audio_transcription.delta",` +
		`"item_id":"i1","content_index":0,"delta":"hel"}`
	responses = OpenAIAdapter{}.ParseResponse(delta)
	require.Len(t, responses, 1)
	assert.False(t, responses[0].(*Transcript).IsFinal)
}

func TestOpenAIParseLifecycleIgnored(t *testing.T) {
	for _, raw := range []string{
		`{"type":"session.created","session":{"id":"s1"}}`,
		`{"type":"input_audio_buffer.committed","item_id":"i"}`,
		`{"type":"input_audio_buffer.speech_started","item_id":"i"}`,
	} {
		assert.Empty(t, OpenAIAdapter{}.ParseResponse(raw), raw)
	}
}

func TestOpenAIParseError(t *testing.T) {
	raw := `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`
	responses := OpenAIAdapter{}.ParseResponse(raw)
	require.Len(t, responses, 1)
	e := responses[0].(*StreamError)
	assert.Equal(t, "openai", e.Provider)
	assert.Contains(t, e.ErrorMessage, "invalid_request_error")
}
