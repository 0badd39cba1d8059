package stt

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/echonote-ai/echonote/pkg/language"
)

// ControlMessage is a client-sent lifecycle frame, Deepgram dialect:
// {"type":"KeepAlive"} and friends.
type ControlMessage struct {
	Type string `json:"type"`
}

const (
	ControlKeepAlive   = "KeepAlive"
	ControlFinalize    = "Finalize"
	ControlCloseStream = "CloseStream"
)

func KeepAlive() ControlMessage { return ControlMessage{Type: ControlKeepAlive} }

func Finalize() ControlMessage { return ControlMessage{Type: ControlFinalize} }

// Mixed interleaves audio payloads with control frames over one channel.
// Exactly one of the two fields is meaningful; IsControl discriminates.
type Mixed[A any] struct {
	Audio   A
	Control ControlMessage
}

func Audio[A any](a A) Mixed[A] { return Mixed[A]{Audio: a} }

func Control[A any](c ControlMessage) Mixed[A] { return Mixed[A]{Control: c} }

func (m Mixed[A]) IsControl() bool { return m.Control.Type != "" }

// ListenParams carries the session options every adapter understands.
type ListenParams struct {
	Model       string
	Languages   []language.Language
	SampleRate  int
	Keywords    []string
	CustomQuery map[string]string
}

func DefaultListenParams() ListenParams {
	return ListenParams{SampleRate: 16000}
}

// EncodeQuery writes the params in the proxy's query dialect.
func (p ListenParams) EncodeQuery(q url.Values) {
	if p.Model != "" {
		q.Set("model", p.Model)
	}
	if len(p.Languages) > 0 {
		codes := make([]string, len(p.Languages))
		for i, l := range p.Languages {
			codes[i] = l.BCP47()
		}
		q.Set("language", strings.Join(codes, ","))
	}
	if p.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(p.SampleRate))
	}
	if len(p.Keywords) > 0 {
		q.Set("keyword", strings.Join(p.Keywords, ","))
	}
	for k, v := range p.CustomQuery {
		q.Set(k, v)
	}
}

// ParamsFromQuery is the inverse of EncodeQuery, tolerant of unknown fields.
func ParamsFromQuery(q url.Values) ListenParams {
	p := DefaultListenParams()
	p.Model = q.Get("model")

	if lang := q.Get("language"); lang != "" && lang != "multi" {
		p.Languages = language.ParseList(lang)
	}
	if sr := q.Get("sample_rate"); sr != "" {
		if n, err := strconv.Atoi(sr); err == nil && n > 0 {
			p.SampleRate = n
		}
	}

	keywords := q["keyword"]
	if len(keywords) == 0 {
		keywords = q["keywords"]
	}
	for _, kw := range keywords {
		for _, part := range strings.Split(kw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				p.Keywords = append(p.Keywords, part)
			}
		}
	}
	return p
}

// Word is a single recognized token with timing.
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    *int    `json:"speaker,omitempty"`
	Language   string  `json:"language,omitempty"`
}

type Alternative struct {
	Transcript string   `json:"transcript"`
	Confidence float64  `json:"confidence"`
	Languages  []string `json:"languages,omitempty"`
	Words      []Word   `json:"words"`
}

type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

type Metadata struct {
	RequestID string `json:"request_id,omitempty"`
	ModelUUID string `json:"model_uuid,omitempty"`
}

type Extra struct {
	StartedUnixMillis uint64 `json:"started_unix_millis"`
}

// StreamResponse is the normalised output of every realtime adapter. The
// concrete types below serialise to the Deepgram-compatible wire shape.
type StreamResponse interface {
	streamResponse()
}

const (
	typeResults  = "Results"
	typeMetadata = "Metadata"
	typeError    = "Error"
)

type Transcript struct {
	Type         string   `json:"type"`
	IsFinal      bool     `json:"is_final"`
	SpeechFinal  bool     `json:"speech_final"`
	FromFinalize bool     `json:"from_finalize"`
	Start        float64  `json:"start"`
	Duration     float64  `json:"duration"`
	Channel      Channel  `json:"channel"`
	ChannelIndex []int    `json:"channel_index"`
	Metadata     Metadata `json:"metadata"`
	Extra        Extra    `json:"extra"`
}

type Terminal struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Created   string  `json:"created"`
	Duration  float64 `json:"duration"`
	Channels  int     `json:"channels"`
}

type StreamError struct {
	Type         string `json:"type"`
	ErrorCode    *int   `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message"`
	Provider     string `json:"provider"`
}

func (*Transcript) streamResponse()  {}
func (*Terminal) streamResponse()    {}
func (*StreamError) streamResponse() {}

func NewTranscript() *Transcript {
	return &Transcript{Type: typeResults, ChannelIndex: []int{0, 1}}
}

func NewTerminal(requestID string, duration float64, channels int) *Terminal {
	return &Terminal{Type: typeMetadata, RequestID: requestID, Duration: duration, Channels: channels}
}

func NewStreamError(provider, message string, code *int) *StreamError {
	return &StreamError{Type: typeError, Provider: provider, ErrorMessage: message, ErrorCode: code}
}

// ApplyOffset shifts the transcript and its words by the session offset so
// transcripts stay stitchable across reconnects.
func (t *Transcript) ApplyOffset(secs float64) {
	t.Start += secs
	for i := range t.Channel.Alternatives {
		words := t.Channel.Alternatives[i].Words
		for j := range words {
			words[j].Start += secs
			words[j].End += secs
		}
	}
}

func (t *Transcript) SetExtra(extra Extra) { t.Extra = extra }

func (t *Transcript) RemapChannelIndex(idx, total int) {
	t.ChannelIndex = []int{idx, total}
}

// RemapChannelIndex rewrites the channel index of transcript responses and
// leaves the other variants untouched.
func RemapChannelIndex(r StreamResponse, idx, total int) {
	if t, ok := r.(*Transcript); ok {
		t.RemapChannelIndex(idx, total)
	}
}

func MarshalResponse(r StreamResponse) ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalResponse decodes the unified wire shape back into a concrete variant.
func UnmarshalResponse(raw []byte) (StreamResponse, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case typeResults:
		var t Transcript
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case typeMetadata:
		var t Terminal
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case typeError:
		var e StreamError
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("unknown stream response type %q", probe.Type)
	}
}

// BatchResponse is the normalised result of a file transcription.
type BatchResponse struct {
	Metadata BatchMetadata `json:"metadata"`
	Results  BatchResults  `json:"results"`
}

type BatchMetadata struct {
	RequestID string  `json:"request_id,omitempty"`
	Created   string  `json:"created,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Channels  int     `json:"channels,omitempty"`
}

type BatchResults struct {
	Channels []Channel `json:"channels"`
}
