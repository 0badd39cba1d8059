package listen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echonote-ai/echonote/pkg/language"
	"github.com/echonote-ai/echonote/pkg/stt"
)

// testAdapter connects straight to the test server and decodes the unified
// wire shape, so the suite exercises the client without a vendor.
type testAdapter struct {
	stt.DeepgramAdapter
	native bool
}

func (a testAdapter) SupportsNativeMultichannel() bool { return a.native }

func (testAdapter) BuildWSURL(apiBase string, _ stt.ListenParams, _ int) (*url.URL, error) {
	return url.Parse(apiBase)
}

func (a testAdapter) BuildWSURLWithAPIKey(_ context.Context, apiBase string, p stt.ListenParams, ch int, _ string) (*url.URL, error) {
	return a.BuildWSURL(apiBase, p, ch)
}

func (testAdapter) IsSupportedLanguages([]language.Language, string) bool { return true }

// echoServer answers every binary frame with a canned transcript and every
// finalize control with a from-finalize transcript.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for {
			kind, payload, err := conn.Read(ctx)
			if err != nil {
				return
			}

			fromFinalize := kind == websocket.MessageText && strings.Contains(string(payload), "Finalize")
			tr := stt.NewTranscript()
			tr.IsFinal = true
			tr.FromFinalize = fromFinalize
			tr.Channel = stt.Channel{Alternatives: []stt.Alternative{{
				Transcript: "hello", Confidence: 1.0, Words: []stt.Word{},
			}}}
			data, _ := stt.MarshalResponse(tr)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestStartSingleReceivesTranscripts(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	input := make(chan Input, 4)
	results, handle, err := NewBuilder().
		Adapter(testAdapter{}).
		APIBase(wsURL(server)).
		StartSingle(ctx, input)
	require.NoError(t, err)
	defer handle.Close()

	input <- stt.Audio([]byte{1, 2, 3, 4})

	select {
	case r := <-results:
		require.NoError(t, r.Err)
		tr := r.Response.(*stt.Transcript)
		assert.Equal(t, "hello", tr.Channel.Alternatives[0].Transcript)
	case <-ctx.Done():
		t.Fatal("no response before timeout")
	}

	assert.Equal(t, 1, handle.ExpectedFinalizeCount())
}

func TestStartSingleOffsetInjection(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	started := time.Now().Add(-10 * time.Second)
	wall := time.Now()

	input := make(chan Input, 1)
	results, handle, err := NewBuilder().
		Adapter(testAdapter{}).
		APIBase(wsURL(server)).
		SessionStart(started, wall).
		StartSingle(ctx, input)
	require.NoError(t, err)
	defer handle.Close()

	input <- stt.Audio([]byte{0, 0})

	select {
	case r := <-results:
		require.NoError(t, r.Err)
		tr := r.Response.(*stt.Transcript)
		assert.GreaterOrEqual(t, tr.Start, 10.0, "offset applied")
		assert.Equal(t, uint64(wall.UnixMilli()), tr.Extra.StartedUnixMillis)
	case <-ctx.Done():
		t.Fatal("no response before timeout")
	}
}

func TestStartDualSplitRemapsChannelIndex(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	input := make(chan DualInput, 1)
	results, handle, err := NewBuilder().
		Adapter(testAdapter{native: false}).
		APIBase(wsURL(server)).
		StartDual(ctx, input)
	require.NoError(t, err)
	defer handle.Close()

	assert.Equal(t, 2, handle.ExpectedFinalizeCount())

	input <- stt.Audio(DualFrame{Mic: []byte{1, 1}, Spk: []byte{2, 2}})

	seen := map[int]bool{}
	deadline := time.After(8 * time.Second)
	for len(seen) < 2 {
		select {
		case r := <-results:
			require.NoError(t, r.Err)
			tr := r.Response.(*stt.Transcript)
			require.Len(t, tr.ChannelIndex, 2)
			assert.Equal(t, 2, tr.ChannelIndex[1], "split dual reports two channels")
			seen[tr.ChannelIndex[0]] = true
		case <-deadline:
			t.Fatalf("saw channels %v before timeout", seen)
		}
	}
	assert.True(t, seen[0])
	assert.True(t, seen[1])
}

func TestStartDualNativeUsesOneSocket(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	input := make(chan DualInput)
	_, handle, err := NewBuilder().
		Adapter(testAdapter{native: true}).
		APIBase(wsURL(server)).
		StartDual(ctx, input)
	require.NoError(t, err)
	defer handle.Close()

	assert.Equal(t, int32(1), conns.Load())
	assert.Equal(t, 1, handle.ExpectedFinalizeCount())
}

func TestFinalizeProducesFromFinalizeResponse(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	input := make(chan Input)
	results, handle, err := NewBuilder().
		Adapter(testAdapter{}).
		APIBase(wsURL(server)).
		StartSingle(ctx, input)
	require.NoError(t, err)
	defer handle.Close()

	handle.Finalize(ctx)

	select {
	case r := <-results:
		require.NoError(t, r.Err)
		tr := r.Response.(*stt.Transcript)
		assert.True(t, tr.FromFinalize)
	case <-ctx.Done():
		t.Fatal("no finalize response before timeout")
	}
}

func TestConnectFailureSurfacesError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	input := make(chan Input)
	_, _, err := NewBuilder().
		Adapter(testAdapter{}).
		APIBase("ws://127.0.0.1:1/nothing-here").
		StartSingle(ctx, input)
	assert.Error(t, err)
}
