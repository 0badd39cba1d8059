package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/echonote-ai/echonote/pkg/audio"
	"github.com/echonote-ai/echonote/pkg/listen"
	"github.com/echonote-ai/echonote/pkg/stt"
)

// handleRealtime upgrades GET /listen and relays the unified protocol to the
// selected vendor through a ListenClient. Binary frames are raw linear16 PCM
// (interleaved when channels=2); text frames are control messages.
func (s *Server) handleRealtime(c *gin.Context) {
	provider, err := s.cfg.ResolveProvider(c.Query("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_provider", "detail": err.Error()})
		return
	}
	apiKey, err := s.cfg.apiKey(provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider_not_configured", "detail": err.Error()})
		return
	}

	channels := 1
	if ch, err := strconv.Atoi(c.Query("channels")); err == nil && ch == 2 {
		channels = 2
	}
	params := stt.ParamsFromQuery(c.Request.URL.Query())

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("ws accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")
	conn.SetReadLimit(1 << 22)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	started := time.Now()
	defer func() {
		s.metrics.RecordSession(context.Background(), provider, time.Since(started))
		s.logger.Info("session closed", "provider", provider, "duration", time.Since(started))
	}()

	builder := listen.NewBuilder().
		Adapter(stt.KindForProvider(provider).Realtime()).
		APIBase(s.cfg.baseURL(provider)).
		APIKey(apiKey).
		Params(params).
		Logger(s.logger)

	if channels == 2 {
		s.relayDual(ctx, conn, builder)
	} else {
		s.relaySingle(ctx, conn, builder)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) relaySingle(ctx context.Context, conn *websocket.Conn, builder *listen.Builder) {
	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	input := make(chan listen.Input, 32)
	results, handle, err := builder.StartSingle(relayCtx, input)
	if err != nil {
		s.writeUpstreamError(ctx, conn, err)
		return
	}
	defer handle.Close()

	go s.pumpClientFrames(relayCtx, conn, func(pcm []byte) {
		trySendInput(input, stt.Audio(pcm))
	}, func(ctrl stt.ControlMessage) {
		trySendInput(input, stt.Control[[]byte](ctrl))
	}, handle, cancel)

	s.pumpResults(relayCtx, conn, results)
}

func (s *Server) relayDual(ctx context.Context, conn *websocket.Conn, builder *listen.Builder) {
	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	input := make(chan listen.DualInput, 32)
	results, handle, err := builder.StartDual(relayCtx, input)
	if err != nil {
		s.writeUpstreamError(ctx, conn, err)
		return
	}
	defer handle.Close()

	go s.pumpClientFrames(relayCtx, conn, func(pcm []byte) {
		mic, spk := audio.Deinterleave(pcm)
		trySendInput(input, stt.Audio(listen.DualFrame{
			Mic: audio.F32ToI16Bytes(mic),
			Spk: audio.F32ToI16Bytes(spk),
		}))
	}, func(ctrl stt.ControlMessage) {
		trySendInput(input, stt.Control[listen.DualFrame](ctrl))
	}, handle, cancel)

	s.pumpResults(relayCtx, conn, results)
}

func trySendInput[T any](ch chan<- stt.Mixed[T], msg stt.Mixed[T]) {
	select {
	case ch <- msg:
	default:
	}
}

// pumpClientFrames reads the downstream socket: binary audio, text control.
// Finalize is forwarded upstream; CloseStream ends the session.
func (s *Server) pumpClientFrames(
	ctx context.Context,
	conn *websocket.Conn,
	onAudio func([]byte),
	onControl func(stt.ControlMessage),
	handle listen.Handle,
	stop context.CancelFunc,
) {
	for {
		kind, payload, err := conn.Read(ctx)
		if err != nil {
			stop()
			return
		}

		switch kind {
		case websocket.MessageBinary:
			if len(payload) > 0 {
				onAudio(payload)
			}
		case websocket.MessageText:
			var ctrl stt.ControlMessage
			if err := json.Unmarshal(payload, &ctrl); err != nil {
				continue
			}
			switch ctrl.Type {
			case stt.ControlFinalize:
				handle.Finalize(ctx)
			case stt.ControlCloseStream:
				stop()
				return
			case stt.ControlKeepAlive:
				onControl(ctrl)
			}
		}
	}
}

// pumpResults serialises upstream responses back to the client as unified
// JSON until the stream ends.
func (s *Server) pumpResults(ctx context.Context, conn *websocket.Conn, results <-chan listen.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			if result.Err != nil {
				s.writeUpstreamError(ctx, conn, result.Err)
				return
			}
			data, err := stt.MarshalResponse(result.Response)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeUpstreamError(ctx context.Context, conn *websocket.Conn, err error) {
	s.logger.Error("upstream failure", "error", err)
	resp := stt.NewStreamError("proxy", err.Error(), nil)
	if data, merr := stt.MarshalResponse(resp); merr == nil {
		_ = conn.Write(ctx, websocket.MessageText, data)
	}
}
