package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/echonote-ai/echonote/pkg/listen"
	"github.com/echonote-ai/echonote/pkg/stt"
)

const finalizeDrainTimeout = 5 * time.Second

var errStreamEnded = errors.New("session: upstream stream ended")

// listenerChild owns the STT connection. It doubles as the pipeline's sink:
// Ready flips while the child is (re)starting so the pipeline buffers instead
// of dropping.
type listenerChild struct {
	sctx   Context
	mode   ChannelMode
	emit   *emitter
	logger *log.Logger

	ready    atomic.Bool
	mu       sync.Mutex
	singleCh chan listen.Input
	dualCh   chan listen.DualInput
}

func newListenerChild(sctx Context, mode ChannelMode, emit *emitter, logger *log.Logger) *listenerChild {
	return &listenerChild{sctx: sctx, mode: mode, emit: emit, logger: logger}
}

func (l *listenerChild) name() string { return "listener" }

func (l *listenerChild) Ready() bool { return l.ready.Load() }

func (l *listenerChild) SendSingle(pcm []byte) {
	l.mu.Lock()
	ch := l.singleCh
	l.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- stt.Audio(pcm):
	default:
	}
}

func (l *listenerChild) SendDual(mic, spk []byte) {
	l.mu.Lock()
	ch := l.dualCh
	l.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- stt.Audio(listen.DualFrame{Mic: mic, Spk: spk}):
	default:
	}
}

func (l *listenerChild) adapterKind() stt.AdapterKind {
	return stt.KindFromURLAndLanguages(l.sctx.Params.BaseURL, l.sctx.Params.Languages, l.sctx.Params.Model)
}

func (l *listenerChild) listenParams() stt.ListenParams {
	redemption := "400"
	if l.sctx.Params.Onboarding {
		redemption = "60"
	}
	return stt.ListenParams{
		Model:      l.sctx.Params.Model,
		Languages:  l.sctx.Params.Languages,
		SampleRate: SampleRate,
		Keywords:   l.sctx.Params.Keywords,
		CustomQuery: map[string]string{
			"redemption_time_ms": redemption,
		},
	}
}

func (l *listenerChild) run(ctx context.Context) error {
	l.emit.emit(Event{Type: EventConnecting})

	kind := l.adapterKind()
	builder := listen.NewBuilder().
		Adapter(kind.Realtime()).
		APIBase(l.sctx.Params.BaseURL).
		APIKey(l.sctx.Params.APIKey).
		Params(l.listenParams()).
		Logger(l.logger).
		SessionStart(l.sctx.StartedAtInstant, l.sctx.StartedAtSystem)

	// The client lives on its own context so the finalize drain can keep
	// reading after the child has been asked to stop.
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	var results <-chan listen.Result
	var handle listen.Handle
	var err error

	if l.mode == MicAndSpeaker {
		dualCh := make(chan listen.DualInput, 32)
		results, handle, err = builder.StartDual(clientCtx, dualCh)
		if err == nil {
			l.mu.Lock()
			l.dualCh, l.singleCh = dualCh, nil
			l.mu.Unlock()
		}
	} else {
		singleCh := make(chan listen.Input, 32)
		results, handle, err = builder.StartSingle(clientCtx, singleCh)
		if err == nil {
			l.mu.Lock()
			l.singleCh, l.dualCh = singleCh, nil
			l.mu.Unlock()
		}
	}
	if err != nil {
		l.emit.emit(Event{Type: EventError, Error: fmt.Sprintf("listen connect failed: %v", err)})
		return fmt.Errorf("listen connect: %w", err)
	}
	defer handle.Close()
	defer l.ready.Store(false)

	l.ready.Store(true)
	l.emit.emit(Event{Type: EventConnected, Adapter: string(kind)})

	for {
		select {
		case <-ctx.Done():
			l.drainFinalize(results, handle)
			return nil

		case result, ok := <-results:
			if !ok {
				l.logger.Info("listen stream ended")
				return errStreamEnded
			}
			if result.Err != nil {
				if errors.Is(result.Err, listen.ErrStreamTimeout) {
					l.logger.Info("listen stream timeout, ending session")
					return nil
				}
				return fmt.Errorf("listen stream: %w", result.Err)
			}
			if stop := l.handleResponse(result.Response); stop {
				return errStreamEnded
			}
		}
	}
}

// handleResponse emits the response, remapping the channel index for the
// single-channel modes so downstream always sees the two-channel layout.
// A provider error stops the session.
func (l *listenerChild) handleResponse(resp stt.StreamResponse) (stop bool) {
	if e, ok := resp.(*stt.StreamError); ok {
		l.logger.Error("stream provider error",
			"provider", e.Provider, "message", e.ErrorMessage, "code", e.ErrorCode)
		l.emit.emit(Event{
			Type:  EventError,
			Error: fmt.Sprintf("[%s] %s", e.Provider, e.ErrorMessage),
		})
		return true
	}

	switch l.mode {
	case MicOnly:
		stt.RemapChannelIndex(resp, 0, 2)
	case SpeakerOnly:
		stt.RemapChannelIndex(resp, 1, 2)
	}

	l.emit.emit(Event{Type: EventStreamResponse, Response: resp})
	return false
}

// drainFinalize sends the finalise control and relays responses until the
// expected number of from-finalize transcripts arrived or the drain window
// closes.
func (l *listenerChild) drainFinalize(results <-chan listen.Result, handle listen.Handle) {
	drainCtx, cancel := context.WithTimeout(context.Background(), finalizeDrainTimeout)
	defer cancel()

	handle.Finalize(drainCtx)

	expected := handle.ExpectedFinalizeCount()
	count := 0

	for {
		select {
		case <-drainCtx.Done():
			l.logger.Warn("finalize drain timed out", "got", count, "expected", expected)
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			if result.Err != nil {
				return
			}
			if t, isTranscript := result.Response.(*stt.Transcript); isTranscript && t.FromFinalize {
				count++
			}
			l.handleResponse(result.Response)
			if count >= expected {
				l.logger.Info("finalize drain complete", "count", count)
				return
			}
		}
	}
}
