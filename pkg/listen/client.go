package listen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"github.com/echonote-ai/echonote/pkg/stt"
)

const (
	// ConnectTimeout bounds the WebSocket handshake.
	ConnectTimeout = 3 * time.Second
	// StreamInactivityTimeout ends a session that has gone silent upstream.
	StreamInactivityTimeout = 15 * time.Minute

	keepAliveInterval = 5 * time.Second
	responseBuffer    = 100
	outboundBuffer    = 32
)

// ErrStreamTimeout is delivered when no upstream traffic arrives within
// StreamInactivityTimeout.
var ErrStreamTimeout = errors.New("listen: stream inactivity timeout")

// Result is one inbound item: a parsed response or a terminal error.
type Result struct {
	Response stt.StreamResponse
	Err      error
}

// Input is the outbound element type: audio bytes or a control frame.
type Input = stt.Mixed[[]byte]

// DualFrame carries one aligned mic/speaker pair.
type DualFrame struct {
	Mic []byte
	Spk []byte
}

// DualInput is the outbound element type of a dual-channel session.
type DualInput = stt.Mixed[DualFrame]

// Builder assembles a client. The zero value is unusable; start from
// NewBuilder.
type Builder struct {
	adapter stt.RealtimeAdapter
	apiBase string
	apiKey  string
	params  stt.ListenParams
	header  http.Header
	logger  *log.Logger

	sessionStart     time.Time
	sessionStartUnix time.Time
}

func NewBuilder() *Builder {
	return &Builder{
		adapter: stt.DeepgramAdapter{},
		params:  stt.DefaultListenParams(),
		header:  http.Header{},
		logger:  log.Default(),
	}
}

func (b *Builder) Adapter(a stt.RealtimeAdapter) *Builder { b.adapter = a; return b }

func (b *Builder) APIBase(base string) *Builder { b.apiBase = base; return b }

func (b *Builder) APIKey(key string) *Builder { b.apiKey = key; return b }

func (b *Builder) Params(p stt.ListenParams) *Builder { b.params = p; return b }

func (b *Builder) ExtraHeader(name, value string) *Builder { b.header.Set(name, value); return b }

func (b *Builder) Logger(l *log.Logger) *Builder { b.logger = l; return b }

// SessionStart arms offset injection: the monotonic anchor shifts start times
// and the wall clock is stamped into every transcript's extra block, keeping
// transcripts stitchable across reconnects.
func (b *Builder) SessionStart(startedAt, startedAtWall time.Time) *Builder {
	b.sessionStart = startedAt
	b.sessionStartUnix = startedAtWall
	return b
}

func (b *Builder) offsetSecs() float64 {
	if b.sessionStart.IsZero() {
		return 0
	}
	return time.Since(b.sessionStart).Seconds()
}

func (b *Builder) extra() stt.Extra {
	if b.sessionStartUnix.IsZero() {
		return stt.Extra{}
	}
	return stt.Extra{StartedUnixMillis: uint64(b.sessionStartUnix.UnixMilli())}
}

// connect dials the vendor socket with the handshake timeout, the auth
// header, and the adapter's initial config frame.
func (b *Builder) connect(ctx context.Context, channels int) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	u, err := b.adapter.BuildWSURLWithAPIKey(dialCtx, b.apiBase, b.params, channels, b.apiKey)
	if err != nil {
		return nil, fmt.Errorf("build ws url: %w", err)
	}

	header := b.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if name, value, ok := b.adapter.BuildAuthHeader(b.apiKey); ok {
		header.Set(name, value)
	}

	conn, _, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", u.Host, err)
	}
	conn.SetReadLimit(1 << 22)

	if initial, ok := b.adapter.InitialMessage(b.apiKey, b.params, channels); ok {
		if err := writeMessage(ctx, conn, initial); err != nil {
			conn.Close(websocket.StatusAbnormalClosure, "initial message failed")
			return nil, fmt.Errorf("send initial message: %w", err)
		}
	}
	return conn, nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg stt.Message) error {
	kind := websocket.MessageBinary
	if msg.Text {
		kind = websocket.MessageText
	}
	return conn.Write(ctx, kind, msg.Data)
}

func controlToMessage(c stt.ControlMessage) stt.Message {
	data, _ := json.Marshal(c)
	return stt.TextMessage(string(data))
}

// socket wraps one vendor connection with its writer, keep-alive, and reader
// loops.
type socket struct {
	conn    *websocket.Conn
	adapter stt.RealtimeAdapter
	logger  *log.Logger
	done    chan struct{}
}

func newSocket(conn *websocket.Conn, adapter stt.RealtimeAdapter, logger *log.Logger) *socket {
	return &socket{conn: conn, adapter: adapter, logger: logger, done: make(chan struct{})}
}

// runWriter drains the outbound channel into the socket. Closing the channel
// stops the writer without closing the socket (finalise still needs it).
func (s *socket) runWriter(ctx context.Context, outbound <-chan stt.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			if err := writeMessage(ctx, s.conn, msg); err != nil {
				s.logger.Debug("ws write failed", "error", err)
				return
			}
		}
	}
}

func (s *socket) runKeepAlive(ctx context.Context) {
	msg, ok := s.adapter.KeepAliveMessage()
	if !ok {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := writeMessage(ctx, s.conn, msg); err != nil {
				return
			}
		}
	}
}

// runReader parses inbound frames into results until the socket closes, the
// context ends, or the inactivity timeout fires.
func (s *socket) runReader(ctx context.Context, results chan<- Result, transform func(stt.StreamResponse)) {
	defer close(s.done)

	for {
		readCtx, cancel := context.WithTimeout(ctx, StreamInactivityTimeout)
		kind, payload, err := s.conn.Read(readCtx)
		cancel()

		if err != nil {
			switch {
			case ctx.Err() != nil:
				// Session cancelled; not an upstream failure.
			case errors.Is(err, context.DeadlineExceeded):
				sendResult(ctx, results, Result{Err: ErrStreamTimeout})
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
				// Clean upstream close ends the stream silently.
			default:
				sendResult(ctx, results, Result{Err: err})
			}
			return
		}

		if kind != websocket.MessageText {
			continue
		}

		for _, resp := range s.adapter.ParseResponse(string(payload)) {
			if transform != nil {
				transform(resp)
			}
			sendResult(ctx, results, Result{Response: resp})
		}
	}
}

func sendResult(ctx context.Context, results chan<- Result, r Result) {
	select {
	case results <- r:
	case <-ctx.Done():
	}
}

func (s *socket) close() {
	s.conn.Close(websocket.StatusNormalClosure, "")
}

// finalize sends the adapter's finalise frame without waiting; the drain
// itself happens on the shared results channel.
func (s *socket) finalize(ctx context.Context) {
	if err := writeMessage(ctx, s.conn, s.adapter.FinalizeMessage()); err != nil {
		s.logger.Debug("finalize write failed", "error", err)
	}
}
