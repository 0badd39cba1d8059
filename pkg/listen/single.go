package listen

import (
	"context"
	"sync"

	"github.com/echonote-ai/echonote/pkg/stt"
)

// Handle exposes finalisation to the session shutdown path.
type Handle interface {
	// Finalize asks the vendor(s) to flush buffered tentative transcripts.
	Finalize(ctx context.Context)
	// ExpectedFinalizeCount is how many from-finalize responses the drain
	// should wait for: 1 per socket.
	ExpectedFinalizeCount() int
	// Close tears the socket(s) down.
	Close()
}

// Client is a connected single-stream session.
type Client struct {
	sock    *socket
	results chan Result
}

// StartSingle connects one socket and wires the outbound audio channel to it.
// Results arrive on the returned channel until the stream ends.
func (b *Builder) StartSingle(ctx context.Context, input <-chan Input) (<-chan Result, Handle, error) {
	conn, err := b.connect(ctx, 1)
	if err != nil {
		return nil, nil, err
	}

	sock := newSocket(conn, b.adapter, b.logger)
	results := make(chan Result, responseBuffer)

	outbound := make(chan stt.Message, outboundBuffer)
	go func() {
		defer close(outbound)
		for {
			select {
			case <-ctx.Done():
				return
			case in, ok := <-input:
				if !ok {
					return
				}
				msg := b.transformInput(in)
				select {
				case outbound <- msg:
				default:
					b.logger.Warn("outbound channel full, dropping frame")
				}
			}
		}
	}()

	go sock.runWriter(ctx, outbound)
	go sock.runKeepAlive(ctx)
	go func() {
		sock.runReader(ctx, results, b.responseTransform(nil))
		close(results)
	}()

	return results, &singleHandle{sock: sock}, nil
}

func (b *Builder) transformInput(in Input) stt.Message {
	if in.IsControl() {
		return controlToMessage(in.Control)
	}
	return b.adapter.AudioToMessage(in.Audio)
}

// responseTransform applies the session offset and, when remap is non-nil,
// the split-dual channel index rewrite. The offset is captured once at
// connect time: vendors report times relative to the socket open, so the
// elapsed-at-connect shift makes them absolute within the session.
func (b *Builder) responseTransform(remap *[2]int) func(stt.StreamResponse) {
	offset := b.offsetSecs()
	extra := b.extra()
	return func(resp stt.StreamResponse) {
		if t, ok := resp.(*stt.Transcript); ok {
			t.ApplyOffset(offset)
			t.SetExtra(extra)
			if remap != nil {
				t.RemapChannelIndex(remap[0], remap[1])
			}
		}
	}
}

type singleHandle struct {
	sock *socket
	once sync.Once
}

func (h *singleHandle) Finalize(ctx context.Context) { h.sock.finalize(ctx) }

func (h *singleHandle) ExpectedFinalizeCount() int { return 1 }

func (h *singleHandle) Close() { h.once.Do(h.sock.close) }
