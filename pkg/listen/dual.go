package listen

import (
	"context"
	"sync"

	"github.com/echonote-ai/echonote/pkg/audio"
	"github.com/echonote-ai/echonote/pkg/stt"
)

// StartDual connects a two-channel session. Adapters with native
// multichannel get one socket carrying interleaved stereo; everyone else gets
// two sockets whose responses are remapped to channel indexes [0,2] (mic) and
// [1,2] (speaker) and merged.
func (b *Builder) StartDual(ctx context.Context, input <-chan DualInput) (<-chan Result, Handle, error) {
	if b.adapter.SupportsNativeMultichannel() {
		return b.startDualNative(ctx, input)
	}
	return b.startDualSplit(ctx, input)
}

func (b *Builder) startDualNative(ctx context.Context, input <-chan DualInput) (<-chan Result, Handle, error) {
	conn, err := b.connect(ctx, 2)
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
				var msg stt.Message
				if in.IsControl() {
					msg = controlToMessage(in.Control)
				} else {
					msg = b.adapter.AudioToMessage(audio.Interleave(in.Audio.Mic, in.Audio.Spk))
				}
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
		// Native multichannel vendors report their own channel index.
		sock.runReader(ctx, results, b.responseTransform(nil))
		close(results)
	}()

	return results, &singleHandle{sock: sock}, nil
}

func (b *Builder) startDualSplit(ctx context.Context, input <-chan DualInput) (<-chan Result, Handle, error) {
	// Connect both sockets concurrently; either failure aborts the build.
	type dialResult struct {
		sock *socket
		err  error
	}
	dial := func(out chan<- dialResult) {
		conn, err := b.connect(ctx, 1)
		if err != nil {
			out <- dialResult{err: err}
			return
		}
		out <- dialResult{sock: newSocket(conn, b.adapter, b.logger)}
	}

	micCh := make(chan dialResult, 1)
	spkCh := make(chan dialResult, 1)
	go dial(micCh)
	go dial(spkCh)

	micRes, spkRes := <-micCh, <-spkCh
	if micRes.err != nil || spkRes.err != nil {
		if micRes.sock != nil {
			micRes.sock.close()
		}
		if spkRes.sock != nil {
			spkRes.sock.close()
		}
		if micRes.err != nil {
			return nil, nil, micRes.err
		}
		return nil, nil, spkRes.err
	}
	micSock, spkSock := micRes.sock, spkRes.sock

	micOut := make(chan stt.Message, outboundBuffer)
	spkOut := make(chan stt.Message, outboundBuffer)

	go func() {
		defer close(micOut)
		defer close(spkOut)
		for {
			select {
			case <-ctx.Done():
				return
			case in, ok := <-input:
				if !ok {
					return
				}
				if in.IsControl() {
					// Control frames must reach both sockets; block (bounded
					// by ctx) instead of dropping.
					ctrl := controlToMessage(in.Control)
					select {
					case micOut <- ctrl:
					case <-ctx.Done():
						return
					}
					select {
					case spkOut <- ctrl:
					case <-ctx.Done():
						return
					}
					continue
				}
				trySend(micOut, b.adapter.AudioToMessage(in.Audio.Mic))
				trySend(spkOut, b.adapter.AudioToMessage(in.Audio.Spk))
			}
		}
	}()

	results := make(chan Result, responseBuffer)
	var readers sync.WaitGroup
	readers.Add(2)

	go micSock.runWriter(ctx, micOut)
	go micSock.runKeepAlive(ctx)
	go func() {
		defer readers.Done()
		micSock.runReader(ctx, results, b.responseTransform(&[2]int{0, 2}))
	}()

	go spkSock.runWriter(ctx, spkOut)
	go spkSock.runKeepAlive(ctx)
	go func() {
		defer readers.Done()
		spkSock.runReader(ctx, results, b.responseTransform(&[2]int{1, 2}))
	}()

	go func() {
		readers.Wait()
		close(results)
	}()

	return results, &splitHandle{mic: micSock, spk: spkSock}, nil
}

func trySend(ch chan<- stt.Message, msg stt.Message) {
	select {
	case ch <- msg:
	default:
	}
}

type splitHandle struct {
	mic  *socket
	spk  *socket
	once sync.Once
}

func (h *splitHandle) Finalize(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); h.mic.finalize(ctx) }()
	go func() { defer wg.Done(); h.spk.finalize(ctx) }()
	wg.Wait()
}

func (h *splitHandle) ExpectedFinalizeCount() int { return 2 }

func (h *splitHandle) Close() {
	h.once.Do(func() {
		h.mic.close()
		h.spk.close()
	})
}
