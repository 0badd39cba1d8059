package session

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/echonote-ai/echonote/pkg/audio"
)

const (
	amplitudeThrottle = 100 * time.Millisecond
	maxBufferChunks   = 150

	backlogQuotaIncrement = 0.25
	maxBacklogQuota       = 2.0
)

// listenerSink is where processed audio goes. Ready reports whether the
// listener is currently reachable; sends are non-blocking.
type listenerSink interface {
	Ready() bool
	SendSingle(pcm []byte)
	SendDual(mic, spk []byte)
}

// recorderSink receives the same pairs for disk persistence.
type recorderSink interface {
	RecordSingle(samples []float32)
	RecordDual(mic, spk []float32)
}

// pipeline runs AGC on each channel, joins the two streams with bounded lag,
// cancels echo, and fans the pairs out to the recorder and the listener. When
// the listener is away (restarting), chunks accumulate in a bounded backlog
// that replays at a capped rate once it returns.
type pipeline struct {
	mode     ChannelMode
	agcMic   *audio.VadAGC
	agcSpk   *audio.VadAGC
	aec      *audio.AEC
	joiner   *joiner
	amp      *amplitudeEmitter
	backlog  *audioBacklog
	quota    float64
	listener listenerSink
	recorder recorderSink
	logger   *log.Logger
}

func newPipeline(mode ChannelMode, listener listenerSink, recorder recorderSink, emit *emitter, logger *log.Logger) *pipeline {
	return &pipeline{
		mode:     mode,
		agcMic:   audio.DefaultVadAGC().WithMasking(true),
		agcSpk:   audio.DefaultVadAGC(),
		aec:      audio.NewAEC(),
		joiner:   newJoiner(),
		amp:      newAmplitudeEmitter(emit),
		backlog:  newAudioBacklog(maxBufferChunks),
		listener: listener,
		recorder: recorder,
		logger:   logger,
	}
}

func (p *pipeline) reset() {
	p.joiner.reset()
	p.agcMic = audio.DefaultVadAGC().WithMasking(true)
	p.agcSpk = audio.DefaultVadAGC()
	p.aec.Reset()
	p.amp.reset()
	p.backlog.clear()
	p.quota = 0
}

func (p *pipeline) ingestMic(chunk []float32) {
	p.agcMic.Process(chunk)
	p.amp.observeMic(chunk)
	p.joiner.pushMic(chunk)
	p.flush()
}

func (p *pipeline) ingestSpeaker(chunk []float32) {
	p.agcSpk.Process(chunk)
	p.amp.observeSpk(chunk)
	p.joiner.pushSpk(chunk)
	p.flush()
}

func (p *pipeline) flush() {
	for {
		mic, spk, ok := p.joiner.popPair(p.mode)
		if !ok {
			return
		}
		p.dispatch(mic, spk)
	}
}

func (p *pipeline) dispatch(mic, spk []float32) {
	processedMic := mic
	if p.mode == MicAndSpeaker {
		cleaned, err := p.aec.ProcessStreaming(mic, spk)
		if err != nil {
			p.logger.Warn("aec failed, passing raw mic", "error", err)
		} else {
			processedMic = cleaned
		}
	}

	if p.recorder != nil {
		switch p.mode {
		case MicOnly:
			p.recorder.RecordSingle(processedMic)
		case SpeakerOnly:
			p.recorder.RecordSingle(spk)
		case MicAndSpeaker:
			p.recorder.RecordDual(processedMic, spk)
		}
	}

	if !p.listener.Ready() {
		p.backlog.push(processedMic, spk)
		return
	}

	p.replayBacklog()
	p.sendToListener(processedMic, spk)
}

// replayBacklog trickles buffered chunks out at a capped rate so the
// reconnected upstream is not burst-flooded: a quarter credit per fresh
// chunk, at most two buffered sends per fresh chunk.
func (p *pipeline) replayBacklog() {
	if p.backlog.empty() {
		return
	}

	p.quota += backlogQuotaIncrement
	if p.quota > maxBacklogQuota {
		p.quota = maxBacklogQuota
	}

	for p.quota >= 1.0 {
		mic, spk, ok := p.backlog.pop()
		if !ok {
			break
		}
		p.sendToListener(mic, spk)
		p.quota -= 1.0
	}
}

func (p *pipeline) sendToListener(mic, spk []float32) {
	switch p.mode {
	case MicOnly:
		p.listener.SendSingle(audio.F32ToI16Bytes(mic))
	case SpeakerOnly:
		p.listener.SendSingle(audio.F32ToI16Bytes(spk))
	case MicAndSpeaker:
		p.listener.SendDual(audio.F32ToI16Bytes(mic), audio.F32ToI16Bytes(spk))
	}
}

// audioBacklog is the bounded FIFO of chunk pairs awaiting a listener.
type audioBacklog struct {
	pairs   [][2][]float32
	maxSize int
}

func newAudioBacklog(maxSize int) *audioBacklog {
	return &audioBacklog{maxSize: maxSize}
}

func (b *audioBacklog) push(mic, spk []float32) {
	if len(b.pairs) >= b.maxSize {
		b.pairs = b.pairs[1:]
	}
	b.pairs = append(b.pairs, [2][]float32{mic, spk})
}

func (b *audioBacklog) pop() (mic, spk []float32, ok bool) {
	if len(b.pairs) == 0 {
		return nil, nil, false
	}
	pair := b.pairs[0]
	b.pairs = b.pairs[1:]
	return pair[0], pair[1], true
}

func (b *audioBacklog) empty() bool { return len(b.pairs) == 0 }

func (b *audioBacklog) size() int { return len(b.pairs) }

func (b *audioBacklog) clear() { b.pairs = nil }

// joiner aligns the mic and speaker streams. Both queues are bounded; when a
// channel is missing, memoised silence substitutes for it.
type joiner struct {
	mic          [][]float32
	spk          [][]float32
	silenceCache map[int][]float32
}

const (
	joinerMaxLag       = 4
	joinerMaxQueueSize = 30
)

func newJoiner() *joiner {
	return &joiner{silenceCache: make(map[int][]float32)}
}

func (j *joiner) reset() {
	j.mic = nil
	j.spk = nil
}

func (j *joiner) silence(n int) []float32 {
	if cached, ok := j.silenceCache[n]; ok {
		return cached
	}
	s := make([]float32, n)
	j.silenceCache[n] = s
	return s
}

func (j *joiner) pushMic(chunk []float32) {
	j.mic = append(j.mic, chunk)
	if len(j.mic) > joinerMaxQueueSize {
		j.mic = j.mic[1:]
	}
}

func (j *joiner) pushSpk(chunk []float32) {
	j.spk = append(j.spk, chunk)
	if len(j.spk) > joinerMaxQueueSize {
		j.spk = j.spk[1:]
	}
}

func (j *joiner) popPair(mode ChannelMode) (mic, spk []float32, ok bool) {
	if len(j.mic) > 0 && len(j.spk) > 0 {
		mic, spk = j.mic[0], j.spk[0]
		j.mic, j.spk = j.mic[1:], j.spk[1:]
		return mic, spk, true
	}

	switch mode {
	case MicOnly:
		if len(j.mic) > 0 {
			mic = j.mic[0]
			j.mic = j.mic[1:]
			return mic, j.silence(len(mic)), true
		}
	case SpeakerOnly:
		if len(j.spk) > 0 {
			spk = j.spk[0]
			j.spk = j.spk[1:]
			return j.silence(len(spk)), spk, true
		}
	case MicAndSpeaker:
		// Tolerate bounded lag; past that, substitute silence for the
		// missing channel rather than stalling the live one.
		if len(j.mic) > joinerMaxLag && len(j.spk) == 0 {
			mic = j.mic[0]
			j.mic = j.mic[1:]
			return mic, j.silence(len(mic)), true
		}
		if len(j.spk) > joinerMaxLag && len(j.mic) == 0 {
			spk = j.spk[0]
			j.spk = j.spk[1:]
			return j.silence(len(spk)), spk, true
		}
	}
	return nil, nil, false
}

// amplitudeEmitter publishes peak levels at most every 100 ms.
type amplitudeEmitter struct {
	emit     *emitter
	micLevel uint16
	spkLevel uint16
	lastEmit time.Time
}

func newAmplitudeEmitter(emit *emitter) *amplitudeEmitter {
	return &amplitudeEmitter{emit: emit, lastEmit: time.Now().Add(-amplitudeThrottle)}
}

func (a *amplitudeEmitter) reset() {
	a.micLevel = 0
	a.spkLevel = 0
	a.lastEmit = time.Now().Add(-amplitudeThrottle)
}

func (a *amplitudeEmitter) observeMic(chunk []float32) {
	a.micLevel = amplitudeLevel(chunk)
	a.emitIfReady()
}

func (a *amplitudeEmitter) observeSpk(chunk []float32) {
	a.spkLevel = amplitudeLevel(chunk)
	a.emitIfReady()
}

func (a *amplitudeEmitter) emitIfReady() {
	if a.emit == nil || time.Since(a.lastEmit) < amplitudeThrottle {
		return
	}
	a.emit.emit(Event{
		Type:         EventAudioAmplitude,
		MicLevel:     a.micLevel,
		SpeakerLevel: a.spkLevel,
	})
	a.lastEmit = time.Now()
}

func amplitudeLevel(chunk []float32) uint16 {
	return uint16(audio.PeakAmplitude(chunk) * 100)
}
