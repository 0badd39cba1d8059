package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/echonote-ai/echonote/pkg/audio"
)

const recorderFlushInterval = time.Second

type recMsg struct {
	mic  []float32
	spk  []float32
	dual bool
}

// recorderChild appends the session's audio to a resumable WAV; dual pairs
// are mixed down and, in debug mode, also written per channel. On stop the
// WAV is transcoded to Ogg via a temp file and atomic rename; a transcode
// failure keeps the WAV.
type recorderChild struct {
	sctx   Context
	logger *log.Logger

	msgs chan recMsg
	once sync.Once

	writer    *audio.WavWriter
	writerMic *audio.WavWriter
	writerSpk *audio.WavWriter
	wavPath   string
	oggPath   string
	lastFlush time.Time
}

func newRecorderChild(sctx Context, logger *log.Logger) *recorderChild {
	return &recorderChild{
		sctx:   sctx,
		logger: logger,
		msgs:   make(chan recMsg, 64),
	}
}

func (r *recorderChild) name() string { return "recorder" }

func (r *recorderChild) RecordSingle(samples []float32) {
	select {
	case r.msgs <- recMsg{mic: samples}:
	default:
	}
}

func (r *recorderChild) RecordDual(mic, spk []float32) {
	select {
	case r.msgs <- recMsg{mic: mic, spk: spk, dual: true}:
	default:
	}
}

// debugMode enables per-channel recordings.
func debugMode() bool {
	v := os.Getenv("HYPRNOTE_DEBUG")
	return v != "" && v != "0" && v != "false"
}

func (r *recorderChild) sessionDir() string {
	return filepath.Join(r.sctx.DataDir, "sessions", r.sctx.Params.SessionID)
}

func (r *recorderChild) preStart() error {
	dir := r.sessionDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	r.wavPath = filepath.Join(dir, "audio.wav")
	r.oggPath = filepath.Join(dir, "audio.ogg")

	// A previous Ogg means this session is being resumed: decode it back to
	// WAV so appends continue a single logical recording.
	if _, err := os.Stat(r.oggPath); err == nil {
		if err := audio.DecodeOggToMonoWav(r.oggPath, r.wavPath); err != nil {
			return fmt.Errorf("decode prior recording: %w", err)
		}
		if err := os.Remove(r.oggPath); err != nil {
			return err
		}
	}

	var err error
	if _, statErr := os.Stat(r.wavPath); statErr == nil {
		r.writer, err = audio.AppendWav(r.wavPath)
	} else {
		r.writer, err = audio.CreateWav(r.wavPath, SampleRate)
	}
	if err != nil {
		return fmt.Errorf("open session wav: %w", err)
	}

	if debugMode() {
		r.writerMic, err = openOrCreateWav(filepath.Join(dir, "audio_mic.wav"))
		if err != nil {
			return err
		}
		r.writerSpk, err = openOrCreateWav(filepath.Join(dir, "audio_spk.wav"))
		if err != nil {
			return err
		}
	}

	r.lastFlush = time.Now()
	return nil
}

func openOrCreateWav(path string) (*audio.WavWriter, error) {
	if _, err := os.Stat(path); err == nil {
		return audio.AppendWav(path)
	}
	return audio.CreateWav(path, SampleRate)
}

func (r *recorderChild) run(ctx context.Context) error {
	if err := r.preStart(); err != nil {
		return err
	}
	// Finalisation always runs, supervisor restarts included.
	defer r.postStop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-r.msgs:
			if err := r.handle(msg); err != nil {
				// Disk trouble is best-effort: log and keep the session alive.
				r.logger.Error("recorder write failed", "error", err)
			}
		}
	}
}

func (r *recorderChild) handle(msg recMsg) error {
	if msg.dual {
		if err := r.writer.WriteSamples(audio.Mix(msg.mic, msg.spk)); err != nil {
			return err
		}
		if r.writerMic != nil {
			if err := r.writerMic.WriteSamples(msg.mic); err != nil {
				return err
			}
		}
		if r.writerSpk != nil {
			if err := r.writerSpk.WriteSamples(msg.spk); err != nil {
				return err
			}
		}
	} else {
		if err := r.writer.WriteSamples(msg.mic); err != nil {
			return err
		}
	}
	return r.flushIfDue()
}

func (r *recorderChild) flushIfDue() error {
	if time.Since(r.lastFlush) < recorderFlushInterval {
		return nil
	}
	for _, w := range []*audio.WavWriter{r.writer, r.writerMic, r.writerSpk} {
		if w == nil {
			continue
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	r.lastFlush = time.Now()
	return nil
}

func (r *recorderChild) postStop() {
	r.once.Do(func() {
		for _, w := range []*audio.WavWriter{r.writer, r.writerMic, r.writerSpk} {
			if w == nil {
				continue
			}
			if err := w.Finalize(); err != nil {
				r.logger.Error("wav finalize failed", "error", err)
			}
		}

		if _, err := os.Stat(r.wavPath); err != nil {
			return
		}

		tmpOgg := r.oggPath + ".tmp"
		if err := audio.EncodeWavToOggMonoAsStereo(r.wavPath, tmpOgg); err != nil {
			r.logger.Error("wav to ogg failed, keeping wav", "error", err)
			os.Remove(tmpOgg)
			return
		}
		if err := os.Rename(tmpOgg, r.oggPath); err != nil {
			r.logger.Error("ogg rename failed, keeping wav", "error", err)
			os.Remove(tmpOgg)
			return
		}
		if err := os.Remove(r.wavPath); err != nil {
			r.logger.Warn("stale wav left behind", "error", err)
		}
	})
}
