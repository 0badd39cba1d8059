package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"gopkg.in/hraban/opus.v2"
)

// Recorder finalisation: the session WAV is transcoded into an Ogg file with
// mono audio encoded as two channels for downstream compatibility, and the
// resume path decodes it back into a mono WAV.

const (
	opusFrameSamples = 320 // 20 ms at 16 kHz, per channel
	opusChannels     = 2
	opusPreskip      = 312
	oggSerial        = 0x65636f6e // arbitrary but stable stream serial
	maxOpusPacket    = 4000
)

func opusHeadPacket(sampleRate int) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("OpusHead")
	buf.WriteByte(1) // version
	buf.WriteByte(opusChannels)
	binary.Write(buf, binary.LittleEndian, uint16(opusPreskip))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint16(0)) // output gain
	buf.WriteByte(0)                                  // mono/stereo mapping family
	return buf.Bytes()
}

func opusTagsPacket() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("OpusTags")
	vendor := "echonote"
	binary.Write(buf, binary.LittleEndian, uint32(len(vendor)))
	buf.WriteString(vendor)
	binary.Write(buf, binary.LittleEndian, uint32(0)) // no user comments
	return buf.Bytes()
}

// EncodeWavToOggMonoAsStereo reads a mono float32 WAV and writes an Ogg Opus
// file carrying the signal duplicated onto two channels.
func EncodeWavToOggMonoAsStereo(wavPath, oggPath string) error {
	samples, sampleRate, err := ReadWavFloat32(wavPath)
	if err != nil {
		return fmt.Errorf("read wav: %w", err)
	}

	enc, err := opus.NewEncoder(sampleRate, opusChannels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	out, err := os.Create(oggPath)
	if err != nil {
		return err
	}
	defer out.Close()

	w := newOggWriter(out, oggSerial)
	if err := w.writePage(opusHeadPacket(sampleRate), 0, oggFlagFirst); err != nil {
		return err
	}
	if err := w.writePage(opusTagsPacket(), 0, 0); err != nil {
		return err
	}

	// Granule positions count 48 kHz samples per the Opus mapping.
	granuleStep := uint64(opusFrameSamples) * 48000 / uint64(sampleRate)
	granule := uint64(opusPreskip)

	frame := make([]int16, opusFrameSamples*opusChannels)
	packet := make([]byte, maxOpusPacket)

	for start := 0; start < len(samples); start += opusFrameSamples {
		end := start + opusFrameSamples
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[start:end]

		for i := 0; i < opusFrameSamples; i++ {
			var v int16
			if i < len(chunk) {
				v = f32ToI16(chunk[i])
			}
			frame[i*2] = v
			frame[i*2+1] = v
		}

		n, err := enc.Encode(frame, packet)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}

		granule += granuleStep
		flags := byte(0)
		if end >= len(samples) {
			flags = oggFlagLast
		}
		if err := w.writePage(append([]byte(nil), packet[:n]...), granule, flags); err != nil {
			return err
		}
	}

	return nil
}

// DecodeOggToMonoWav reverses EncodeWavToOggMonoAsStereo so a resumed session
// can keep appending to a single logical recording.
func DecodeOggToMonoWav(oggPath, wavPath string) error {
	f, err := os.Open(oggPath)
	if err != nil {
		return err
	}
	defer f.Close()

	packets, err := readOggPackets(f)
	if err != nil {
		return fmt.Errorf("read ogg: %w", err)
	}
	if len(packets) < 2 || !bytes.HasPrefix(packets[0].data, []byte("OpusHead")) {
		return fmt.Errorf("ogg: missing opus headers in %s", oggPath)
	}

	head := packets[0].data
	if len(head) < 16 {
		return fmt.Errorf("ogg: short OpusHead")
	}
	channels := int(head[9])
	sampleRate := int(binary.LittleEndian.Uint32(head[12:16]))
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = opusChannels
	}

	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return fmt.Errorf("create opus decoder: %w", err)
	}

	writer, err := CreateWav(wavPath, sampleRate)
	if err != nil {
		return err
	}

	pcm := make([]int16, 5760*channels)
	for _, p := range packets[2:] {
		if len(p.data) == 0 {
			continue
		}
		n, err := dec.Decode(p.data, pcm)
		if err != nil {
			continue
		}

		mono := make([]float32, n)
		for i := 0; i < n; i++ {
			var sum float32
			for c := 0; c < channels; c++ {
				sum += float32(pcm[i*channels+c]) / 32768.0
			}
			mono[i] = sum / float32(channels)
		}
		if err := writer.WriteSamples(mono); err != nil {
			writer.Finalize()
			return err
		}
	}

	return writer.Finalize()
}
