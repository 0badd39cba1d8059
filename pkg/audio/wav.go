package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
	wavHeaderSize      = 44
)

// NewWavBuffer wraps 16-bit mono PCM in a RIFF header.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WavWriter appends mono 32-bit float samples to a WAV file on disk. The
// header is rewritten on Flush and Finalize so a crashed session still leaves
// a readable file, and AppendWav can resume an existing recording.
type WavWriter struct {
	file       *os.File
	sampleRate int
	dataBytes  uint32
}

// CreateWav starts a fresh float32 mono WAV at the given rate.
func CreateWav(path string, sampleRate int) (*WavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &WavWriter{file: f, sampleRate: sampleRate}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// AppendWav reopens an existing float32 WAV and continues writing samples.
func AppendWav(path string) (*WavWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		f.Close()
		return nil, fmt.Errorf("not a wav file: %s", path)
	}
	format := binary.LittleEndian.Uint16(header[20:22])
	if format != wavFormatIEEEFloat {
		f.Close()
		return nil, fmt.Errorf("wav format %d is not float32", format)
	}
	sampleRate := binary.LittleEndian.Uint32(header[24:28])

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &WavWriter{
		file:       f,
		sampleRate: int(sampleRate),
		dataBytes:  uint32(end - wavHeaderSize),
	}, nil
}

func (w *WavWriter) SampleRate() int { return w.sampleRate }

func (w *WavWriter) writeHeader() error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+w.dataBytes)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(wavFormatIEEEFloat))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(w.sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(w.sampleRate*4))
	binary.Write(buf, binary.LittleEndian, uint16(4))
	binary.Write(buf, binary.LittleEndian, uint16(32))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, w.dataBytes)

	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return err
	}
	_, err := w.file.Seek(int64(wavHeaderSize)+int64(w.dataBytes), io.SeekStart)
	return err
}

// WriteSamples appends samples at the end of the data chunk.
func (w *WavWriter) WriteSamples(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}

	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	w.dataBytes += uint32(len(buf))
	return nil
}

// Flush rewrites the header sizes and syncs to disk.
func (w *WavWriter) Flush() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Finalize flushes and closes the file.
func (w *WavWriter) Finalize() error {
	if err := w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadWavFloat32 loads a mono float32 or int16 WAV, returning samples and rate.
func ReadWavFloat32(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a wav file: %s", path)
	}

	format := binary.LittleEndian.Uint16(data[20:22])
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if id == "data" {
			end := body + size
			if end > len(data) {
				end = len(data)
			}
			chunk := data[body:end]

			switch format {
			case wavFormatIEEEFloat:
				samples := make([]float32, 0, len(chunk)/4)
				for i := 0; i+3 < len(chunk); i += 4 {
					samples = append(samples, math.Float32frombits(binary.LittleEndian.Uint32(chunk[i:])))
				}
				return samples, sampleRate, nil
			case wavFormatPCM:
				return BytesToF32(chunk), sampleRate, nil
			default:
				return nil, 0, fmt.Errorf("unsupported wav format %d", format)
			}
		}
		offset = body + size
		if size%2 == 1 {
			offset++
		}
	}
	return nil, 0, fmt.Errorf("wav data chunk not found: %s", path)
}
