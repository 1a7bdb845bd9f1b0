package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// WAVHeaderSize is the size of a canonical PCM WAV header.
const WAVHeaderSize = 44

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// PCM16Mono returns the mono 16-bit format produced by the synthesizers.
func PCM16Mono(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}
}

// Validate checks that f can be written as a WAV header.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", f.Channels)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return fmt.Errorf("bits per sample must be a positive multiple of 8, got %d", f.BitsPerSample)
	}
	return nil
}

// BytesPerSecond returns the data rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// WAVHeader returns the 44-byte RIFF header for dataLen bytes of PCM.
func WAVHeader(dataLen uint32, f Format) []byte {
	blockAlign := f.Channels * f.BitsPerSample / 8

	h := make([]byte, WAVHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataLen)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataLen)
	return h
}

// WriteWAV writes pcm to w as a complete WAV file.
func WriteWAV(w io.Writer, pcm []byte, f Format) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if int64(len(pcm)) > math.MaxUint32-36 {
		return errors.New("pcm data too large for WAV")
	}
	if _, err := w.Write(WAVHeader(uint32(len(pcm)), f)); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// WAVFile streams PCM into a WAV file. The header sizes are written on
// Close, so the file is only valid after a successful Close.
type WAVFile struct {
	f      *os.File
	format Format
	size   int64
}

// CreateWAV creates path and reserves room for the header.
func CreateWAV(path string, f Format) (*WAVFile, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := file.Write(WAVHeader(0, f)); err != nil {
		_ = file.Close()
		return nil, err
	}
	return &WAVFile{f: file, format: f}, nil
}

// Write appends PCM data.
func (w *WAVFile) Write(p []byte) (int, error) {
	if w.size+int64(len(p)) > math.MaxUint32-36 {
		return 0, errors.New("pcm data too large for WAV")
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// Size returns the PCM bytes written so far.
func (w *WAVFile) Size() int64 {
	return w.size
}

// Name returns the file path.
func (w *WAVFile) Name() string {
	return w.f.Name()
}

// Close finalizes the header and closes the file.
func (w *WAVFile) Close() error {
	if _, err := w.f.WriteAt(WAVHeader(uint32(w.size), w.format), 0); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return w.f.Close()
}
