package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	HeaderSize    = 44
	BitsPerSample = 16
	bytesPerValue = BitsPerSample / 8
	fmtChunkSize  = 16
	formatPCM     = 1
)

// Header is the canonical 44-byte RIFF/WAVE header for linear PCM.
type Header struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file length - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodingError reports an encoder input that cannot describe a valid file.
type EncodingError struct {
	Field string
	Value int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("wav: invalid %s %d", e.Field, e.Value)
}

func newHeader(dataSize uint32, sampleRate, channels int) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     HeaderSize - 8 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: fmtChunkSize,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bytesPerValue),
		BlockAlign:    uint16(channels * bytesPerValue),
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// Quantize maps a float sample to signed 16-bit PCM. Input is clamped to
// [-1, 1]; negative values scale by 0x8000, the rest by 0x7FFF, truncating
// toward zero. NaN encodes as silence.
func Quantize(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7FFF)
}

// Encode produces a complete WAV file from interleaved float samples.
// A trailing partial frame (len(samples) not a multiple of channels) is
// dropped so the data chunk always holds whole frames.
func Encode(samples []float32, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, &EncodingError{Field: "sample rate", Value: sampleRate}
	}
	// Block align is a uint16 of channels*2 bytes.
	if channels < 1 || channels > math.MaxUint16/bytesPerValue {
		return nil, &EncodingError{Field: "channel count", Value: channels}
	}
	if uint64(sampleRate) > math.MaxUint32 {
		return nil, &EncodingError{Field: "sample rate", Value: sampleRate}
	}
	if uint64(sampleRate)*uint64(channels)*bytesPerValue > math.MaxUint32 {
		return nil, &EncodingError{Field: "byte rate", Value: sampleRate}
	}

	n := len(samples) - len(samples)%channels
	if uint64(n)*bytesPerValue > math.MaxUint32-(HeaderSize-8) {
		return nil, &EncodingError{Field: "sample count", Value: n}
	}
	dataSize := uint32(n * bytesPerValue)

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+int(dataSize)))
	if err := binary.Write(buf, binary.LittleEndian, newHeader(dataSize, sampleRate, channels)); err != nil {
		return nil, fmt.Errorf("writing wav header: %w", err)
	}

	pcm := make([]byte, dataSize)
	for i, s := range samples[:n] {
		binary.LittleEndian.PutUint16(pcm[i*bytesPerValue:], uint16(Quantize(s)))
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// ParseHeader reads and validates the fixed header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("wav: need at least %d bytes, got %d", HeaderSize, len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("wav: reading header: %w", err)
	}
	switch {
	case string(h.ChunkID[:]) != "RIFF":
		return h, fmt.Errorf("wav: missing RIFF tag")
	case string(h.Format[:]) != "WAVE":
		return h, fmt.Errorf("wav: missing WAVE format")
	case string(h.Subchunk1ID[:]) != "fmt ":
		return h, fmt.Errorf("wav: missing fmt chunk")
	case string(h.Subchunk2ID[:]) != "data":
		return h, fmt.Errorf("wav: data chunk not at offset 36")
	}
	return h, nil
}

// Duration returns the playback length in seconds described by h.
func (h Header) Duration() float64 {
	if h.ByteRate == 0 {
		return 0
	}
	return float64(h.Subchunk2Size) / float64(h.ByteRate)
}
