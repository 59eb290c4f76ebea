package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gowav "github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

// Clip is a fully decoded audio file.
type Clip struct {
	Samples    []float32 // interleaved, normalized to [-1, 1]
	SampleRate int
	Channels   int
}

func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)/c.Channels) / float64(c.SampleRate)
}

// LoadClip decodes a .wav or .flac file.
func LoadClip(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return DecodeFLAC(bytes.NewReader(data))
	default:
		return DecodeWAV(bytes.NewReader(data))
	}
}

// DecodeWAV reads any integer PCM WAV file.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	d := gowav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	if d.BitDepth == 0 || d.NumChans == 0 {
		return nil, fmt.Errorf("wav: bad format (%d bit, %d ch)", d.BitDepth, d.NumChans)
	}
	return &Clip{
		Samples:    normalize(buf.Data, int(d.BitDepth)),
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
	}, nil
}

// DecodeFLAC reads a FLAC stream frame by frame, interleaving channels.
func DecodeFLAC(r io.Reader) (*Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("opening flac: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	var ints []int
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding flac frame: %w", err)
		}
		for i := 0; i < int(f.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				ints = append(ints, int(f.Subframes[ch].Samples[i]))
			}
		}
	}
	return &Clip{
		Samples:    normalize(ints, int(info.BitsPerSample)),
		SampleRate: int(info.SampleRate),
		Channels:   channels,
	}, nil
}

func normalize(data []int, bitDepth int) []float32 {
	scale := float32(int64(1) << (bitDepth - 1))
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out
}
