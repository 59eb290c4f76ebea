package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"wavscribe/wav"
)

func TestLoadClipWAV(t *testing.T) {
	samples := []float32{0.5, -0.5, 0, 1, -1, 0.25}
	data, err := wav.Encode(samples, 22050, 2)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	clip, err := LoadClip(path)
	if err != nil {
		t.Fatalf("LoadClip: %v", err)
	}
	if clip.SampleRate != 22050 || clip.Channels != 2 {
		t.Fatalf("format = %d Hz %d ch", clip.SampleRate, clip.Channels)
	}
	if len(clip.Samples) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(clip.Samples), len(samples))
	}
	for i, s := range samples {
		want := float32(wav.Quantize(s)) / 32768
		if clip.Samples[i] != want {
			t.Errorf("sample %d = %v, want %v", i, clip.Samples[i], want)
		}
	}
	if d := clip.Duration(); d != 3.0/22050 {
		t.Errorf("Duration = %v", d)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV(bytes.NewReader([]byte("definitely not audio"))); err == nil {
		t.Error("expected error for non-wav input")
	}
}

func encodeTestFLAC(t *testing.T, samples []int16, rate uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  uint16(len(samples)),
		BlockSizeMax:  uint16(len(samples)),
		SampleRate:    rate,
		NChannels:     1,
		BitsPerSample: 16,
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	s32 := make([]int32, len(samples))
	for i, s := range samples {
		s32[i] = int32(s)
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(samples)),
			SampleRate:    rate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: 16,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   s32,
			NSamples:  len(samples),
		}},
	}
	if err := enc.WriteFrame(f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestLoadClipFLAC(t *testing.T) {
	samples := make([]int16, 256)
	for i := range samples {
		samples[i] = int16((i - 128) * 200)
	}
	data := encodeTestFLAC(t, samples, 16000)
	path := filepath.Join(t.TempDir(), "clip.flac")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	clip, err := LoadClip(path)
	if err != nil {
		t.Fatalf("LoadClip: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Fatalf("format = %d Hz %d ch", clip.SampleRate, clip.Channels)
	}
	if len(clip.Samples) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(clip.Samples), len(samples))
	}
	for i, s := range samples {
		if want := float32(s) / 32768; clip.Samples[i] != want {
			t.Fatalf("sample %d = %v, want %v", i, clip.Samples[i], want)
		}
	}
}

func TestNewFileContextReplays(t *testing.T) {
	samples := make([]float32, BlockSize)
	for i := range samples {
		samples[i] = 0.25
	}
	data, err := wav.Encode(samples, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "replay.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, err := NewFileContext(path, false)
	if err != nil {
		t.Fatalf("NewFileContext: %v", err)
	}
	clip := ctx.Clip()
	src := NewSource(ctx, nil, CaptureConfig{SampleRate: uint32(clip.SampleRate), Channels: uint32(clip.Channels)})

	var sink blockSink
	if err := src.Start(sink.add); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return ctx.Delivered() == len(samples) })
	src.Stop()

	blocks := sink.snapshot()
	if len(blocks) == 0 {
		t.Fatal("no blocks delivered")
	}
	if blocks[0].SampleRate != 16000 {
		t.Errorf("SampleRate = %d", blocks[0].SampleRate)
	}
	want := float32(wav.Quantize(0.25)) / 32768
	for i, v := range blocks[0].Samples {
		if v != want {
			t.Fatalf("sample %d = %v, want %v", i, v, want)
		}
	}
	if src.Stats().Peak != want {
		t.Errorf("Peak = %v, want %v", src.Stats().Peak, want)
	}
}
