package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wavscribe/audio"
	"wavscribe/config"
	"wavscribe/metrics"
	"wavscribe/transcriber"
	"wavscribe/wav"
)

func toneClip(rate, n int) *audio.Clip {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return &audio.Clip{Samples: samples, SampleRate: rate, Channels: 1}
}

type testRig struct {
	app   *app
	fake  *audio.FakeContext
	trans *transcriber.FakeTranscriber
	m     *metrics.Metrics
	out   *bytes.Buffer
}

func newTestRig(t *testing.T, clip *audio.Clip, mutate func(*config.Config)) *testRig {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.SampleRate = 8000
	cfg.Audio.Channels = 1
	if clip != nil {
		cfg.Audio.SampleRate = clip.SampleRate
	}
	if mutate != nil {
		mutate(cfg)
	}
	fake := audio.NewFakeContext(clip, false)
	trans := transcriber.NewFake("hello world", nil)
	m := metrics.New(prometheus.NewRegistry())
	a := newApp(cfg, fake, nil, trans, m)
	out := &bytes.Buffer{}
	a.out = out
	return &testRig{app: a, fake: fake, trans: trans, m: m, out: out}
}

func TestRecordForDuration(t *testing.T) {
	rig := newTestRig(t, toneClip(8000, 8000), func(c *config.Config) {
		c.Recording.Duration = 100 * time.Millisecond
	})

	r, err := rig.app.record(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.reason != "duration" {
		t.Errorf("reason = %q", r.reason)
	}
	if r.stats.Samples != 8000 {
		t.Errorf("samples = %d, want 8000", r.stats.Samples)
	}
	if len(r.wav) != wav.HeaderSize+16000 {
		t.Errorf("wav bytes = %d", len(r.wav))
	}
	if r.peak < 0.4 {
		t.Errorf("peak = %v", r.peak)
	}
	if r.device != "fake" {
		t.Errorf("device = %q", r.device)
	}
	if rig.app.rec.Active() != nil {
		t.Error("session still active after stop")
	}
	if got := testutil.ToFloat64(rig.m.SessionsStarted); got != 1 {
		t.Errorf("sessions started = %v", got)
	}
	if got := testutil.ToFloat64(rig.m.CaptureBlocks); got != 2 {
		t.Errorf("capture blocks = %v, want 2", got)
	}
	if rig.fake.Open() != 0 {
		t.Error("capture left open")
	}
}

func TestRecordStop(t *testing.T) {
	rig := newTestRig(t, toneClip(8000, 100), nil)
	stop := make(chan struct{})
	close(stop)

	r, err := rig.app.record(context.Background(), stop)
	if err != nil {
		t.Fatal(err)
	}
	if r.reason != "stopped" {
		t.Errorf("reason = %q", r.reason)
	}
	h, err := wav.ParseHeader(r.wav)
	if err != nil {
		t.Fatal(err)
	}
	if h.SampleRate != 8000 || h.NumChannels != 1 {
		t.Errorf("header = %+v", h)
	}
}

func TestRecordCancelled(t *testing.T) {
	rig := newTestRig(t, toneClip(8000, 100), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if _, err := rig.app.record(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rig.app.rec.Active() != nil || rig.fake.Open() != 0 {
		t.Error("cancelled session left resources held")
	}
	if got := testutil.ToFloat64(rig.m.SessionsFailed.WithLabelValues("cancelled")); got != 1 {
		t.Errorf("cancelled sessions = %v", got)
	}
	if len(rig.trans.Calls()) != 0 {
		t.Error("cancelled recording was uploaded")
	}
}

func TestRecordSilenceAutoStop(t *testing.T) {
	rig := newTestRig(t, nil, func(c *config.Config) {
		c.Audio.SampleRate = audio.DefaultSampleRate
		c.Recording.SilenceTimeout = 300 * time.Millisecond
	})
	rig.fake.SilenceTail = true

	r, err := rig.app.record(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.reason != "silence" {
		t.Errorf("reason = %q, want silence", r.reason)
	}
}

func TestRecordMaxDuration(t *testing.T) {
	rig := newTestRig(t, toneClip(8000, 8000), func(c *config.Config) {
		c.Audio.MaxDuration = 100 * time.Millisecond
	})

	r, err := rig.app.record(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.reason != "max_duration" {
		t.Errorf("reason = %q", r.reason)
	}
	if r.stats.Samples != 800 {
		t.Errorf("samples = %d, want 800", r.stats.Samples)
	}
	if r.stats.Dropped == 0 {
		t.Error("no samples counted as dropped")
	}
	if got := testutil.ToFloat64(rig.m.SamplesDropped); got != float64(r.stats.Dropped) {
		t.Errorf("dropped metric = %v, want %d", got, r.stats.Dropped)
	}
}

func TestRecordCaptureUnavailable(t *testing.T) {
	rig := newTestRig(t, toneClip(8000, 100), nil)
	rig.fake.OpenErr = errors.New("no microphone")

	if _, err := rig.app.record(context.Background(), nil); !errors.Is(err, audio.ErrCaptureUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if got := testutil.ToFloat64(rig.m.SessionsFailed.WithLabelValues("start")); got != 1 {
		t.Errorf("start failures = %v", got)
	}

	// The next attempt can start immediately.
	rig.fake.OpenErr = nil
	stop := make(chan struct{})
	close(stop)
	if _, err := rig.app.record(context.Background(), stop); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestFinishTranscribesAndSaves(t *testing.T) {
	rig := newTestRig(t, toneClip(8000, 8000), func(c *config.Config) {
		c.Recording.Duration = 50 * time.Millisecond
	})
	path := filepath.Join(t.TempDir(), "out", "take.wav")
	rig.app.savePath = path

	r, err := rig.app.record(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := rig.app.finish(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q", res.Text)
	}

	calls := rig.trans.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if calls[0].Filename != transcriber.DefaultFilename || !bytes.Equal(calls[0].Audio, r.wav) {
		t.Errorf("uploaded %s (%d bytes)", calls[0].Filename, len(calls[0].Audio))
	}

	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(saved, r.wav) {
		t.Error("saved file differs from recording")
	}

	out := rig.out.String()
	for _, want := range []string{"Saved " + path, "Transcription: hello world", "Processing time: 0.01"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if rig.app.history.Len() != 1 {
		t.Errorf("history = %d", rig.app.history.Len())
	}
	if got := testutil.ToFloat64(rig.m.Transcriptions.WithLabelValues("fake", "ok")); got != 1 {
		t.Errorf("transcriptions ok = %v", got)
	}
}

func TestSaveDir(t *testing.T) {
	dir := t.TempDir()
	rig := newTestRig(t, nil, func(c *config.Config) { c.Recording.SaveDir = dir })

	path, err := rig.app.save(&recording{wav: []byte("RIFF")})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir || !strings.HasSuffix(path, ".wav") {
		t.Errorf("path = %q", path)
	}

	rig.app.cfg.Recording.SaveDir = ""
	if path, err := rig.app.save(&recording{}); err != nil || path != "" {
		t.Errorf("saving disabled: path %q err %v", path, err)
	}
}

func TestTranscribeFileUnmodified(t *testing.T) {
	rig := newTestRig(t, nil, nil)
	data, err := wav.Encode([]float32{0.1, -0.1, 0.2, -0.2}, 16000, 2)
	if err != nil {
		t.Fatal(err)
	}
	data = append(data, []byte("LIST trailing chunk")...)
	path := filepath.Join(t.TempDir(), "speech.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := rig.app.transcribeFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	calls := rig.trans.Calls()
	if len(calls) != 1 || calls[0].Filename != "speech.wav" || !bytes.Equal(calls[0].Audio, data) {
		t.Errorf("calls = %+v", calls)
	}

	if _, err := rig.app.transcribeFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTranscribeError(t *testing.T) {
	rig := newTestRig(t, nil, nil)
	rig.app.trans = transcriber.NewFake("", errors.New("service down"))

	if _, err := rig.app.transcribe(context.Background(), []byte("x"), "", 0); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(rig.m.Transcriptions.WithLabelValues("fake", "error")); got != 1 {
		t.Errorf("transcription errors = %v", got)
	}
}

func TestRemote(t *testing.T) {
	rig := newTestRig(t, nil, nil)
	if _, err := rig.app.remote(context.Background()); err == nil {
		t.Error("expected error for non-service provider")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech2" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"speech_response":"from the server","process_duration":"2.0 seconds"}`))
	}))
	defer srv.Close()

	rig.app.trans = transcriber.NewService(srv.URL, "speech", 5*time.Second)
	res, err := rig.app.remote(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "from the server" {
		t.Errorf("text = %q", res.Text)
	}
	if !strings.Contains(rig.out.String(), "Processing time: 2.0 seconds") {
		t.Errorf("output:\n%s", rig.out.String())
	}
}

func TestParseSeconds(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.5", 1.5, true},
		{"1.5s", 1.5, true},
		{"2 seconds", 2, true},
		{"", 0, false},
		{"fast", 0, false},
		{"-1", 0, false},
	} {
		got, ok := parseSeconds(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseSeconds(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRunCLI(t *testing.T) {
	t.Run("enter to start and stop", func(t *testing.T) {
		rig := newTestRig(t, toneClip(8000, 100), nil)
		if code := runCLI(context.Background(), rig.app, strings.NewReader("\n\n")); code != 0 {
			t.Fatalf("exit code %d:\n%s", code, rig.out.String())
		}
		if len(rig.trans.Calls()) != 1 {
			t.Errorf("calls = %d", len(rig.trans.Calls()))
		}
		if !strings.Contains(rig.out.String(), "Press Enter to start recording.") {
			t.Errorf("output:\n%s", rig.out.String())
		}
	})
	t.Run("fixed duration", func(t *testing.T) {
		rig := newTestRig(t, toneClip(8000, 8000), func(c *config.Config) {
			c.Recording.Duration = 50 * time.Millisecond
		})
		if code := runCLI(context.Background(), rig.app, strings.NewReader("")); code != 0 {
			t.Fatalf("exit code %d:\n%s", code, rig.out.String())
		}
		calls := rig.trans.Calls()
		if len(calls) != 1 || len(calls[0].Audio) != wav.HeaderSize+16000 {
			t.Errorf("calls = %d", len(calls))
		}
	})
	t.Run("transcription fails", func(t *testing.T) {
		rig := newTestRig(t, toneClip(8000, 100), func(c *config.Config) {
			c.Recording.Duration = 20 * time.Millisecond
		})
		rig.app.trans = transcriber.NewFake("", errors.New("boom"))
		if code := runCLI(context.Background(), rig.app, strings.NewReader("")); code != 1 {
			t.Errorf("exit code %d, want 1", code)
		}
	})
}

func TestRunTestMode(t *testing.T) {
	rig := newTestRig(t, toneClip(8000, 8000), nil)
	script := "START\nWAIT_AUDIO_DONE\nSTOP\nWAIT\nSLEEP 1\nQUIT\n"

	runTestMode(context.Background(), rig.app, rig.fake, strings.NewReader(script))

	calls := rig.trans.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if len(calls[0].Audio) != wav.HeaderSize+16000 {
		t.Errorf("uploaded %d bytes, want %d", len(calls[0].Audio), wav.HeaderSize+16000)
	}
}
