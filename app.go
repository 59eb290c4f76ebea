package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"wavscribe/audio"
	"wavscribe/clipboard"
	"wavscribe/config"
	"wavscribe/log"
	"wavscribe/metrics"
	"wavscribe/recorder"
	"wavscribe/transcriber"
	"wavscribe/wav"
)

// app ties a recorder to a transcriber and reports every step to the
// terminal, the diagnostics log and the metrics registry.
type app struct {
	cfg     *config.Config
	rec     *recorder.Recorder
	trans   transcriber.Transcriber
	metrics *metrics.Metrics
	history history

	out      io.Writer
	ui       func(tea.Msg)
	copy     bool
	savePath string

	source atomic.Pointer[audio.Source] // most recently opened
	device *audio.DeviceInfo
}

func newApp(cfg *config.Config, actx audio.Context, device *audio.DeviceInfo, trans transcriber.Transcriber, m *metrics.Metrics) *app {
	a := &app{
		cfg:     cfg,
		trans:   trans,
		metrics: m,
		out:     os.Stdout,
		ui:      func(tea.Msg) {},
		device:  device,
	}
	capture := audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
		Channels:   uint32(cfg.Audio.Channels),
	}
	a.rec = recorder.New(func() recorder.BlockSource {
		src := audio.NewSource(actx, device, capture)
		src.SetBlockSize(cfg.Audio.BlockSize)
		a.source.Store(src)
		return src
	}, recorder.Options{MaxSamples: cfg.MaxSamples()})
	return a
}

func (a *app) deviceName() string {
	if src := a.source.Load(); src != nil {
		return src.DeviceName()
	}
	if a.device != nil {
		return a.device.Name
	}
	return "system default"
}

func (a *app) status(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

// recording is a finished capture session.
type recording struct {
	id     string
	wav    []byte
	stats  recorder.Stats
	peak   float32
	device string
	reason string
}

// record runs one session until stop fires, the configured duration or
// size limit is reached, or the silence timeout expires. Cancelling ctx
// discards the recording.
func (a *app) record(ctx context.Context, stop <-chan struct{}) (*recording, error) {
	id := uuid.NewString()
	log.SessionStart(id, a.trans.Name(), "record", a.deviceName())

	sess := a.rec.NewSession()
	if err := sess.Start(); err != nil {
		a.metrics.SessionsFailed.WithLabelValues("start").Inc()
		log.SessionEnd(id, err)
		a.ui(ErrorMsg{Text: err.Error()})
		return nil, err
	}
	a.metrics.SessionsStarted.Inc()
	a.ui(RecordingStartMsg{})
	log.Info("recording_start: " + a.deviceName())

	var limit <-chan time.Time
	if d := a.cfg.Recording.Duration; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		limit = t.C
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	mon := newSilenceMonitor(a.cfg.Recording.SilenceTimeout)
	started := time.Now()

	reason := "stopped"
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ctx.Done():
			sess.Stop()
			a.ui(RecordingStopMsg{})
			a.metrics.SessionsFailed.WithLabelValues("cancelled").Inc()
			log.SessionEnd(id, ctx.Err())
			return nil, ctx.Err()
		case <-limit:
			reason = "duration"
			break loop
		case <-sess.Full():
			reason = "max_duration"
			log.Warn("recording buffer full")
			break loop
		case <-ticker.C:
			level := sess.Level()
			a.metrics.InputLevel.Set(float64(level))
			a.ui(AudioLevelMsg{Level: float64(level)})
			a.ui(RecordingTickMsg{Duration: time.Since(started).Seconds()})
			switch mon.Tick(level) {
			case SilenceWarn:
				log.Info("no_voice_warning")
				a.ui(NoVoiceWarningMsg{})
				a.status("No voice detected...")
			case SilenceWarnClear:
				a.ui(VoiceClearedMsg{})
			case SilenceAutoStop:
				reason = "silence"
				log.Info("silence_auto_stop")
				break loop
			}
		}
	}

	data, err := sess.Stop()
	a.ui(RecordingStopMsg{})
	st := sess.Stats()
	if err != nil {
		a.metrics.SessionsFailed.WithLabelValues("encode").Inc()
		log.SessionEnd(id, err)
		a.ui(ErrorMsg{Text: err.Error()})
		return nil, err
	}

	r := &recording{id: id, wav: data, stats: st, device: a.deviceName(), reason: reason}
	if src := a.source.Load(); src != nil {
		ss := src.Stats()
		r.peak = ss.Peak
		a.metrics.CaptureBlocks.Add(float64(ss.Blocks))
	}
	a.metrics.RecordedSeconds.Observe(st.Duration().Seconds())
	a.metrics.EncodedBytes.Observe(float64(len(data)))
	a.metrics.SamplesDropped.Add(float64(st.Dropped))

	log.Info("recording_stop: " + reason)
	log.RecordingDone(log.Recording{
		Session:   id,
		Device:    r.device,
		Samples:   st.Samples,
		Dropped:   st.Dropped,
		Blocks:    st.Blocks,
		Rate:      st.SampleRate,
		Channels:  st.Channels,
		DurationS: st.Duration().Seconds(),
		WavBytes:  len(data),
		Peak:      r.peak,
	})
	return r, nil
}

// save writes the WAV to -o or into recording.save_dir. It returns the path
// written, or "" when saving is off.
func (a *app) save(r *recording) (string, error) {
	path := a.savePath
	if path == "" && a.cfg.Recording.SaveDir != "" {
		name := "recording-" + time.Now().Format("20060102-150405") + ".wav"
		path = filepath.Join(a.cfg.Recording.SaveDir, name)
	}
	if path == "" {
		return "", nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(path, r.wav, 0644); err != nil {
		return "", err
	}
	log.Info("recording_saved: " + path)
	return path, nil
}

// finish saves and transcribes a recording.
func (a *app) finish(ctx context.Context, r *recording) (*transcriber.Result, error) {
	if path, err := a.save(r); err != nil {
		log.Warnf("save recording: %v", err)
		a.status("Warning: could not save recording: %v", err)
	} else if path != "" {
		a.status("Saved %s", path)
	}

	if r.stats.Samples == 0 {
		a.status("Nothing recorded.")
	}
	res, err := a.transcribe(ctx, r.wav, transcriber.DefaultFilename, r.stats.Duration().Seconds())
	log.SessionEnd(r.id, err)
	return res, err
}

// transcribeFile uploads a file exactly as it is on disk.
func (a *app) transcribeFile(ctx context.Context, path string) (*transcriber.Result, error) {
	id := uuid.NewString()
	log.SessionStart(id, a.trans.Name(), "file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		log.SessionEnd(id, err)
		return nil, err
	}
	var audioS float64
	if h, err := wav.ParseHeader(data); err == nil {
		audioS = h.Duration()
		log.Info(fmt.Sprintf("file_wav: %d Hz, %d ch, %d bit, %.2fs", h.SampleRate, h.NumChannels, h.BitsPerSample, audioS))
	}
	res, err := a.transcribe(ctx, data, filepath.Base(path), audioS)
	log.SessionEnd(id, err)
	return res, err
}

// remote asks the service to record on its side.
func (a *app) remote(ctx context.Context) (*transcriber.Result, error) {
	svc, ok := a.trans.(*transcriber.Service)
	if !ok {
		return nil, fmt.Errorf("-remote needs the %q provider", config.ProviderService)
	}
	id := uuid.NewString()
	log.SessionStart(id, svc.Name(), "remote", "server")
	a.ui(TranscribingMsg{})
	res, err := svc.RecordRemote(ctx)
	if err != nil {
		a.transcribeFailed(svc.Name(), err)
	} else {
		a.report(res, svc.Name(), 0, 0)
	}
	log.SessionEnd(id, err)
	return res, err
}

func (a *app) transcribe(ctx context.Context, data []byte, filename string, audioS float64) (*transcriber.Result, error) {
	provider := a.trans.Name()
	a.ui(TranscribingMsg{})
	res, err := a.trans.Transcribe(ctx, data, filename)
	if err != nil {
		a.transcribeFailed(provider, err)
		return nil, err
	}
	a.report(res, provider, len(data), audioS)
	return res, nil
}

func (a *app) transcribeFailed(provider string, err error) {
	a.metrics.Transcriptions.WithLabelValues(provider, "error").Inc()
	a.metrics.SessionsFailed.WithLabelValues("transcribe").Inc()
	log.Errorf("transcription error: %v", err)
	a.ui(ErrorMsg{Text: err.Error()})
}

func (a *app) report(res *transcriber.Result, provider string, size int, audioS float64) {
	m := res.Metrics
	if m == nil {
		m = &transcriber.NetworkMetrics{}
	}
	if audioS == 0 {
		audioS = res.AudioDuration
	}
	a.metrics.Transcriptions.WithLabelValues(provider, "ok").Inc()
	a.metrics.TranscribeTime.WithLabelValues(provider).Observe(m.Total.Seconds())
	if secs, ok := parseSeconds(res.ProcessDuration); ok {
		a.metrics.ServerProcessing.Observe(secs)
	}

	rec := TranscriptionRecord{
		AudioLengthS: audioS,
		UploadSizeKB: float64(size) / 1024,
		DNSTimeMs:    ms(m.DNS),
		TLSTimeMs:    ms(m.TLS),
		TTFBMs:       ms(m.TTFB),
		TotalTimeMs:  ms(m.Total),
	}
	a.history.Add(rec)
	log.TranscriptionMetrics(log.Metrics{
		AudioLengthS:    rec.AudioLengthS,
		UploadSizeKB:    rec.UploadSizeKB,
		DNSTimeMs:       rec.DNSTimeMs,
		TCPTimeMs:       ms(m.TCP),
		TLSTimeMs:       rec.TLSTimeMs,
		TTFBMs:          rec.TTFBMs,
		TotalTimeMs:     rec.TotalTimeMs,
		ProcessDuration: res.ProcessDuration,
	}, provider, m.ConnReused, m.TLSProtocol)
	log.TranscriptionText(res.Text)
	if res.RateLimit != "" && res.RateLimit != "?/?" {
		log.Info("rate_limit: " + res.RateLimit)
	}

	copied := false
	if a.copy && res.Text != "" {
		if err := clipboard.Copy(res.Text); err != nil {
			log.Warnf("clipboard copy: %v", err)
		} else {
			copied = true
		}
	}

	a.ui(TranscriptionMsg{
		Text:            res.Text,
		ProcessDuration: res.ProcessDuration,
		Metrics:         metricLines(rec, m),
		Copied:          copied,
	})
	a.status("Transcription: %s", res.Text)
	a.status("Processing time: %s", res.ProcessDuration)
}

func metricLines(r TranscriptionRecord, m *transcriber.NetworkMetrics) []string {
	conn := "new"
	if m.ConnReused {
		conn = "reused"
	}
	lines := []string{
		fmt.Sprintf("audio: %.1fs  upload: %.1f KB", r.AudioLengthS, r.UploadSizeKB),
		fmt.Sprintf("total: %.0fms  ttfb: %.0fms", r.TotalTimeMs, r.TTFBMs),
		fmt.Sprintf("dns: %.0fms  tls: %.0fms  conn: %s", r.DNSTimeMs, r.TLSTimeMs, conn),
	}
	if m.TLSProtocol != "" {
		lines[2] += " (" + m.TLSProtocol + ")"
	}
	return lines
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// parseSeconds reads the leading number of a processing time such as
// "1.2", "1.2s" or "1.2 seconds".
func parseSeconds(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "s"), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
