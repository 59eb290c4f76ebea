// Package log writes the diagnostics log (diagnostics_log.txt, rotated) and
// the plain transcript log (transcribe_log.txt) under one directory. Every
// helper is a no-op until Init succeeds.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	diagName       = "diagnostics_log.txt"
	transcriptName = "transcribe_log.txt"
	timeLayout     = "2006-01-02 15:04:05"
)

// sink is the open state between Init and Close.
type sink struct {
	diag       zerolog.Logger
	rotator    *lumberjack.Logger
	mu         sync.Mutex // guards transcript writes
	transcript *os.File
	pid        int
}

var (
	dir     string
	current atomic.Pointer[sink]
	initMu  sync.Mutex
)

// Metrics describes one upload and the service's answer.
type Metrics struct {
	AudioLengthS    float64
	UploadSizeKB    float64
	DNSTimeMs       float64
	TCPTimeMs       float64
	TLSTimeMs       float64
	TTFBMs          float64
	TotalTimeMs     float64
	ProcessDuration string
}

// Recording describes a finished capture session.
type Recording struct {
	Session   string
	Device    string
	Samples   int
	Dropped   int
	Blocks    int
	Rate      int
	Channels  int
	DurationS float64
	WavBytes  int
	Peak      float32
}

// ResolveDir picks the log directory: the -logpath flag, then
// WAVSCRIBE_LOG_PATH, then the OS default. Relative paths are taken from
// the working directory.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv("WAVSCRIBE_LOG_PATH")} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			return p, nil
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, p), nil
	}
	return getDefaultDir()
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// SetLevel sets the minimum diagnostics level ("debug", "info", "warn",
// "error"). Empty keeps the current level.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	l, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	zerolog.SetGlobalLevel(l)
	return nil
}

func Init() error {
	initMu.Lock()
	defer initMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	transcript, err := os.OpenFile(filepath.Join(dir, transcriptName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, diagName),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	// lumberjack opens lazily; create the file now so it exists from Init on.
	if _, err := rotator.Write(nil); err != nil {
		transcript.Close()
		return fmt.Errorf("open %s: %w", diagName, err)
	}

	s := &sink{rotator: rotator, transcript: transcript, pid: os.Getpid()}
	s.diag = zerolog.New(zerolog.ConsoleWriter{Out: rotator, TimeFormat: timeLayout, NoColor: true}).
		With().Timestamp().Int("pid", s.pid).Logger()
	s.diag.Info().Str("dir", dir).Msg("log_init")

	if old := current.Swap(s); old != nil {
		old.close()
	}
	return nil
}

func (s *sink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotator.Close()
	s.transcript.Close()
}

func Close() {
	initMu.Lock()
	defer initMu.Unlock()
	if s := current.Swap(nil); s != nil {
		s.close()
	}
}

// event returns a diagnostics event at l, or nil when logging is off.
// zerolog events are nil-safe.
func event(l zerolog.Level) *zerolog.Event {
	s := current.Load()
	if s == nil {
		return nil
	}
	return s.diag.WithLevel(l)
}

func Info(msg string)  { event(zerolog.InfoLevel).Msg(msg) }
func Warn(msg string)  { event(zerolog.WarnLevel).Msg(msg) }
func Error(msg string) { event(zerolog.ErrorLevel).Msg(msg) }

func Warnf(format string, args ...any)  { event(zerolog.WarnLevel).Msgf(format, args...) }
func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }

func TranscriptionMetrics(m Metrics, provider string, connReused bool, tlsProto string) {
	conn := "new"
	if connReused {
		conn = "reused"
	}
	ev := event(zerolog.InfoLevel).Str("provider", provider).Str("conn", conn)
	if tlsProto != "" {
		ev = ev.Str("tls_proto", tlsProto)
	}
	if m.ProcessDuration != "" {
		ev = ev.Str("process_duration", m.ProcessDuration)
	}
	ev.Float64("audio_s", m.AudioLengthS).
		Float64("upload_kb", m.UploadSizeKB).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tcp_ms", m.TCPTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Msg("transcription")
}

// TranscriptionText appends one "time\t[pid]\ttext" line to the transcript
// log.
func TranscriptionText(text string) {
	s := current.Load()
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.transcript, "%s\t[%d]\t%s\n", time.Now().Format(timeLayout), s.pid, text)
}

func RecordingDone(r Recording) {
	event(zerolog.InfoLevel).
		Str("session", r.Session).
		Str("device", r.Device).
		Int("samples", r.Samples).
		Int("dropped", r.Dropped).
		Int("blocks", r.Blocks).
		Int("rate", r.Rate).
		Int("channels", r.Channels).
		Float64("duration_s", r.DurationS).
		Int("wav_bytes", r.WavBytes).
		Float32("peak", r.Peak).
		Msg("recording")
}

func SessionStart(id, provider, mode, device string) {
	event(zerolog.InfoLevel).
		Str("session", id).
		Str("provider", provider).
		Str("mode", mode).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(id string, err error) {
	if err != nil {
		event(zerolog.WarnLevel).Err(err).Str("session", id).Msg("session_end")
		return
	}
	event(zerolog.InfoLevel).Str("session", id).Msg("session_end")
}
