package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"wavscribe/config"
)

type options struct {
	configPath string
	provider   string
	url        string
	endpoint   string
	lang       string
	file       string
	remote     bool
	duration   time.Duration
	silence    time.Duration
	out        string
	device     string
	setup      bool
	copy       bool
	tui        bool
	replay     string
	realtime   bool
	logPath    string
	debugAddr  string
	doctor     bool
	version    bool
	test       bool
	benchmark  string
	runs       int

	set map[string]bool // flags given on the command line
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	o := &options{set: map[string]bool{}}
	fs := flag.NewFlagSet("wavscribe", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.configPath, "config", "", "Config file (default: $WAVSCRIBE_CONFIG or the user config dir)")
	fs.StringVar(&o.provider, "provider", "", "Transcription provider: service or openai")
	fs.StringVar(&o.url, "url", "", "Transcription base URL")
	fs.StringVar(&o.endpoint, "endpoint", "", "Service endpoint: speech or whisper")
	fs.StringVar(&o.lang, "lang", "", "Language code for transcription (e.g., en, es, fr). Empty = auto-detect")
	fs.StringVar(&o.file, "file", "", "Transcribe an existing audio file instead of recording")
	fs.BoolVar(&o.remote, "remote", false, "Let the service record from its own microphone")
	fs.DurationVar(&o.duration, "duration", 0, "Stop recording after this long (e.g., 5s)")
	fs.DurationVar(&o.silence, "silence", 0, "Stop recording after this much silence (0 = never)")
	fs.StringVar(&o.out, "o", "", "Save the recorded WAV to this file")
	fs.StringVar(&o.device, "device", "", "Use named microphone device")
	fs.BoolVar(&o.setup, "setup", false, "Select microphone device interactively")
	fs.BoolVar(&o.copy, "copy", false, "Copy the transcription to the clipboard")
	fs.BoolVar(&o.tui, "tui", true, "Run with terminal UI when attached to a terminal")
	fs.StringVar(&o.replay, "replay", "", "Use a WAV or FLAC file as the microphone")
	fs.BoolVar(&o.realtime, "realtime", false, "Pace -replay at the file's sample rate")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.debugAddr, "debug-addr", "", "Serve Prometheus metrics and pprof (e.g., localhost:6060)")
	fs.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	fs.BoolVar(&o.test, "test", false, "Test mode (headless, stdin-driven, needs -replay)")
	fs.StringVar(&o.benchmark, "benchmark", "", "Upload an audio file -runs times and print timing percentiles")
	fs.IntVar(&o.runs, "runs", 3, "Number of benchmark iterations")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if o.test && o.replay == "" {
		return nil, fmt.Errorf("-test needs -replay")
	}
	if o.remote && (o.file != "" || o.replay != "") {
		return nil, fmt.Errorf("-remote cannot be combined with -file or -replay")
	}
	return o, nil
}

// apply overrides cfg with the flags that were given explicitly.
func (o *options) apply(cfg *config.Config) {
	t := &cfg.Transcription
	if o.set["provider"] {
		if o.provider == config.ProviderOpenAI && t.BaseURL == config.DefaultServiceURL {
			t.BaseURL = config.DefaultOpenAIURL
		}
		t.Provider = o.provider
	}
	if o.set["url"] {
		t.BaseURL = o.url
	}
	if o.set["endpoint"] {
		t.Endpoint = o.endpoint
	}
	if o.set["lang"] {
		t.Language = o.lang
	}
	if o.set["device"] {
		cfg.Audio.Device = o.device
	}
	if o.set["duration"] {
		cfg.Recording.Duration = o.duration
	}
	if o.set["silence"] {
		cfg.Recording.SilenceTimeout = o.silence
	}
	if o.set["logpath"] {
		cfg.Log.Path = o.logPath
	}
}
