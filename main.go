package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"wavscribe/audio"
	"wavscribe/config"
	"wavscribe/doctor"
	"wavscribe/log"
	"wavscribe/metrics"
	"wavscribe/shutdown"
	"wavscribe/transcriber"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func deviceLineText(name string) string {
	suffix := ""
	if audio.IsBluetooth(name) {
		suffix = " (BT!)"
	}
	return "mic: " + name + suffix
}

func modeLineText(cfg *config.Config, t transcriber.Transcriber) string {
	providerLabel := t.Name()
	if lang := t.GetLanguage(); lang != "" {
		providerLabel += " (" + lang + ")"
	}
	return fmt.Sprintf("[WAV %d Hz %dch | %s]", cfg.Audio.SampleRate, cfg.Audio.Channels, providerLabel)
}

func run(args []string) int {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if o.version {
		fmt.Printf("wavscribe %s\n", version)
		return 0
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	o.apply(cfg)

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
		crashFile.Close()
	}

	if err := log.SetLevel(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if o.debugAddr != "" {
		addr, errc, err := metrics.Serve(ctx, o.debugAddr, reg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: debug server: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "metrics on http://%s/metrics, pprof on http://%s/debug/pprof/\n", addr, addr)
		go func() {
			if err := <-errc; err != nil {
				log.Errorf("debug server error: %v", err)
			}
		}()
	}

	// The replay file dictates the capture format.
	var fake *audio.FakeContext
	if o.replay != "" {
		fake, err = audio.NewFileContext(o.replay, o.realtime)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", o.replay, err)
			return 1
		}
		cfg.Audio.SampleRate = fake.Clip().SampleRate
		cfg.Audio.Channels = fake.Clip().Channels
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	trans, err := transcriber.New(cfg.Transcription)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch {
	case o.file != "":
		a := newApp(cfg, nil, nil, trans, m)
		a.copy = o.copy
		if _, err := a.transcribeFile(ctx, o.file); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0

	case o.benchmark != "":
		return runBenchmark(ctx, newApp(cfg, nil, nil, trans, m), o.benchmark, o.runs)

	case o.remote:
		a := newApp(cfg, nil, nil, trans, m)
		a.copy = o.copy
		fmt.Println("Recording on the server...")
		if _, err := a.remote(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	var actx audio.Context = fake
	if fake == nil {
		actx, err = audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
			return 1
		}
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	switch {
	case o.setup:
		device, err = audio.SelectDevice(actx)
		if errors.Is(err, audio.ErrSelectionAborted) {
			return 1
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			device = nil
		}
	case cfg.Audio.Device != "" && fake == nil:
		device, err = audio.FindDevice(actx, cfg.Audio.Device)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if o.doctor {
		return doctor.Run(ctx, doctor.Options{
			Audio:  actx,
			Device: device,
			Capture: audio.CaptureConfig{
				SampleRate: uint32(cfg.Audio.SampleRate),
				Channels:   uint32(cfg.Audio.Channels),
			},
			Transcriber: trans,
			Clipboard:   o.copy,
			Terminal:    o.setup,
		})
	}

	a := newApp(cfg, actx, device, trans, m)
	a.copy = o.copy
	a.savePath = o.out

	if o.test {
		log.Info("test_mode: " + o.replay)
		runTestMode(ctx, a, fake, os.Stdin)
		return 0
	}

	if o.tui && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		if err := runTUI(ctx, a, modeLineText(cfg, trans)); err != nil {
			log.Errorf("TUI error: %v", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	return runCLI(ctx, a, os.Stdin)
}
