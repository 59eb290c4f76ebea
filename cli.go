package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"wavscribe/audio"
)

// lines signals once per line read from r and closes at end of input.
func lines(r io.Reader) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- struct{}{}
		}
	}()
	return ch
}

// runCLI records once and prints the transcription. Without a fixed
// duration, Enter starts and stops the recording.
func runCLI(ctx context.Context, a *app, in io.Reader) int {
	name := a.deviceName()
	a.status("Microphone: %s", name)
	if audio.IsBluetooth(name) {
		a.status("Warning: Bluetooth microphones often record in narrowband quality.")
	}

	enter := lines(in)
	var stop <-chan struct{}
	if d := a.cfg.Recording.Duration; d > 0 {
		a.status("Recording for %s...", d)
	} else {
		a.status("Press Enter to start recording.")
		select {
		case <-enter:
		case <-ctx.Done():
			return 1
		}
		a.status("Recording... press Enter to stop.")
		stop = enter
	}

	r, err := a.record(ctx, stop)
	if err != nil {
		a.status("Error recording: %v", err)
		return 1
	}
	a.status("Recorded %.1fs (%d bytes), transcribing...", r.stats.Duration().Seconds(), len(r.wav))
	if _, err := a.finish(ctx, r); err != nil {
		a.status("Error: %v", err)
		return 1
	}
	return 0
}

// runBenchmark uploads path runs times and prints timing percentiles.
func runBenchmark(ctx context.Context, a *app, path string, runs int) int {
	fmt.Printf("Benchmark: %s (%d runs)\n", path, runs)

	for i := 1; i <= runs; i++ {
		fmt.Printf("=== Run %d ===\n", i)
		if _, err := a.transcribeFile(ctx, path); err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}
		fmt.Println()

		if i < runs {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return 1
			}
		}
	}
	fmt.Println(a.history.Table())
	return 0
}
