package main

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"wavscribe/audio"
	"wavscribe/log"
)

// runTestMode drives recordings from commands on in, one per line:
//
//	START            begin a recording
//	STOP             end it and transcribe
//	WAIT             block until the last recording was transcribed
//	WAIT_AUDIO_DONE  block until the replayed clip was fully captured
//	SLEEP <ms>
//	QUIT
//
// It returns at QUIT or end of input.
func runTestMode(ctx context.Context, a *app, fake *audio.FakeContext, in io.Reader) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := make(chan struct{})
	stop := make(chan struct{}, 1)
	recordingDone := make(chan struct{}, 1)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-start:
			}
			r, err := a.record(ctx, stop)
			if err != nil {
				log.Errorf("recording error: %v", err)
				a.status("Error: %v", err)
			} else if _, err := a.finish(ctx, r); err != nil {
				a.status("Error: %v", err)
			}
			select {
			case recordingDone <- struct{}{}:
			default:
			}
		}
	}()

	clipLen := len(fake.Clip().Samples)
	audioFrom := 0

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "START":
			audioFrom = fake.Delivered()
			select {
			case <-stop:
			default:
			}
			select {
			case start <- struct{}{}:
			case <-ctx.Done():
				return
			}
		case "STOP":
			select {
			case stop <- struct{}{}:
			default:
			}
		case "WAIT":
			select {
			case <-recordingDone:
			case <-ctx.Done():
				return
			}
		case "WAIT_AUDIO_DONE":
			for fake.Delivered()-audioFrom < clipLen && ctx.Err() == nil {
				time.Sleep(10 * time.Millisecond)
			}
		case "QUIT":
			return
		default:
			if ms, ok := strings.CutPrefix(cmd, "SLEEP "); ok {
				if n, err := strconv.Atoi(ms); err == nil {
					time.Sleep(time.Duration(n) * time.Millisecond)
				}
			}
		}
	}
}
