package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"wavscribe/audio"
	"wavscribe/clipboard"
	"wavscribe/recorder"
	"wavscribe/transcriber"
	"wavscribe/wav"
)

// Options selects what Run checks. Audio is required; the rest is optional.
type Options struct {
	Audio   audio.Context
	Device  *audio.DeviceInfo
	Capture audio.CaptureConfig

	// Record is the length of the test capture (default 1s).
	Record time.Duration
	// Transcriber, when set, is probed and then sent the test capture.
	Transcriber transcriber.Transcriber
	Clipboard   bool

	Out io.Writer
	// Terminal resets the tty first; the device picker may leave it raw.
	Terminal bool
}

// endpoint is implemented by providers that upload to a fixed URL.
type endpoint interface {
	URL() string
	Client() *transcriber.TracedClient
}

type checker struct {
	out   io.Writer
	step  int
	total int
}

func (c *checker) header(name string) {
	c.step++
	fmt.Fprintf(c.out, "\n[%d/%d] %s\n", c.step, c.total, name)
}

func (c *checker) pass(format string, args ...any) {
	fmt.Fprintf(c.out, "  PASS: "+format+"\n", args...)
}

func (c *checker) fail(format string, args ...any) {
	fmt.Fprintf(c.out, "  FAIL: "+format+"\n", args...)
}

func (c *checker) warn(format string, args ...any) {
	fmt.Fprintf(c.out, "  WARN: "+format+"\n", args...)
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, opts Options) int {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Record <= 0 {
		opts.Record = time.Second
	}
	if opts.Terminal {
		resetTerminal()
	}

	c := &checker{out: opts.Out, total: 2}
	if opts.Transcriber != nil {
		c.total++
	}
	if opts.Clipboard {
		c.total++
	}

	fmt.Fprintln(c.out, "wavscribe doctor - system diagnostics")
	fmt.Fprintln(c.out, "=====================================")

	allPass := checkDevices(c, opts)
	recording, ok := checkCaptureAndEndpoint(ctx, c, opts)
	allPass = allPass && ok
	if opts.Transcriber != nil {
		allPass = checkTranscription(ctx, c, opts.Transcriber, recording) && allPass
	}
	if opts.Clipboard {
		allPass = checkClipboard(c) && allPass
	}

	fmt.Fprintln(c.out)
	if allPass {
		fmt.Fprintln(c.out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(c.out, "Some checks failed. See details above.")
	return 1
}

func checkDevices(c *checker, opts Options) bool {
	c.header("Input devices")
	devices, err := opts.Audio.Devices()
	if err != nil {
		c.fail("cannot list devices: %v", err)
		return false
	}
	if len(devices) == 0 {
		c.fail("no capture devices found")
		return false
	}
	for _, d := range devices {
		marker := " "
		if opts.Device != nil && opts.Device.ID == d.ID {
			marker = "*"
		}
		fmt.Fprintf(c.out, "  %s %s\n", marker, d.Name)
	}
	name := "system default"
	if opts.Device != nil {
		name = opts.Device.Name
	}
	if audio.IsBluetooth(name) {
		c.warn("%s looks like a Bluetooth headset; its microphone may drop to narrowband audio", name)
	}
	c.pass("%d device(s), using %s", len(devices), name)
	return true
}

type captureResult struct {
	wav   []byte
	stats recorder.Stats
	peak  float32
	err   error
}

type probeResult struct {
	url     string
	elapsed time.Duration
	err     error
}

// checkCaptureAndEndpoint records the test clip while the endpoint is
// probed.
func checkCaptureAndEndpoint(ctx context.Context, c *checker, opts Options) ([]byte, bool) {
	c.header("Microphone capture and endpoint")
	fmt.Fprintf(c.out, "  Recording %s, speak now...\n", opts.Record)

	var capture captureResult
	var probe probeResult
	var g errgroup.Group

	g.Go(func() error {
		var src *audio.Source
		rec := recorder.New(func() recorder.BlockSource {
			src = audio.NewSource(opts.Audio, opts.Device, opts.Capture)
			return src
		}, recorder.Options{})
		sess := rec.NewSession()
		capture.wav, capture.err = recorder.RecordFor(ctx, sess, opts.Record)
		capture.stats = sess.Stats()
		if src != nil {
			capture.peak = src.Stats().Peak
		}
		return capture.err
	})

	if ep, ok := opts.Transcriber.(endpoint); ok {
		probe.url = ep.URL()
		g.Go(func() error {
			probe.elapsed, probe.err = ep.Client().WarmConnection(ctx, probe.url)
			return probe.err
		})
	}
	g.Wait()

	ok := true
	if capture.err != nil {
		c.fail("recording error: %v", capture.err)
		ok = false
	} else if capture.stats.Samples == 0 {
		c.fail("no audio captured")
		ok = false
	} else {
		h, _ := wav.ParseHeader(capture.wav)
		c.pass("%d blocks, %.2fs at %d Hz, peak %.3f", capture.stats.Blocks, h.Duration(), h.SampleRate, capture.peak)
		if capture.peak == 0 {
			c.warn("input is silent; check the microphone is not muted")
		}
	}

	if probe.url != "" {
		if probe.err != nil {
			c.fail("cannot reach %s: %v", probe.url, probe.err)
			ok = false
		} else {
			c.pass("reached %s (TLS handshake %dms)", probe.url, probe.elapsed.Milliseconds())
		}
	}
	return capture.wav, ok
}

func checkTranscription(ctx context.Context, c *checker, t transcriber.Transcriber, recording []byte) bool {
	c.header("Transcription (" + t.Name() + ")")
	if len(recording) == 0 {
		c.fail("nothing recorded to transcribe")
		return false
	}
	res, err := t.Transcribe(ctx, recording, transcriber.DefaultFilename)
	if err != nil {
		c.fail("transcription error: %v", err)
		return false
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = "(no speech detected)"
	}
	c.pass("%q (processing time %s)", text, res.ProcessDuration)
	return true
}

func checkClipboard(c *checker) bool {
	c.header("Clipboard")
	if !clipboard.Available() {
		c.fail("%v: install xclip, xsel or wl-clipboard", clipboard.ErrUnsupported)
		return false
	}
	prev, _ := clipboard.Read()
	defer clipboard.Copy(prev)

	const probe = "wavscribe doctor"
	if err := clipboard.Copy(probe); err != nil {
		c.fail("write: %v", err)
		return false
	}
	got, err := clipboard.Read()
	if err != nil {
		c.fail("read: %v", err)
		return false
	}
	if got != probe {
		c.fail("read back %q", got)
		return false
	}
	c.pass("copy and read back work")
	return true
}
