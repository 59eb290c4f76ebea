//go:build linux

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("wavscribe"))
	if err != nil {
		return nil, fmt.Errorf("%w: pulse: %v", ErrCaptureUnavailable, err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

// source resolves the requested device, or the server default when device is
// nil.
func (p *pulseContext) source(device *DeviceInfo) (*pulse.Source, error) {
	if device == nil {
		s, err := p.client.DefaultSource()
		if err != nil {
			return nil, fmt.Errorf("pulse default source: %w", err)
		}
		return s, nil
	}
	s, err := p.client.SourceByID(device.ID)
	if err != nil {
		return nil, fmt.Errorf("pulse source %q: %w", device.Name, err)
	}
	return s, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if config.Channels < 1 || config.Channels > 2 {
		return nil, fmt.Errorf("pulse: %d channels not supported", config.Channels)
	}
	src, err := p.source(device)
	if err != nil {
		return nil, err
	}
	name := "system default"
	if device != nil {
		name = device.Name
	}
	return &pulseCapture{client: p.client, source: src, name: name, config: config}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

// pulseCapture records float32 samples straight from the server. Each Start
// opens a fresh record stream; Stop closes it.
type pulseCapture struct {
	client *pulse.Client
	source *pulse.Source
	name   string
	config CaptureConfig

	callback atomic.Pointer[DataCallback]

	mu     sync.Mutex
	stream *pulse.RecordStream
}

func (c *pulseCapture) write(buf []float32) (int, error) {
	if cb := c.callback.Load(); cb != nil && len(buf) > 0 {
		(*cb)(buf)
	}
	return len(buf), nil
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	channels := pulse.RecordMono
	if c.config.Channels == 2 {
		channels = pulse.RecordStereo
	}
	stream, err := c.client.NewRecord(pulse.Float32Writer(c.write),
		pulse.RecordSource(c.source),
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		channels,
		pulse.RecordLatency(0.05),
	)
	if err != nil {
		return fmt.Errorf("%w: pulse record on %s: %v", ErrCaptureUnavailable, c.name, err)
	}
	// The server may pick another format; the WAV header must match what
	// is delivered.
	if rate, ch := stream.SampleRate(), stream.Channels(); rate != int(c.config.SampleRate) || ch != int(c.config.Channels) {
		stream.Close()
		return fmt.Errorf("%w: pulse opened %d Hz/%d ch, want %d Hz/%d ch",
			ErrCaptureUnavailable, rate, ch, c.config.SampleRate, c.config.Channels)
	}
	stream.Start()
	if err := stream.Error(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: pulse start: %v", ErrCaptureUnavailable, err)
	}
	c.stream = stream
	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return
	}
	c.stream.Stop()
	c.stream.Close()
	c.stream = nil
}

func (c *pulseCapture) Close() { c.Stop() }

func (c *pulseCapture) SetCallback(cb DataCallback) { c.callback.Store(&cb) }

func (c *pulseCapture) ClearCallback() { c.callback.Store(nil) }

func (c *pulseCapture) DeviceName() string { return c.name }
