package audio

import (
	"fmt"
	"sync"
)

// SourceStats summarizes what a Source delivered.
type SourceStats struct {
	Blocks  int
	Samples int
	Peak    float32
}

// Source turns a capture device's irregular callbacks into fixed-size
// Blocks. It owns the device from Start until Stop.
type Source struct {
	ctx       Context
	device    *DeviceInfo
	config    CaptureConfig
	blockSize int

	mu       sync.Mutex
	capture  CaptureDevice
	name     string // opened device, kept after Stop
	onBlock  func(Block)
	pending  []float32
	started  bool
	stopped  bool
	stats    SourceStats
	stopOnce sync.Once
}

// NewSource prepares a source for the given device (nil selects the system
// default). Nothing is opened until Start.
func NewSource(ctx Context, device *DeviceInfo, config CaptureConfig) *Source {
	if config.SampleRate == 0 {
		config.SampleRate = DefaultSampleRate
	}
	if config.Channels == 0 {
		config.Channels = DefaultChannels
	}
	return &Source{
		ctx:       ctx,
		device:    device,
		config:    config,
		blockSize: BlockSize,
	}
}

// SetBlockSize overrides the frames per block. It must be called before Start.
func (s *Source) SetBlockSize(frames int) {
	if frames > 0 {
		s.blockSize = frames
	}
}

func (s *Source) SampleRate() int { return int(s.config.SampleRate) }
func (s *Source) Channels() int   { return int(s.config.Channels) }

// DeviceName reports the device that was opened, even after Stop, or the
// requested one before Start.
func (s *Source) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name != "" {
		return s.name
	}
	if s.device != nil {
		return s.device.Name
	}
	return "system default"
}

// Start opens the device and begins delivering blocks to onBlock from the
// capture goroutine. Any failure is reported as ErrCaptureUnavailable and
// leaves nothing open.
func (s *Source) Start(onBlock func(Block)) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("source already used")
	}
	if s.ctx == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no audio context", ErrCaptureUnavailable)
	}

	capture, err := s.ctx.NewCapture(s.device, s.config)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	s.onBlock = onBlock
	s.pending = make([]float32, 0, s.blockSize*s.Channels())
	s.capture = capture
	s.name = capture.DeviceName()
	s.started = true
	s.mu.Unlock()

	// The device may call feed before Start returns.
	capture.SetCallback(s.feed)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		s.mu.Lock()
		s.capture = nil
		s.name = ""
		s.onBlock = nil
		s.pending = nil
		s.stopped = true
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	return nil
}

func (s *Source) feed(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.onBlock == nil {
		return
	}
	s.pending = append(s.pending, samples...)
	n := s.blockSize * s.Channels()
	for len(s.pending) >= n {
		s.emit(s.pending[:n])
		s.pending = s.pending[n:]
	}
}

// emit hands a private copy of samples to the consumer. Callers hold s.mu.
func (s *Source) emit(samples []float32) {
	block := make([]float32, len(samples))
	copy(block, samples)
	for _, v := range block {
		if v < 0 {
			v = -v
		}
		if v > s.stats.Peak {
			s.stats.Peak = v
		}
	}
	s.stats.Blocks++
	s.stats.Samples += len(block)
	s.onBlock(Block{
		Samples:    block,
		SampleRate: s.SampleRate(),
		Channels:   s.Channels(),
	})
}

// Stop halts the device, delivers any buffered partial block, and releases
// the device. Safe to call more than once and before Start.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		capture := s.capture
		s.mu.Unlock()

		if capture != nil {
			// Stop waits for the device goroutine, so feed cannot race the flush.
			capture.Stop()
			capture.ClearCallback()
		}

		s.mu.Lock()
		if rem := len(s.pending) - len(s.pending)%s.Channels(); rem > 0 && s.onBlock != nil {
			s.emit(s.pending[:rem])
		}
		s.pending = nil
		s.stopped = true
		s.onBlock = nil
		s.capture = nil
		s.mu.Unlock()

		if capture != nil {
			capture.Close()
		}
	})
}

func (s *Source) Stats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
