package audio

import (
	"errors"
	"sync"
	"time"
)

const fakeChunkFrames = 1024

// FakeContext plays back a fixed set of samples as if they came from a
// microphone.
type FakeContext struct {
	clip     *Clip
	realtime bool

	// SilenceTail keeps delivering silence after the clip runs out, the way
	// a live device would, instead of going quiet.
	SilenceTail bool

	// OpenErr and StartErr inject failures into NewCapture and Start.
	OpenErr  error
	StartErr error

	mu        sync.Mutex
	opened    int
	closed    int
	delivered int
}

func NewFakeContext(clip *Clip, realtime bool) *FakeContext {
	if clip == nil {
		clip = &Clip{SampleRate: DefaultSampleRate, Channels: DefaultChannels}
	}
	return &FakeContext{clip: clip, realtime: realtime}
}

// NewFileContext replays a .wav or .flac file.
func NewFileContext(path string, realtime bool) (*FakeContext, error) {
	clip, err := LoadClip(path)
	if err != nil {
		return nil, err
	}
	f := NewFakeContext(clip, realtime)
	f.SilenceTail = true
	return f, nil
}

// Clip returns the replayed audio; its format is the format captures should
// request.
func (f *FakeContext) Clip() *Clip { return f.clip }

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

// Open reports how many captures are currently open (created and not closed).
func (f *FakeContext) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened - f.closed
}

// Delivered reports how many clip samples have been handed to callbacks.
func (f *FakeContext) Delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	if int(config.Channels) != f.clip.Channels && len(f.clip.Samples) > 0 {
		return nil, errors.New("fake: channel count does not match clip")
	}
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return &FakeCapture{
		ctx:       f,
		pcm:       f.clip.Samples,
		channels:  max(int(config.Channels), 1),
		rate:      int(config.SampleRate),
		realtime:  f.realtime,
		tail:      f.SilenceTail,
		startErr:  f.StartErr,
		audioDone: make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	ctx       *FakeContext
	pcm       []float32
	channels  int
	rate      int
	realtime  bool
	tail      bool
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	closed   bool
}

// AudioDone is closed once the whole clip has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) deliver(chunk []float32) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(chunk)
	}
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	chunk := fakeChunkFrames * f.channels
	interval := time.Millisecond
	if f.realtime && f.rate > 0 {
		interval = time.Duration(fakeChunkFrames) * time.Second / time.Duration(f.rate)
	}

	go func() {
		defer close(f.feedDone)
		silence := make([]float32, chunk)
		pos := 0
		finished := false
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			if pos < len(f.pcm) {
				end := min(pos+chunk, len(f.pcm))
				f.deliver(f.pcm[pos:end])
				f.ctx.mu.Lock()
				f.ctx.delivered += end - pos
				f.ctx.mu.Unlock()
				pos = end
			} else {
				if !finished {
					finished = true
					close(f.audioDone)
				}
				if !f.tail {
					<-f.stopCh
					return
				}
				f.deliver(silence)
			}

			// Burst the clip when not pacing; only the silence tail is throttled.
			if !f.realtime && pos < len(f.pcm) {
				continue
			}
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.ctx.mu.Lock()
	f.ctx.closed++
	f.ctx.mu.Unlock()
}
