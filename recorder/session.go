package recorder

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"wavscribe/audio"
	"wavscribe/wav"
)

// BlockSource is the capture side of a session. *audio.Source implements it.
// Stop must not return until the last block has been delivered.
type BlockSource interface {
	Start(onBlock func(audio.Block)) error
	Stop()
	SampleRate() int
	Channels() int
}

type State int

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Options struct {
	// MaxSamples caps a session's buffer; zero means unbounded.
	MaxSamples int
}

// Recorder hands out sessions and allows at most one of them to record at a
// time.
type Recorder struct {
	open   func() BlockSource
	opts   Options
	active atomic.Pointer[Session]
}

// New returns a Recorder that opens a fresh source via open for every
// session start.
func New(open func() BlockSource, opts Options) *Recorder {
	return &Recorder{open: open, opts: opts}
}

func (r *Recorder) NewSession() *Session {
	return &Session{rec: r, full: make(chan struct{})}
}

// Active returns the recording session, or nil.
func (r *Recorder) Active() *Session { return r.active.Load() }

func (r *Recorder) release(s *Session) { r.active.CompareAndSwap(s, nil) }

// Stats describes a session's recording so far.
type Stats struct {
	Samples    int
	Dropped    int
	Blocks     int
	SampleRate int
	Channels   int
	Started    time.Time
	Stopped    time.Time
}

// Duration is the length of the captured audio.
func (st Stats) Duration() time.Duration {
	if st.SampleRate <= 0 || st.Channels <= 0 {
		return 0
	}
	frames := st.Samples / st.Channels
	return time.Duration(frames) * time.Second / time.Duration(st.SampleRate)
}

// Session is one Idle -> Recording -> Stopped cycle. It owns its source and
// buffer while recording and releases both when it stops.
type Session struct {
	rec *Recorder

	mu       sync.Mutex
	state    State
	starting bool
	stopping bool
	source   BlockSource
	buf      *Buffer
	stats    Stats

	level    atomic.Uint32 // float32 bits, RMS of the latest block
	full     chan struct{}
	fullOnce sync.Once
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens a new source and begins buffering its blocks. On failure the
// session stays Idle and nothing is left open.
func (s *Session) Start() error {
	s.mu.Lock()
	switch {
	case s.state == Recording || s.starting:
		s.mu.Unlock()
		return ErrSessionAlreadyActive
	case s.state == Stopped:
		s.mu.Unlock()
		return ErrSessionFinished
	}
	if !s.rec.active.CompareAndSwap(nil, s) {
		s.mu.Unlock()
		return ErrSessionAlreadyActive
	}
	src := s.rec.open()
	s.starting = true
	s.source = src
	s.buf = NewBuffer(s.rec.opts.MaxSamples)
	s.stats = Stats{
		SampleRate: src.SampleRate(),
		Channels:   src.Channels(),
		Started:    time.Now(),
	}
	s.mu.Unlock()

	// Blocks may arrive before Start returns; onBlock takes s.mu.
	err := src.Start(s.onBlock)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	if err != nil {
		s.source = nil
		s.buf = nil
		s.stats = Stats{}
		s.rec.release(s)
		return err
	}
	s.state = Recording
	return nil
}

func (s *Session) onBlock(b audio.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return
	}
	s.stats.Blocks++
	if err := s.buf.Append(b); err != nil {
		s.fullOnce.Do(func() { close(s.full) })
	}
	s.stats.Samples = s.buf.TotalSampleCount()
	s.stats.Dropped = s.buf.Dropped()
	s.level.Store(math.Float32bits(audio.RMS(b.Samples)))
}

// Stop stops the source, drains the buffer and returns it encoded as WAV.
// The session is Stopped afterwards even if encoding fails.
func (s *Session) Stop() ([]byte, error) {
	s.mu.Lock()
	if s.state != Recording || s.stopping {
		s.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	s.stopping = true
	src := s.source
	s.mu.Unlock()

	// The source delivers its final partial block from inside Stop, so s.mu
	// must not be held here.
	src.Stop()

	s.mu.Lock()
	samples := s.buf.Drain()
	s.buf = nil
	s.source = nil
	s.state = Stopped
	s.stopping = false
	s.stats.Stopped = time.Now()
	rate, channels := s.stats.SampleRate, s.stats.Channels
	s.mu.Unlock()
	s.rec.release(s)

	data, err := wav.Encode(samples, rate, channels)
	if err != nil {
		return nil, fmt.Errorf("encoding recording: %w", err)
	}
	return data, nil
}

// Full is closed once the buffer cap is reached and blocks start being
// dropped. It never closes for an unbounded session.
func (s *Session) Full() <-chan struct{} { return s.full }

// Level returns the RMS of the most recent block.
func (s *Session) Level() float32 { return math.Float32frombits(s.level.Load()) }

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
