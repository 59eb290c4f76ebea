package main

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	speechLevel      = 0.02 // RMS at or above this counts as voice
	speechMinRatio   = 0.10
	speechClearRatio = 0.25
)

type SilenceEvent int

const (
	SilenceNone SilenceEvent = iota
	SilenceWarn
	SilenceWarnClear
	SilenceAutoStop
)

// silenceMonitor is fed the input level once per tick. It warns when fewer
// than speechMinRatio of the last silenceWarnAfter ticks were voiced, clears
// the warning at speechClearRatio, and reports SilenceAutoStop once the
// autoStop window is quiet. AutoStop is checked first.
type silenceMonitor struct {
	warnTicks int
	stopTicks int // 0 disables auto-stop

	ticks  int
	voiced int
	// totals[t%len] is the voiced count after t ticks; it spans the longest
	// window plus one.
	totals []int
	warned bool
}

func newSilenceMonitor(autoStop time.Duration) *silenceMonitor {
	warn := int(silenceWarnAfter / tickInterval)
	stop := int(autoStop / tickInterval)
	return &silenceMonitor{
		warnTicks: warn,
		stopTicks: stop,
		totals:    make([]int, max(warn, stop)+1),
	}
}

// voicedShare is the fraction of voiced ticks among the last n, or 1 before
// the first tick.
func (m *silenceMonitor) voicedShare(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1
	}
	before := m.totals[(m.ticks-n)%len(m.totals)]
	return float64(m.voiced-before) / float64(n)
}

func (m *silenceMonitor) Tick(level float32) SilenceEvent {
	if level >= speechLevel {
		m.voiced++
	}
	m.ticks++
	m.totals[m.ticks%len(m.totals)] = m.voiced

	if m.stopTicks > 0 && m.ticks >= m.stopTicks && m.voicedShare(m.stopTicks) < speechMinRatio {
		return SilenceAutoStop
	}

	share := m.voicedShare(m.warnTicks)
	switch {
	case !m.warned && m.ticks >= m.warnTicks && share < speechMinRatio:
		m.warned = true
		return SilenceWarn
	case m.warned && share >= speechClearRatio:
		m.warned = false
		return SilenceWarnClear
	}
	return SilenceNone
}
