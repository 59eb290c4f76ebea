package main

import (
	"fmt"
	"sort"
	"sync"
)

// TranscriptionRecord is one finished upload, kept for the TUI's
// percentile table.
type TranscriptionRecord struct {
	AudioLengthS float64
	UploadSizeKB float64
	DNSTimeMs    float64
	TLSTimeMs    float64
	TTFBMs       float64
	TotalTimeMs  float64
}

type PercentileStats struct {
	TotalMs  [5]float64 // min, p50, p90, p95, max
	TTFBMs   [5]float64
	TLSMs    [5]float64
	UploadKB [5]float64
}

type history struct {
	mu      sync.Mutex
	records []TranscriptionRecord
	stats   PercentileStats
}

func (h *history) Add(r TranscriptionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	h.update()
}

func (h *history) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func (h *history) Stats() PercentileStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *history) update() {
	n := len(h.records)
	if n == 0 {
		return
	}

	extract := func(fn func(TranscriptionRecord) float64) []float64 {
		vals := make([]float64, n)
		for i, r := range h.records {
			vals[i] = fn(r)
		}
		sort.Float64s(vals)
		return vals
	}

	percentile := func(sorted []float64, p float64) float64 {
		idx := int(float64(len(sorted)-1) * p)
		return sorted[idx]
	}

	calcStats := func(sorted []float64) [5]float64 {
		return [5]float64{
			sorted[0],
			percentile(sorted, 0.50),
			percentile(sorted, 0.90),
			percentile(sorted, 0.95),
			sorted[len(sorted)-1],
		}
	}

	h.stats.TotalMs = calcStats(extract(func(r TranscriptionRecord) float64 { return r.TotalTimeMs }))
	h.stats.TTFBMs = calcStats(extract(func(r TranscriptionRecord) float64 { return r.TTFBMs }))
	h.stats.TLSMs = calcStats(extract(func(r TranscriptionRecord) float64 { return r.TLSTimeMs }))
	h.stats.UploadKB = calcStats(extract(func(r TranscriptionRecord) float64 { return r.UploadSizeKB }))
}

// Table renders the percentiles, or "" before the first upload.
func (h *history) Table() string {
	if h.Len() == 0 {
		return ""
	}
	s := h.Stats()
	ts, fb, tls, kb := s.TotalMs, s.TTFBMs, s.TLSMs, s.UploadKB

	return fmt.Sprintf(
		"        %5s %5s %5s %5s %5s\n"+
			"total   %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"ttfb    %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"tls     %5.0f %5.0f %5.0f %5.0f %5.0f\n"+
			"kb      %5.0f %5.0f %5.0f %5.0f %5.0f",
		"min", "p50", "p90", "p95", "max",
		ts[0], ts[1], ts[2], ts[3], ts[4],
		fb[0], fb[1], fb[2], fb[3], fb[4],
		tls[0], tls[1], tls[2], tls[3], tls[4],
		kb[0], kb[1], kb[2], kb[3], kb[4],
	)
}
