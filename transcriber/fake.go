package transcriber

import (
	"context"
	"fmt"
	"sync"
)

// FakeTranscriber returns canned results and remembers what it was sent.
type FakeTranscriber struct {
	text string
	err  error
	lang string

	mu    sync.Mutex
	calls []FakeCall
}

type FakeCall struct {
	Audio    []byte
	Filename string
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

func (f *FakeTranscriber) Name() string            { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

func (f *FakeTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Audio: audio, Filename: filename})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, fmt.Errorf("fake transcriber error: %w", f.err)
	}
	return &Result{
		Text:            f.text,
		ProcessDuration: "0.01",
		Metrics:         &NetworkMetrics{},
	}, nil
}

func (f *FakeTranscriber) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}
