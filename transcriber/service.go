package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Service talks to the speech web service: /speech (Azure Speech) and
// /whisper (Whisper) take an uploaded file, /speech2 records on the server.
type Service struct {
	baseTranscriber
	baseURL  string
	endpoint string
}

func NewService(baseURL, endpoint string, timeout time.Duration) *Service {
	if endpoint == "" {
		endpoint = "speech"
	}
	base := strings.TrimRight(baseURL, "/")
	return &Service{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient(timeout),
			apiURL: base + "/" + endpoint,
		},
		baseURL:  base,
		endpoint: endpoint,
	}
}

func (s *Service) Name() string { return "service/" + s.endpoint }

// URL is the upload endpoint.
func (s *Service) URL() string { return s.apiURL }

func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error) {
	body, contentType, err := multipartBody(audio, filename, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return s.do(req, s.endpoint+"_response")
}

// RecordRemote asks the service to record from its own microphone and
// transcribe the result.
func (s *Service) RecordRemote(ctx context.Context) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/speech2", nil)
	if err != nil {
		return nil, err
	}
	return s.do(req, "speech_response")
}

func (s *Service) do(req *http.Request, textKey string) (*Result, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Provider: "service", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &fields); err != nil {
		return nil, fmt.Errorf("service response parse error: %w", err)
	}
	raw, ok := fields[textKey]
	if !ok {
		return nil, fmt.Errorf("service response has no %q field", textKey)
	}
	text, err := rawText(raw)
	if err != nil {
		return nil, fmt.Errorf("service response %q: %w", textKey, err)
	}
	duration, err := rawText(fields["process_duration"])
	if err != nil {
		return nil, fmt.Errorf("service response process_duration: %w", err)
	}

	return &Result{
		Text:            text,
		ProcessDuration: duration,
		Metrics:         resp.Metrics,
	}, nil
}

// rawText renders a JSON string, number or null as display text.
func rawText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("want string or number, got %s", raw)
	}
	return n.String(), nil
}
