package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"wavscribe/config"
)

// OpenAI speaks the OpenAI-compatible audio/transcriptions API (Groq by
// default).
type OpenAI struct {
	baseTranscriber
	apiKey string
	model  string
}

func NewOpenAI(apiURL, apiKey, model string, timeout time.Duration) *OpenAI {
	if apiURL == "" || apiURL == config.DefaultServiceURL {
		apiURL = config.DefaultOpenAIURL
	}
	if model == "" {
		model = config.DefaultModel
	}
	return &OpenAI{
		baseTranscriber: baseTranscriber{
			client: NewTracedClient(timeout),
			apiURL: apiURL,
		},
		apiKey: apiKey,
		model:  model,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) URL() string { return o.apiURL }

type openAIResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text         string  `json:"text"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		NoSpeechProb float64 `json:"no_speech_prob"`
		AvgLogProb   float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error) {
	fields := map[string]string{
		"model":           o.model,
		"response_format": "verbose_json",
	}
	if o.lang != "" {
		fields["language"] = o.lang
	}
	body, contentType, err := multipartBody(audio, filename, fields)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var oResp openAIResponse
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, fmt.Errorf("openai response parse error: %w", err)
	}

	var noSpeechProb float64
	var segments []Segment
	for _, seg := range oResp.Segments {
		noSpeechProb = max(noSpeechProb, seg.NoSpeechProb)
		segments = append(segments, Segment{
			Text:         seg.Text,
			NoSpeechProb: seg.NoSpeechProb,
			AvgLogProb:   seg.AvgLogProb,
			Start:        seg.Start,
			End:          seg.End,
		})
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:          oResp.Text,
		AudioDuration: oResp.Duration,
		// No server processing time in this API; report the round trip.
		ProcessDuration: fmt.Sprintf("%.2fs", resp.Metrics.Total.Seconds()),
		Metrics:         resp.Metrics,
		RateLimit:       remaining + "/" + limit,
		NoSpeechProb:    noSpeechProb,
		Segments:        segments,
	}, nil
}
