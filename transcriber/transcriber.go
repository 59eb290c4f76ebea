package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"wavscribe/config"
)

// DefaultFilename names uploads of live recordings.
const DefaultFilename = "micRecording.wav"

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Segment struct {
	Text         string
	NoSpeechProb float64
	AvgLogProb   float64
	Start        float64
	End          float64
}

type Result struct {
	Text string
	// ProcessDuration is the server-reported processing time, verbatim.
	ProcessDuration string
	// AudioDuration is the length of the audio in seconds, when reported.
	AudioDuration float64
	Metrics       *NetworkMetrics
	RateLimit     string
	NoSpeechProb  float64
	Segments      []Segment
}

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	// Transcribe uploads one complete audio file.
	Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error)
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

type baseTranscriber struct {
	client *TracedClient
	apiURL string
	lang   string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

// Client exposes the underlying traced client.
func (b *baseTranscriber) Client() *TracedClient { return b.client }

// New builds the configured provider.
func New(cfg config.TranscriptionConfig) (Transcriber, error) {
	var t Transcriber
	switch cfg.Provider {
	case config.ProviderService, "":
		t = NewService(cfg.BaseURL, cfg.Endpoint, cfg.Timeout)
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("set GROQ_API_KEY, OPENAI_API_KEY or transcription.api_key")
		}
		t = NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if cfg.Language != "" {
		t.SetLanguage(cfg.Language)
	}
	return t, nil
}

var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
}

// multipartBody builds a form holding audio under "file" plus any extra
// fields.
func multipartBody(audio []byte, filename string, fields map[string]string) (*bytes.Buffer, string, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	contentType := audioTypes[strings.ToLower(filepath.Ext(filename))]
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &body, writer.FormDataContentType(), nil
}
