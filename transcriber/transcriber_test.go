package transcriber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wavscribe/config"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

type upload struct {
	path        string
	filename    string
	contentType string
	data        []byte
	fields      map[string]string
	auth        string
}

// uploadServer records the multipart upload it receives and answers with
// status and body.
func uploadServer(t *testing.T, status int, body string) (*httptest.Server, *upload) {
	t.Helper()
	got := &upload{fields: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.ContentLength != 0 {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("ParseMultipartForm: %v", err)
			} else {
				for k, v := range r.MultipartForm.Value {
					got.fields[k] = v[0]
				}
				if f, hdr, err := r.FormFile("file"); err == nil {
					got.filename = hdr.Filename
					got.contentType = hdr.Header.Get("Content-Type")
					got.data, _ = io.ReadAll(f)
					f.Close()
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestServiceTranscribe(t *testing.T) {
	tests := []struct {
		name         string
		endpoint     string
		response     string
		wantText     string
		wantDuration string
	}{
		{
			name:         "speech string duration",
			endpoint:     "speech",
			response:     `{"speech_response":"hello there","process_duration":"1.23 seconds"}`,
			wantText:     "hello there",
			wantDuration: "1.23 seconds",
		},
		{
			name:         "whisper numeric duration",
			endpoint:     "whisper",
			response:     `{"whisper_response":"general kenobi","process_duration":2.5}`,
			wantText:     "general kenobi",
			wantDuration: "2.5",
		},
		{
			name:         "missing duration",
			endpoint:     "speech",
			response:     `{"speech_response":"ok"}`,
			wantText:     "ok",
			wantDuration: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := uploadServer(t, http.StatusOK, tt.response)
			s := NewService(srv.URL+"/", tt.endpoint, 5*time.Second)

			audio := []byte("RIFF....WAVEfmt ")
			res, err := s.Transcribe(context.Background(), audio, "")
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if got.path != "/"+tt.endpoint {
				t.Errorf("path = %q, want /%s", got.path, tt.endpoint)
			}
			if got.filename != DefaultFilename {
				t.Errorf("filename = %q, want %q", got.filename, DefaultFilename)
			}
			if got.contentType != "audio/wav" {
				t.Errorf("part content type = %q", got.contentType)
			}
			if string(got.data) != string(audio) {
				t.Errorf("uploaded %q, want %q", got.data, audio)
			}
			if res.Text != tt.wantText || res.ProcessDuration != tt.wantDuration {
				t.Errorf("result = %q / %q, want %q / %q", res.Text, res.ProcessDuration, tt.wantText, tt.wantDuration)
			}
			if res.Metrics == nil || res.Metrics.Total <= 0 {
				t.Error("missing network metrics")
			}
		})
	}
}

func TestServiceForwardsFileUnmodified(t *testing.T) {
	srv, got := uploadServer(t, http.StatusOK, `{"speech_response":"x","process_duration":"0"}`)
	s := NewService(srv.URL, "speech", 0)

	data := []byte{0xff, 0xfb, 0x90, 0x00, 0x01, 0x02}
	if _, err := s.Transcribe(context.Background(), data, "/some/dir/talk.mp3"); err != nil {
		t.Fatal(err)
	}
	if got.filename != "talk.mp3" {
		t.Errorf("filename = %q", got.filename)
	}
	if string(got.data) != string(data) {
		t.Error("file bytes were modified")
	}
}

func TestServiceRecordRemote(t *testing.T) {
	srv, got := uploadServer(t, http.StatusOK, `{"speech_response":"remote words","process_duration":"3.1"}`)
	s := NewService(srv.URL, "whisper", 0)

	res, err := s.RecordRemote(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.path != "/speech2" {
		t.Errorf("path = %q, want /speech2", got.path)
	}
	if res.Text != "remote words" || res.ProcessDuration != "3.1" {
		t.Errorf("result = %+v", res)
	}
}

func TestServiceErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv, _ := uploadServer(t, http.StatusInternalServerError, `boom`)
		_, err := NewService(srv.URL, "speech", 0).Transcribe(context.Background(), []byte("x"), "")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("err = %v, want APIError", err)
		}
		if apiErr.StatusCode != 500 || apiErr.Body != "boom" {
			t.Errorf("APIError = %+v", apiErr)
		}
	})
	t.Run("wrong key", func(t *testing.T) {
		srv, _ := uploadServer(t, http.StatusOK, `{"whisper_response":"x"}`)
		if _, err := NewService(srv.URL, "speech", 0).Transcribe(context.Background(), []byte("x"), ""); err == nil {
			t.Error("expected error for missing speech_response")
		}
	})
	t.Run("not json", func(t *testing.T) {
		srv, _ := uploadServer(t, http.StatusOK, `<html>`)
		if _, err := NewService(srv.URL, "speech", 0).Transcribe(context.Background(), []byte("x"), ""); err == nil {
			t.Error("expected parse error")
		}
	})
	t.Run("cancelled", func(t *testing.T) {
		srv, _ := uploadServer(t, http.StatusOK, `{}`)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewService(srv.URL, "speech", 0).Transcribe(ctx, []byte("x"), "")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestRawText(t *testing.T) {
	for _, tt := range []struct {
		raw, want string
		wantErr   bool
	}{
		{`"1.5s"`, "1.5s", false},
		{`1.5`, "1.5", false},
		{`12`, "12", false},
		{`null`, "", false},
		{``, "", false},
		{`true`, "", true},
		{`{"a":1}`, "", true},
	} {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := rawText([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAITranscribe(t *testing.T) {
	srv, got := uploadServer(t, http.StatusOK, `{
		"text": "hello world",
		"duration": 2.5,
		"segments": [
			{"text": "hello", "start": 0, "end": 1, "no_speech_prob": 0.1, "avg_logprob": -0.2},
			{"text": " world", "start": 1, "end": 2.5, "no_speech_prob": 0.3, "avg_logprob": -0.4}
		]
	}`)
	o := NewOpenAI(srv.URL+"/v1/audio/transcriptions", "gsk-test", "", 0)
	o.SetLanguage("en")

	res, err := o.Transcribe(context.Background(), []byte("wav"), "clip.wav")
	if err != nil {
		t.Fatal(err)
	}
	if got.auth != "Bearer gsk-test" {
		t.Errorf("Authorization = %q", got.auth)
	}
	if got.fields["model"] != config.DefaultModel || got.fields["response_format"] != "verbose_json" || got.fields["language"] != "en" {
		t.Errorf("fields = %v", got.fields)
	}
	if res.Text != "hello world" || res.AudioDuration != 2.5 {
		t.Errorf("result = %+v", res)
	}
	if res.NoSpeechProb != 0.3 || len(res.Segments) != 2 {
		t.Errorf("segments = %d, no_speech = %v", len(res.Segments), res.NoSpeechProb)
	}
	if res.ProcessDuration == "" {
		t.Error("ProcessDuration empty")
	}
}

func TestOpenAIError(t *testing.T) {
	srv, _ := uploadServer(t, http.StatusTooManyRequests, `{"error":"slow down"}`)
	_, err := NewOpenAI(srv.URL, "k", "", 0).Transcribe(context.Background(), []byte("x"), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
}

func TestNew(t *testing.T) {
	tr, err := New(config.TranscriptionConfig{Provider: config.ProviderService, BaseURL: "http://x/", Endpoint: "whisper", Language: "fr"})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name() != "service/whisper" || tr.GetLanguage() != "fr" {
		t.Errorf("got %s lang %q", tr.Name(), tr.GetLanguage())
	}
	if svc := tr.(*Service); svc.URL() != "http://x/whisper" {
		t.Errorf("URL = %q", svc.URL())
	}

	if _, err := New(config.TranscriptionConfig{Provider: config.ProviderOpenAI}); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := New(config.TranscriptionConfig{Provider: "nope"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFakeTranscriber(t *testing.T) {
	f := NewFake("canned", nil)
	res, err := f.Transcribe(context.Background(), []byte{1, 2}, "a.wav")
	if err != nil || res.Text != "canned" {
		t.Fatalf("res = %+v err = %v", res, err)
	}
	if calls := f.Calls(); len(calls) != 1 || calls[0].Filename != "a.wav" {
		t.Errorf("calls = %+v", calls)
	}

	sentinel := errors.New("down")
	if _, err := NewFake("", sentinel).Transcribe(context.Background(), nil, ""); !errors.Is(err, sentinel) {
		t.Errorf("err = %v", err)
	}
}

func TestWarmConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()
	if _, err := NewTracedClient(time.Second).WarmConnection(context.Background(), srv.URL); err != nil {
		t.Errorf("WarmConnection: %v", err)
	}
}
