package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	SessionsStarted  prometheus.Counter
	SessionsFailed   *prometheus.CounterVec
	RecordedSeconds  prometheus.Histogram
	EncodedBytes     prometheus.Histogram
	SamplesDropped   prometheus.Counter
	CaptureBlocks    prometheus.Counter
	InputLevel       prometheus.Gauge
	Transcriptions   *prometheus.CounterVec
	TranscribeTime   *prometheus.HistogramVec
	ServerProcessing prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "wavscribe_sessions_started_total",
			Help: "Recording sessions started",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wavscribe_sessions_failed_total",
			Help: "Recording sessions that failed, by stage",
		}, []string{"stage"}),
		RecordedSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavscribe_recorded_seconds",
			Help:    "Length of recorded audio per session",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		EncodedBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavscribe_encoded_bytes",
			Help:    "Size of encoded WAV uploads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		SamplesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "wavscribe_samples_dropped_total",
			Help: "Samples discarded after a session reached its cap",
		}),
		CaptureBlocks: f.NewCounter(prometheus.CounterOpts{
			Name: "wavscribe_capture_blocks_total",
			Help: "Sample blocks delivered by the capture source",
		}),
		InputLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "wavscribe_input_level_rms",
			Help: "RMS level of the most recent capture block",
		}),
		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wavscribe_transcriptions_total",
			Help: "Transcription requests by provider and result",
		}, []string{"provider", "result"}),
		TranscribeTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wavscribe_transcription_duration_seconds",
			Help:    "Round trip time of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}, []string{"provider"}),
		ServerProcessing: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavscribe_server_process_seconds",
			Help:    "Processing time reported by the transcription service",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

// Handler serves /metrics for reg and the pprof endpoints.
func Handler(reg prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Serve listens on addr until ctx is done. It returns once the listener is
// bound so the caller can report the resolved address.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	srv := &http.Server{Handler: Handler(reg), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return ln.Addr(), errc, nil
}
