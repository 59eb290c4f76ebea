package transcriber

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// maxResponseBytes bounds how much of a transcription response is read.
const maxResponseBytes = 4 << 20

type TracedClient struct {
	client *http.Client
}

// NewTracedClient returns a client whose requests give up after timeout
// (zero means no limit beyond the request context).
func NewTracedClient(timeout time.Duration) *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// phaseTimer fills a NetworkMetrics from httptrace callbacks. Phases that
// never happen (DNS and TLS on a reused connection) stay zero.
type phaseTimer struct {
	m *NetworkMetrics

	getConn, dns, connect, handshake time.Time
	gotConn, wroteHeaders, wrote     time.Time
	firstByte                        time.Time
}

func (p *phaseTimer) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { p.getConn = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			p.gotConn = time.Now()
			p.m.ConnWait = p.gotConn.Sub(p.getConn)
			p.m.ConnReused = info.Reused
		},
		DNSStart:     func(httptrace.DNSStartInfo) { p.dns = time.Now() },
		DNSDone:      func(httptrace.DNSDoneInfo) { p.m.DNS = time.Since(p.dns) },
		ConnectStart: func(_, _ string) { p.connect = time.Now() },
		ConnectDone:  func(_, _ string, _ error) { p.m.TCP = time.Since(p.connect) },

		TLSHandshakeStart: func() { p.handshake = time.Now() },
		TLSHandshakeDone: func(cs tls.ConnectionState, _ error) {
			p.m.TLS = time.Since(p.handshake)
			p.m.TLSProtocol = tls.VersionName(cs.Version)
		},
		WroteHeaders: func() {
			p.wroteHeaders = time.Now()
			p.m.ReqHeaders = p.wroteHeaders.Sub(p.gotConn)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			p.wrote = time.Now()
			p.m.ReqBody = p.wrote.Sub(p.wroteHeaders)
		},
		GotFirstResponseByte: func() {
			p.firstByte = time.Now()
			p.m.TTFB = p.firstByte.Sub(p.wrote)
		},
	}
}

// Do sends req and reads the whole body, recording per-phase timings.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	timer := &phaseTimer{m: &NetworkMetrics{}}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), timer.trace()))

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response larger than %d bytes", maxResponseBytes)
	}
	if !timer.firstByte.IsZero() {
		timer.m.Download = time.Since(timer.firstByte)
	}
	timer.m.Total = time.Since(start)

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    timer.m,
	}, nil
}

// WarmConnection opens a connection to url ahead of the upload and reports
// the TLS handshake time. Any response status counts as reachable.
func (c *TracedClient) WarmConnection(ctx context.Context, url string) (time.Duration, error) {
	timer := &phaseTimer{m: &NetworkMetrics{}}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, timer.trace()), http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return timer.m.TLS, nil
}
