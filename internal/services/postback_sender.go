package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"s2s-tracker/internal/metrics"
)

const (
	DefaultPostbackTimeout = 10 * time.Second
	postbackUserAgent      = "S2S-Tracker/1.0"
	maxPostbackBody        = 64 << 10
)

type PostbackRequest struct {
	URL     string
	Method  string // GET or POST, defaults to GET
	Payload map[string]string
	Timeout time.Duration
	// InsecureSkipVerify disables TLS certificate checks for this call only.
	InsecureSkipVerify bool
}

// PostbackResult is the structured outcome of one delivery attempt. Transport failures
// are reported here, never as a Go error.
type PostbackResult struct {
	Success    bool    `json:"success"`
	HTTPStatus int     `json:"http_status"`
	Body       *string `json:"body"`
	ElapsedMs  int64   `json:"elapsed_ms"`
	Error      *string `json:"error"`
}

type PostbackSender struct {
	Metrics *metrics.Metrics
}

func NewPostbackSender(m *metrics.Metrics) *PostbackSender {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &PostbackSender{Metrics: m}
}

// Send performs exactly one outbound request. The dial and TLS handshake phases get half
// of the timeout; the whole exchange including the body read gets all of it. Cancellation
// of ctx does not abort an attempt already issued.
func (s *PostbackSender) Send(ctx context.Context, req PostbackRequest) PostbackResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultPostbackTimeout
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	result := s.do(ctx, method, req, timeout)
	result.ElapsedMs = time.Since(start).Milliseconds()

	s.Metrics.PostbackDuration.WithLabelValues(method).Observe(float64(result.ElapsedMs) / 1000)
	s.Metrics.PostbackAttempts.WithLabelValues(ClassifyPostbackStatus(result)).Inc()
	return result
}

func (s *PostbackSender) do(ctx context.Context, method string, req PostbackRequest, timeout time.Duration) PostbackResult {
	httpReq, cancel, err := buildPostbackRequest(ctx, method, req, timeout)
	if err != nil {
		return failedResult(err)
	}
	defer cancel()

	connectTimeout := timeout / 2
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: req.InsecureSkipVerify},
		DisableKeepAlives:   true,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return failedResult(describeTransportError(err, timeout))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPostbackBody))
	if err != nil {
		return failedResult(describeTransportError(err, timeout))
	}

	body := clipUTF8(validText(string(raw)), maxPostbackBody)
	return PostbackResult{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		HTTPStatus: resp.StatusCode,
		Body:       &body,
	}
}

func buildPostbackRequest(ctx context.Context, method string, req PostbackRequest, timeout time.Duration) (*http.Request, context.CancelFunc, error) {
	target, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid postback url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, nil, fmt.Errorf("invalid postback url %q: scheme must be http or https", req.URL)
	}

	var body io.Reader
	switch method {
	case http.MethodGet:
		q := target.Query()
		for k, v := range req.Payload {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	case http.MethodPost:
		form := url.Values{}
		for k, v := range req.Payload {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
	default:
		return nil, nil, fmt.Errorf("unsupported postback method %q", method)
	}

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target.String(), body)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	httpReq.Header.Set("User-Agent", postbackUserAgent)
	httpReq.Header.Set("Accept", "*/*")
	if method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return httpReq, cancel, nil
}

// clipUTF8 cuts s to at most maxBytes without splitting a character.
func clipUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

func describeTransportError(err error, timeout time.Duration) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("request timed out after %s: %w", timeout, err)
	}
	return err
}

func failedResult(err error) PostbackResult {
	msg := err.Error()
	return PostbackResult{
		Success:    false,
		HTTPStatus: 0,
		Body:       nil,
		Error:      &msg,
	}
}
