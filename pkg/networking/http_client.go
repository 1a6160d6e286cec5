// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking builds the pooled HTTP clients applications use for
// outbound calls and maps their failures into the error taxonomy.
package networking

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/stacklok/toolhost/pkg/logger"
)

// HttpTimeout is the default timeout for outgoing HTTP requests
const HttpTimeout = 30 * time.Second

// DefaultRetryInterval is the initial backoff between retried GET requests.
const DefaultRetryInterval = 250 * time.Millisecond

// HttpClientBuilder provides a fluent interface for building HTTP clients
type HttpClientBuilder struct {
	clientTimeout         time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	caCertPath            string
	userAgent             string
	requestsPerSecond     float64
	burst                 int
	maxTries              uint
	retryInterval         time.Duration
}

// NewHttpClientBuilder returns a new HttpClientBuilder
func NewHttpClientBuilder() *HttpClientBuilder {
	return &HttpClientBuilder{
		clientTimeout:         HttpTimeout,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 0,
		maxTries:              1,
		retryInterval:         DefaultRetryInterval,
	}
}

// WithTimeout sets the overall client timeout. Zero disables it, leaving
// request contexts as the only deadline.
func (b *HttpClientBuilder) WithTimeout(d time.Duration) *HttpClientBuilder {
	b.clientTimeout = d
	return b
}

// WithCABundle sets the CA certificate bundle path
func (b *HttpClientBuilder) WithCABundle(path string) *HttpClientBuilder {
	b.caCertPath = path
	return b
}

// WithUserAgent sets the User-Agent for requests that do not set one.
func (b *HttpClientBuilder) WithUserAgent(ua string) *HttpClientBuilder {
	b.userAgent = ua
	return b
}

// WithRateLimit limits outbound requests to rps per second. Zero disables
// limiting.
func (b *HttpClientBuilder) WithRateLimit(rps float64, burst int) *HttpClientBuilder {
	b.requestsPerSecond = rps
	b.burst = burst
	return b
}

// WithRetries retries GET requests up to maxTries attempts in total on
// transport errors and 502, 503 and 504 responses.
func (b *HttpClientBuilder) WithRetries(maxTries uint, initial time.Duration) *HttpClientBuilder {
	b.maxTries = maxTries
	if initial > 0 {
		b.retryInterval = initial
	}
	return b
}

// Build creates the configured HTTP client
func (b *HttpClientBuilder) Build() (*http.Client, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("unexpected default transport type %T", http.DefaultTransport)
	}
	transport := base.Clone()
	transport.TLSHandshakeTimeout = b.tlsHandshakeTimeout
	transport.ResponseHeaderTimeout = b.responseHeaderTimeout
	transport.MaxIdleConnsPerHost = 16

	if b.caCertPath != "" {
		caCert, err := os.ReadFile(b.caCertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate bundle: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate bundle")
		}

		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}
		transport.TLSClientConfig.RootCAs = caCertPool
	}

	var clientTransport http.RoundTripper = transport
	if b.maxTries > 1 {
		clientTransport = &retryTransport{
			next:     clientTransport,
			maxTries: b.maxTries,
			initial:  b.retryInterval,
		}
	}
	if b.requestsPerSecond > 0 {
		burst := b.burst
		if burst < 1 {
			burst = 1
		}
		clientTransport = &rateLimitTransport{
			next:    clientTransport,
			limiter: rate.NewLimiter(rate.Limit(b.requestsPerSecond), burst),
		}
	}
	if b.userAgent != "" {
		clientTransport = &userAgentTransport{next: clientTransport, userAgent: b.userAgent}
	}

	return &http.Client{
		Transport: clientTransport,
		Timeout:   b.clientTimeout,
	}, nil
}

// userAgentTransport sets a default User-Agent header.
type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

// RoundTrip sets the User-Agent when absent and forwards the request
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	// Clone the request to avoid modifying the original
	newReq := req.Clone(req.Context())
	newReq.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(newReq)
}

// rateLimitTransport waits for a limiter token before each request.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// RoundTrip waits for the limiter and forwards the request
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// retryTransport retries idempotent GET requests with exponential backoff.
type retryTransport struct {
	next     http.RoundTripper
	maxTries uint
	initial  time.Duration
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RoundTrip sends the request, retrying GETs on transport errors and
// gateway failures. The final attempt's response is returned as is.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || req.Body != nil && req.Body != http.NoBody {
		return t.next.RoundTrip(req)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = t.initial
	expBackoff.MaxInterval = 20 * t.initial
	expBackoff.Reset()

	var attempt uint
	operation := func() (*http.Response, error) {
		attempt++
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if retryableStatus(resp.StatusCode) && attempt < t.maxTries {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
		}
		return resp, nil
	}

	return backoff.Retry(req.Context(), operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(t.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugf("Retrying %s %s after %v: %v", req.Method, RedactURL(req.URL), d, err)
		}),
	)
}
