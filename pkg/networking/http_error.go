// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

// DefaultMaxResponseSize is the default maximum response body size (10MB).
const DefaultMaxResponseSize = 10 * 1024 * 1024

// HTTPClient is the subset of *http.Client used to send requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RedactURL renders u without its query string, fragment and user info,
// which may carry credentials.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	return c.String()
}

// Do sends req and reads the response body up to maxBody bytes (zero means
// DefaultMaxResponseSize). Non-2xx responses become UpstreamHttpError with
// a truncated body excerpt. Network failures become UpstreamTransportError,
// except when the request context is done, in which case the context's
// cause is returned.
func Do(client HTTPClient, req *http.Request, maxBody int64) (*http.Response, []byte, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseSize
	}
	target := RedactURL(req.URL)

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, transportError(req, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, nil, transportError(req, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, body, hosterr.NewUpstreamHTTPError(req.Method, target, resp.StatusCode, body)
	}
	return resp, body, nil
}

func transportError(req *http.Request, target string, err error) error {
	ctx := req.Context()
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if herr, ok := hosterr.As(err); ok {
		return herr
	}
	// url.Error repeats the full URL, query string included.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return hosterr.NewUpstreamTransportError(req.Method, target, err)
}

// IsHTTPError checks if an error is an UpstreamHttpError with the specified
// status code. If statusCode is 0, it matches any upstream HTTP error.
func IsHTTPError(err error, statusCode int) bool {
	herr, ok := hosterr.As(err)
	if !ok || herr.Kind != hosterr.KindUpstreamHTTP {
		return false
	}
	if statusCode == 0 {
		return true
	}
	details, _ := herr.Details.(map[string]any)
	status, _ := details["status"].(int)
	return status == statusCode
}
