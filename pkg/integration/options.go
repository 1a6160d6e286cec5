// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"net/http"
	"time"
)

// DefaultRefreshSkew is how long before expiry an access token is refreshed.
const DefaultRefreshSkew = 60 * time.Second

// DefaultCallbackPort is the local port of the OAuth redirect listener.
const DefaultCallbackPort = 8765

type options struct {
	refresher  *Refresher
	httpClient *http.Client
	skew       time.Duration
	now        func() time.Time
}

func defaultOptions() *options {
	return &options{
		skew: DefaultRefreshSkew,
		now:  time.Now,
	}
}

// Option customizes integrations created by New.
type Option func(*options)

// WithRefresher shares a Refresher between integrations so that refreshes of
// the same credential key are coalesced process-wide.
func WithRefresher(r *Refresher) Option {
	return func(o *options) {
		o.refresher = r
	}
}

// WithHTTPClient sets the client used for token and discovery requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithRefreshSkew overrides DefaultRefreshSkew.
func WithRefreshSkew(d time.Duration) Option {
	return func(o *options) {
		o.skew = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
