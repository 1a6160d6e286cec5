// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/store"
)

const (
	refreshTimeout   = 30 * time.Second
	discoveryTimeout = 10 * time.Second
)

// Refresher coalesces concurrent token refreshes per credential key.
type Refresher struct {
	group     singleflight.Group
	exchanges atomic.Int64
}

// NewRefresher creates a Refresher.
func NewRefresher() *Refresher {
	return &Refresher{}
}

// Exchanges returns the number of token exchanges performed.
func (r *Refresher) Exchanges() int64 {
	return r.exchanges.Load()
}

// OAuth2 reads {access_token, refresh_token, expires_at} and refreshes the
// access token shortly before it expires.
type OAuth2 struct {
	name       string
	store      store.Store
	config     *oauth2.Config
	headers    map[string]string
	query      map[string]string
	refresher  *Refresher
	httpClient *http.Client
	skew       time.Duration
	now        func() time.Time
	port       int
}

// NewOAuth2 creates an oauth2 integration. When cfg.Issuer is set and either
// endpoint is missing, both are discovered from the issuer's OIDC metadata.
func NewOAuth2(ctx context.Context, cfg Config, st store.Store, o *options) (*OAuth2, error) {
	if o == nil {
		o = defaultOptions()
	}
	a := &OAuth2{
		name:       cfg.Name,
		store:      st,
		headers:    maps.Clone(cfg.Headers),
		query:      maps.Clone(cfg.Query),
		refresher:  o.refresher,
		httpClient: o.httpClient,
		skew:       o.skew,
		now:        o.now,
		port:       cfg.CallbackPort,
	}
	if a.refresher == nil {
		a.refresher = NewRefresher()
	}
	if a.port == 0 {
		a.port = DefaultCallbackPort
	}

	endpoint := oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	if cfg.Issuer != "" && (endpoint.AuthURL == "" || endpoint.TokenURL == "") {
		discovered, err := a.discover(ctx, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		endpoint = discovered
	}

	var missing []string
	if cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if endpoint.AuthURL == "" {
		missing = append(missing, "auth_url")
	}
	if endpoint.TokenURL == "" {
		missing = append(missing, "token_url")
	}
	if len(missing) > 0 {
		return nil, hosterr.NewConfigurationError(
			fmt.Sprintf("oauth2 integration %s is missing %v", cfg.Name, missing), missing, nil)
	}

	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = fmt.Sprintf("http://localhost:%d/callback", a.port)
	}
	a.config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       cfg.Scopes,
		Endpoint:     endpoint,
	}
	return a, nil
}

func (a *OAuth2) discover(ctx context.Context, issuer string) (oauth2.Endpoint, error) {
	ctx, cancel := context.WithTimeout(a.clientContext(ctx), discoveryTimeout)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return oauth2.Endpoint{}, hosterr.New(hosterr.KindConfiguration,
			"failed to discover OIDC endpoints for "+issuer, err)
	}
	logger.Debugw("discovered oauth2 endpoints", "integration", a.name, "issuer", issuer)
	return provider.Endpoint(), nil
}

// clientContext makes oauth2 and oidc use the configured HTTP client.
func (a *OAuth2) clientContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	return oidc.ClientContext(ctx, a.httpClient)
}

// Name implements Integration.
func (a *OAuth2) Name() string { return a.name }

// Kind implements Integration.
func (*OAuth2) Kind() Kind { return KindOAuth2 }

// Config returns the underlying oauth2 configuration.
func (a *OAuth2) Config() *oauth2.Config { return a.config }

// AuthorizationURL builds the URL a user visits to grant access.
func (a *OAuth2) AuthorizationURL(state string, opts ...oauth2.AuthCodeOption) string {
	opts = append([]oauth2.AuthCodeOption{oauth2.AccessTypeOffline}, opts...)
	return a.config.AuthCodeURL(state, opts...)
}

// Authorize implements Integration.
func (a *OAuth2) Authorize(_ context.Context) (*Authorization, error) {
	return &Authorization{
		Kind:         KindOAuth2,
		Instructions: "Open the URL in a browser and grant access, or run `toolhost auth` to complete the flow automatically.",
		URL:          a.AuthorizationURL(uuid.NewString()),
	}, nil
}

// Credentials implements Integration.
func (a *OAuth2) Credentials(ctx context.Context) (*Credentials, error) {
	rec, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	if rec.AccessToken == "" || rec.needsRefresh(a.now(), a.skew) {
		if rec.RefreshToken == "" {
			return nil, a.notAuthorized(nil)
		}
		rec, err = a.refresh(ctx)
		if err != nil {
			return nil, err
		}
	}
	return a.render(rec), nil
}

// SetCredentials implements Integration. value must be a token record.
func (a *OAuth2) SetCredentials(ctx context.Context, value []byte) error {
	var rec tokenRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return hosterr.New(hosterr.KindConfiguration, "oauth2 credentials must be a JSON token record", nil)
	}
	return a.store.Set(ctx, a.name, value)
}

// Exchange trades an authorization code for tokens and stores them.
func (a *OAuth2) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) error {
	tok, err := a.config.Exchange(a.clientContext(ctx), code, opts...)
	if err != nil {
		return a.notAuthorized(sanitizeTokenError(err))
	}
	return a.save(ctx, recordFromToken(tok, ""))
}

func (a *OAuth2) render(rec *tokenRecord) *Credentials {
	headers := a.headers
	if len(headers) == 0 && len(a.query) == 0 {
		headers = map[string]string{"Authorization": "Bearer {token}"}
	}
	return render(headers, a.query, map[string]string{
		"token":        rec.AccessToken,
		"access_token": rec.AccessToken,
	})
}

func (a *OAuth2) refresh(ctx context.Context) (*tokenRecord, error) {
	ch := a.refresher.group.DoChan(a.name, func() (any, error) {
		// shared by every waiter, so it must outlive the first caller's cancellation
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		// another caller may have completed a refresh since we last looked
		cur, err := a.load(rctx)
		if err != nil {
			return nil, err
		}
		if cur.AccessToken != "" && !cur.needsRefresh(a.now(), a.skew) {
			return cur, nil
		}
		if cur.RefreshToken == "" {
			return nil, a.notAuthorized(nil)
		}

		a.refresher.exchanges.Add(1)
		logger.Debugw("refreshing oauth2 access token", "integration", a.name)
		tok, err := a.config.TokenSource(a.clientContext(rctx), &oauth2.Token{RefreshToken: cur.RefreshToken}).Token()
		if err != nil {
			return nil, a.notAuthorized(sanitizeTokenError(err))
		}

		next := recordFromToken(tok, cur.RefreshToken)
		if err := a.save(rctx, next); err != nil {
			return nil, err
		}
		return next, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tokenRecord), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *OAuth2) load(ctx context.Context) (*tokenRecord, error) {
	raw, err := a.store.Get(ctx, a.name)
	if err != nil {
		if hosterr.IsKeyNotFound(err) {
			return nil, a.notAuthorized(nil)
		}
		return nil, err
	}
	var rec tokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, hosterr.NewNotAuthorizedError(a.name, a.name, a.AuthorizationURL(uuid.NewString()),
			errors.New("stored token record is not valid JSON"))
	}
	return &rec, nil
}

func (a *OAuth2) save(ctx context.Context, rec *tokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return hosterr.NewStoreUnavailableError(string(a.store.Type()), err)
	}
	return a.store.Set(ctx, a.name, data)
}

func (a *OAuth2) notAuthorized(cause error) error {
	return hosterr.NewNotAuthorizedError(a.name, a.name, a.AuthorizationURL(uuid.NewString()), cause)
}

// sanitizeTokenError drops the token endpoint's response body, which may echo
// request parameters.
func sanitizeTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if re.ErrorCode != "" {
			return fmt.Errorf("token endpoint returned HTTP %d (%s)", status, re.ErrorCode)
		}
		return fmt.Errorf("token endpoint returned HTTP %d", status)
	}
	return errors.New("token exchange failed")
}

type tokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    expiresAt `json:"expires_at,omitzero"`
}

func recordFromToken(tok *oauth2.Token, previousRefresh string) *tokenRecord {
	rec := &tokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    expiresAt{tok.Expiry},
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = previousRefresh
	}
	return rec
}

func (r *tokenRecord) needsRefresh(now time.Time, skew time.Duration) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(r.ExpiresAt.Time)
}

// expiresAt reads RFC 3339 strings or unix seconds and writes RFC 3339.
type expiresAt struct {
	time.Time
}

func (e expiresAt) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.UTC().Format(time.RFC3339))
}

func (e *expiresAt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		e.Time = time.Time{}
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		e.Time = unixSeconds(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("expires_at must be a string or number")
	}
	if s == "" {
		e.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		e.Time = t
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		e.Time = unixSeconds(n)
		return nil
	}
	return fmt.Errorf("expires_at %q is not RFC 3339 or unix seconds", s)
}

func unixSeconds(n float64) time.Time {
	sec := int64(n)
	return time.Unix(sec, int64((n-float64(sec))*1e9)).UTC()
}
