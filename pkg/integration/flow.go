// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/stacklok/toolhost/pkg/logger"
)

// URLOpener opens an authorization URL, typically in a browser.
type URLOpener func(url string) error

// RunBrowserFlow performs an authorization code flow with PKCE: it serves the
// redirect endpoint on the callback port, hands the authorization URL to
// open, exchanges the returned code and stores the tokens.
func (a *OAuth2) RunBrowserFlow(ctx context.Context, open URLOpener) error {
	redirect, err := url.Parse(a.config.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(redirect.Hostname(), redirect.Port()))
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	return a.runFlow(ctx, ln, redirect.Path, open)
}

func (a *OAuth2) runFlow(ctx context.Context, ln net.Listener, callbackPath string, open URLOpener) error {
	if callbackPath == "" {
		callbackPath = "/callback"
	}
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	done := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		err := a.handleCallback(r, state, verifier)
		writeFlowPage(w, err)
		select {
		case done <- err:
		default:
		}
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case done <- fmt.Errorf("callback server failed: %w", err):
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to shutdown OAuth callback server: %v", err)
		}
	}()

	authURL := a.AuthorizationURL(state, oauth2.S256ChallengeOption(verifier))
	if err := open(authURL); err != nil {
		logger.Warnf("Failed to open browser: %v", err)
		logger.Infof("Please open this URL in your browser: %s", authURL)
	}
	logger.Info("Waiting for OAuth callback...")

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("OAuth flow cancelled: %w", ctx.Err())
	}
}

func (a *OAuth2) handleCallback(r *http.Request, state, verifier string) error {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return fmt.Errorf("OAuth error: %s - %s", e, q.Get("error_description"))
	}
	if q.Get("state") != state {
		return errors.New("invalid state parameter")
	}
	code := q.Get("code")
	if code == "" {
		return errors.New("missing authorization code")
	}
	return a.Exchange(r.Context(), code, oauth2.VerifierOption(verifier))
}

func writeFlowPage(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")

	title, body := "Authentication Successful", "You can close this window and return to the terminal."
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		title, body = "Authentication Failed", html.EscapeString(err.Error())
	}
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title>
<style>body { font-family: sans-serif; margin: 40px; text-align: center; }</style>
</head>
<body><h1>%s</h1><p>%s</p></body>
</html>`, title, title, body)
	if _, err := w.Write([]byte(page)); err != nil {
		logger.Warnf("Failed to write HTML content: %v", err)
	}
}
