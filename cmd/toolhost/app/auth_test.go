// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhost/pkg/integration"
	"github.com/stacklok/toolhost/pkg/store"
)

type fakePrompter struct {
	answers map[string]string
	asked   []string
	secret  map[string]bool
}

func (p *fakePrompter) Prompt(label string, secret bool) (string, error) {
	p.asked = append(p.asked, label)
	if p.secret == nil {
		p.secret = map[string]bool{}
	}
	p.secret[label] = secret
	answer, ok := p.answers[label]
	if !ok {
		return "", errors.New("unexpected prompt " + label)
	}
	return answer, nil
}

func newIntegration(t *testing.T, cfg integration.Config) (integration.Integration, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	integ, err := integration.New(context.Background(), cfg, st)
	require.NoError(t, err)
	return integ, st
}

func TestAuthorize_Prompts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		kind       integration.Kind
		answers    map[string]string
		wantSecret map[string]bool
		wantStored string
		wantErr    string
	}{
		{
			name:       "api key",
			kind:       integration.KindAPIKey,
			answers:    map[string]string{"API key": "tvly-secret"},
			wantSecret: map[string]bool{"API key": true},
			wantStored: "tvly-secret",
		},
		{
			name:       "basic auth",
			kind:       integration.KindBasicAuth,
			answers:    map[string]string{"Username": "alice", "Password": "hunter2"},
			wantSecret: map[string]bool{"Username": false, "Password": true},
			wantStored: `{"username":"alice","password":"hunter2"}`,
		},
		{
			name:    "empty api key",
			kind:    integration.KindAPIKey,
			answers: map[string]string{"API key": ""},
			wantErr: "no API key entered",
		},
		{
			name:    "empty username",
			kind:    integration.KindBasicAuth,
			answers: map[string]string{"Username": "", "Password": "hunter2"},
			wantErr: "no username entered",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			integ, st := newIntegration(t, integration.Config{Name: "SERVICE_CREDS", Type: tt.kind})
			p := &fakePrompter{answers: tt.answers}
			var out bytes.Buffer

			err := authorize(context.Background(), &out, integ, p, authOptions{})
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				_, getErr := st.Get(context.Background(), "SERVICE_CREDS")
				assert.Error(t, getErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSecret, p.secret)
			assert.Contains(t, out.String(), "Credentials for SERVICE_CREDS stored.")
			for _, answer := range tt.answers {
				assert.NotContains(t, out.String(), answer)
			}

			raw, err := st.Get(context.Background(), "SERVICE_CREDS")
			require.NoError(t, err)
			if tt.kind == integration.KindBasicAuth {
				assert.JSONEq(t, tt.wantStored, string(raw))
			} else {
				assert.Equal(t, tt.wantStored, string(raw))
			}
		})
	}
}

func TestAuthorize_OAuth2BrowserFlow(t *testing.T) {
	t.Parallel()

	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.NotEmpty(t, r.Form.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"access_token":"issued-access","token_type":"Bearer","refresh_token":"issued-refresh","expires_in":3600}`)
	}))
	defer tokens.Close()

	integ, st := newIntegration(t, integration.Config{
		Name:        "GITHUB_OAUTH",
		Type:        integration.KindOAuth2,
		ClientID:    "client-123",
		AuthURL:     "https://idp.example.com/authorize",
		TokenURL:    tokens.URL,
		RedirectURL: fmt.Sprintf("http://127.0.0.1:%d/callback", freePort(t)),
	})

	var opened string
	open := func(authURL string) error {
		opened = authURL
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		cb := fmt.Sprintf("%s?code=the-code&state=%s", u.Query().Get("redirect_uri"), url.QueryEscape(u.Query().Get("state")))
		go func() {
			resp, err := http.Get(cb) //nolint:gosec,noctx // test callback
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, authorize(ctx, &out, integ, &fakePrompter{}, authOptions{open: open}))
	assert.Contains(t, opened, "https://idp.example.com/authorize")
	assert.Contains(t, out.String(), "Credentials for GITHUB_OAUTH stored.")

	raw, err := st.Get(context.Background(), "GITHUB_OAUTH")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "issued-refresh")

	creds, err := integ.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer issued-access", creds.Header.Get("Authorization"))
}

func TestURLOpener_NoBrowser(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	open := urlOpener(&out, authOptions{noBrowser: true})
	require.NoError(t, open("https://idp.example.com/authorize?state=x"))
	assert.Contains(t, out.String(), "https://idp.example.com/authorize?state=x")
}
