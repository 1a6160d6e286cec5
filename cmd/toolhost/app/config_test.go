// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhost/pkg/config"
)

const oauthDoc = `
name: test-host
store:
  type: memory
apps:
  - name: github
    integration:
      name: github
      type: oauth2
      client_id: cid
      client_secret: csecret
      auth_url: https://github.com/login/oauth/authorize
      token_url: https://github.com/login/oauth/access_token
`

func TestShowConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format config.Format
		want   string
	}{
		{format: config.FormatYAML, want: "client_id: cid"},
		{format: config.FormatJSON, want: `"client_id": "cid"`},
		{format: config.FormatTOML, want: "client_id = "},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			t.Parallel()

			cfg := parseConfig(t, oauthDoc)
			var buf bytes.Buffer
			require.NoError(t, showConfig(&buf, cfg, tt.format))
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "********")
			assert.NotContains(t, buf.String(), "csecret")
			assert.Equal(t, "csecret", cfg.Apps[0].Integration.ClientSecret)
		})
	}
}

func TestShowConfig_UnknownFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := showConfig(&buf, parseConfig(t, oauthDoc), config.Format("ini"))
	require.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestPrintValidation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printValidation(&buf, parseConfig(t, oauthDoc)))
	assert.Equal(t, "Configuration is valid\n  Name: test-host\n  Transport: stdio\n  Store: memory\n  Applications: 1\n",
		buf.String())
}
