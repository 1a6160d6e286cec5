// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stacklok/toolhost/pkg/integration"
	"github.com/stacklok/toolhost/pkg/loader"
	"github.com/stacklok/toolhost/pkg/logger"
)

// prompter asks the user for a value. Secret values are not echoed.
type prompter interface {
	Prompt(label string, secret bool) (string, error)
}

// terminalPrompter reads from stdin, hiding secrets when stdin is a
// terminal.
type terminalPrompter struct {
	out    io.Writer
	in     *os.File
	reader *bufio.Reader
}

func newTerminalPrompter(out io.Writer) *terminalPrompter {
	return &terminalPrompter{out: out, in: os.Stdin, reader: bufio.NewReader(os.Stdin)}
}

func (p *terminalPrompter) Prompt(label string, secret bool) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	fd := int(p.in.Fd()) // #nosec G115 -- file descriptors fit in int
	if secret && term.IsTerminal(fd) {
		value, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		return strings.TrimSpace(string(value)), nil
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

type authOptions struct {
	noBrowser bool
	open      integration.URLOpener
}

func newAuthCmd() *cobra.Command {
	var opts authOptions

	cmd := &cobra.Command{
		Use:   "auth <app>",
		Short: "Store credentials for an application",
		Long: `Store the credentials an application's integration needs.

For api_key and basic_auth integrations the values are read from the
terminal without echo. For oauth2 integrations a browser is opened on the
provider's consent page and the tokens are stored once access is granted.

Examples:
  toolhost auth tavily -c config.yaml
  toolhost auth github -c config.yaml --no-browser`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}
			integ, st, err := loader.New(nil).BuildIntegration(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			defer closeStore(st)
			return authorize(cmd.Context(), cmd.OutOrStdout(), integ, newTerminalPrompter(cmd.OutOrStdout()), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	return cmd
}

// authorize collects credentials for integ and writes them to its store.
func authorize(
	ctx context.Context, w io.Writer, integ integration.Integration, p prompter, opts authOptions,
) error {
	auth, err := integ.Authorize(ctx)
	if err != nil {
		return err
	}

	switch integ.Kind() {
	case integration.KindOAuth2:
		flow, ok := integ.(interface {
			RunBrowserFlow(ctx context.Context, open integration.URLOpener) error
		})
		if !ok {
			return fmt.Errorf("integration %s does not support the browser flow", integ.Name())
		}
		if err := flow.RunBrowserFlow(ctx, urlOpener(w, opts)); err != nil {
			return err
		}
	case integration.KindAPIKey:
		fmt.Fprintln(w, auth.Instructions)
		key, err := p.Prompt("API key", true)
		if err != nil {
			return err
		}
		if key == "" {
			return fmt.Errorf("no API key entered")
		}
		if err := integ.SetCredentials(ctx, []byte(key)); err != nil {
			return err
		}
	case integration.KindBasicAuth:
		fmt.Fprintln(w, auth.Instructions)
		username, err := p.Prompt("Username", false)
		if err != nil {
			return err
		}
		password, err := p.Prompt("Password", true)
		if err != nil {
			return err
		}
		if username == "" {
			return fmt.Errorf("no username entered")
		}
		if err := integ.SetCredentials(ctx, integration.EncodeBasic(username, password)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported integration type %q", integ.Kind())
	}

	logger.Debugf("Stored credentials for %s", integ.Name())
	fmt.Fprintf(w, "Credentials for %s stored.\n", integ.Name())
	return nil
}

func urlOpener(w io.Writer, opts authOptions) integration.URLOpener {
	if opts.open != nil {
		return opts.open
	}
	if opts.noBrowser {
		return func(url string) error {
			fmt.Fprintf(w, "Open this URL in your browser to grant access:\n  %s\n", url)
			return nil
		}
	}
	return func(url string) error {
		fmt.Fprintf(w, "Opening %s\n", url)
		return browser.OpenURL(url)
	}
}
