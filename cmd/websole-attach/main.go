// Command websole-attach connects the local terminal to a websole server.
package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	var password string
	var noRaw bool

	cmd := &cobra.Command{
		Use:   "websole-attach [flags] URL",
		Short: "Attach this terminal to a websole session",
		Example: `  websole-attach http://localhost:1818
  websole-attach --webpass secret ws://example:1818/pty`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ptyURL(args[0], password)
			if err != nil {
				return err
			}
			code, err := attach(cmd.Context(), target, !noRaw)
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "webpass", "p", os.Getenv("_WEB_PASS"), "console password")
	cmd.Flags().BoolVar(&noRaw, "no-raw", false, "leave the local terminal in cooked mode")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ptyURL turns a server address into the WebSocket URL of its /pty route.
func ptyURL(raw, password string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/pty"
	}
	if password != "" {
		q := u.Query()
		q.Set("p", password)
		u.RawQuery = q.Encode()
	}
	return u, nil
}
