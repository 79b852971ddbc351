// Command websole runs one program on a pseudo-terminal and shares it with
// every browser or terminal client that connects over WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zetxtech/websole/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "websole [flags] [command...]",
		Short: "Share a terminal program with web clients",
		Long: `websole runs a command on a pseudo-terminal and serves it over WebSocket.
Every connected client sees the same screen, replayed from the scrollback
when it joins, and may type into it.

A single command argument is split like a shell would:
  websole "htop -d 10"
Several arguments are used verbatim:
  websole -- python -m http.server`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, args)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				return err
			}

			if dry, _ := cmd.Flags().GetBool("dry"); dry {
				out, err := cfg.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			if err := serve(cmd.Context(), cfg); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// resolveConfig layers the config file, environment, flags and positional
// command.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := cfg.ApplyArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
