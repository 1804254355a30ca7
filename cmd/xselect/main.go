// xselect: command line access to X selections.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "xselect [flags] [FILE]...",
		Short: "Read or write an X selection",
		Long: `xselect copies standard input or the named files into an X selection
and serves it to other clients, or prints the current selection to standard
output with --out. Large payloads are transferred incrementally (INCR).

Selections: p(rimary), s(econdary), c(lipboard), b(uffer-cut).

Config file search order (first found wins):
  /etc/xselect/xselect.toml
  $HOME/.config/xselect/xselect.toml
  path supplied via --config

All flags can be set via XSELECT_<FLAG> env vars or config-file keys.`,
		Version:      Version,
		SilenceUsage: true,
		PreRunE:      func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.BoolP("in", "i", false, "read text into the selection from standard input or files (default)")
	f.BoolP("out", "o", false, "print the selection to standard output")
	f.IntP("loops", "l", 0, "number of selection requests to serve before exiting (0: until the selection is taken)")
	f.StringP("display", "d", "", "X display to connect to, e.g. localhost:0 (default $DISPLAY)")
	f.StringP("selection", "s", "primary", "selection to access: primary|secondary|clipboard|buffer-cut")
	f.BoolP("filter", "f", false, "echo standard input to standard output while taking the selection")
	f.Duration("timeout", 0, "give up when the peer sends nothing for this long during a transfer (0: wait forever)")
	f.Int("max-size", 0, "largest selection --out accepts, in bytes (0: unlimited)")
	addVerbosityFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)
	cmd.MarkFlagsMutuallyExclusive("in", "out")

	return cmd
}
