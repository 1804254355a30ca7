package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/xselect/internal/clip"
	"go.klb.dev/xselect/internal/logging"
	"go.klb.dev/xselect/internal/selection"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and XSELECT_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → XSELECT_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("xselect")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/xselect/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/xselect", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("XSELECT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addVerbosityFlags adds -S, -Q and -V.
func addVerbosityFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("silent", "S", false, "errors only")
	cmd.Flags().BoolP("quiet", "Q", false, "warnings and errors only")
	cmd.Flags().BoolP("verbose", "V", false, "running commentary, one line per chunk")
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (overrides -S/-Q/-V; default info)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	logging.Setup(logging.ParseFormat(v.GetString("log-format")), resolveLevel(v))
}

func resolveLevel(v *viper.Viper) slog.Level {
	if s := v.GetString("log-level"); s != "" {
		return logging.ParseLevel(s)
	}
	verbosity := logging.PickVerbosity(v.GetBool("silent"), v.GetBool("quiet"), v.GetBool("verbose"))
	return verbosity.Level(slog.LevelInfo)
}

// options is the resolved configuration for one invocation.
type options struct {
	out       bool
	filter    bool
	display   string
	selection selection.Selection
	clip      clip.Options
}

func loadOptions(v *viper.Viper) (options, error) {
	sel, err := selection.Parse(v.GetString("selection"))
	if err != nil {
		return options{}, err
	}
	o := options{
		out:       v.GetBool("out"),
		filter:    v.GetBool("filter"),
		display:   v.GetString("display"),
		selection: sel,
		clip: clip.Options{
			Loops:   v.GetInt("loops"),
			Timeout: v.GetDuration("timeout"),
			MaxSize: v.GetInt("max-size"),
		},
	}
	if o.clip.Loops < 0 {
		return options{}, fmt.Errorf("--loops must not be negative, got %d", o.clip.Loops)
	}
	if o.clip.Timeout < 0 {
		return options{}, fmt.Errorf("--timeout must not be negative, got %s", o.clip.Timeout)
	}
	if o.clip.MaxSize < 0 {
		return options{}, fmt.Errorf("--max-size must not be negative, got %d", o.clip.MaxSize)
	}
	return o, nil
}
