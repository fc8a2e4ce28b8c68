package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/ascent/pkg/cli"
	"mercator-hq/ascent/pkg/config"
	"mercator-hq/ascent/pkg/telemetry/logging"
)

// rootOptions are the global flags.
type rootOptions struct {
	configFile string
	output     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ascent",
		Short: "Ascent - distributor tier upgrade engine",
		Long: `Ascent decides when a distributor moves up the tier ladder and records
every move in an audit trail.

Upgrades are triggered by ledger events, by a scheduled sweep, or by an
operator through the check-then-confirm flow.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (defaults and ASCENT_* environment only when empty)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format (text, json, csv)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(
		newRunCmd(opts),
		newRulesCmd(opts),
		newCheckCmd(opts),
		newHistoryCmd(opts),
		newInitLevelsCmd(opts),
		newBatchCheckCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the configuration and installs it process-wide.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(o.configFile)
	if err != nil {
		return nil, cli.NewConfigError(o.configFile, err.Error())
	}
	config.SetConfig(cfg)
	return cfg, nil
}

// logger builds the command logger. Short-lived commands log warnings and
// above to w unless --verbose is set.
func (o *rootOptions) logger(cfg *config.Config, w io.Writer, level string) (*slog.Logger, error) {
	if level == "" {
		level = "warn"
		if o.verbose {
			level = "debug"
		}
	}
	logger, err := logging.New(logging.Config{
		Level:     level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Writer:    w,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

func (o *rootOptions) print(cmd *cobra.Command, data any) error {
	format, err := cli.ParseFormat(o.output)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), data)
}

func (o *rootOptions) jsonOutput() bool {
	format, _ := cli.ParseFormat(o.output)
	return format == cli.FormatJSON
}

func formatOptionalString(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
