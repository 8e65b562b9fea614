package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/getsentry/rtprofile/internal/envutil"
	"github.com/getsentry/rtprofile/internal/logutil"
)

var release string

type options struct {
	configPath string
	logLevel   string
	config     ServiceConfig
}

func newRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "rtprofile",
		Short:         "Record function calls and inspect their call trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(o.configPath)
			if err != nil {
				return err
			}
			if o.logLevel != "" {
				cfg.LogLevel = o.logLevel
			}
			o.config = cfg
			logutil.ConfigureLogger(cfg.LogLevel, cmd.Name() == "serve")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", envutil.GetEnvOrFallback("RTPROFILE_CONFIG", ""), "path to a YAML config file")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level, overrides RTPROFILE_LOG_LEVEL")

	root.AddCommand(
		newReplayCommand(o),
		newDemoCommand(o),
		newServeCommand(o),
		newOpenCommand(o),
	)
	return root
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
