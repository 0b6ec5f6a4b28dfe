package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/staticpress2019/e2e/internal/config"
	"github.com/staticpress2019/e2e/internal/driver"
	"github.com/staticpress2019/e2e/internal/logging"
	"github.com/staticpress2019/e2e/internal/version"
)

var (
	configFlag   string
	envFileFlag  string
	driverFlag   string
	headedFlag   bool
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "staticpress-e2e",
	Short: "End-to-end tests for the StaticPress2019 WordPress plugin",
	Long: `staticpress-e2e drives a browser through a WordPress site running the
StaticPress2019 plugin: it installs or logs in to WordPress, resets the plugin
options, submits the options form, checks the stored values in MySQL and
rebuilds the static site.

Configuration comes from staticpress-e2e.yaml, a .env file and STATICPRESS_*
environment variables. HOST, DATABASE_HOST and HEADLESS are also honoured.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "c", "", "YAML config file (default ./staticpress-e2e.yaml if present)")
	pf.StringVar(&envFileFlag, "env-file", ".env", "KEY=VALUE file preloaded into the environment")
	pf.StringVar(&driverFlag, "driver", "", fmt.Sprintf("browser driver, one of %v", driver.Names()))
	pf.BoolVar(&headedFlag, "headed", false, "show the browser window")
	pf.StringVar(&logLevelFlag, "log-level", "", "override logging.level")

	rootCmd.AddCommand(runCmd, bootstrapCmd, fixturesCmd, optionsCmd, locateCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "staticpress-e2e %s\n", version.Full())
	},
}

// loadConfig applies the command-line overrides on top of config.Load.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{File: configFlag, EnvFile: envFileFlag})
	if err != nil {
		return nil, err
	}
	if driverFlag != "" {
		cfg.Browser.Driver = driverFlag
	}
	if headedFlag {
		cfg.Browser.Headless = false
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
