package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/staticpress2019/e2e/internal/browser"
	"github.com/staticpress2019/e2e/internal/config"
	"github.com/staticpress2019/e2e/internal/database"
	"github.com/staticpress2019/e2e/internal/driver"
	"github.com/staticpress2019/e2e/internal/metrics"
	"github.com/staticpress2019/e2e/internal/scenario"
)

var stepsFlag []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full StaticPress2019 scenario",
	Long: `Run probes the site, brings WordPress to a logged-in admin session,
resets the option fixtures, submits the StaticPress2019 options, verifies
them in the database and rebuilds the static site.

A failing step stops the run; its screenshot is saved under the artifacts
directory in a folder named after the run ID.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, stepsFlag...)
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Install WordPress and activate the plugin if needed, then log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, scenario.StepPreflight, scenario.StepBootstrap)
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&stepsFlag, "steps", nil, fmt.Sprintf("run only these steps, in order (%v)", scenario.Steps()))
}

// launcher opens the configured driver and wraps it in a session.
func launcher(cfg *config.Config, runID string) scenario.Launcher {
	return func(ctx context.Context) (*browser.Session, func() error, error) {
		videoDir := ""
		if cfg.Artifacts.Videos {
			videoDir = filepath.Join(scenario.ArtifactDir(cfg, runID), "videos")
		}
		d, err := driver.Open(ctx, cfg.DriverConfig(videoDir))
		if err != nil {
			return nil, nil, err
		}
		s := browser.NewSession(d, browser.Options{
			FindTimeout:   cfg.Timeouts.Find,
			SettleTimeout: cfg.Timeouts.Settle,
			PollInterval:  cfg.Timeouts.Poll,
		})
		return s, d.Close, nil
	}
}

func runSteps(cmd *cobra.Command, steps ...string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		steps = scenario.Steps()
	}

	runID := uuid.NewString()
	log.WithFields(logrus.Fields{
		"site":     cfg.Site.URL,
		"database": cfg.Database.String(),
		"run_id":   runID,
	}).Debug("configuration loaded")

	sc, err := scenario.New(cfg, scenario.Deps{
		Launch:  launcher(cfg, runID),
		Open:    database.MySQL(cfg.Database),
		Logger:  log,
		Metrics: metrics.New(cfg.Browser.Driver),
		RunID:   runID,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sc.Close(); err != nil {
			log.WithError(err).Warn("could not close browser")
		}
	}()

	report, err := sc.RunSteps(cmd.Context(), steps...)
	fmt.Fprint(cmd.OutOrStdout(), report.String())
	return err
}
