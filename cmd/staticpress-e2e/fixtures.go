package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/staticpress2019/e2e/internal/database"
	"github.com/staticpress2019/e2e/internal/fixtures"
	"github.com/staticpress2019/e2e/internal/wpoptions"
)

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Manage the StaticPress2019 option rows",
}

var fixturesLoadCmd = &cobra.Command{
	Use:   "load [path]",
	Short: "Upsert fixture documents (a file, a directory, or the built-in default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		path := cfg.Fixtures.Path
		if len(args) == 1 {
			path = args[0]
		}
		docs, err := fixtures.NewLoader(database.MySQL(cfg.Database), cfg.OptionsTable, log).LoadPath(cmd.Context(), path)
		if err != nil {
			return err
		}
		for _, d := range docs {
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows from %s\n", len(d.Items), d.Source)
		}
		return nil
	},
}

var fixturesCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete the StaticPress2019 option rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		n, err := fixtures.NewCleaner(database.MySQL(cfg.Database), cfg.OptionsTable, log).Clean(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", n)
		return nil
	},
}

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Inspect StaticPress option rows",
}

var optionsPatternFlag string

var optionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored StaticPress options as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var opts []wpoptions.Option
		err = database.WithConnection(cmd.Context(), database.MySQL(cfg.Database), func(ctx context.Context, db *sqlx.DB) error {
			store, err := wpoptions.NewStore(db, cfg.OptionsTable)
			if err != nil {
				return err
			}
			opts, err = store.Like(ctx, optionsPatternFlag)
			return err
		})
		if err != nil {
			return err
		}
		out := make([]map[string]string, 0, len(opts))
		for _, o := range opts {
			out = append(out, map[string]string{"name": o.Name, "value": o.Value, "autoload": o.Autoload})
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	},
}

func init() {
	fixturesCmd.AddCommand(fixturesLoadCmd, fixturesCleanCmd)
	optionsShowCmd.Flags().StringVar(&optionsPatternFlag, "like", "StaticPress::%", "SQL LIKE pattern on the option name")
	optionsCmd.AddCommand(optionsShowCmd)
}
