package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/config"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/discovery"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/lookup"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/reference"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/scanner"
)

// createDiscoverCmd creates the discover subcommand
func createDiscoverCmd() *cobra.Command {
	var save, yes bool
	discoverCmd := &cobra.Command{
		Use:   "discover <table.dbf|dir> [reference.json]",
		Short: "Find the field that holds province names",
		Long: `Examine tables for character fields whose values are mostly province names
and propose them as region fields. With --save the accepted fields are added
to the settings file given by --config.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if save && configPath == "" {
				return &config.ConfigError{Type: config.ConflictingOptions, Message: "--save needs --config"}
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			referencePath, err := resolveReference(cfg, args[1:])
			if err != nil {
				return err
			}
			entries, err := reference.Load(referencePath)
			if err != nil {
				return err
			}

			paths, err := tablePaths(args[0])
			if err != nil {
				return err
			}

			out := newOutput(false)
			result := discovery.Discover(paths, lookup.Build(entries), cfg)
			for _, e := range result.Errors {
				out.Warn("%v", e)
			}
			for _, f := range result.SkippedFields {
				out.Info("%s is already configured (%d of %d values)", f.Name, f.Matched, f.Values)
			}
			if len(result.NewFields) == 0 {
				out.Info("No new region fields found in %d tables", result.TablesAnalyzed)
				return nil
			}

			accepted := result.NewFields
			if !yes && discovery.IsInteractive() {
				var ok bool
				accepted, ok, err = discovery.NewInteractivePrompter(os.Stdin, cmd.OutOrStdout()).SelectFields(result.NewFields)
				if err != nil {
					return err
				}
				if !ok {
					out.Info("Discovery cancelled")
					return nil
				}
			} else {
				for _, f := range accepted {
					out.Info("%s: %d of %d values name a province (%s)", f.Name, f.Matched, f.Values, f.Table)
				}
			}

			if !save || len(accepted) == 0 {
				return nil
			}
			cfg.RegionFields = discovery.AddToConfig(cfg.RegionFields, accepted)
			if err := config.Save(cfg, configPath); err != nil {
				return err
			}
			out.Info("Saved %d region fields to %s", len(accepted), configPath)
			return nil
		},
	}
	discoverCmd.Flags().BoolVar(&save, "save", false, "Add accepted fields to the settings file")
	discoverCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept every proposed field without asking")
	return discoverCmd
}

// tablePaths returns path itself for a table and the tables inside it for
// a directory.
func tablePaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	tables, err := scanner.ScanTables(path, scanner.DefaultScanOptions())
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(tables))
	for i, t := range tables {
		paths[i] = t.FullPath
	}
	return paths, nil
}
