// Package main provides the CLI entry point for ilcefix.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/audit"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/config"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/orchestrator"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/output"
)

var version = "1.0.0"

// configPath is the optional settings file, shared by every command.
var configPath string

func main() {
	rootCmd := createRootCmd()
	rootCmd.AddCommand(createFixCmd())
	rootCmd.AddCommand(createWatchCmd())
	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createDiscoverCmd())
	rootCmd.AddCommand(createHistoryCmd())
	rootCmd.AddCommand(createUndoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createRootCmd() *cobra.Command {
	var opts config.Options
	rootCmd := &cobra.Command{
		Use:   "ilcefix <table.dbf|dir> <reference.json>",
		Short: "Correct Turkish district names in dBASE tables",
		Long: `ilcefix repairs the ADI (district) field of dBASE tables against a reference
list of provinces and districts. Only the district bytes, the codepage byte
and the field descriptor offsets are rewritten; every other byte is kept.

Given two arguments it behaves like "ilcefix fix".`,
		Version:       version,
		Args:          cobra.RangeArgs(0, 2),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return cmd.Help()
			}
			return runFix(args, opts)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (JSON)")
	addOptionFlags(rootCmd, &opts)
	addFixFlags(rootCmd, &opts)
	return rootCmd
}

// createFixCmd creates the fix subcommand
func createFixCmd() *cobra.Command {
	var opts config.Options
	fixCmd := &cobra.Command{
		Use:   "fix <table.dbf|dir> [reference.json]",
		Short: "Correct one table, or every table in a directory",
		Long: `Correct the district names of a table. A directory corrects every .dbf file
in it, in place. The reference may be omitted when the settings file names one.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(args, opts)
		},
	}
	addOptionFlags(fixCmd, &opts)
	addFixFlags(fixCmd, &opts)
	return fixCmd
}

// addFixFlags registers the switches watch mode does not accept.
func addFixFlags(cmd *cobra.Command, opts *config.Options) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.Output, "out", "o", "", "Write the corrected table here instead of overwriting the source")
	flags.BoolVar(&opts.InPlace, "in-place", false, "Overwrite the source table")
	flags.BoolVar(&opts.Force, "force", false, "Rewrite every live record, even unchanged ones")
}

// addOptionFlags registers the switches shared by fix, watch and the root
// command.
func addOptionFlags(cmd *cobra.Command, opts *config.Options) {
	flags := cmd.Flags()
	flags.BoolVar(&opts.NoCodepage, "no-codepage", false, "Leave the codepage byte unchanged")
	flags.BoolVar(&opts.NoCompanion, "no-companion", false, "Do not write the .cpg file")
	flags.BoolVar(&opts.UTF8, "utf8", false, "Write UTF-8 instead of Windows-1254")
	flags.BoolVar(&opts.ASCII, "ascii", false, "Write Turkish letters as ASCII (Ğ→G, Ş→S, İ→I)")
	flags.BoolVar(&opts.NoRepairOffsets, "no-repair-offsets", false, "Keep the field offsets stored in the header")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Show the report without writing anything")
	flags.BoolVar(&opts.NoAudit, "no-audit", false, "Do not record the run in the audit log")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")
}

func runFix(args []string, opts config.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	referencePath, err := resolveReference(cfg, args[1:])
	if err != nil {
		return err
	}

	target := args[0]
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", target, err)
	}
	// Reject conflicting switches before the audit log is touched.
	if err := opts.Validate(info.IsDir()); err != nil {
		return err
	}

	out := newOutput(opts.Verbose)
	reportValidation(out, cfg)

	o := orchestrator.New(cfg, opts, out)
	if !opts.NoAudit && !opts.DryRun {
		w, err := openAuditWriter(cfg, out)
		if err != nil {
			return err
		}
		defer w.Close()
		o.SetAuditWriter(w, version, machineID())
	}

	var summary *orchestrator.Summary
	if info.IsDir() {
		summary, err = o.RunBatch(target, referencePath)
	} else {
		summary, err = o.Run(target, referencePath)
	}
	if err != nil {
		return err
	}
	if summary.HasErrors() {
		return fmt.Errorf("%d of %d tables failed", summary.Failed, summary.Tables)
	}
	return nil
}

func loadConfig() (*config.Configuration, error) {
	return config.LoadOrDefault(configPath)
}

func resolveReference(cfg *config.Configuration, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if cfg.Reference != "" {
		return cfg.Reference, nil
	}
	return "", fmt.Errorf("no reference dataset given and none set in the settings file")
}

func newOutput(verbose bool) *output.Output {
	cfg := output.DefaultConfig()
	cfg.Verbose = verbose
	return output.New(cfg)
}

// commandOutput writes to the streams of cmd instead of the process ones.
func commandOutput(cmd *cobra.Command) *output.Output {
	cfg := output.DefaultConfig()
	cfg.Writer = cmd.OutOrStdout()
	cfg.ErrWriter = cmd.ErrOrStderr()
	return output.New(cfg)
}

// reportValidation prints the findings about the settings file. Errors are
// printed as well; the command fails later where they matter.
func reportValidation(out *output.Output, cfg *config.Configuration) {
	result := config.ValidateConfig(cfg)
	for _, w := range result.Warnings {
		out.Warn("%s: %s", w.Field, w.Message)
	}
	for _, e := range result.Errors {
		out.Error("config: %s: %s", e.Field, e.Message)
	}
}

// openAuditWriter opens the audit log and prunes old segments.
func openAuditWriter(cfg *config.Configuration, out *output.Output) (*audit.AuditWriter, error) {
	w, err := audit.NewAuditWriter(*cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	pruned, err := w.CheckAndPruneRetention()
	if err != nil {
		out.Warn("audit retention: %v", err)
	} else if pruned != nil && len(pruned.PrunedSegments) > 0 {
		out.Verbose("Pruned %d audit log segments", len(pruned.PrunedSegments))
	}
	return w, nil
}

func machineID() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
