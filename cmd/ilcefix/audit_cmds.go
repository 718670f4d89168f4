package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/audit"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/config"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/orchestrator"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/output"
)

// createStatusCmd creates the status subcommand
func createStatusCmd() *cobra.Command {
	var verbose bool
	statusCmd := &cobra.Command{
		Use:   "status <table.dbf|dir> [reference.json]",
		Short: "Show the corrections a run would make, per table and province",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			referencePath, err := resolveReference(cfg, args[1:])
			if err != nil {
				return err
			}

			out := newOutput(verbose)
			result, err := orchestrator.New(cfg, config.Options{}, out).Status(args[0], referencePath)
			if err != nil {
				return err
			}

			for _, t := range result.Tables {
				if t.Err != nil {
					out.Error("%s: %v", t.Path, t.Err)
					continue
				}
				out.Info("%s: %s of %s records to correct", t.Path,
					humanize.Comma(int64(t.Pending)), humanize.Comma(int64(t.Records)))
				for _, region := range t.Regions {
					out.Info("  %-12s %d", region, t.ByRegion[region])
				}
			}
			out.Info("Total: %s corrections pending", humanize.Comma(int64(result.GrandTotal)))
			return nil
		},
	}
	statusCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	return statusCmd
}

func auditDirectory(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Audit.LogDirectory, nil
}

// createHistoryCmd creates the history subcommand
func createHistoryCmd() *cobra.Command {
	var auditDir, table string
	var showStats, check bool
	var sinceDays int
	historyCmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or the events of one run or table",
		Long: `Without arguments, list every recorded run. A run ID lists the events of
that run; --table lists every event that read or wrote one table. --check
validates the log files instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := auditDirectory(auditDir)
			if err != nil {
				return err
			}
			out := commandOutput(cmd)
			reader := audit.NewAuditReader(dir)

			switch {
			case check:
				return checkLog(out, reader)
			case showStats:
				opts := audit.StatsOptions{TopN: 10}
				if sinceDays > 0 {
					since := time.Now().AddDate(0, 0, -sinceDays)
					opts.Since = &since
				}
				stats, err := audit.AggregateStats(dir, opts)
				if err != nil {
					return err
				}
				printStats(cmd, stats)
				return nil
			case len(args) == 1 || table != "":
				var runID audit.RunID
				if len(args) == 1 {
					runID = audit.RunID(args[0])
				}
				return printEvents(out, reader, runID, table)
			}

			runs, err := reader.ListRuns()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				out.Info("No runs recorded in %s", dir)
				return nil
			}
			for _, run := range runs {
				out.Info("%s  %s  %-4s  %-11s  %d tables, %d patched, %d fields, %d errors",
					run.RunID, run.StartTime.Local().Format("2006-01-02 15:04:05"), run.RunType, run.Status,
					run.Summary.Tables, run.Summary.Patched, run.Summary.Fields, run.Summary.Errors)
				if run.SummaryWarning != "" {
					out.Warn("%s: %s; totals counted from its events", run.RunID, run.SummaryWarning)
				}
			}
			return nil
		},
	}
	historyCmd.Flags().StringVar(&auditDir, "audit-dir", "", "Audit log directory")
	historyCmd.Flags().StringVar(&table, "table", "", "Only list events that read or wrote this table")
	historyCmd.Flags().BoolVar(&check, "check", false, "Validate every log file and report corrupt lines")
	historyCmd.Flags().BoolVar(&showStats, "stats", false, "Show totals instead of the run list")
	historyCmd.Flags().IntVar(&sinceDays, "since-days", 0, "With --stats, only count runs from the last N days")
	return historyCmd
}

// printEvents lists the events of runID, or of every run when runID is
// empty, narrowed to one table when table is set. Tables are recorded by the
// path they were given on, so the absolute path is tried as well.
func printEvents(out *output.Output, reader *audit.AuditReader, runID audit.RunID, table string) error {
	find := func(path string) ([]audit.AuditEvent, error) {
		filter := audit.EventFilter{Path: path}
		if runID != "" {
			return reader.FilterEvents(runID, filter)
		}
		return reader.FilterAllEvents(filter)
	}

	events, err := find(table)
	if err != nil {
		return err
	}
	if len(events) == 0 && table != "" {
		if abs, err := filepath.Abs(table); err == nil && abs != table {
			if events, err = find(abs); err != nil {
				return err
			}
		}
	}
	if len(events) == 0 {
		out.Info("No events recorded for %s", table)
		return nil
	}

	for _, e := range events {
		stamp := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		if runID == "" {
			out.Info("%s  %s  %s", stamp, e.RunID, e.Describe())
		} else {
			out.Info("%s  %s", stamp, e.Describe())
		}
	}
	return nil
}

// checkLog reports the state of the active log and every corrupt file.
func checkLog(out *output.Output, reader *audit.AuditReader) error {
	active, err := reader.CheckLogIntegrity()
	if err != nil {
		return err
	}
	out.Info("%s: %s (%s events)", active.FilePath, active.Status, humanize.Comma(int64(active.TotalLines)))

	corrupt, err := reader.GetCorruptSegments()
	if err != nil {
		return err
	}
	for _, c := range corrupt {
		out.Error("%s: %s", c.FilePath, c.ErrorMessage)
	}
	if len(corrupt) > 0 {
		return fmt.Errorf("%d audit log files are corrupt", len(corrupt))
	}
	return nil
}

func printStats(cmd *cobra.Command, stats *audit.AuditStats) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Runs:           %s (%s undone)\n", humanize.Comma(int64(stats.TotalRuns)), humanize.Comma(int64(stats.TotalUndos)))
	fmt.Fprintf(w, "Tables patched: %s\n", humanize.Comma(int64(stats.TablesPatched)))
	fmt.Fprintf(w, "Fields fixed:   %s\n", humanize.Comma(int64(stats.FieldsFixed)))
	if !stats.LastRun.IsZero() {
		fmt.Fprintf(w, "Last run:       %s\n", humanize.Time(stats.LastRun))
	}
	printCounts(cmd, "By province:", stats.ByRegion)
	printCounts(cmd, "By reason:", stats.ByReason)
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-14s %s\n", k, humanize.Comma(int64(counts[k])))
	}
}

// createUndoCmd creates the undo subcommand
func createUndoCmd() *cobra.Command {
	var auditDir string
	var preview bool
	undoCmd := &cobra.Command{
		Use:   "undo [run-id]",
		Short: "Restore the tables patched by a run (the latest fix run by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if auditDir != "" {
				cfg.Audit.LogDirectory = auditDir
			}
			out := commandOutput(cmd)
			reader := audit.NewAuditReader(cfg.Audit.LogDirectory)

			if preview {
				var target audit.RunID
				if len(args) == 1 {
					target = audit.RunID(args[0])
				} else {
					latest, err := reader.GetLatestFixRun()
					if err != nil {
						return err
					}
					target = latest.RunID
				}
				p, err := audit.NewUndoEngine(reader, nil, version, machineID()).PreviewUndo(target)
				if err != nil {
					return err
				}
				out.Info("Undo of run %s:", p.TargetRunID)
				for _, t := range p.Tables {
					if t.WillRestore {
						out.Info("  restore %s (%d fields)", t.Path, t.Fields)
					} else {
						out.Info("  skip    %s (%s)", t.Path, t.Reason)
					}
				}
				return nil
			}

			w, err := audit.NewAuditWriter(*cfg.Audit)
			if err != nil {
				return fmt.Errorf("failed to open audit log: %w", err)
			}
			defer w.Close()

			engine := audit.NewUndoEngine(reader, w, version, machineID())
			var result *audit.UndoResult
			if len(args) == 1 {
				result, err = engine.UndoRun(audit.RunID(args[0]))
			} else {
				result, err = engine.UndoLatest()
			}
			if err != nil {
				return err
			}
			for _, f := range result.FailureDetails {
				out.Warn("%s: %s (%s)", f.Path, f.Message, f.Reason)
			}
			out.Info("Undid run %s: %d of %d tables restored, %d fields written back",
				result.TargetRunID, result.Restored, result.TotalTables, result.FieldsRestored)
			if result.Skipped > 0 {
				return fmt.Errorf("%d tables could not be restored", result.Skipped)
			}
			return nil
		},
	}
	undoCmd.Flags().StringVar(&auditDir, "audit-dir", "", "Audit log directory")
	undoCmd.Flags().BoolVar(&preview, "preview", false, "Show what would be restored without changing anything")
	return undoCmd
}
