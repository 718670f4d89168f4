package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/config"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/orchestrator"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/watcher"
)

// createWatchCmd creates the watch subcommand
func createWatchCmd() *cobra.Command {
	var opts config.Options
	var referencePath string
	watchCmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Correct tables as they arrive in the given directories",
		Long: `Watch directories and correct every .dbf file written into them, in place.
Tables are handled one at a time once their size stops changing. Press
Ctrl+C to stop.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args, referencePath, opts)
		},
	}
	watchCmd.Flags().StringVarP(&referencePath, "reference", "r", "", "Reference dataset (JSON)")
	addOptionFlags(watchCmd, &opts)
	return watchCmd
}

func runWatch(dirs []string, referencePath string, opts config.Options) error {
	if err := opts.ValidateForWatch(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	referencePath, err = resolveReference(cfg, []string{referencePath})
	if err != nil {
		return err
	}

	out := newOutput(opts.Verbose)
	reportValidation(out, cfg)

	o := orchestrator.New(cfg, opts, out)
	if err := o.LoadReference(referencePath); err != nil {
		return err
	}
	if !opts.NoAudit && !opts.DryRun {
		aw, err := openAuditWriter(cfg, out)
		if err != nil {
			return err
		}
		defer aw.Close()
		o.SetAuditWriter(aw, version, machineID())
	}

	w := watcher.New(watchConfig(cfg.Watch), o.HandleTable)
	w.SetErrorHandler(func(path string, err error) {
		if path == "" {
			out.Error("watch: %v", err)
			return
		}
		out.Error("%s: %v", path, err)
	})

	if err := w.Start(dirs); err != nil {
		return fmt.Errorf("failed to watch: %w", err)
	}
	out.Info("Watching %d directories. Press Ctrl+C to stop.", len(dirs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	summary := w.Stop()
	out.Info("Watched for %s: %d patched, %d unchanged, %d failed, %d skipped",
		summary.Duration.Round(time.Second), summary.TablesPatched, summary.TablesUnchanged,
		summary.TablesFailed, summary.TablesSkipped)
	return nil
}

func watchConfig(s *config.WatchSettings) *watcher.WatchConfig {
	wc := watcher.DefaultWatchConfig()
	if s == nil {
		return wc
	}
	wc.DebounceSeconds = s.DebounceSeconds
	wc.StableThresholdMs = s.StableThresholdMs
	if len(s.IgnorePatterns) > 0 {
		wc.IgnorePatterns = s.IgnorePatterns
	}
	return wc
}
