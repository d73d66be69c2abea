package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/journal"
	"github.com/bamsammich/ferry/internal/plan"
	"github.com/bamsammich/ferry/internal/policy"
	"github.com/bamsammich/ferry/internal/task"
	"github.com/bamsammich/ferry/internal/ui"
)

func newRunCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Execute a plan of operations with pre-answered questions",
		Long: `run executes the operations of a YAML plan in order, in batch
mode. Each operation may carry blanket answers for the questions it
expects; anything unanswered falls back to the batch defaults. The plan
stops at the first operation that is aborted or faults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, flags, args[0])
		},
	}
}

func runPlan(cmd *cobra.Command, flags *cliFlags, path string) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	applyConfigDefaults(cmd, cfg.Defaults, flags)

	cleanup, err := setupLogging(flags)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := plan.Load(path)
	if err != nil {
		return err
	}

	var jnl *journal.Journal
	if flags.journalPath != "" {
		jpath := flags.journalPath
		if jpath == "auto" {
			jpath = journal.DefaultPath([]string{path}, "")
		}
		jnl, err = journal.Open(jpath)
		if err != nil {
			return err
		}
		defer jnl.Close()
	}

	// One abort channel for the whole plan; an interrupt stops the
	// current operation cooperatively and skips the rest.
	abortC := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		slog.Info("interrupt: aborting at next checkpoint")
		close(abortC)
	}()

	for i, op := range p.Operations {
		req, err := op.Request()
		if err != nil {
			return fmt.Errorf("operation %d: %w", i+1, err)
		}
		seed, err := op.Seed()
		if err != nil {
			return fmt.Errorf("operation %d: %w", i+1, err)
		}

		tk, err := task.New(req)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i+1, err)
		}

		polCfg := policy.Config{
			Out:      os.Stdout,
			Deref:    req.Deref,
			Preserve: req.Preserve,
			Seed:     seed,
			AbortC:   abortC,
		}
		if jnl != nil {
			if err := jnl.Begin(tk.ID(), req); err != nil {
				return err
			}
			polCfg.Recorder = jnl
		}

		pol, err := policy.New(policy.VariantBatch, polCfg)
		if err != nil {
			return err
		}

		slog.Info("plan operation",
			"n", i+1,
			"of", len(p.Operations),
			"op", req.Op,
			"sources", req.Sources,
			"dest", req.Dest,
		)

		started := time.Now()
		runErr := pol.Start(tk)
		state := tk.State()

		if jnl != nil {
			if err := jnl.Finish(tk.ID(), state); err != nil {
				slog.Warn("journal finish failed", "error", err)
			}
		}

		if runErr != nil {
			slog.Error("operation fault", "n", i+1, "error", runErr)
			return &exitError{code: 2}
		}

		if !flags.quiet {
			fmt.Fprintln(os.Stderr, ui.Summary(tk.Stats(), time.Since(started), state == task.Terminated))
		}

		if state == task.Terminated {
			return &exitError{code: 1}
		}
	}

	return nil
}
