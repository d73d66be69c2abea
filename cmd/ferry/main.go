package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/journal"
	"github.com/bamsammich/ferry/internal/policy"
	"github.com/bamsammich/ferry/internal/task"
	"github.com/bamsammich/ferry/internal/ui"
	"github.com/bamsammich/ferry/internal/ui/tui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// cliFlags holds the operation flags shared by copy, move and delete.
type cliFlags struct {
	batch       bool
	passive     bool
	deref       bool
	preserve    bool
	noPrescan   bool
	journalPath string
	logFile     string
	verbose     bool
	quiet       bool
	showVersion bool
}

func run() int {
	flags := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:           "ferry <command>",
		Short:         "Bulk file operations that suspend to negotiate conflicts",
		Long: `ferry copies, moves and deletes file trees through a cooperative
protocol: the operation suspends at every conflict, error and progress
point, and a policy decides how to continue. Interactive runs ask on a
full-screen surface, batch runs answer with fixed rules, passive runs
show progress with every answer pre-seeded.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.showVersion {
				fmt.Fprintf(os.Stdout, "ferry %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVar(&flags.showVersion, "version", false, "print version and exit")

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.batch, "batch", false, "fixed answers and line output, never asks")
	pf.BoolVar(&flags.passive, "passive", false, "full-screen progress with pre-answered questions")
	pf.BoolVar(&flags.deref, "deref", false, "follow symlinks instead of recreating them")
	pf.BoolVarP(&flags.preserve, "preserve", "p", false, "preserve mode, timestamps and ownership")
	pf.BoolVar(&flags.noPrescan, "no-prescan", false, "skip the sizing pass, progress is per-file only")
	pf.StringVar(&flags.journalPath, "journal", "", "record operations and decisions to a SQLite journal at PATH")
	pf.StringVar(&flags.logFile, "log", "", "write structured JSON log to FILE")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "suppress all output except errors")

	// --journal with no value picks a per-job default path.
	pf.Lookup("journal").NoOptDefVal = "auto"

	rootCmd.AddCommand(
		newCopyCmd(flags),
		newMoveCmd(flags),
		newDeleteCmd(flags),
		newRunCmd(flags),
		newDocsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	return 0
}

func newCopyCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <source>... <destination>",
		Short: "Copy files and directory trees",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, flags, task.Copy, args[:len(args)-1], args[len(args)-1])
		},
	}
}

func newMoveCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "move <source>... <destination>",
		Short: "Move files and directory trees",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, flags, task.Move, args[:len(args)-1], args[len(args)-1])
		},
	}
}

func newDeleteCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <source>...",
		Short: "Delete files and directory trees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, flags, task.Delete, args, "")
		},
	}
}

func runOperation(cmd *cobra.Command, flags *cliFlags, op task.Op, sources []string, dest string) error {
	if flags.batch && flags.passive {
		return errors.New("--batch and --passive are mutually exclusive")
	}

	// Load optional config file.
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

	variant := pickVariant(flags)

	req := task.Request{
		Op:      op,
		Sources: sources,
		Dest:    dest,
		Options: task.Options{
			Deref:    flags.deref,
			Preserve: flags.preserve,
			Prescan:  variant != policy.VariantBatch && !flags.noPrescan,
		},
	}

	tk, err := task.New(req)
	if err != nil {
		return err
	}

	polCfg := policy.Config{
		Out:      os.Stdout,
		Deref:    flags.deref,
		Preserve: flags.preserve,
	}

	var jnl *journal.Journal
	if flags.journalPath != "" {
		path := flags.journalPath
		if path == "auto" {
			path = journal.DefaultPath(sources, dest)
		}
		jnl, err = journal.Open(path)
		if err != nil {
			return err
		}
		defer jnl.Close()
		if err := jnl.Begin(tk.ID(), req); err != nil {
			return err
		}
		polCfg.Recorder = jnl
	}

	var surf *tui.Surface
	if variant == policy.VariantBatch {
		// A batch run has no close key; interrupts become cooperative
		// aborts so partials are still dealt with on the way out.
		abortC := make(chan struct{})
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)
		go func() {
			<-sig
			slog.Info("interrupt: aborting at next checkpoint")
			close(abortC)
		}()
		polCfg.AbortC = abortC
	} else {
		surf = tui.New(tui.Config{
			Passive: variant == policy.VariantPassive,
			Theme:   cfg.Theme,
		})
		polCfg.Surface = surf
	}

	pol, err := policy.New(variant, polCfg)
	if err != nil {
		return err
	}

	slog.Debug("starting operation",
		"op", op,
		"sources", sources,
		"dest", dest,
		"variant", variant,
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
		slog.Error("operation fault", "error", runErr)
		return &exitError{code: 2}
	}

	if !flags.quiet {
		if surf != nil {
			fmt.Fprintln(os.Stderr, surf.Summary())
		} else {
			fmt.Fprintln(os.Stderr, ui.Summary(tk.Stats(), time.Since(started), state == task.Terminated))
		}
	}

	if state == task.Terminated {
		return &exitError{code: 1}
	}
	return nil
}

// pickVariant resolves the policy variant from flags and the terminal.
// Interactive is the default on a terminal; both screen-owning variants
// fall back to batch without one.
func pickVariant(flags *cliFlags) policy.Variant {
	switch {
	case flags.batch:
		return policy.VariantBatch
	case flags.passive:
		if !ui.InteractiveTerminal() {
			slog.Warn("--passive requires a terminal, falling back to batch")
			return policy.VariantBatch
		}
		return policy.VariantPassive
	case ui.InteractiveTerminal():
		return policy.VariantInteractive
	default:
		return policy.VariantBatch
	}
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, flags *cliFlags) {
	if !cmd.Flags().Changed("batch") && !cmd.Flags().Changed("passive") && defaults.Mode != nil {
		switch *defaults.Mode {
		case "batch":
			flags.batch = true
		case "passive":
			flags.passive = true
		case "interactive":
			// Terminal detection already prefers interactive.
		default:
			slog.Warn("unknown mode in config", "mode", *defaults.Mode)
		}
	}
	if !cmd.Flags().Changed("deref") && defaults.Deref != nil {
		flags.deref = *defaults.Deref
	}
	if !cmd.Flags().Changed("preserve") && defaults.Preserve != nil {
		flags.preserve = *defaults.Preserve
	}
	if !cmd.Flags().Changed("journal") && defaults.Journal != nil {
		flags.journalPath = *defaults.Journal
	}
}

// setupLogging installs the default slog handler: text on stderr, with
// a structured JSON tee to --log FILE when given.
func setupLogging(flags *cliFlags) (func(), error) {
	logLevel := slog.LevelWarn
	if flags.verbose {
		logLevel = slog.LevelDebug
	} else if !flags.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})

	var handler slog.Handler = textHandler
	cleanup := func() {}
	if flags.logFile != "" {
		lf, err := os.Create(flags.logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cleanup = func() { lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		handler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
