/*
par2kit is a self-contained PAR2 verification and repair engine: given a
named PAR2 index file, it discovers the sibling recovery volumes, parses
every packet, verifies the target files against their recorded checksums,
and reconstructs any missing or corrupted data directly from the recovery
slices on disk. No external "par2" binary is required or invoked.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/par2kit/par2kit/internal/codec"
	"github.com/par2kit/par2kit/internal/flags"
	"github.com/par2kit/par2kit/internal/logging"
	"github.com/par2kit/par2kit/internal/reconstruct"
	"github.com/par2kit/par2kit/internal/schema"
	"github.com/par2kit/par2kit/internal/sliceset"
	"github.com/par2kit/par2kit/internal/util"
	"github.com/par2kit/par2kit/internal/verifier"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func wrapArgsError(validator cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validator(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", schema.ErrUsage, err)
		}

		return nil
	}
}

// newRootCmd returns the primary [cobra.Command] pointer for the program.
func newRootCmd(ctx context.Context, fsys afero.Fs) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               rootUsage,
		Short:             rootHelpShort,
		Long:              rootHelpLong,
		Version:           schema.ProgramVersion,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", schema.ErrUsage, err)
	})

	rootCmd.AddCommand(newVerifyCmd(ctx, fsys), newRepairCmd(ctx, fsys))

	return rootCmd
}

// commonFlags bundles the flags shared by verify and repair.
type commonFlags struct {
	quiet      bool
	verbose    bool
	threads    flags.Threads
	noParallel bool
	logLevel   flags.LogLevel
	wantJSON   bool
}

func (c *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&c.quiet, "quiet", "q", false, "suppress progress output")
	cmd.Flags().BoolVar(&c.verbose, "verbose", false, "emit extra diagnostics")
	cmd.Flags().VarP(&c.threads, "threads", "t", "worker count (0 autodetects runtime.NumCPU())")
	cmd.Flags().BoolVar(&c.noParallel, "no-parallel", false, "force single-threaded operation")
	cmd.Flags().VarP(&c.logLevel, "log-level", "l", "minimum level of emitted logs (debug|info|warn|error)")
	cmd.Flags().BoolVar(&c.wantJSON, "json", false, "output structured logs in JSON format")
}

func (c *commonFlags) workerCount() int {
	if c.noParallel {
		return 1
	}

	if c.threads.Value == 0 {
		return runtime.NumCPU()
	}

	return c.threads.Value
}

func (c *commonFlags) logOptions() logging.Options {
	level := c.logLevel
	if level.Raw == "" {
		_ = level.Set("info")
	}

	if c.quiet {
		_ = level.Set("error")
	} else if c.verbose && level.Value > -4 { //nolint:mnd
		_ = level.Set("debug")
	}

	return logging.Options{
		LogLevel: level,
		Logout:   os.Stderr,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		WantJSON: c.wantJSON,
	}
}

// resolveArgs turns the positional [indexPath, [dir]] arguments into
// (index path, working directory), defaulting dir to the index's own
// directory, both made absolute.
func resolveArgs(args []string) (indexPath, dir string, err error) {
	indexPath, err = filepath.Abs(args[0])
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", schema.ErrUsage, err)
	}

	if len(args) > 1 {
		dir, err = filepath.Abs(args[1])
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", schema.ErrUsage, err)
		}
	} else {
		dir = filepath.Dir(indexPath)
	}

	return indexPath, dir, nil
}

// loadSet parses the index file's packet set and assembles a RecoverySet.
func loadSet(fsys afero.Fs, indexPath string) (*sliceset.RecoverySet, error) {
	res, err := codec.ParseSet(fsys, indexPath)
	if err != nil {
		return nil, fmt.Errorf("parse packet set: %w", err)
	}

	set, err := sliceset.Build(res)
	if err != nil {
		return nil, fmt.Errorf("build recovery set: %w", err)
	}

	return set, nil
}

// newVerifyCmd returns the "verify" [cobra.Command] pointer for the program.
func newVerifyCmd(ctx context.Context, fsys afero.Fs) *cobra.Command {
	var cf commonFlags

	verifyCmd := &cobra.Command{
		Use:     verifyUsage,
		Short:   verifyHelpShort,
		Long:    verifyHelpLong,
		Example: verifyHelpExample,
		Args:    wrapArgsError(cobra.RangeArgs(1, 2)),
		RunE: func(_ *cobra.Command, args []string) error {
			start := time.Now()
			log := logging.NewLogger(cf.logOptions())

			indexPath, dir, err := resolveArgs(args)
			if err != nil {
				return err
			}

			set, err := loadSet(fsys, indexPath)
			if err != nil {
				return err
			}

			svc := verifier.NewService(fsys, log)

			report, err := svc.Verify(ctx, dir, set, verifier.Options{
				ProbeRenames: true,
				Workers:      cf.workerCount(),
			})
			if err != nil {
				return fmt.Errorf("%w: %w", schema.ErrFileIO, err)
			}

			printVerifyReport(log, set, report, time.Since(start))

			switch {
			case report.Intact():
				return nil
			case report.RepairPossible:
				return errors.New("damage found; repair is possible")
			default:
				return fmt.Errorf("%w: not enough recovery data to repair", schema.ErrInsufficientRecovery)
			}
		},
	}
	cf.register(verifyCmd)

	return verifyCmd
}

// newRepairCmd returns the "repair" [cobra.Command] pointer for the program.
func newRepairCmd(ctx context.Context, fsys afero.Fs) *cobra.Command {
	var cf commonFlags
	var purge bool

	repairCmd := &cobra.Command{
		Use:     repairUsage,
		Short:   repairHelpShort,
		Long:    repairHelpLong,
		Example: repairHelpExample,
		Args:    wrapArgsError(cobra.RangeArgs(1, 2)),
		RunE: func(_ *cobra.Command, args []string) error {
			start := time.Now()
			log := logging.NewLogger(cf.logOptions())

			indexPath, dir, err := resolveArgs(args)
			if err != nil {
				return err
			}

			set, err := loadSet(fsys, indexPath)
			if err != nil {
				return err
			}

			verifySvc := verifier.NewService(fsys, log)

			report, err := verifySvc.Verify(ctx, dir, set, verifier.Options{
				ProbeRenames: true,
				Workers:      cf.workerCount(),
			})
			if err != nil {
				return fmt.Errorf("%w: %w", schema.ErrFileIO, err)
			}

			repairSvc := reconstruct.NewService(fsys, log)

			result, err := repairSvc.Reconstruct(ctx, dir, indexPath, set, report, reconstruct.Options{
				Workers: cf.workerCount(),
				Purge:   purge,
			})
			if err != nil {
				return fmt.Errorf("%w: %w", schema.ErrFileIO, err)
			}

			printRepairResult(log, result, time.Since(start))

			switch result.Outcome {
			case reconstruct.NoRepairNeeded, reconstruct.Repaired:
				return nil
			default:
				return fmt.Errorf("repair incomplete: %s", result.Outcome)
			}
		},
	}
	cf.register(repairCmd)
	repairCmd.Flags().BoolVar(&purge, "purge", false, "remove recovery files and sibling backups after a successful repair")

	return repairCmd
}

func printVerifyReport(log *logging.Logger, set *sliceset.RecoverySet, report *verifier.Report, elapsed time.Duration) {
	for _, f := range set.Files {
		res, ok := report.Files[f.FileID]
		if !ok {
			continue
		}

		log.Info("file checked", "name", f.Name, "status", res.Status.String())
	}

	log.Info("verification summary",
		"filesChecked", len(set.Files),
		"intact", report.Intact(),
		"repairPossible", report.RepairPossible,
		"elapsed", util.FmtDur(elapsed),
	)
}

func printRepairResult(log *logging.Logger, result *reconstruct.Result, elapsed time.Duration) {
	log.Info("repair summary",
		"outcome", result.Outcome.String(),
		"filesRepaired", len(result.RepairedFiles),
		"missingSlices", result.MissingSlices,
		"elapsed", util.FmtDur(elapsed),
	)
}

func main() {
	var exitCode int
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n\n", r)
			debug.PrintStack()
			exitCode = schema.ExitCodeRepairNeededOrFailed
		}
		os.Exit(exitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	rootCmd := newRootCmd(ctx, afero.NewOsFs())
	err := rootCmd.Execute()
	exitCode = schema.ExitCodeFor(err)
}
