package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/asherwin/salvage/internal/config"
	"github.com/asherwin/salvage/internal/engine"
	"github.com/asherwin/salvage/internal/event"
	"github.com/asherwin/salvage/internal/stats"
	"github.com/asherwin/salvage/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// sizeValue is a pflag.Value accepting human-readable sizes ("4096", "64K").
type sizeValue struct {
	dst *int64
}

var _ pflag.Value = (*sizeValue)(nil)

func (v *sizeValue) String() string {
	if v.dst == nil {
		return ""
	}
	return strconv.FormatInt(*v.dst, 10)
}

func (v *sizeValue) Type() string { return "size" }

func (v *sizeValue) Set(s string) error {
	n, err := config.ParseSize(s)
	if err != nil {
		return err
	}
	*v.dst = n
	return nil
}

//nolint:gocyclo // main CLI entry point orchestrates flag parsing and wiring
func run() int {
	var (
		blockSize   = int64(engine.DefaultBlockSize)
		retries     int
		overwrite   bool
		partialPath string
		deleteSrc   bool
		verbose     bool
		quiet       bool
		noProgress  bool
		logFile     string
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:   "salvage [flags] <source> <destination>",
		Short: "Block-level file copy for failing media with retry and bad-block tracking",
		Long: `salvage copies one file block by block, retrying reads that hit medium
errors. Blocks that stay unreadable are zero-filled in the destination and
recorded in a sidecar ledger, so a later run can retry only those ranges
(--overwrite) or merge good bytes out of an earlier partial copy (--partial).

Exit codes: 0 clean copy, 1 copy completed with bad blocks, 2 destination
exists and --overwrite not given, 3 --overwrite given but the destination
has no ledger, 4 any other fatal error.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "salvage %s\n", version)
				return nil
			}
			src, dst := args[0], args[1]

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyConfigDefaults(cmd, cfg.Defaults, &blockSize, &retries, &quiet)

			// Configure logging.
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			} else if !quiet {
				logLevel = slog.LevelInfo
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})
				logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
			}
			slog.SetDefault(slog.New(logHandler))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)

			// When --log is set, tee events through a logging goroutine that
			// writes structured records before forwarding to the presenter.
			presenterEvents := (<-chan event.Event)(events)
			if logFile != "" {
				teed := make(chan event.Event, 256)
				go func() {
					for ev := range events {
						attrs := []slog.Attr{
							slog.String("type", ev.Type.String()),
							slog.Int64("offset", ev.Offset),
							slog.Int64("size", ev.Size),
						}
						if ev.Origin != "" {
							attrs = append(attrs, slog.String("origin", ev.Origin))
						}
						if ev.Path != "" {
							attrs = append(attrs, slog.String("path", ev.Path))
						}
						if ev.Error != nil {
							attrs = append(attrs, slog.String("error", ev.Error.Error()))
						}
						slog.LogAttrs(context.Background(), slog.LevelInfo, "salvage.event", attrs...)
						teed <- ev
					}
					close(teed)
				}()
				presenterEvents = teed
			}

			presenter := ui.NewPresenter(ui.Config{
				Writer:     os.Stdout,
				ErrWriter:  os.Stderr,
				Stats:      collector,
				Quiet:      quiet,
				Verbose:    verbose,
				NoProgress: noProgress,
			})

			slog.Debug("starting copy",
				"source", src,
				"dest", dst,
				"partial", partialPath,
				"block_size", blockSize,
				"retries", retries,
				"overwrite", overwrite,
			)

			// Presenter runs in background, engine in foreground.
			var presenterErr error
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				presenterErr = presenter.Run(presenterEvents)
			}()

			result := engine.Run(ctx, engine.Config{
				Source:       src,
				Dest:         dst,
				Partial:      partialPath,
				BlockSize:    int(blockSize),
				MaxRetries:   retries,
				Overwrite:    overwrite,
				DeleteSource: deleteSrc,
				Events:       events,
				Stats:        collector,
			})
			stop()
			close(events)
			wg.Wait()
			if presenterErr != nil {
				fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
			}

			if !quiet {
				if summary := presenter.Summary(); summary != "" {
					fmt.Fprintln(os.Stderr, summary)
				}
			}

			if result.Err != nil {
				slog.Error("copy failed", "error", result.Err)
				switch {
				case errors.Is(result.Err, engine.ErrDestinationExists):
					return &exitError{code: 2}
				case errors.Is(result.Err, engine.ErrLedgerMissing):
					return &exitError{code: 3}
				default:
					return &exitError{code: 4}
				}
			}
			if result.BadBlocks.Len() > 0 {
				slog.Warn("copy completed with data loss",
					"bad_blocks", result.BadBlocks.Len(),
					"bad_bytes", result.BadBlocks.TotalBadBytes(),
					"path", result.FinalPath,
				)
				return &exitError{code: 1}
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.Flags().
		VarP(&sizeValue{dst: &blockSize}, "block-size", "b", "transfer block size in bytes (e.g. 4096, 64K)")
	rootCmd.Flags().
		IntVarP(&retries, "retries", "r", 0, "extra read attempts per block on a medium error")
	rootCmd.Flags().
		BoolVarP(&overwrite, "overwrite", "f", false, "re-copy only the bad blocks of an existing destination")
	rootCmd.Flags().
		StringVar(&partialPath, "partial", "", "earlier partial copy to merge good bytes from")
	rootCmd.Flags().
		BoolVar(&deleteSrc, "delete-source", false, "delete the source after a fully clean copy")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable periodic progress lines")
	rootCmd.Flags().StringVar(&logFile, "log", "", "write structured JSON log to FILE")

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 4
	}

	return 0
}

// applyConfigDefaults applies config file defaults for flags not explicitly
// set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	blockSize *int64,
	retries *int,
	quiet *bool,
) {
	if !cmd.Flags().Changed("block-size") && defaults.BlockSize != nil {
		if n, err := config.ParseSize(*defaults.BlockSize); err == nil {
			*blockSize = n
		} else {
			slog.Warn("invalid block_size in config", "value", *defaults.BlockSize, "error", err)
		}
	}
	if !cmd.Flags().Changed("retries") && defaults.Retries != nil {
		*retries = *defaults.Retries
	}
	if !cmd.Flags().Changed("quiet") && defaults.Quiet != nil {
		*quiet = *defaults.Quiet
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
