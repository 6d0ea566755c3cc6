package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChizhovVadim/tfplus/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err = newRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	logLevel string
	level    slog.Level
	logger   *slog.Logger
}

func newRootCommand() *cobra.Command {
	var a = &app{}
	var cmd = &cobra.Command{
		Use:           "tfplus",
		Short:         "Train image classifiers and browse their logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logger.ParseLevel(a.logLevel)
			if err != nil {
				return err
			}
			a.level = level
			a.logger = logger.New(os.Stderr, level)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.AddCommand(
		trainCommand(a),
		datasetCommand(a),
		serveCommand(a),
	)
	return cmd
}
