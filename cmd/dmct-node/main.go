package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/dmct/cmd/dmct-node/demo"
	"github.com/nmxmxh/dmct/cmd/dmct-node/dispatch"
	"github.com/nmxmxh/dmct/cmd/dmct-node/merge"
	"github.com/nmxmxh/dmct/cmd/dmct-node/serve"
	"github.com/nmxmxh/dmct/cmd/dmct-node/simulate"
)

const logLevelKey = "log-level"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:               "dmct-node",
		Short:             "Spacetime wave propagation and interference consensus",
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
	root.PersistentFlags().String(logLevelKey, "info", "Log level (debug, info, warn, error)")
	root.AddCommand(
		simulate.Command(),
		demo.Command(),
		merge.Command(),
		serve.Command(),
		dispatch.Command(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(c *cobra.Command, _ []string) error {
	levelStr, err := c.Flags().GetString(logLevelKey)
	if err != nil {
		return err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		return fmt.Errorf("invalid %s %q: %w", logLevelKey, levelStr, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
