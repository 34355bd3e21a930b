package merge

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/dmct/internal/consensus"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "merge snapshot...",
		Short: "Merges ledger snapshots and reports the resulting agreement",
		RunE:  mergeFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func mergeFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	ledger := consensus.NewLedger()
	for _, path := range config.Inputs {
		if err := mergeFile(ledger, path); err != nil {
			return err
		}
		slog.Debug("snapshot merged", "path", path, "events", ledger.Len())
	}

	out := c.OutOrStdout()
	for _, key := range ledger.Keys() {
		status := ledger.Consensus(key)
		fmt.Fprintf(out, "%-50s  confirmed=%-5t confidence=%.2f validators=%d\n",
			key, status.Confirmed, status.Confidence, status.Validators)
	}

	if config.Out == "" {
		return nil
	}
	f, err := os.Create(config.Out)
	if err != nil {
		return err
	}
	if err := ledger.WriteSnapshot(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mergeFile(ledger *consensus.Ledger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := ledger.MergeSnapshot(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
