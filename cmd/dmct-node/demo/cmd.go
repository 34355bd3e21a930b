package demo

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/nmxmxh/dmct/internal/consensus"
	"github.com/nmxmxh/dmct/internal/core"
)

var positions = []core.Coordinate{
	{X: 0, Y: 0, Z: 0},
	{X: 5, Y: 0, Z: 0},
	{X: 0, Y: 5, Z: 0},
	{X: -3, Y: -3, Z: 0},
	{X: 2, Y: 3, Z: 1},
}

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "consensus",
		Short: "Submits one transfer from five positions and reports agreement",
		RunE:  demoFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func demoFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	ledger := consensus.NewLedger()
	tx := map[string]any{"from": "Alice", "to": "Bob", "amount": 10, "token": "DMC"}

	start := float64(time.Now().UnixNano()) / float64(time.Second)
	for i, pos := range positions {
		t := start + float64(i)*config.Spacing.Seconds()
		id, err := ledger.Submit(pos, t, tx, config.Amplitude)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "node %d at %s: event %s\n", i, pos, id)
	}

	status := ledger.ConsensusFor(tx)
	state := "PENDING"
	if status.Confirmed {
		state = "CONFIRMED"
	}
	fmt.Fprintf(out, "\nkey:        %s\n", consensus.DataKey(tx))
	fmt.Fprintf(out, "status:     %s\n", state)
	fmt.Fprintf(out, "amplitude:  %.3f\n", status.Amplitude)
	fmt.Fprintf(out, "confidence: %.0f%%\n", status.Confidence*100)
	fmt.Fprintf(out, "validators: %d\n\n", status.Validators)

	printSlice(out, ledger.FieldSlice(config.Resolution))

	if config.Snapshot == "" {
		return nil
	}
	f, err := os.Create(config.Snapshot)
	if err != nil {
		return err
	}
	if err := ledger.WriteSnapshot(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSlice(w io.Writer, grid *mat.Dense) {
	rows, cols := grid.Dims()
	for i := 0; i < rows; i++ {
		var b strings.Builder
		b.WriteString("  ")
		for j := 0; j < cols; j++ {
			b.WriteRune(shade(grid.At(i, j)))
		}
		fmt.Fprintln(w, b.String())
	}
}

func shade(v float64) rune {
	switch {
	case v > 0.5:
		return '█'
	case v > 0:
		return '▓'
	case v > -0.5:
		return '░'
	default:
		return ' '
	}
}
