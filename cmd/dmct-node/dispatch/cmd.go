package dispatch

import (
	"encoding/json"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/dmct/internal/consensus"
	"github.com/nmxmxh/dmct/internal/field"
	"github.com/nmxmxh/dmct/internal/intent"
	"github.com/nmxmxh/dmct/internal/wave"
	"github.com/nmxmxh/dmct/wasm"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "do intent...",
		Short: "Classifies an intent and emits it into a fresh network",
		RunE:  dispatchFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

type output struct {
	*intent.Result
	Consensus *consensus.Status `json:"consensus,omitempty"`
}

func dispatchFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	logger := slog.Default()
	rng := rand.New(rand.NewSource(config.Seed))

	var ledger *consensus.Ledger
	netOpts := []field.NetworkOption{
		field.WithNetworkRand(rand.New(rand.NewSource(rng.Int63()))),
		field.WithNetworkLogger(logger),
	}
	if config.Ledger {
		ledger = consensus.NewLedger(consensus.WithLogger(logger))
		netOpts = append(netOpts, field.WithNetworkListener(func(e *wave.Emission) {
			if _, err := ledger.SubmitEmission(e); err != nil {
				logger.Warn("emission not recorded", "emission_id", e.ID, "error", err)
			}
		}))
	}

	network := field.NewNetwork(netOpts...)
	if _, err := network.Genesis(config.Nodes); err != nil {
		return err
	}

	var tuner intent.Tuner
	if config.Tuner != "" {
		t, err := wasm.LoadTuner(config.Tuner)
		if err != nil {
			return err
		}
		tuner = t
	}

	dispatcher := intent.NewDispatcher(network, nil, tuner, rng, logger)
	result, err := dispatcher.Do(config.Intent, config.Data)
	if err != nil {
		return err
	}
	network.Wait()

	out := output{Result: result}
	if ledger != nil {
		status := ledger.ConsensusFor(map[string]any(result.Emission.Payload))
		out.Consensus = &status
	}

	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
