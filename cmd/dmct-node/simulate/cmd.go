package simulate

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/dmct/internal/field"
	"github.com/nmxmxh/dmct/internal/wave"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "simulate",
		Short: "Runs an in-process network and prints its final snapshot",
		RunE:  simulateFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func simulateFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	cfg := field.DefaultConfig()
	cfg.InterferenceThreshold = config.Threshold

	rng := rand.New(rand.NewSource(config.Seed))
	network := field.NewNetwork(
		field.WithNetworkConfig(cfg),
		field.WithNetworkRand(rand.New(rand.NewSource(rng.Int63()))),
	)
	if _, err := network.Genesis(config.Nodes); err != nil {
		return err
	}
	slog.Info("genesis complete", "nodes", config.Nodes, "edges", network.Topology().EdgeCount(), "seed", config.Seed)

	ctx, cancel := context.WithTimeout(c.Context(), config.Duration)
	defer cancel()

	if config.Heartbeat > 0 {
		for _, node := range network.Nodes() {
			go func(n *field.Node) {
				_ = n.Heartbeat(ctx, config.Heartbeat)
			}(node)
		}
	}

	ticker := time.NewTicker(config.Tick)
	defer ticker.Stop()

	rounds := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			rounds++
			if rng.Float64() < config.JoinChance {
				join(network)
			}
			for _, node := range network.Nodes() {
				if rng.Float64() >= config.EmitChance {
					continue
				}
				if _, err := node.Emit(0.5+rng.Float64(), wave.Payload{wave.KeyType: "pulse", "round": rounds}); err != nil {
					slog.Warn("emit failed", "node_id", node.ID(), "error", err)
				}
			}
		}
	}
	network.Wait()

	slog.Info("simulation finished", "rounds", rounds)
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(network.Snapshot())
}

// join adds a node at a random position mid-run.
func join(network *field.Network) {
	node, err := network.NewNode()
	if err != nil {
		slog.Warn("new node failed", "error", err)
		return
	}
	if _, err := network.AddNode(node); err != nil {
		slog.Warn("join failed", "node_id", node.ID(), "error", err)
		return
	}
	slog.Info("node joined", "node_id", node.ID(), "neighbors", network.Topology().Degree(node.ID()))
}
