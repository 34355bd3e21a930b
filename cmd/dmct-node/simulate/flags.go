package simulate

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

const (
	NodesKey       = "nodes"
	DurationKey    = "duration"
	TickKey        = "tick"
	EmitChanceKey  = "emit-chance"
	JoinChanceKey  = "join-chance"
	SeedKey        = "seed"
	HeartbeatKey   = "heartbeat"
	ThresholdKey   = "threshold"
	defaultNodes   = 7
	defaultTick    = 100 * time.Millisecond
	defaultChance  = 0.1
	defaultJoin    = 0.02
	defaultRuntime = 5 * time.Second
)

func AddFlags(flags *pflag.FlagSet) {
	flags.Int(NodesKey, defaultNodes, "Number of genesis nodes")
	flags.Duration(DurationKey, defaultRuntime, "How long to run the simulation")
	flags.Duration(TickKey, defaultTick, "Interval between emission rounds")
	flags.Float64(EmitChanceKey, defaultChance, "Probability that a node emits on each round")
	flags.Float64(JoinChanceKey, defaultJoin, "Probability that a node at a random position joins on each round")
	flags.Int64(SeedKey, 0, "Random seed (0 picks one from the clock)")
	flags.Duration(HeartbeatKey, 0, "Heartbeat interval per node (0 disables heartbeats)")
	flags.Float64(ThresholdKey, 3, "Interference threshold for cascades")
}

type Config struct {
	Nodes      int
	Duration   time.Duration
	Tick       time.Duration
	EmitChance float64
	JoinChance float64
	Seed       int64
	Heartbeat  time.Duration
	Threshold  float64
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	nodes, err := flags.GetInt(NodesKey)
	if err != nil {
		return nil, err
	}
	if nodes <= 0 {
		return nil, errors.New("nodes must be positive")
	}

	duration, err := flags.GetDuration(DurationKey)
	if err != nil {
		return nil, err
	}

	tick, err := flags.GetDuration(TickKey)
	if err != nil {
		return nil, err
	}
	if tick <= 0 {
		return nil, errors.New("tick must be positive")
	}

	chance, err := flags.GetFloat64(EmitChanceKey)
	if err != nil {
		return nil, err
	}

	join, err := flags.GetFloat64(JoinChanceKey)
	if err != nil {
		return nil, err
	}

	seed, err := flags.GetInt64(SeedKey)
	if err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	heartbeat, err := flags.GetDuration(HeartbeatKey)
	if err != nil {
		return nil, err
	}

	threshold, err := flags.GetFloat64(ThresholdKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		Nodes:      nodes,
		Duration:   duration,
		Tick:       tick,
		EmitChance: chance,
		JoinChance: join,
		Seed:       seed,
		Heartbeat:  heartbeat,
		Threshold:  threshold,
	}, nil
}
