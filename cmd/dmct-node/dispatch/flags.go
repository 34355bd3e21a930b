package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const (
	DataKey   = "data"
	TunerKey  = "tuner"
	NodesKey  = "nodes"
	SeedKey   = "seed"
	LedgerKey = "ledger"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(DataKey, "{}", "JSON object attached to the intent")
	flags.String(TunerKey, "", "WebAssembly module (.wasm or .wat) exporting tune(low, high, r)")
	flags.Int(NodesKey, 7, "Genesis nodes in the network the intent is emitted into")
	flags.Int64(SeedKey, 1, "Random seed")
	flags.Bool(LedgerKey, true, "Record emissions in a ledger and report the intent's agreement")
}

type Config struct {
	Intent string
	Data   map[string]any
	Tuner  string
	Nodes  int
	Seed   int64
	Ledger bool
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	intent := strings.TrimSpace(strings.Join(flags.Args(), " "))
	if intent == "" {
		return nil, errors.New("an intent is required")
	}

	dataStr, err := flags.GetString(DataKey)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", DataKey, err)
	}

	tuner, err := flags.GetString(TunerKey)
	if err != nil {
		return nil, err
	}

	nodes, err := flags.GetInt(NodesKey)
	if err != nil {
		return nil, err
	}

	seed, err := flags.GetInt64(SeedKey)
	if err != nil {
		return nil, err
	}

	ledger, err := flags.GetBool(LedgerKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		Intent: intent,
		Data:   data,
		Tuner:  tuner,
		Nodes:  nodes,
		Seed:   seed,
		Ledger: ledger,
	}, nil
}
