package merge

import (
	"errors"

	"github.com/spf13/pflag"
)

const OutKey = "out"

func AddFlags(flags *pflag.FlagSet) {
	flags.String(OutKey, "", "Write the merged ledger snapshot to this file")
}

type Config struct {
	Inputs []string
	Out    string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	out, err := flags.GetString(OutKey)
	if err != nil {
		return nil, err
	}

	inputs := flags.Args()
	if len(inputs) == 0 {
		return nil, errors.New("at least one snapshot file is required")
	}

	return &Config{
		Inputs: inputs,
		Out:    out,
	}, nil
}
