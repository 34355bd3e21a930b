package demo

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	AmplitudeKey  = "amplitude"
	SpacingKey    = "spacing"
	ResolutionKey = "resolution"
	SnapshotKey   = "snapshot"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.Float64(AmplitudeKey, 1, "Amplitude of each submitted event")
	flags.Duration(SpacingKey, 100*time.Millisecond, "Time between submissions")
	flags.Int(ResolutionKey, 10, "Resolution of the printed field slice")
	flags.String(SnapshotKey, "", "Write the resulting ledger snapshot to this file")
}

type Config struct {
	Amplitude  float64
	Spacing    time.Duration
	Resolution int
	Snapshot   string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	amplitude, err := flags.GetFloat64(AmplitudeKey)
	if err != nil {
		return nil, err
	}

	spacing, err := flags.GetDuration(SpacingKey)
	if err != nil {
		return nil, err
	}

	resolution, err := flags.GetInt(ResolutionKey)
	if err != nil {
		return nil, err
	}

	snapshot, err := flags.GetString(SnapshotKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		Amplitude:  amplitude,
		Spacing:    spacing,
		Resolution: resolution,
		Snapshot:   snapshot,
	}, nil
}
