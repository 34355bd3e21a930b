package serve

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/nmxmxh/dmct/internal/network"
)

const (
	XKey         = "x"
	YKey         = "y"
	ZKey         = "z"
	ListenKey    = "listen"
	IdentityKey  = "identity"
	PeersKey     = "peer"
	HTTPKey      = "http"
	HeartbeatKey = "heartbeat"
	SnapshotKey  = "snapshot"
)

func AddFlags(flags *pflag.FlagSet) {
	defaults := network.DefaultConfig()
	flags.Float64(XKey, 0, "Node x coordinate")
	flags.Float64(YKey, 0, "Node y coordinate")
	flags.Float64(ZKey, 0, "Node z coordinate")
	flags.StringSlice(ListenKey, defaults.ListenAddrs, "libp2p listen multiaddrs")
	flags.String(IdentityKey, defaults.IdentityPath, "Path of the persistent node key (empty for an ephemeral key)")
	flags.StringSlice(PeersKey, nil, "Peer multiaddrs with /p2p/ component to introduce on start")
	flags.String(HTTPKey, ":8080", "Address serving /feed, /consensus and /metrics (empty disables)")
	flags.Duration(HeartbeatKey, 30*time.Second, "Heartbeat interval (0 disables heartbeats)")
	flags.String(SnapshotKey, "", "Ledger snapshot file loaded on start and written on shutdown")
}

type Config struct {
	X, Y, Z   float64
	Network   network.Config
	Peers     []string
	HTTPAddr  string
	Heartbeat time.Duration
	Snapshot  string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	x, err := flags.GetFloat64(XKey)
	if err != nil {
		return nil, err
	}

	y, err := flags.GetFloat64(YKey)
	if err != nil {
		return nil, err
	}

	z, err := flags.GetFloat64(ZKey)
	if err != nil {
		return nil, err
	}

	listen, err := flags.GetStringSlice(ListenKey)
	if err != nil {
		return nil, err
	}

	identity, err := flags.GetString(IdentityKey)
	if err != nil {
		return nil, err
	}

	peers, err := flags.GetStringSlice(PeersKey)
	if err != nil {
		return nil, err
	}

	httpAddr, err := flags.GetString(HTTPKey)
	if err != nil {
		return nil, err
	}

	heartbeat, err := flags.GetDuration(HeartbeatKey)
	if err != nil {
		return nil, err
	}

	snapshot, err := flags.GetString(SnapshotKey)
	if err != nil {
		return nil, err
	}

	netConfig := network.DefaultConfig()
	netConfig.ListenAddrs = listen
	netConfig.IdentityPath = identity

	return &Config{
		X:         x,
		Y:         y,
		Z:         z,
		Network:   netConfig,
		Peers:     peers,
		HTTPAddr:  httpAddr,
		Heartbeat: heartbeat,
		Snapshot:  snapshot,
	}, nil
}
