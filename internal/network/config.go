package network

import "time"

const (
	WaveProtocol  = "/dmct/wave/1.0.0"
	HelloProtocol = "/dmct/hello/1.0.0"
)

// Config holds transport settings.
type Config struct {
	ListenAddrs    []string        `json:"listen_addrs"`
	IdentityPath   string          `json:"identity_path"`    // Empty for an ephemeral key
	MaxMessageSize int64           `json:"max_message_size"` // Inbound stream read limit, bytes
	RemoteLogSize  int             `json:"remote_log_size"`  // Emissions remembered per remote peer
	RateLimit      RateLimitConfig `json:"rate_limit"`
	Breaker        BreakerConfig   `json:"breaker"`
}

// RateLimitConfig bounds inbound emissions per remote peer.
type RateLimitConfig struct {
	MessagesPerSecond int `json:"messages_per_second"`
	BurstSize         int `json:"burst_size"`
}

// BreakerConfig controls the per-peer delivery circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `json:"max_failures"` // Consecutive failures that open the circuit
	OpenTimeout time.Duration `json:"open_timeout"` // Time spent open before probing again
}

// DefaultConfig returns production transport settings.
func DefaultConfig() Config {
	return Config{
		ListenAddrs:    []string{"/ip4/0.0.0.0/tcp/0"},
		IdentityPath:   "node_identity.json",
		MaxMessageSize: 1 << 20,
		RemoteLogSize:  1024,
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 100,
			BurstSize:         200,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			OpenTimeout: 30 * time.Second,
		},
	}
}
