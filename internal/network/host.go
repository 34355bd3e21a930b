// Package network carries emissions between processes over libp2p streams.
// A Host serves the wave and hello protocols for one local field node and
// represents each remote node as a field.Peer.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	libp2p_host "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	peer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/nmxmxh/dmct/internal/core"
	"github.com/nmxmxh/dmct/internal/field"
	"github.com/nmxmxh/dmct/internal/metrics"
	"github.com/nmxmxh/dmct/internal/wave"
)

const ackOK = "ok"

// Description is what two hosts exchange on hello.
type Description struct {
	ID       string          `json:"id"`
	Position core.Coordinate `json:"position"`
	Identity float64         `json:"identity"`
}

// Host binds a field node to a libp2p host.
type Host struct {
	host    libp2p_host.Host
	node    *field.Node
	config  Config
	limiter *limiter.TokenBucket
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	remotes map[peer.ID]*RemotePeer
}

// Option configures a Host.
type Option func(*Host)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// New starts a libp2p host listening on cfg.ListenAddrs with the identity
// stored at cfg.IdentityPath and attaches node to it.
func New(node *field.Node, cfg Config, opts ...Option) (*Host, error) {
	priv, err := LoadOrCreateIdentity(cfg.IdentityPath)
	if err != nil {
		return nil, err
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("start libp2p host: %w", err)
	}
	return Attach(h, node, cfg, opts...)
}

// Attach serves node on an existing libp2p host.
func Attach(h libp2p_host.Host, node *field.Node, cfg Config, opts ...Option) (*Host, error) {
	bucket, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(cfg.RateLimit.MessagesPerSecond),
			Duration: time.Second,
			Burst:    int64(cfg.RateLimit.BurstSize),
		},
		store.NewMemoryStore(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	host := &Host{
		host:    h,
		node:    node,
		config:  cfg,
		limiter: bucket,
		logger:  slog.Default(),
		remotes: make(map[peer.ID]*RemotePeer),
	}
	for _, opt := range opts {
		opt(host)
	}
	if host.logger == nil {
		host.logger = slog.Default()
	}
	host.logger = host.logger.With("component", "network", "node_id", core.ShortID(node.ID()))

	h.SetStreamHandler(protocol.ID(WaveProtocol), host.handleWave)
	h.SetStreamHandler(protocol.ID(HelloProtocol), host.handleHello)

	host.logger.Info("wave transport ready", "peer_id", h.ID().String())
	return host, nil
}

func (h *Host) ID() peer.ID              { return h.host.ID() }
func (h *Host) Libp2p() libp2p_host.Host { return h.host }
func (h *Host) Node() *field.Node        { return h.node }

// Addrs returns the host's dialable multiaddrs including the /p2p suffix.
func (h *Host) Addrs() []string {
	var out []string
	for _, a := range h.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a.String(), h.host.ID().String()))
	}
	return out
}

func (h *Host) describe() Description {
	return Description{
		ID:       h.node.ID(),
		Position: h.node.Position(),
		Identity: h.node.Identity(),
	}
}

// Remotes returns the remote peers known to the host.
func (h *Host) Remotes() []*RemotePeer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*RemotePeer, 0, len(h.remotes))
	for _, r := range h.remotes {
		out = append(out, r)
	}
	return out
}

// Remote looks up the peer behind a libp2p id.
func (h *Host) Remote(pid peer.ID) (*RemotePeer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.remotes[pid]
	return r, ok
}

// register records desc for pid and links it to the local node.
func (h *Host) register(pid peer.ID, desc Description) *RemotePeer {
	h.mu.Lock()
	r, ok := h.remotes[pid]
	if !ok {
		r = newRemotePeer(h.host, pid, desc, h.config)
		h.remotes[pid] = r
	}
	h.mu.Unlock()

	if h.node.Connect(r) {
		h.logger.Info("peer linked",
			"peer_id", pid.String(),
			"remote_node", core.ShortID(desc.ID),
			"distance", core.Distance(h.node.Position(), desc.Position))
	}
	return r
}

// Dial connects to a /p2p multiaddr and introduces the local node.
func (h *Host) Dial(ctx context.Context, addr string) (*RemotePeer, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, err
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, err
	}
	if err := h.host.Connect(ctx, *info); err != nil {
		return nil, core.ErrPeerUnreachableCause(info.ID.String(), err)
	}
	return h.Introduce(ctx, info.ID)
}

// Introduce runs the hello exchange with an already connected peer. Both
// sides end up holding an edge to each other.
func (h *Host) Introduce(ctx context.Context, pid peer.ID) (*RemotePeer, error) {
	s, err := h.host.NewStream(ctx, pid, protocol.ID(HelloProtocol))
	if err != nil {
		return nil, core.ErrPeerUnreachableCause(pid.String(), err)
	}
	defer s.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}
	if err := json.NewEncoder(s).Encode(h.describe()); err != nil {
		s.Reset()
		return nil, core.ErrPeerUnreachableCause(pid.String(), err)
	}
	if err := s.CloseWrite(); err != nil {
		s.Reset()
		return nil, core.ErrPeerUnreachableCause(pid.String(), err)
	}

	var desc Description
	if err := json.NewDecoder(io.LimitReader(s, h.config.MaxMessageSize)).Decode(&desc); err != nil {
		return nil, core.ErrDecodeFailed("hello", err).WithContext("peer_id", pid.String())
	}
	if err := desc.Position.Validate(); err != nil {
		return nil, err
	}
	return h.register(pid, desc), nil
}

func (h *Host) handleHello(s network.Stream) {
	defer s.Close()
	pid := s.Conn().RemotePeer()

	var desc Description
	if err := json.NewDecoder(io.LimitReader(s, h.config.MaxMessageSize)).Decode(&desc); err != nil {
		h.reject(s, metrics.ReasonBadHello, "bad hello", err)
		return
	}
	if err := desc.Position.Validate(); err != nil {
		h.reject(s, metrics.ReasonBadHello, "bad hello", err)
		return
	}

	h.register(pid, desc)
	if err := json.NewEncoder(s).Encode(h.describe()); err != nil {
		h.logger.Warn("hello reply failed", "peer_id", pid.String(), "error", err)
	}
}

func (h *Host) handleWave(s network.Stream) {
	defer s.Close()
	pid := s.Conn().RemotePeer()

	if !h.limiter.Allow(pid.String()) {
		h.reject(s, metrics.ReasonRateLimited, "emission dropped", core.ErrRateLimitedPeer(pid.String()))
		return
	}

	data, err := io.ReadAll(io.LimitReader(s, h.config.MaxMessageSize+1))
	if err != nil {
		h.reject(s, metrics.ReasonUnreadable, "read emission failed", err)
		return
	}
	if int64(len(data)) > h.config.MaxMessageSize {
		h.reject(s, metrics.ReasonOversized, "emission dropped",
			fmt.Errorf("message exceeds %d bytes", h.config.MaxMessageSize))
		return
	}
	e, err := wave.Decode(data)
	if err != nil {
		h.reject(s, metrics.ReasonUndecodable, "undecodable emission", err)
		return
	}

	if r, ok := h.Remote(pid); ok {
		r.remember(e)
	}
	h.node.Receive(e)

	if _, err := s.Write([]byte(ackOK)); err != nil {
		h.logger.Debug("ack failed", "peer_id", pid.String(), "error", err)
	}
}

// reject counts and logs an inbound message dropped for reason and resets
// its stream.
func (h *Host) reject(s network.Stream, reason, msg string, err error) {
	h.metrics.IncRejected(reason)
	h.logger.Warn(msg, "peer_id", s.Conn().RemotePeer().String(), "reason", reason, "error", err)
	s.Reset()
}

// Close stops serving and shuts down the libp2p host.
func (h *Host) Close() error {
	h.host.RemoveStreamHandler(protocol.ID(WaveProtocol))
	h.host.RemoveStreamHandler(protocol.ID(HelloProtocol))
	return h.host.Close()
}
