package network

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	peer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/dmct/internal/core"
	"github.com/nmxmxh/dmct/internal/field"
	"github.com/nmxmxh/dmct/internal/metrics"
	"github.com/nmxmxh/dmct/internal/wave"
)

// newMocknet attaches n hosts plus bare extra peers, then links and
// connects everything.
func newMocknet(t *testing.T, n, bare int, cfg Config, opts ...Option) (mocknet.Mocknet, []*Host) {
	t.Helper()
	mn := mocknet.New()
	t.Cleanup(func() { mn.Close() })

	mock := clock.NewMock()
	mock.Set(time.Unix(1_000_000, 0))

	var hosts []*Host
	for i := 0; i < n; i++ {
		h, err := mn.GenPeer()
		require.NoError(t, err)

		node, err := field.NewNode(
			field.WithPosition(float64(i), 0, 0),
			field.WithClock(mock),
			field.WithRand(rand.New(rand.NewSource(int64(i)))),
		)
		require.NoError(t, err)

		host, err := Attach(h, node, cfg, opts...)
		require.NoError(t, err)
		hosts = append(hosts, host)
	}
	for i := 0; i < bare; i++ {
		_, err := mn.GenPeer()
		require.NoError(t, err)
	}

	require.NoError(t, mn.LinkAll())
	require.NoError(t, mn.ConnectAllButSelf())
	return mn, hosts
}

// rejected reads the transport rejection counter for reason.
func rejected(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "dmct_transport_rejected_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func newTestMetrics(t *testing.T) (*metrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	return m, reg
}

func TestHost_IntroduceLinksBothSides(t *testing.T) {
	_, hosts := newMocknet(t, 2, 0, DefaultConfig())
	a, b := hosts[0], hosts[1]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	remote, err := a.Introduce(ctx, b.ID())
	require.NoError(t, err)

	assert.Equal(t, b.Node().ID(), remote.ID())
	assert.Equal(t, b.Node().Position(), remote.Position())
	assert.Equal(t, b.Node().Identity(), remote.Identity())
	assert.True(t, a.Node().Topology().Connected(a.Node().ID(), b.Node().ID()))

	back, ok := b.Remote(a.ID())
	require.True(t, ok)
	assert.Equal(t, a.Node().ID(), back.ID())
	assert.True(t, b.Node().Topology().Connected(b.Node().ID(), a.Node().ID()))
}

func TestHost_EmissionCrossesProcesses(t *testing.T) {
	_, hosts := newMocknet(t, 2, 0, DefaultConfig())
	a, b := hosts[0], hosts[1]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.Introduce(ctx, b.ID())
	require.NoError(t, err)

	sent, err := a.Node().Emit(1.25, wave.Payload{"msg": "over the wire"})
	require.NoError(t, err)
	a.Node().Topology().Wait()

	got := b.Node().Emissions()
	require.Len(t, got, 1)
	assert.Equal(t, sent.ID, got[0].ID)
	assert.Equal(t, sent.Origin, got[0].Origin)
	assert.Equal(t, sent.Amplitude, got[0].Amplitude)
	assert.Equal(t, "over the wire", got[0].Payload["msg"])

	// The receiving side attributes it to the sender.
	remote, ok := b.Remote(a.ID())
	require.True(t, ok)
	assert.Len(t, remote.Emissions(), 1)

	// And the reverse direction works over the edge created by hello.
	_, err = b.Node().Emit(0.5, nil)
	require.NoError(t, err)
	b.Node().Topology().Wait()
	assert.Len(t, a.Node().Emissions(), 2)
}

func TestRemotePeer_BreakerOpens(t *testing.T) {
	mn, hosts := newMocknet(t, 1, 1, DefaultConfig())
	a := hosts[0]

	// The bare peer never registered the wave protocol.
	var silent peer.ID
	for _, pid := range mn.Peers() {
		if pid != a.ID() {
			silent = pid
		}
	}
	require.NotEmpty(t, silent)

	cfg := DefaultConfig()
	cfg.Breaker.MaxFailures = 2
	cfg.Breaker.OpenTimeout = time.Minute
	remote := newRemotePeer(a.Libp2p(), silent, Description{ID: "silent"}, cfg)

	e := wave.New(core.Coordinate{X: 1, T: 10}, 1, 0.5, 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		err := remote.Deliver(ctx, e)
		assert.True(t, errors.Is(err, core.ErrPeerUnreachable), "attempt %d: %v", i, err)
	}
	err := remote.Deliver(ctx, e)
	assert.True(t, errors.Is(err, core.ErrCircuitOpen), "got %v", err)
	assert.Equal(t, "open", remote.State())
}

func TestHost_RejectsGarbage(t *testing.T) {
	m, reg := newTestMetrics(t)
	_, hosts := newMocknet(t, 2, 0, DefaultConfig(), WithMetrics(m))
	a, b := hosts[0], hosts[1]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := a.Libp2p().NewStream(ctx, b.ID(), protocol.ID(WaveProtocol))
	require.NoError(t, err)
	_, err = s.Write([]byte("definitely not protobuf"))
	require.NoError(t, err)
	require.NoError(t, s.CloseWrite())

	buf := make([]byte, 8)
	n, _ := s.Read(buf)
	assert.NotEqual(t, ackOK, string(buf[:n]))
	assert.Empty(t, b.Node().Emissions())
	assert.Eventually(t, func() bool {
		return rejected(t, reg, metrics.ReasonUndecodable) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHost_RejectsOversized(t *testing.T) {
	m, reg := newTestMetrics(t)
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 16
	_, hosts := newMocknet(t, 2, 0, cfg, WithMetrics(m))
	a, b := hosts[0], hosts[1]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := wave.Encode(wave.New(core.Coordinate{X: 1, T: 999_999}, 1, 0.5, 0, wave.Payload{"k": "v"}))
	require.NoError(t, err)
	require.Greater(t, len(data), 16)

	s, err := a.Libp2p().NewStream(ctx, b.ID(), protocol.ID(WaveProtocol))
	require.NoError(t, err)
	// The handler may reset the stream before the write side closes.
	_, _ = s.Write(data)
	_ = s.CloseWrite()

	buf := make([]byte, 8)
	n, _ := s.Read(buf)
	assert.NotEqual(t, ackOK, string(buf[:n]))
	assert.Empty(t, b.Node().Emissions())
	assert.Eventually(t, func() bool {
		return rejected(t, reg, metrics.ReasonOversized) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHost_RejectsBadHello(t *testing.T) {
	m, reg := newTestMetrics(t)
	_, hosts := newMocknet(t, 2, 0, DefaultConfig(), WithMetrics(m))
	a, b := hosts[0], hosts[1]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := a.Libp2p().NewStream(ctx, b.ID(), protocol.ID(HelloProtocol))
	require.NoError(t, err)
	// The handler may reset the stream before the write side closes.
	_, _ = s.Write([]byte("{not json"))
	_ = s.CloseWrite()

	buf := make([]byte, 8)
	_, _ = s.Read(buf)
	assert.Eventually(t, func() bool {
		return rejected(t, reg, metrics.ReasonBadHello) == 1
	}, 5*time.Second, 10*time.Millisecond)
	_, known := b.Remote(a.ID())
	assert.False(t, known)
}

func TestHost_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{MessagesPerSecond: 1, BurstSize: 1}
	m, reg := newTestMetrics(t)
	_, hosts := newMocknet(t, 2, 0, cfg, WithMetrics(m))

	a, b := hosts[0], hosts[1]
	remote := newRemotePeer(a.Libp2p(), b.ID(), Description{ID: b.Node().ID()}, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	failures := 0
	for i := 0; i < 5; i++ {
		e := wave.New(core.Coordinate{X: 1, T: 1_000_000 - float64(i)}, 1, 0.5, 0, nil)
		if err := remote.Deliver(ctx, e); err != nil {
			failures++
		}
	}
	assert.Greater(t, failures, 0)
	assert.Less(t, len(b.Node().Emissions()), 5)
	assert.Equal(t, float64(failures), rejected(t, reg, metrics.ReasonRateLimited))
}

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	first, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	second, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.True(t, first.Equals(second))

	stored, err := LoadIdentity(path)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PeerID)

	ephemeral, err := LoadOrCreateIdentity("")
	require.NoError(t, err)
	assert.False(t, first.Equals(ephemeral))
}
