package field

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/dmct/internal/core"
	"github.com/nmxmxh/dmct/internal/metrics"
	"github.com/nmxmxh/dmct/internal/wave"
)

// recordingPeer stores every delivery it gets.
type recordingPeer struct {
	id       string
	position core.Coordinate
	err      error

	mu        sync.Mutex
	delivered []*wave.Emission
}

func newRecordingPeer(id string, x, y, z float64) *recordingPeer {
	return &recordingPeer{id: id, position: core.Coordinate{X: x, Y: y, Z: z}}
}

func (p *recordingPeer) ID() string                { return p.id }
func (p *recordingPeer) Position() core.Coordinate { return p.position }
func (p *recordingPeer) Identity() float64         { return 0.5 }

func (p *recordingPeer) Emissions() []*wave.Emission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*wave.Emission(nil), p.delivered...)
}

func (p *recordingPeer) Deliver(_ context.Context, e *wave.Emission) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.delivered = append(p.delivered, e)
	p.mu.Unlock()
	return nil
}

func newTestNode(t *testing.T, mock *clock.Mock, opts ...Option) *Node {
	t.Helper()
	base := []Option{
		WithClock(mock),
		WithRand(rand.New(rand.NewSource(7))),
		WithPosition(0, 0, 0),
		WithIdentity(0.5),
	}
	n, err := NewNode(append(base, opts...)...)
	require.NoError(t, err)
	return n
}

func newMockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(time.Unix(1_000_000, 0))
	return mock
}

func TestNode_Defaults(t *testing.T) {
	n, err := NewNode(WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID())
	for _, v := range n.Position().Spatial() {
		assert.GreaterOrEqual(t, v, -10.0)
		assert.Less(t, v, 10.0)
	}
	assert.GreaterOrEqual(t, n.Identity(), 0.0)
	assert.Less(t, n.Identity(), 1.0)
	assert.Empty(t, n.Emissions())

	_, err = NewNode(WithPosition(math.NaN(), 0, 0))
	assert.True(t, errors.Is(err, core.ErrInvalidCoordinate))
}

func TestNode_Emit(t *testing.T) {
	mock := newMockClock()
	n := newTestNode(t, mock, WithPosition(1, 2, 3))
	peer := newRecordingPeer("peer", 2, 2, 3)
	assert.True(t, n.Connect(peer))

	e, err := n.Emit(1.5, wave.Payload{"msg": "hello"})
	require.NoError(t, err)
	n.Topology().Wait()

	assert.Equal(t, core.Coordinate{X: 1, Y: 2, Z: 3, T: 1_000_000}, e.Origin)
	assert.Equal(t, 1.5, e.Amplitude)
	assert.Equal(t, 0.5, e.Frequency)
	assert.GreaterOrEqual(t, e.Phase, 0.0)
	assert.Less(t, e.Phase, 2*math.Pi)
	assert.Equal(t, "hello", e.Payload["msg"])

	assert.Equal(t, []*wave.Emission{e}, n.Emissions())
	assert.Equal(t, []*wave.Emission{e}, peer.Emissions())

	_, err = n.Emit(math.Inf(1), nil)
	assert.True(t, errors.Is(err, core.ErrInvalidAmplitude))
}

func TestNode_EmitDeliveryFailure(t *testing.T) {
	n := newTestNode(t, newMockClock())
	peer := newRecordingPeer("down", 1, 0, 0)
	peer.err = core.ErrPeerUnreachableCause("down", errors.New("connection refused"))
	n.Connect(peer)

	e, err := n.Emit(1, nil)
	require.NoError(t, err)
	n.Topology().Wait()

	assert.NotNil(t, e)
	assert.Empty(t, peer.Emissions())
}

func TestNode_ReceiveCascades(t *testing.T) {
	tests := []struct {
		name      string
		amplitude float64
		cascade   bool
	}{
		{name: "strong interference", amplitude: 10, cascade: true},
		{name: "below threshold", amplitude: 2, cascade: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockClock()
			n := newTestNode(t, mock)
			peer := newRecordingPeer("peer", 1, 0, 0)
			n.Connect(peer)

			// Same position, one second earlier, frequency 0: the field
			// at the receiver is almost exactly the amplitude.
			parent := wave.New(core.Coordinate{T: 999_999}, tt.amplitude, 0, 0, wave.Payload{"k": "v"})
			n.Receive(parent)
			n.Topology().Wait()

			if !tt.cascade {
				assert.Empty(t, peer.Emissions())
				assert.Len(t, n.Emissions(), 1)
				return
			}

			got := peer.Emissions()
			require.Len(t, got, 1)
			child := got[0]
			assert.InDelta(t, tt.amplitude*0.8, child.Amplitude, 1e-12)
			assert.Equal(t, parent.ID, child.CascadedFrom())
			assert.Equal(t, parent.ID, child.Root())
			assert.Equal(t, 1, child.Hops())
			assert.Equal(t, "v", child.Payload["k"])
			assert.Equal(t, 0.5, child.Frequency)
			assert.Len(t, n.Emissions(), 2)
		})
	}
}

func TestNode_ReceiveDropsDuplicates(t *testing.T) {
	reg := newTestMetrics(t)
	n := newTestNode(t, newMockClock(), WithMetrics(reg))
	peer := newRecordingPeer("peer", 1, 0, 0)
	n.Connect(peer)

	parent := wave.New(core.Coordinate{T: 999_999}, 10, 0, 0, nil)
	n.Receive(parent)
	n.Receive(parent)
	n.Topology().Wait()

	assert.Len(t, n.Emissions(), 2, "parent and one cascade")
	assert.Len(t, peer.Emissions(), 1)
}

func TestNode_CascadeGuards(t *testing.T) {
	config := DefaultConfig()
	config.MaxHops = 3

	tests := []struct {
		name   string
		parent func(n *Node) *wave.Emission
		reason string
	}{
		{
			name: "hop limit",
			parent: func(*Node) *wave.Emission {
				return wave.New(core.Coordinate{X: 1}, 5, 1, 0, wave.Payload{wave.KeyHops: 3, wave.KeyRoot: "abc"})
			},
			reason: metrics.ReasonHops,
		},
		{
			name: "hop limit from json",
			parent: func(*Node) *wave.Emission {
				return wave.New(core.Coordinate{X: 1}, 5, 1, 0, wave.Payload{wave.KeyHops: float64(4)})
			},
			reason: metrics.ReasonHops,
		},
		{
			name: "amplitude floor",
			parent: func(*Node) *wave.Emission {
				return wave.New(core.Coordinate{X: 1}, 0.05, 1, 0, nil)
			},
			reason: metrics.ReasonFloor,
		},
		{
			name: "own lineage",
			parent: func(n *Node) *wave.Emission {
				e, err := n.Emit(5, nil)
				require.NoError(t, err)
				return e
			},
			reason: metrics.ReasonLineage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNode(t, newMockClock(), WithConfig(config))
			_, err := n.Cascade(tt.parent(n))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrCascadeSuppressed))

			var coded *core.Error
			require.True(t, errors.As(err, &coded))
			assert.Equal(t, tt.reason, coded.Context["reason"])
		})
	}
}

func TestNode_CascadeLineageOnce(t *testing.T) {
	n := newTestNode(t, newMockClock())
	parent := wave.New(core.Coordinate{X: 1, T: 10}, 5, 1, 0, nil)

	first, err := n.Cascade(parent)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Hops())

	// A later link of the same lineage is still suppressed.
	grandchild := wave.Cascade(first, core.Coordinate{X: 2, T: 11}, 1, 0)
	_, err = n.Cascade(grandchild)
	assert.True(t, errors.Is(err, core.ErrCascadeSuppressed))
}

func TestNode_Observe(t *testing.T) {
	mock := newMockClock()
	topo := NewTopology()
	observer := newTestNode(t, mock, WithTopology(topo), WithID("observer"))
	near := newTestNode(t, mock, WithTopology(topo), WithID("near"), WithPosition(1, 0, 0), WithIdentity(0.25))
	far := newTestNode(t, mock, WithTopology(topo), WithID("far"), WithPosition(8, 0, 0), WithIdentity(0.75))
	observer.Connect(near)
	observer.Connect(far)

	_, err := near.Emit(1, nil)
	require.NoError(t, err)
	_, err = far.Emit(1, nil)
	require.NoError(t, err)
	topo.Wait()

	mock.Add(10 * time.Second)
	got := observer.Observe(6)

	require.Len(t, got, 1)
	want := wave.Superpose(near.Emissions(), observer.Position().At(1_000_010), observer.config.Field)
	assert.InDelta(t, want, got[0.25], 1e-12)
	assert.NotZero(t, got[0.25])
	assert.Equal(t, got, observer.Field())

	assert.Len(t, observer.Observe(20), 2)
	assert.Len(t, observer.Field(), 2)
}

func TestNode_Heartbeat(t *testing.T) {
	mock := newMockClock()
	n := newTestNode(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Heartbeat(ctx, time.Second) }()

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return len(n.Emissions()) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	for _, e := range n.Emissions() {
		assert.Equal(t, HeartbeatAmplitude, e.Amplitude)
		assert.Equal(t, "heartbeat", e.Payload.Type())
	}
}

func TestNode_Resonant(t *testing.T) {
	n := newTestNode(t, newMockClock(), WithIdentity(0.5))
	n.record(wave.New(core.Coordinate{X: 1}, 1, 0.5, 0, nil))
	n.record(wave.New(core.Coordinate{X: 2}, 1, 0.55, 0, nil))
	n.record(wave.New(core.Coordinate{X: 3}, 1, 0.9, 0, nil))

	got := n.Resonant(0.1)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Clarity)
	assert.InDelta(t, 0.5, got[1].Clarity, 1e-9)
}

func TestNode_Listener(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	n := newTestNode(t, newMockClock(), WithListener(func(e *wave.Emission) {
		mu.Lock()
		seen = append(seen, e.ID)
		mu.Unlock()
	}))

	own, err := n.Emit(1, nil)
	require.NoError(t, err)
	parent := wave.New(core.Coordinate{T: 999_999}, 10, 0, 0, nil)
	n.Receive(parent)
	n.Topology().Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3, "own emission, delivery and its cascade")
	assert.Equal(t, own.ID, seen[0])
	assert.Equal(t, parent.ID, seen[1])
}
