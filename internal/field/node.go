// Package field propagates emissions between nodes. Each node keeps a log
// of the emissions it has seen, evaluates the superposed field at its own
// position and re-emits (cascades) when the local field interferes
// strongly.
package field

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nmxmxh/dmct/internal/core"
	"github.com/nmxmxh/dmct/internal/metrics"
	"github.com/nmxmxh/dmct/internal/wave"
)

// HeartbeatAmplitude is the amplitude of each heartbeat pulse.
const HeartbeatAmplitude = 0.5

// Node is a participant in the propagation field. It is safe for
// concurrent use.
type Node struct {
	id       string
	position core.Coordinate
	identity float64

	config   Config
	topology *Topology
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
	guard    *cascadeGuard
	listener func(*wave.Emission)

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.RWMutex
	log   []*wave.Emission
	field map[float64]float64
}

// Option configures a Node.
type Option func(*nodeOptions)

type nodeOptions struct {
	id       string
	position *core.Coordinate
	identity *float64
	config   Config
	topology *Topology
	rng      *rand.Rand
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
	listener func(*wave.Emission)
}

// WithID overrides the generated node id.
func WithID(id string) Option {
	return func(o *nodeOptions) { o.id = id }
}

// WithPosition places the node. The T component is ignored.
func WithPosition(x, y, z float64) Option {
	return func(o *nodeOptions) { o.position = &core.Coordinate{X: x, Y: y, Z: z} }
}

// WithIdentity fixes the node frequency.
func WithIdentity(frequency float64) Option {
	return func(o *nodeOptions) { o.identity = &frequency }
}

func WithConfig(config Config) Option {
	return func(o *nodeOptions) { o.config = config }
}

// WithTopology attaches the node to a shared edge set.
func WithTopology(t *Topology) Option {
	return func(o *nodeOptions) { o.topology = t }
}

// WithRand sets the random source used for placement, identity and phases.
func WithRand(rng *rand.Rand) Option {
	return func(o *nodeOptions) { o.rng = rng }
}

func WithClock(c clock.Clock) Option {
	return func(o *nodeOptions) { o.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *nodeOptions) { o.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *nodeOptions) { o.logger = logger }
}

// WithListener registers fn to be called with every emission the node
// logs: its own, cascades and deliveries. fn must not block.
func WithListener(fn func(*wave.Emission)) Option {
	return func(o *nodeOptions) { o.listener = fn }
}

// NewNode creates a node. Unset position and identity are drawn from the
// random source: position uniformly in [-10, 10) per axis, identity in
// [0, 1).
func NewNode(opts ...Option) (*Node, error) {
	o := nodeOptions{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.topology == nil {
		o.topology = NewTopology()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.id == "" {
		o.id = core.NewIdentity().ID
	}

	var position core.Coordinate
	if o.position != nil {
		position = *o.position
	} else {
		position = core.Coordinate{
			X: o.rng.Float64()*20 - 10,
			Y: o.rng.Float64()*20 - 10,
			Z: o.rng.Float64()*20 - 10,
		}
	}
	if err := position.Validate(); err != nil {
		return nil, err
	}

	identity := 0.0
	if o.identity != nil {
		identity = *o.identity
	} else {
		identity = o.rng.Float64()
	}
	if !core.Finite(identity) {
		return nil, core.ErrInvalidAmplitudeValue(identity).WithContext("field", "identity")
	}

	n := &Node{
		id:       o.id,
		position: position,
		identity: identity,
		config:   o.config,
		topology: o.topology,
		clock:    o.clock,
		metrics:  o.metrics,
		logger:   o.logger.With("component", "field", "node_id", core.ShortID(o.id)),
		guard:    newCascadeGuard(o.config),
		listener: o.listener,
		rng:      o.rng,
		field:    make(map[float64]float64),
	}
	n.topology.Register(n)
	return n, nil
}

func (n *Node) ID() string                { return n.id }
func (n *Node) Position() core.Coordinate { return n.position }
func (n *Node) Identity() float64         { return n.identity }
func (n *Node) Topology() *Topology       { return n.topology }

// Emissions returns a copy of the node's log.
func (n *Node) Emissions() []*wave.Emission {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*wave.Emission, len(n.log))
	copy(out, n.log)
	return out
}

// Field returns a copy of the field accumulator, keyed by neighbour
// identity.
func (n *Node) Field() map[float64]float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[float64]float64, len(n.field))
	for k, v := range n.field {
		out[k] = v
	}
	return out
}

// Neighbors returns the peers sharing an edge with n.
func (n *Node) Neighbors() []Peer {
	return n.topology.Neighbors(n.id)
}

// Connect links n and other. It is idempotent and reports whether a new
// edge was created.
func (n *Node) Connect(other Peer) bool {
	return n.topology.Connect(n, other)
}

// now returns the current instant in seconds.
func (n *Node) now() float64 {
	return float64(n.clock.Now().UnixNano()) / float64(time.Second)
}

func (n *Node) phase() float64 {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64() * 2 * math.Pi
}

// Emit creates an emission at the node's position and the current instant,
// appends it to the log and hands it to every neighbour asynchronously.
func (n *Node) Emit(amplitude float64, payload wave.Payload) (*wave.Emission, error) {
	if !core.Finite(amplitude) {
		return nil, core.ErrInvalidAmplitudeValue(amplitude).WithContext("node_id", n.id)
	}

	e := wave.New(n.position.At(n.now()), amplitude, n.identity, n.phase(), payload.Clone())
	n.guard.firstDelivery(e.ID)
	n.guard.claimLineage(e.Root())

	n.record(e)
	n.metrics.IncEmissions()
	n.broadcast(e)
	return e, nil
}

// Heartbeat emits a heartbeat pulse on every tick until ctx is done.
func (n *Node) Heartbeat(ctx context.Context, interval time.Duration) error {
	ticker := n.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := n.Emit(HeartbeatAmplitude, wave.Payload{wave.KeyType: "heartbeat"}); err != nil {
				n.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// Observe samples, for every neighbour within radius, the sum of that
// neighbour's emission fields at n's position now. Samples replace earlier
// ones in the field accumulator.
func (n *Node) Observe(radius float64) map[float64]float64 {
	at := n.position.At(n.now())
	out := make(map[float64]float64)

	for _, p := range n.Neighbors() {
		if core.Distance(n.position, p.Position()) > radius {
			continue
		}
		out[p.Identity()] = wave.Superpose(p.Emissions(), at, n.config.Field)
	}

	n.mu.Lock()
	for k, v := range out {
		n.field[k] = v
	}
	n.mu.Unlock()

	return out
}

// Deliver implements Peer for in-process delivery.
func (n *Node) Deliver(ctx context.Context, e *wave.Emission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.Receive(e)
	return nil
}

// Receive ingests an emission from a neighbour. Repeated deliveries are
// dropped. When the local field exceeds the interference threshold relative
// to the local average, the emission is cascaded.
func (n *Node) Receive(e *wave.Emission) {
	if !n.guard.firstDelivery(e.ID) {
		n.metrics.IncDuplicates()
		return
	}

	n.record(e)
	n.metrics.IncReceived()

	local := n.LocalField()
	average := n.localAverage()
	if math.Abs(local) <= n.config.InterferenceThreshold*average {
		return
	}

	if _, err := n.Cascade(e); err != nil {
		n.logger.Debug("cascade suppressed", "emission_id", e.ID, "error", err)
	}
}

// LocalField is the superposed field of the node's log at its position now.
func (n *Node) LocalField() float64 {
	return wave.Superpose(n.Emissions(), n.position.At(n.now()), n.config.Field)
}

func (n *Node) localAverage() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(n.field) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, v := range n.field {
		sum += math.Abs(v)
	}
	return sum / float64(len(n.field))
}

// Cascade re-emits parent at 80% amplitude with provenance in the payload.
// It fails with a cascade-suppressed error when the hop limit, the
// amplitude floor or the lineage filter rules it out.
func (n *Node) Cascade(parent *wave.Emission) (*wave.Emission, error) {
	if reason := n.guard.admit(parent); reason != "" {
		n.metrics.IncSuppressed(reason)
		return nil, core.ErrCascadeSuppressedBy(reason, parent.ID)
	}

	e := wave.Cascade(parent, n.position.At(n.now()), n.identity, n.phase())
	n.guard.firstDelivery(e.ID)

	n.record(e)
	n.metrics.IncEmissions()
	n.metrics.IncCascades()
	n.logger.Debug("cascading", "parent_id", parent.ID, "emission_id", e.ID, "hops", e.Hops())

	n.broadcast(e)
	return e, nil
}

// Resonant lists logged emissions whose frequency lies within width of the
// node identity.
func (n *Node) Resonant(width float64) []wave.Resonant {
	return wave.Filter(n.Emissions(), n.identity, width)
}

func (n *Node) record(e *wave.Emission) {
	n.mu.Lock()
	n.log = append(n.log, e)
	n.mu.Unlock()

	if n.listener != nil {
		n.listener(e)
	}
}

// broadcast delivers e to every neighbour, one goroutine each. Failures are
// logged and counted only.
func (n *Node) broadcast(e *wave.Emission) {
	for _, p := range n.Neighbors() {
		n.topology.inflight.Add(1)
		go func(p Peer) {
			defer n.topology.inflight.Done()

			ctx, cancel := context.WithTimeout(context.Background(), n.config.DeliveryTimeout)
			defer cancel()

			if err := p.Deliver(ctx, e); err != nil {
				n.metrics.IncDeliveryFailures()
				n.logger.Warn("delivery failed",
					"peer_id", core.ShortID(p.ID()),
					"emission_id", e.ID,
					"error", err)
			}
		}(p)
	}
}
