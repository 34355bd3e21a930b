package field

import (
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

const (
	JoinAmplitude    = 2.0
	GenesisAmplitude = 3.0
	GenesisRadius    = 5.0
	GenesisNodes     = 7
	GenesisMessage   = "Let there be trust"

	snapshotEmissions = 10
)

// Network owns a population of nodes and the topology linking them.
type Network struct {
	config   Config
	topology *Topology
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger // handed to nodes
	log      *slog.Logger
	listener func(*wave.Emission)
	epoch    float64

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.RWMutex
	nodes []*Node
}

// NetworkOption configures a Network.
type NetworkOption func(*Network)

func WithNetworkConfig(config Config) NetworkOption {
	return func(n *Network) { n.config = config }
}

func WithNetworkClock(c clock.Clock) NetworkOption {
	return func(n *Network) { n.clock = c }
}

// WithNetworkRand seeds the source shared by nodes created through
// Network.NewNode.
func WithNetworkRand(rng *rand.Rand) NetworkOption {
	return func(n *Network) { n.rng = rng }
}

func WithNetworkMetrics(m *metrics.Metrics) NetworkOption {
	return func(n *Network) { n.metrics = m }
}

func WithNetworkLogger(logger *slog.Logger) NetworkOption {
	return func(n *Network) { n.logger = logger }
}

// WithNetworkListener installs fn on every node created through
// Network.NewNode. See WithListener.
func WithNetworkListener(fn func(*wave.Emission)) NetworkOption {
	return func(n *Network) { n.listener = fn }
}

func NewNetwork(opts ...NetworkOption) *Network {
	n := &Network{
		config:   DefaultConfig(),
		topology: NewTopology(),
		clock:    clock.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.rng == nil {
		n.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	n.log = n.logger.With("component", "network")
	n.epoch = float64(n.clock.Now().UnixNano()) / float64(time.Second)
	return n
}

func (n *Network) Topology() *Topology { return n.topology }
func (n *Network) Epoch() float64      { return n.epoch }

// NewNode creates a node sharing the network's topology, clock, metrics and
// configuration. The node is not added; call AddNode.
func (n *Network) NewNode(opts ...Option) (*Node, error) {
	n.rngMu.Lock()
	seed := n.rng.Int63()
	n.rngMu.Unlock()

	base := []Option{
		WithConfig(n.config),
		WithTopology(n.topology),
		WithClock(n.clock),
		WithMetrics(n.metrics),
		WithLogger(n.logger),
		WithRand(rand.New(rand.NewSource(seed))),
		WithListener(n.listener),
	}
	return NewNode(append(base, opts...)...)
}

// AddNode registers node, links it to every member closer than twice the
// neighbour radius and emits the join announcement.
func (n *Network) AddNode(node *Node) (*wave.Emission, error) {
	if node.topology != n.topology {
		return nil, core.NewError(core.ErrCodeTopologyMismatch, "node was created on a different topology").
			WithContext("node_id", node.id)
	}

	n.mu.Lock()
	for _, existing := range n.nodes {
		if existing.id == node.id {
			n.mu.Unlock()
			return nil, core.NewError(core.ErrCodeDuplicateNode, "node already added").
				WithContext("node_id", node.id)
		}
	}
	members := append([]*Node(nil), n.nodes...)
	n.nodes = append(n.nodes, node)
	n.mu.Unlock()

	n.topology.Register(node)
	radius := n.config.ConnectRadius()
	for _, other := range members {
		if core.Distance(node.position, other.position) < radius {
			node.Connect(other)
		}
	}

	n.log.Debug("node joined",
		"node_id", core.ShortID(node.id),
		"neighbors", n.topology.Degree(node.id))

	return node.Emit(JoinAmplitude, wave.Payload{wave.KeyType: "join", "epoch": n.epoch})
}

// RemoveNode severs every edge of the node and drops it from the network.
// It reports whether the node was a member; repeated calls are no-ops.
func (n *Network) RemoveNode(id string) bool {
	n.mu.Lock()
	idx := -1
	for i, node := range n.nodes {
		if node.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		n.mu.Unlock()
		return false
	}
	n.nodes = append(n.nodes[:idx], n.nodes[idx+1:]...)
	n.mu.Unlock()

	severed := n.topology.Remove(id)
	n.log.Debug("node left", "node_id", core.ShortID(id), "severed", len(severed))
	return true
}

// Node looks up a member by id.
func (n *Network) Node(id string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, node := range n.nodes {
		if node.id == id {
			return node, true
		}
	}
	return nil, false
}

// Nodes returns the members in join order.
func (n *Network) Nodes() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*Node(nil), n.nodes...)
}

// Wait blocks until all in-flight deliveries and their cascades finish.
func (n *Network) Wait() {
	n.topology.Wait()
}

// Genesis founds the network with count nodes on a ring of radius 5 in the
// z=0 plane and emits the genesis ripple from the first one.
func (n *Network) Genesis(count int) (*wave.Emission, error) {
	if count <= 0 {
		count = GenesisNodes
	}

	var first *Node
	for i := 0; i < count; i++ {
		angle := float64(i) * 2 * math.Pi / float64(count)
		node, err := n.NewNode(WithPosition(GenesisRadius*math.Cos(angle), GenesisRadius*math.Sin(angle), 0))
		if err != nil {
			return nil, err
		}
		if _, err := n.AddNode(node); err != nil {
			return nil, err
		}
		if first == nil {
			first = node
		}
	}

	return first.Emit(GenesisAmplitude, wave.Payload{wave.KeyType: "genesis", "message": GenesisMessage})
}

// NodeState is one node's entry in a Snapshot.
type NodeState struct {
	ID        string          `json:"id"`
	Identity  float64         `json:"identity"`
	Position  [3]float64      `json:"position"`
	Field     float64         `json:"field"`
	Neighbors int             `json:"neighbors"`
	Emissions []EmissionState `json:"emissions"`
}

// EmissionState summarises a recent emission.
type EmissionState struct {
	ID        string     `json:"id"`
	Origin    [3]float64 `json:"origin"`
	Amplitude float64    `json:"amplitude"`
	Age       float64    `json:"age"`
}

// Snapshot is a point-in-time view of the network.
type Snapshot struct {
	Time  float64     `json:"time"` // Seconds since the network epoch
	Nodes []NodeState `json:"nodes"`
}

// Snapshot reports every node with the sum of its field accumulator, its
// degree and its last ten emissions.
func (n *Network) Snapshot() Snapshot {
	now := float64(n.clock.Now().UnixNano()) / float64(time.Second)
	snap := Snapshot{Time: now - n.epoch}

	for _, node := range n.Nodes() {
		sum := 0.0
		for _, v := range node.Field() {
			sum += v
		}

		log := node.Emissions()
		if len(log) > snapshotEmissions {
			log = log[len(log)-snapshotEmissions:]
		}
		recent := make([]EmissionState, 0, len(log))
		for _, e := range log {
			recent = append(recent, EmissionState{
				ID:        e.ID,
				Origin:    [3]float64{e.Origin.X, e.Origin.Y, e.Origin.Z},
				Amplitude: e.Amplitude,
				Age:       now - e.Origin.T,
			})
		}

		snap.Nodes = append(snap.Nodes, NodeState{
			ID:        node.id,
			Identity:  node.identity,
			Position:  [3]float64{node.position.X, node.position.Y, node.position.Z},
			Field:     sum,
			Neighbors: n.topology.Degree(node.id),
			Emissions: recent,
		})
	}

	return snap
}
