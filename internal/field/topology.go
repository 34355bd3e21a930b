package field

import (
	"sort"
	"sync"
)

type edgeKey struct {
	a, b string
}

func keyFor(x, y string) edgeKey {
	if x > y {
		x, y = y, x
	}
	return edgeKey{a: x, b: y}
}

// Topology is the single undirected edge set shared by a population of
// peers. Both endpoints read the same edge, so adjacency cannot diverge.
type Topology struct {
	mu    sync.RWMutex
	peers map[string]Peer
	edges map[edgeKey]struct{}

	// In-flight deliveries across every node on this topology.
	inflight sync.WaitGroup
}

func NewTopology() *Topology {
	return &Topology{
		peers: make(map[string]Peer),
		edges: make(map[edgeKey]struct{}),
	}
}

// Register makes p addressable without connecting it.
func (t *Topology) Register(p Peer) {
	t.mu.Lock()
	t.peers[p.ID()] = p
	t.mu.Unlock()
}

// Connect installs the edge a-b. It reports false for self edges and for
// edges that already exist.
func (t *Topology) Connect(a, b Peer) bool {
	if a.ID() == b.ID() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.peers[a.ID()] = a
	t.peers[b.ID()] = b

	k := keyFor(a.ID(), b.ID())
	if _, ok := t.edges[k]; ok {
		return false
	}
	t.edges[k] = struct{}{}
	return true
}

// Disconnect removes the edge a-b if present.
func (t *Topology) Disconnect(a, b string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := keyFor(a, b)
	if _, ok := t.edges[k]; !ok {
		return false
	}
	delete(t.edges, k)
	return true
}

// Remove severs every edge of id and forgets the peer. It returns the ids
// that were connected to it and is idempotent.
func (t *Topology) Remove(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var severed []string
	for k := range t.edges {
		switch id {
		case k.a:
			severed = append(severed, k.b)
		case k.b:
			severed = append(severed, k.a)
		default:
			continue
		}
		delete(t.edges, k)
	}
	delete(t.peers, id)

	sort.Strings(severed)
	return severed
}

// Connected reports whether the edge a-b exists.
func (t *Topology) Connected(a, b string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.edges[keyFor(a, b)]
	return ok
}

// Neighbors returns the peers sharing an edge with id, ordered by id.
func (t *Topology) Neighbors(id string) []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Peer
	for k := range t.edges {
		var other string
		switch id {
		case k.a:
			other = k.b
		case k.b:
			other = k.a
		default:
			continue
		}
		if p, ok := t.peers[other]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Degree is the number of edges touching id.
func (t *Topology) Degree(id string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for k := range t.edges {
		if k.a == id || k.b == id {
			n++
		}
	}
	return n
}

// EdgeCount is the number of undirected edges.
func (t *Topology) EdgeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.edges)
}

// Wait blocks until every delivery started on this topology, including the
// cascades they trigger, has finished.
func (t *Topology) Wait() {
	t.inflight.Wait()
}
