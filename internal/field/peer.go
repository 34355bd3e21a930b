package field

import (
	"context"

	"github.com/nmxmxh/dmct/internal/core"
	"github.com/nmxmxh/dmct/internal/wave"
)

// Peer is anything a node can hold an edge to: another in-process Node, or
// a remote node reached through a transport.
type Peer interface {
	ID() string
	Position() core.Coordinate
	Identity() float64
	// Emissions returns the emissions known to originate from or have
	// passed through the peer.
	Emissions() []*wave.Emission
	// Deliver hands an emission to the peer. Errors are best effort and
	// never surface to the emitter.
	Deliver(ctx context.Context, e *wave.Emission) error
}
