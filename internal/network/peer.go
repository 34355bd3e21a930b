package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	libp2p_host "github.com/libp2p/go-libp2p/core/host"
	peer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/sony/gobreaker"

	"github.com/nmxmxh/dmct/internal/core"
	"github.com/nmxmxh/dmct/internal/wave"
)

// RemotePeer is a node in another process, reached over the wave protocol.
// It implements field.Peer.
type RemotePeer struct {
	host    libp2p_host.Host
	pid     peer.ID
	desc    Description
	breaker *gobreaker.CircuitBreaker
	logSize int

	mu  sync.Mutex
	log []*wave.Emission
}

func newRemotePeer(h libp2p_host.Host, pid peer.ID, desc Description, cfg Config) *RemotePeer {
	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &RemotePeer{
		host:    h,
		pid:     pid,
		desc:    desc,
		logSize: cfg.RemoteLogSize,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    pid.String(),
			Timeout: cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		}),
	}
}

func (r *RemotePeer) ID() string                { return r.desc.ID }
func (r *RemotePeer) PeerID() peer.ID           { return r.pid }
func (r *RemotePeer) Position() core.Coordinate { return r.desc.Position }
func (r *RemotePeer) Identity() float64         { return r.desc.Identity }

// Emissions returns what the peer has sent us, oldest first.
func (r *RemotePeer) Emissions() []*wave.Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*wave.Emission(nil), r.log...)
}

func (r *RemotePeer) remember(e *wave.Emission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, e)
	if r.logSize > 0 && len(r.log) > r.logSize {
		r.log = r.log[len(r.log)-r.logSize:]
	}
}

// Deliver sends e over a fresh wave stream and waits for the ack. Once the
// breaker opens, deliveries fail fast until it half-opens again.
func (r *RemotePeer) Deliver(ctx context.Context, e *wave.Emission) error {
	data, err := wave.Encode(e)
	if err != nil {
		return err
	}

	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.send(ctx, data)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return core.ErrCircuitOpenFor(r.desc.ID).WithContext("peer", r.pid.String())
	default:
		return core.ErrPeerUnreachableCause(r.desc.ID, err).WithContext("peer", r.pid.String())
	}
}

func (r *RemotePeer) send(ctx context.Context, data []byte) error {
	s, err := r.host.NewStream(ctx, r.pid, protocol.ID(WaveProtocol))
	if err != nil {
		return err
	}
	defer s.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}
	if _, err := s.Write(data); err != nil {
		s.Reset()
		return err
	}
	if err := s.CloseWrite(); err != nil {
		s.Reset()
		return err
	}

	ack, err := io.ReadAll(io.LimitReader(s, int64(len(ackOK))))
	if err != nil {
		return err
	}
	if string(ack) != ackOK {
		return fmt.Errorf("unexpected ack %q", ack)
	}
	return nil
}

// State reports the breaker state, for diagnostics.
func (r *RemotePeer) State() string {
	return r.breaker.State().String()
}
