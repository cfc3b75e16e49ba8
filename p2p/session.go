package p2p

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/stormzy/iroha/ordering"
	"github.com/stormzy/iroha/types"
)

// ProtocolID identifies the on-demand ordering protocol. Both sides of a
// session must speak the same version.
const ProtocolID = protocol.ID("/iroha/ordering/1.0.0")

// SessionFactory creates libp2p backed sessions to remote ordering services.
type SessionFactory struct {
	host host.Host
}

var _ ordering.Factory = (*SessionFactory)(nil)

func NewSessionFactory(host host.Host) *SessionFactory {
	return &SessionFactory{host: host}
}

// Create builds a session to the peer. The peer's ID must be a valid libp2p
// peer id; its address is expected to already be in the host's peerstore or
// dialable through the network.
func (f *SessionFactory) Create(to types.Peer) (ordering.Notification, error) {
	id, err := peer.Decode(to.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid peer id %q: %w", to.ID, err)
	}
	return &session{host: f.host, peer: id}, nil
}

// session is a stream-per-request client. It keeps no connection state of
// its own: libp2p reuses the underlying connection across streams.
type session struct {
	host host.Host
	peer peer.ID
}

func (s *session) OnTransactions(ctx context.Context, round types.Round, txs []types.Transaction) error {
	stream, err := s.host.NewStream(ctx, s.peer, ProtocolID)
	if err != nil {
		return fmt.Errorf("opening stream to %s: %w", s.peer, err)
	}
	defer stream.Close()
	applyDeadline(ctx, stream)

	req := request{
		Type:   msgTransactions,
		Height: round.Height,
		Reject: round.Reject,
		Txs:    transactionsToWire(txs),
	}
	if err := encode(stream, req); err != nil {
		stream.Reset()
		return fmt.Errorf("sending transactions to %s: %w", s.peer, err)
	}
	if err := stream.CloseWrite(); err != nil {
		stream.Reset()
		return err
	}

	var reply ack
	if err := decode(stream, &reply); err != nil {
		stream.Reset()
		return fmt.Errorf("confirming transactions with %s: %w", s.peer, err)
	}
	if !reply.OK {
		return fmt.Errorf("peer %s refused transactions", s.peer)
	}
	return nil
}

func (s *session) RequestProposal(ctx context.Context, round types.Round) (*types.Proposal, error) {
	stream, err := s.host.NewStream(ctx, s.peer, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("opening stream to %s: %w", s.peer, err)
	}
	defer stream.Close()
	applyDeadline(ctx, stream)

	req := request{
		Type:   msgRequestProposal,
		Height: round.Height,
		Reject: round.Reject,
	}
	if err := encode(stream, req); err != nil {
		stream.Reset()
		return nil, fmt.Errorf("requesting proposal from %s: %w", s.peer, err)
	}
	if err := stream.CloseWrite(); err != nil {
		stream.Reset()
		return nil, err
	}

	var resp response
	if err := decode(stream, &resp); err != nil {
		stream.Reset()
		return nil, fmt.Errorf("reading proposal from %s: %w", s.peer, err)
	}
	if !resp.Found {
		return nil, nil
	}
	return proposalFromWire(resp), nil
}

func applyDeadline(ctx context.Context, stream network.Stream) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}
}
