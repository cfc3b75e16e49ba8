package ordering

import (
	"context"

	"github.com/stormzy/iroha/types"
)

type (
	// Notification is the contract of a remote ordering service session.
	// The connection manager, the in-process loopback and the libp2p sessions
	// all satisfy it, so the gate does not care how far away the service is.
	Notification interface {
		// OnTransactions delivers a group of transactions targeted at a
		// round. Delivery is best effort: a service that does not accept the
		// round drops the transactions silently and the sender relies on
		// multi-round fan-out for eventual inclusion.
		OnTransactions(ctx context.Context, round types.Round, txs []types.Transaction) error

		// RequestProposal asks for the proposal emitted at the round.
		// A nil proposal with a nil error means none was emitted; transport
		// timeouts are reported as errors and treated the same way by
		// callers.
		RequestProposal(ctx context.Context, round types.Round) (*types.Proposal, error)
	}

	// Factory builds a session to a single peer. The connection manager
	// calls it once per slot on every peer set update.
	Factory interface {
		Create(peer types.Peer) (Notification, error)
	}
)
