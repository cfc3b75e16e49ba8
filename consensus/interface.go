package consensus

import (
	"errors"

	"github.com/stormzy/iroha/pkg/stream"
	"github.com/stormzy/iroha/types"
)

type (
	// HashGate is the fingerprint-level agreement primitive. Vote submits a
	// hash together with the cluster order of peers that must agree on it;
	// results arrive asynchronously on the Outcomes stream.
	//
	// Implementations must never publish an outcome synchronously from
	// within Vote: callers may hold locks across the call.
	HashGate interface {
		Vote(hash Hash, order ClusterOrder)
		Outcomes() *stream.Subject[AgreementResult]
	}

	// PeerOrderer produces the ordered set of peers participating in
	// agreement for a fingerprint. A false return means agreement cannot
	// proceed for this hash.
	PeerOrderer interface {
		GetOrdering(hash Hash) (ClusterOrder, bool)
	}

	// VoteMessage is a single peer's vote as seen by the agreement layer.
	VoteMessage struct {
		Hash Hash
	}

	// AgreementResult is the raw outcome of hash agreement: a commit or a
	// reject, carrying the votes that produced it.
	AgreementResult struct {
		Commit bool
		Votes  []VoteMessage
	}
)

// ClusterOrder is a non-empty ordered list of peers participating in one
// instance of hash agreement.
type ClusterOrder struct {
	peers []types.Peer
}

var ErrEmptyClusterOrder = errors.New("cluster order requires at least one peer")

func NewClusterOrder(peers []types.Peer) (ClusterOrder, error) {
	if len(peers) == 0 {
		return ClusterOrder{}, ErrEmptyClusterOrder
	}
	return ClusterOrder{peers: peers}, nil
}

// Peers returns the participants in order. Callers must not mutate the
// returned slice.
func (c ClusterOrder) Peers() []types.Peer {
	return c.peers
}

// Leader returns the first peer of the order.
func (c ClusterOrder) Leader() types.Peer {
	return c.peers[0]
}

func (c ClusterOrder) Size() int {
	return len(c.peers)
}
