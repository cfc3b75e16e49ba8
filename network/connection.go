package network

import (
	"context"
	"errors"

	"github.com/algorand/go-deadlock"
	"github.com/rs/zerolog"

	"github.com/stormzy/iroha/ordering"
	"github.com/stormzy/iroha/pkg/stream"
	"github.com/stormzy/iroha/types"
)

// Slot names the logical roles peers play for the current round.
type Slot uint8

const (
	// Issuer is the ordering service proposals are requested from.
	Issuer Slot = iota
	// PreviousConsumer ordered the round that was just resolved. It is
	// tracked in the peer set for bookkeeping but holds no session: a
	// transaction sent there could no longer reach an open round.
	PreviousConsumer
	// CurrentRoundRejectConsumer orders the further reject round within the
	// current height.
	CurrentRoundRejectConsumer
	// NextRoundRejectConsumer orders the reject round at the next height.
	NextRoundRejectConsumer
	// NextRoundCommitConsumer orders the commit round two heights ahead.
	NextRoundCommitConsumer
)

func (s Slot) String() string {
	switch s {
	case Issuer:
		return "issuer"
	case PreviousConsumer:
		return "previous_consumer"
	case CurrentRoundRejectConsumer:
		return "current_round_reject_consumer"
	case NextRoundRejectConsumer:
		return "next_round_reject_consumer"
	case NextRoundCommitConsumer:
		return "next_round_commit_consumer"
	default:
		return "unknown"
	}
}

// PeerSet assigns a peer to every slot. The same peer may fill several
// slots, as is always the case in small networks.
type PeerSet struct {
	Issuer                     types.Peer
	PreviousConsumer           types.Peer
	CurrentRoundRejectConsumer types.Peer
	NextRoundRejectConsumer    types.Peer
	NextRoundCommitConsumer    types.Peer
}

// connections holds the four live sessions: the issuer plus the three
// forward-round consumers.
type connections struct {
	issuer             ordering.Notification
	currentRoundReject ordering.Notification
	nextRoundReject    ordering.Notification
	nextRoundCommit    ordering.Notification
}

// ConnectionManager routes ordering traffic to the peers responsible for the
// current and plausible future rounds. Transactions published at round
// (h, r) fan out to three consumers, addressed to the three rounds that may
// be built next; proposals are requested from the issuer only.
//
// The local peer cannot know which future round will actually be built, so
// publishing to all three guarantees at-most-one-round-late delivery without
// a feedback loop.
type ConnectionManager struct {
	factory ordering.Factory

	// mtx guards conns. Peer set updates rebuild all four sessions under
	// the write lock; RPCs run under the read lock, so an in-flight call
	// completes against the sessions of the set it started with.
	mtx    deadlock.RWMutex
	conns  connections
	cancel func()

	logger zerolog.Logger
}

// ManagerOption configures a ConnectionManager.
type ManagerOption func(*ConnectionManager)

func WithManagerLogger(logger zerolog.Logger) ManagerOption {
	return func(cm *ConnectionManager) { cm.logger = logger }
}

// NewConnectionManager creates sessions for the initial peer set and rebuilds
// them on every update published to updates.
func NewConnectionManager(
	factory ordering.Factory,
	initial PeerSet,
	updates *stream.Subject[PeerSet],
	opts ...ManagerOption,
) *ConnectionManager {
	cm := &ConnectionManager{
		factory: factory,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cm)
	}
	cm.cancel = updates.Subscribe(func(peers PeerSet) {
		cm.mtx.Lock()
		defer cm.mtx.Unlock()
		cm.rebuild(peers)
	})
	// the initial set is applied directly rather than replayed through the
	// subject, which would self-deadlock under the write lock
	cm.rebuild(initial)
	return cm
}

// OnTransactions fans the transactions out to the three consumer slots,
// each addressed to the future round that peer would order. Per-session
// failures are logged and dropped: the ordering service of an unreachable
// peer simply never sees the transactions, and the next sub-round
// re-propagates them.
func (cm *ConnectionManager) OnTransactions(ctx context.Context, round types.Round, txs []types.Transaction) error {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()

	targets := []struct {
		slot    Slot
		round   types.Round
		session ordering.Notification
	}{
		{CurrentRoundRejectConsumer, types.Round{Height: round.Height, Reject: round.Reject + 2}, cm.conns.currentRoundReject},
		{NextRoundRejectConsumer, types.Round{Height: round.Height + 1, Reject: types.FirstReject + 1}, cm.conns.nextRoundReject},
		{NextRoundCommitConsumer, types.Round{Height: round.Height + 2, Reject: types.FirstReject}, cm.conns.nextRoundCommit},
	}
	for _, target := range targets {
		if err := target.session.OnTransactions(ctx, target.round, txs); err != nil {
			cm.logger.Warn().
				Err(err).
				Stringer("slot", target.slot).
				Stringer("round", target.round).
				Msg("transaction fan-out failed")
		}
	}
	return nil
}

// RequestProposal forwards the request to the issuer session.
func (cm *ConnectionManager) RequestProposal(ctx context.Context, round types.Round) (*types.Proposal, error) {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()

	return cm.conns.issuer.RequestProposal(ctx, round)
}

// Close detaches the manager from the peer set updates.
func (cm *ConnectionManager) Close() {
	cm.cancel()
}

// rebuild creates the four sessions for the peer set. Requires the write
// lock. A slot whose session cannot be created gets a placeholder that fails
// every call until the next update.
func (cm *ConnectionManager) rebuild(peers PeerSet) {
	create := func(slot Slot, peer types.Peer) ordering.Notification {
		session, err := cm.factory.Create(peer)
		if err != nil {
			cm.logger.Error().
				Err(err).
				Stringer("slot", slot).
				Stringer("peer", peer).
				Msg("session creation failed")
			return unavailableSession{peer: peer}
		}
		return session
	}

	cm.conns = connections{
		issuer:             create(Issuer, peers.Issuer),
		currentRoundReject: create(CurrentRoundRejectConsumer, peers.CurrentRoundRejectConsumer),
		nextRoundReject:    create(NextRoundRejectConsumer, peers.NextRoundRejectConsumer),
		nextRoundCommit:    create(NextRoundCommitConsumer, peers.NextRoundCommitConsumer),
	}
	cm.logger.Info().Stringer("issuer", peers.Issuer).Msg("sessions rebuilt")
}

// unavailableSession stands in for a session that could not be created.
type unavailableSession struct {
	peer types.Peer
}

var errSessionUnavailable = errors.New("session unavailable")

func (s unavailableSession) OnTransactions(context.Context, types.Round, []types.Transaction) error {
	return errSessionUnavailable
}

func (s unavailableSession) RequestProposal(context.Context, types.Round) (*types.Proposal, error) {
	return nil, errSessionUnavailable
}
