package ordering

import (
	"context"
	"time"

	"github.com/algorand/go-deadlock"
	"github.com/rs/zerolog"

	"github.com/stormzy/iroha/consensus"
	"github.com/stormzy/iroha/pkg/stream"
	"github.com/stormzy/iroha/types"
)

type (
	// CollaborationObserver is the slice of the ordering service the gate
	// drives: the round resolution signal.
	CollaborationObserver interface {
		OnCollaborationOutcome(round types.Round)
	}

	// ProposalGate is the agreement adapter the gate votes through.
	ProposalGate interface {
		Vote(vote consensus.Vote) error
		Outcomes() *stream.Subject[consensus.Outcome]
	}
)

// DefaultRequestTimeout bounds a proposal request to the issuer. A timeout
// is a legitimate "no proposal" answer, not an error.
const DefaultRequestTimeout = 5 * time.Second

// Gate is the round state machine between the block pipeline and proposal
// agreement. On every round event it advances the current round, notifies
// the local ordering service, requests the round's proposal from the issuer
// and votes on what it received. Committed proposals are emitted on the
// Proposals stream; rejected rounds advance and vote again.
type Gate struct {
	service      CollaborationObserver
	client       Notification
	proposalGate ProposalGate
	batchFactory types.BatchFactory

	proposals *stream.Subject[*types.Proposal]
	cancels   []func()

	// mtx guards current. Event and outcome handling take the write lock so
	// the notify-request-vote sequence is atomic with respect to round
	// advancement; propagation takes the read lock.
	mtx     deadlock.RWMutex
	current types.Round

	requestTimeout time.Duration
	logger         zerolog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

func WithGateLogger(logger zerolog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

func WithRequestTimeout(timeout time.Duration) GateOption {
	return func(g *Gate) { g.requestTimeout = timeout }
}

func WithBatchFactory(f types.BatchFactory) GateOption {
	return func(g *Gate) { g.batchFactory = f }
}

// NewGate wires the gate between the event stream and the proposal gate.
// service is the local ordering service, client the connection manager (or
// any session standing in for it).
func NewGate(
	service CollaborationObserver,
	client Notification,
	proposalGate ProposalGate,
	events *stream.Subject[RoundEvent],
	initialRound types.Round,
	opts ...GateOption,
) *Gate {
	g := &Gate{
		service:        service,
		client:         client,
		proposalGate:   proposalGate,
		batchFactory:   types.SingletonBatchFactory{},
		proposals:      stream.NewSubject[*types.Proposal](),
		current:        initialRound,
		requestTimeout: DefaultRequestTimeout,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cancels = append(g.cancels,
		events.Subscribe(g.handleEvent),
		proposalGate.Outcomes().Subscribe(g.handleOutcome),
	)
	return g
}

// Proposals is the stream of committed proposals flowing to the downstream
// pipeline.
func (g *Gate) Proposals() *stream.Subject[*types.Proposal] {
	return g.proposals
}

// Round returns the current round.
func (g *Gate) Round() types.Round {
	g.mtx.RLock()
	defer g.mtx.RUnlock()
	return g.current
}

// Close detaches the gate from its event streams.
func (g *Gate) Close() {
	for _, cancel := range g.cancels {
		cancel()
	}
}

// PropagateBatch publishes the batch's transactions for the current round.
// The connection manager fans them out to the consumer peers of the
// plausible future rounds.
func (g *Gate) PropagateBatch(ctx context.Context, batch types.Batch) error {
	g.mtx.RLock()
	defer g.mtx.RUnlock()

	return g.client.OnTransactions(ctx, g.current, batch.Transactions())
}

// PropagateTransaction wraps the transaction in a singleton batch and
// propagates it.
func (g *Gate) PropagateTransaction(ctx context.Context, tx types.Transaction) error {
	return g.PropagateBatch(ctx, g.batchFactory.Wrap(tx))
}

func (g *Gate) handleEvent(event RoundEvent) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if height, ok := event.BlockHeight(); ok {
		// block committed, enter the first round of the new height
		g.current = types.Round{Height: height, Reject: types.FirstReject}
	} else {
		// no block committed, enter the next reject round
		g.current = g.current.NextReject()
	}
	g.logger.Info().Stringer("event", event).Stringer("round", g.current).Msg("round event")

	g.vote()
}

// vote notifies the local ordering service of the new round, requests the
// round's proposal from the issuer and submits the result to agreement.
// Requires the write lock, which keeps the sequence atomic against
// concurrent events.
func (g *Gate) vote() {
	round := g.current

	g.service.OnCollaborationOutcome(round)

	ctx, cancel := context.WithTimeout(context.Background(), g.requestTimeout)
	defer cancel()

	proposal, err := g.client.RequestProposal(ctx, round)
	if err != nil {
		// a request failure is observed as "no proposal"; agreement over
		// reject rounds converges regardless
		g.logger.Warn().Err(err).Stringer("round", round).Msg("proposal request failed")
		proposal = nil
	}

	if err := g.proposalGate.Vote(consensus.Vote{Round: round, Proposal: proposal}); err != nil {
		// no vote was submitted; the round is retried on the next event
		g.logger.Warn().Err(err).Stringer("round", round).Msg("vote not submitted")
	}
}

func (g *Gate) handleOutcome(outcome consensus.Outcome) {
	var committed *types.Proposal

	g.mtx.Lock()
	switch {
	case outcome.Rejected():
		// the round was rejected, move on and vote again
		g.current = outcome.Round().NextReject()
		g.logger.Info().Stringer("round", g.current).Msg("round rejected, voting next")
		g.vote()

	default:
		if proposal, ok := outcome.Proposal(); ok {
			committed = proposal
			break
		}
		if _, ok := outcome.Fingerprint(); ok {
			// the network committed a proposal this peer could not obtain;
			// treat the round like a reject and vote again
			g.logger.Error().
				Err(outcome.Err()).
				Stringer("round", outcome.Round()).
				Msg("commit without local proposal")
			g.current = outcome.Round().NextReject()
			g.vote()
			break
		}
		// agreed-empty commit: nothing to emit, the next event advances
	}
	g.mtx.Unlock()

	if committed != nil {
		g.logger.Info().Stringer("proposal", committed).Msg("proposal committed")
		g.proposals.Publish(committed)
	}
}
