package ordering_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stormzy/iroha/consensus"
	"github.com/stormzy/iroha/ordering"
	"github.com/stormzy/iroha/pkg/stream"
	"github.com/stormzy/iroha/types"
)

// serviceRecorder records the rounds the gate reports as resolved.
type serviceRecorder struct {
	mtx    sync.Mutex
	rounds []types.Round
}

func (s *serviceRecorder) OnCollaborationOutcome(round types.Round) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.rounds = append(s.rounds, round)
}

func (s *serviceRecorder) resolved() []types.Round {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]types.Round(nil), s.rounds...)
}

// clientStub stands in for the connection manager.
type clientStub struct {
	mtx       sync.Mutex
	proposals map[types.Round]*types.Proposal
	sent      map[types.Round][]types.Transaction
	requested []types.Round
}

func newClientStub() *clientStub {
	return &clientStub{
		proposals: make(map[types.Round]*types.Proposal),
		sent:      make(map[types.Round][]types.Transaction),
	}
}

func (c *clientStub) OnTransactions(_ context.Context, round types.Round, txs []types.Transaction) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.sent[round] = append(c.sent[round], txs...)
	return nil
}

func (c *clientStub) RequestProposal(_ context.Context, round types.Round) (*types.Proposal, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.requested = append(c.requested, round)
	return c.proposals[round], nil
}

// proposalGateStub records votes and lets tests publish outcomes.
type proposalGateStub struct {
	mtx      sync.Mutex
	votes    []consensus.Vote
	voteErr  error
	outcomes *stream.Subject[consensus.Outcome]
}

func newProposalGateStub() *proposalGateStub {
	return &proposalGateStub{outcomes: stream.NewSubject[consensus.Outcome]()}
}

func (p *proposalGateStub) Vote(vote consensus.Vote) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.voteErr != nil {
		return p.voteErr
	}
	p.votes = append(p.votes, vote)
	return nil
}

func (p *proposalGateStub) Outcomes() *stream.Subject[consensus.Outcome] {
	return p.outcomes
}

func (p *proposalGateStub) submitted() []consensus.Vote {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]consensus.Vote(nil), p.votes...)
}

type gateFixture struct {
	service  *serviceRecorder
	client   *clientStub
	proposal *proposalGateStub
	events   *stream.Subject[ordering.RoundEvent]
	gate     *ordering.Gate
}

func newGateFixture(t *testing.T, initial types.Round) *gateFixture {
	t.Helper()
	f := &gateFixture{
		service:  &serviceRecorder{},
		client:   newClientStub(),
		proposal: newProposalGateStub(),
		events:   stream.NewSubject[ordering.RoundEvent](),
	}
	f.gate = ordering.NewGate(f.service, f.client, f.proposal, f.events, initial,
		ordering.WithRequestTimeout(time.Second))
	t.Cleanup(f.gate.Close)
	return f
}

func (f *gateFixture) collectProposals() *[]*types.Proposal {
	var got []*types.Proposal
	f.gate.Proposals().Subscribe(func(p *types.Proposal) { got = append(got, p) })
	return &got
}

func makeProposal(round types.Round, payloads ...string) *types.Proposal {
	txs := make([]types.Transaction, len(payloads))
	for i, p := range payloads {
		txs[i] = types.Transaction(p)
	}
	return types.TimestampedProposalFactory{}.NewProposal(round, txs)
}

func TestBlockEventStartsNewHeight(t *testing.T) {
	f := newGateFixture(t, types.NewRound(2, 1))
	round := types.NewRound(3, 1)
	proposal := makeProposal(round, "a")
	f.client.proposals[round] = proposal
	downstream := f.collectProposals()

	f.events.Publish(ordering.NewBlockEvent(3))

	require.Equal(t, round, f.gate.Round())
	require.Equal(t, []types.Round{round}, f.service.resolved())
	require.Equal(t, []types.Round{round}, f.client.requested)

	votes := f.proposal.submitted()
	require.Len(t, votes, 1)
	require.Equal(t, round, votes[0].Round)
	require.Same(t, proposal, votes[0].Proposal)

	// agreement commits the voted proposal: it flows downstream and the
	// round stays put
	digest := proposal.Hash()
	f.proposal.outcomes.Publish(consensus.CommitOutcome(round, proposal, digest[:], nil))
	require.Equal(t, []*types.Proposal{proposal}, *downstream)
	require.Equal(t, round, f.gate.Round())
}

func TestEmptyEventVotesWithoutProposal(t *testing.T) {
	f := newGateFixture(t, types.NewRound(2, 1))
	downstream := f.collectProposals()

	f.events.Publish(ordering.NewEmptyEvent())

	round := types.NewRound(2, 2)
	require.Equal(t, round, f.gate.Round())
	votes := f.proposal.submitted()
	require.Len(t, votes, 1)
	require.Equal(t, round, votes[0].Round)
	require.Nil(t, votes[0].Proposal)

	// the network agrees the round is empty: nothing is emitted and the
	// round waits for the next event
	f.proposal.outcomes.Publish(consensus.CommitOutcome(round, nil, nil, nil))
	require.Empty(t, *downstream)
	require.Equal(t, round, f.gate.Round())
	require.Len(t, f.proposal.submitted(), 1)

	f.events.Publish(ordering.NewEmptyEvent())
	require.Equal(t, types.NewRound(2, 3), f.gate.Round())
}

func TestRejectAdvancesAndVotesAgain(t *testing.T) {
	f := newGateFixture(t, types.NewRound(2, 1))
	next := types.NewRound(2, 2)
	proposal := makeProposal(next, "retried")
	f.client.proposals[next] = proposal
	downstream := f.collectProposals()

	f.proposal.outcomes.Publish(consensus.RejectOutcome(types.NewRound(2, 1)))

	require.Equal(t, next, f.gate.Round())
	require.Equal(t, []types.Round{next}, f.service.resolved())
	votes := f.proposal.submitted()
	require.Len(t, votes, 1)
	require.Same(t, proposal, votes[0].Proposal)

	digest := proposal.Hash()
	f.proposal.outcomes.Publish(consensus.CommitOutcome(next, proposal, digest[:], nil))
	require.Equal(t, []*types.Proposal{proposal}, *downstream)
}

func TestForeignCommitIsRejectEquivalent(t *testing.T) {
	f := newGateFixture(t, types.NewRound(2, 1))
	downstream := f.collectProposals()

	fingerprint := []byte{0xde, 0xad, 0xbe, 0xef}
	f.proposal.outcomes.Publish(consensus.CommitOutcome(
		types.NewRound(2, 1), nil, fingerprint, consensus.ErrForeignCommit))

	// no proposal flows downstream and the round is retried
	require.Empty(t, *downstream)
	require.Equal(t, types.NewRound(2, 2), f.gate.Round())
	require.Len(t, f.proposal.submitted(), 1)
}

func TestVoteErrorLeavesRoundForNextEvent(t *testing.T) {
	f := newGateFixture(t, types.NewRound(2, 1))
	f.proposal.voteErr = consensus.ErrOrdererRefused

	f.events.Publish(ordering.NewEmptyEvent())

	// the vote was refused but the round still advanced with the event;
	// the next event retries
	require.Equal(t, types.NewRound(2, 2), f.gate.Round())
	require.Empty(t, f.proposal.submitted())

	f.proposal.voteErr = nil
	f.events.Publish(ordering.NewEmptyEvent())
	require.Len(t, f.proposal.submitted(), 1)
}

func TestPropagateBatchUsesCurrentRound(t *testing.T) {
	f := newGateFixture(t, types.NewRound(5, 3))

	batch, err := types.NewBatch([]types.Transaction{types.Transaction("a"), types.Transaction("b")})
	require.NoError(t, err)
	require.NoError(t, f.gate.PropagateBatch(context.Background(), batch))

	require.Equal(t, batch.Transactions(), f.client.sent[types.NewRound(5, 3)])
}

func TestPropagateTransactionWrapsSingletonBatch(t *testing.T) {
	f := newGateFixture(t, types.NewRound(2, 1))

	tx := types.Transaction("loose")
	require.NoError(t, f.gate.PropagateTransaction(context.Background(), tx))

	require.Equal(t, []types.Transaction{tx}, f.client.sent[types.NewRound(2, 1)])
}

func TestConsecutiveBlockAndEmptyEvents(t *testing.T) {
	f := newGateFixture(t, types.NewRound(2, 1))

	f.events.Publish(ordering.NewBlockEvent(7))
	require.Equal(t, types.NewRound(7, 1), f.gate.Round())

	f.events.Publish(ordering.NewEmptyEvent())
	require.Equal(t, types.NewRound(7, 2), f.gate.Round())

	f.events.Publish(ordering.NewEmptyEvent())
	require.Equal(t, types.NewRound(7, 3), f.gate.Round())

	f.events.Publish(ordering.NewBlockEvent(8))
	require.Equal(t, types.NewRound(8, 1), f.gate.Round())
}
