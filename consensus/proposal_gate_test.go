package consensus_test

import (
	"encoding/hex"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stormzy/iroha/consensus"
	"github.com/stormzy/iroha/pkg/stream"
	"github.com/stormzy/iroha/types"
)

// hashGateStub records votes and lets tests publish agreement results.
type hashGateStub struct {
	mtx      sync.Mutex
	votes    []consensus.Hash
	orders   []consensus.ClusterOrder
	outcomes *stream.Subject[consensus.AgreementResult]
}

func newHashGateStub() *hashGateStub {
	return &hashGateStub{outcomes: stream.NewSubject[consensus.AgreementResult]()}
}

func (g *hashGateStub) Vote(hash consensus.Hash, order consensus.ClusterOrder) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.votes = append(g.votes, hash)
	g.orders = append(g.orders, order)
}

func (g *hashGateStub) Outcomes() *stream.Subject[consensus.AgreementResult] {
	return g.outcomes
}

func (g *hashGateStub) voted() []consensus.Hash {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return append([]consensus.Hash(nil), g.votes...)
}

func (g *hashGateStub) commit(hash consensus.Hash) {
	g.outcomes.Publish(consensus.AgreementResult{
		Commit: true,
		Votes:  []consensus.VoteMessage{{Hash: hash}},
	})
}

func (g *hashGateStub) reject(hash consensus.Hash) {
	g.outcomes.Publish(consensus.AgreementResult{
		Votes: []consensus.VoteMessage{{Hash: hash}},
	})
}

// ordererStub provides a fixed cluster order, or refuses.
type ordererStub struct {
	refuse bool
}

func (o *ordererStub) GetOrdering(consensus.Hash) (consensus.ClusterOrder, bool) {
	if o.refuse {
		return consensus.ClusterOrder{}, false
	}
	order, err := consensus.NewClusterOrder([]types.Peer{{ID: "node"}})
	if err != nil {
		panic(err)
	}
	return order, true
}

type pgFixture struct {
	hashGate *hashGateStub
	orderer  *ordererStub
	gate     *consensus.ProposalGate
	outcomes []consensus.Outcome
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	f := &pgFixture{
		hashGate: newHashGateStub(),
		orderer:  &ordererStub{},
	}
	f.gate = consensus.NewProposalGate(f.hashGate, f.orderer)
	t.Cleanup(f.gate.Close)
	f.gate.Outcomes().Subscribe(func(o consensus.Outcome) { f.outcomes = append(f.outcomes, o) })
	return f
}

func proposalForRound(round types.Round, payloads ...string) *types.Proposal {
	txs := make([]types.Transaction, len(payloads))
	for i, p := range payloads {
		txs[i] = types.Transaction(p)
	}
	return types.TimestampedProposalFactory{}.NewProposal(round, txs)
}

func TestNoClusterOrder(t *testing.T) {
	f := newPGFixture(t)
	f.orderer.refuse = true

	err := f.gate.Vote(consensus.Vote{Round: types.NewRound(1, 1)})
	require.ErrorIs(t, err, consensus.ErrOrdererRefused)
	require.Empty(t, f.hashGate.voted())
}

func TestCommitAchieved(t *testing.T) {
	f := newPGFixture(t)
	round := types.NewRound(1, 1)
	proposal := proposalForRound(round, "a")
	vote := consensus.Vote{Round: round, Proposal: proposal}

	require.NoError(t, f.gate.Vote(vote))
	voted := f.hashGate.voted()
	require.Len(t, voted, 1)
	require.Equal(t, consensus.MakeHash(vote), voted[0])

	f.hashGate.commit(voted[0])

	require.Len(t, f.outcomes, 1)
	outcome := f.outcomes[0]
	require.False(t, outcome.Rejected())
	require.Equal(t, round, outcome.Round())
	got, ok := outcome.Proposal()
	require.True(t, ok)
	require.Same(t, proposal, got)
	require.NoError(t, outcome.Err())
}

func TestCommitOfEmptyVote(t *testing.T) {
	f := newPGFixture(t)
	round := types.NewRound(4, 2)
	vote := consensus.Vote{Round: round}

	require.NoError(t, f.gate.Vote(vote))
	f.hashGate.commit(consensus.MakeHash(vote))

	require.Len(t, f.outcomes, 1)
	outcome := f.outcomes[0]
	require.False(t, outcome.Rejected())
	_, ok := outcome.Proposal()
	require.False(t, ok)
	_, ok = outcome.Fingerprint()
	require.False(t, ok)
	require.NoError(t, outcome.Err())
}

func TestRejectAchieved(t *testing.T) {
	f := newPGFixture(t)
	round := types.NewRound(1, 1)
	vote := consensus.Vote{Round: round, Proposal: proposalForRound(round, "a")}

	require.NoError(t, f.gate.Vote(vote))
	f.hashGate.reject(consensus.MakeHash(vote))

	require.Len(t, f.outcomes, 1)
	require.True(t, f.outcomes[0].Rejected())
	require.Equal(t, round, f.outcomes[0].Round())
}

func TestForeignCommitMissingFromCache(t *testing.T) {
	f := newPGFixture(t)
	round := types.NewRound(1, 1)
	vote := consensus.Vote{Round: round, Proposal: proposalForRound(round, "mine")}
	require.NoError(t, f.gate.Vote(vote))

	// agreement commits a hash this peer never voted for
	theirs := proposalForRound(round, "theirs")
	foreign := consensus.MakeHash(consensus.Vote{Round: round, Proposal: theirs})
	f.hashGate.commit(foreign)

	require.Len(t, f.outcomes, 1)
	outcome := f.outcomes[0]
	require.False(t, outcome.Rejected())
	_, ok := outcome.Proposal()
	require.False(t, ok)
	fingerprint, ok := outcome.Fingerprint()
	require.True(t, ok)
	digest := theirs.Hash()
	require.Equal(t, digest[:], fingerprint)
	require.ErrorIs(t, outcome.Err(), consensus.ErrForeignCommit)

	// the last vote slot was cleared: a later commit of the old hash
	// resolves through the cache, not the slot
	f.hashGate.commit(consensus.MakeHash(vote))
	require.Len(t, f.outcomes, 2)
	got, ok := f.outcomes[1].Proposal()
	require.True(t, ok)
	require.Same(t, vote.Proposal, got)
}

func TestForeignCommitResolvedFromCache(t *testing.T) {
	f := newPGFixture(t)
	round := types.NewRound(2, 1)

	// the peer voted for this proposal in an earlier, rejected vote, so the
	// gate cached it by fingerprint
	earlier := proposalForRound(types.NewRound(2, 1), "cached")
	require.NoError(t, f.gate.Vote(consensus.Vote{Round: types.NewRound(2, 1), Proposal: earlier}))
	f.hashGate.reject(consensus.MakeHash(consensus.Vote{Round: types.NewRound(2, 1), Proposal: earlier}))
	require.Len(t, f.outcomes, 1)

	// the current vote is for something else
	require.NoError(t, f.gate.Vote(consensus.Vote{Round: round, Proposal: proposalForRound(round, "other")}))

	// agreement commits the cached proposal's fingerprint
	f.hashGate.commit(consensus.MakeHash(consensus.Vote{Round: round, Proposal: earlier}))

	require.Len(t, f.outcomes, 2)
	outcome := f.outcomes[1]
	got, ok := outcome.Proposal()
	require.True(t, ok)
	require.Same(t, earlier, got)
	require.NoError(t, outcome.Err())
}

func TestOverwritingPendingVote(t *testing.T) {
	f := newPGFixture(t)
	round := types.NewRound(1, 1)
	first := consensus.Vote{Round: round, Proposal: proposalForRound(round, "first")}
	second := consensus.Vote{Round: round, Proposal: proposalForRound(round, "second")}

	require.NoError(t, f.gate.Vote(first))
	require.NoError(t, f.gate.Vote(second))

	// only the second vote occupies the slot
	f.hashGate.commit(consensus.MakeHash(second))
	require.Len(t, f.outcomes, 1)
	got, ok := f.outcomes[0].Proposal()
	require.True(t, ok)
	require.Same(t, second.Proposal, got)
}

func TestMalformedAgreementResultDropped(t *testing.T) {
	f := newPGFixture(t)
	require.NoError(t, f.gate.Vote(consensus.Vote{Round: types.NewRound(1, 1)}))

	f.hashGate.outcomes.Publish(consensus.AgreementResult{Commit: true})
	f.hashGate.outcomes.Publish(consensus.AgreementResult{
		Commit: true,
		Votes:  []consensus.VoteMessage{{Hash: consensus.Hash{RoundKey: "garbage"}}},
	})
	require.Empty(t, f.outcomes)
}

func TestCacheKeyIsHexDigest(t *testing.T) {
	cache := consensus.NewLRUProposalCache(4)
	round := types.NewRound(1, 1)
	proposal := proposalForRound(round, "a")
	digest := proposal.Hash()

	cache.Put(hex.EncodeToString(digest[:]), proposal)
	got, ok := cache.Get(hex.EncodeToString(digest[:]))
	require.True(t, ok)
	require.Same(t, proposal, got)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := consensus.NewLRUProposalCache(2)
	a := proposalForRound(types.NewRound(1, 1), "a")
	b := proposalForRound(types.NewRound(1, 2), "b")
	c := proposalForRound(types.NewRound(1, 3), "c")

	cache.Put("a", a)
	cache.Put("b", b)
	cache.Put("c", c)

	_, ok := cache.Get("a")
	require.False(t, ok)
	_, ok = cache.Get("b")
	require.True(t, ok)
	_, ok = cache.Get("c")
	require.True(t, ok)
}
