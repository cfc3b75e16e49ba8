package consensus

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/algorand/go-deadlock"
	"github.com/rs/zerolog"

	"github.com/stormzy/iroha/pkg/stream"
)

var (
	// ErrOrdererRefused is returned by Vote when no cluster order can be
	// produced for the hash. No vote is submitted; the caller retries the
	// round on its next event.
	ErrOrdererRefused = errors.New("orderer did not provide a cluster order")

	// ErrForeignCommit reports a commit to a proposal this peer never voted
	// for and could not find in its cache. The fetch-by-fingerprint
	// mechanism is pluggable through ProposalCache.
	ErrForeignCommit = errors.New("committed proposal is not available locally")
)

// ProposalGate projects proposal votes onto the fingerprint-level agreement
// primitive and lifts raw agreement outcomes back to proposal outcomes.
//
// At most one vote is pending at a time; a second Vote before the outcome of
// the first overwrites it, so callers are expected to vote from a single
// goroutine.
type ProposalGate struct {
	hashGate HashGate
	orderer  PeerOrderer
	cache    ProposalCache

	outcomes *stream.Subject[Outcome]
	cancel   func()

	// mtx guards lastVote. It is released before an outcome is published
	// downstream.
	mtx      deadlock.Mutex
	lastVote *lastVote

	logger zerolog.Logger
}

type lastVote struct {
	hash Hash
	vote Vote
}

// GateOption configures a ProposalGate.
type GateOption func(*ProposalGate)

func WithGateLogger(logger zerolog.Logger) GateOption {
	return func(g *ProposalGate) { g.logger = logger }
}

// WithProposalCache replaces the default LRU cache consulted on commits to
// proposals this peer did not vote for.
func WithProposalCache(cache ProposalCache) GateOption {
	return func(g *ProposalGate) { g.cache = cache }
}

func NewProposalGate(hashGate HashGate, orderer PeerOrderer, opts ...GateOption) *ProposalGate {
	g := &ProposalGate{
		hashGate: hashGate,
		orderer:  orderer,
		cache:    NewLRUProposalCache(DefaultProposalCacheSize),
		outcomes: stream.NewSubject[Outcome](),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.cancel = hashGate.Outcomes().Subscribe(g.handleAgreement)
	return g
}

// Vote submits the peer's candidate for a round to hash agreement. The vote
// becomes the pending last vote until its outcome arrives.
func (g *ProposalGate) Vote(vote Vote) error {
	hash := MakeHash(vote)

	g.logger.Info().
		Stringer("round", vote.Round).
		Str("digest", hash.Digest).
		Msg("voting for proposal")

	order, ok := g.orderer.GetOrdering(hash)
	if !ok {
		return fmt.Errorf("%w for round %s", ErrOrdererRefused, vote.Round)
	}

	g.mtx.Lock()
	g.lastVote = &lastVote{hash: hash, vote: vote}
	if vote.Proposal != nil {
		// remember own candidates so a commit that outlives the last-vote
		// slot can still be resolved
		g.cache.Put(hash.Digest, vote.Proposal)
	}
	g.mtx.Unlock()

	g.hashGate.Vote(hash, order)
	return nil
}

// Outcomes is the stream of proposal outcomes, one per successful Vote.
func (g *ProposalGate) Outcomes() *stream.Subject[Outcome] {
	return g.outcomes
}

// Close detaches the gate from the hash gate outcome stream.
func (g *ProposalGate) Close() {
	g.cancel()
}

// handleAgreement transforms one raw agreement result into a proposal
// outcome. Runs on the hash gate's goroutine.
func (g *ProposalGate) handleAgreement(result AgreementResult) {
	if len(result.Votes) == 0 {
		g.logger.Error().Msg("agreement result without votes")
		return
	}
	hash := result.Votes[0].Hash

	info, err := MakeProposalInfo(hash)
	if err != nil {
		g.logger.Error().Err(err).Msg("agreement result with malformed hash")
		return
	}

	g.mtx.Lock()
	last := g.lastVote
	g.lastVote = nil
	g.mtx.Unlock()

	if !result.Commit {
		g.outcomes.Publish(RejectOutcome(info.Round))
		return
	}

	if last != nil && last.hash == hash {
		g.outcomes.Publish(CommitOutcome(info.Round, last.vote.Proposal, info.Fingerprint, nil))
		return
	}

	// commit to a hash this peer did not vote for
	if info.Fingerprint == nil {
		// the network agreed that the round has no proposal; there is
		// nothing to load
		g.outcomes.Publish(CommitOutcome(info.Round, nil, nil, nil))
		return
	}

	if proposal, ok := g.cache.Get(hex.EncodeToString(info.Fingerprint)); ok {
		g.outcomes.Publish(CommitOutcome(info.Round, proposal, info.Fingerprint, nil))
		return
	}

	err = fmt.Errorf("%w: round %s, fingerprint %x", ErrForeignCommit, info.Round, info.Fingerprint)
	g.logger.Error().Err(err).Msg("foreign commit")
	g.outcomes.Publish(CommitOutcome(info.Round, nil, info.Fingerprint, err))
}
