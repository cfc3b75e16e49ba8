package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Proposal is an ordered sequence of transactions emitted for a round.
// Proposals are content-addressed immutable values: share freely, never
// mutate after emission.
type Proposal struct {
	Round        Round
	CreatedAt    time.Time
	Transactions []Transaction
}

// Hash is the deterministic content hash of the proposal: the hash over the
// concatenated transaction hashes, independent of round and creation time.
// Two proposals carrying the same transaction sequence hash identically.
func (p *Proposal) Hash() TxHash {
	hasher := sha256.New()
	for _, tx := range p.Transactions {
		h := tx.Hash()
		hasher.Write(h[:])
	}
	var sum TxHash
	copy(sum[:], hasher.Sum(nil))
	return sum
}

func (p *Proposal) String() string {
	if p == nil {
		return "nil"
	}
	return fmt.Sprintf("Proposal{%s, %d txs}", p.Round, len(p.Transactions))
}

// ProposalFactory builds proposals for emitted rounds.
type ProposalFactory interface {
	NewProposal(round Round, txs []Transaction) *Proposal
}

// TimestampedProposalFactory is the default ProposalFactory; it stamps each
// proposal with the wall-clock creation time.
type TimestampedProposalFactory struct {
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (f TimestampedProposalFactory) NewProposal(round Round, txs []Transaction) *Proposal {
	now := f.Now
	if now == nil {
		now = time.Now
	}
	return &Proposal{
		Round:        round,
		CreatedAt:    now(),
		Transactions: txs,
	}
}
