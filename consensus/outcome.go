package consensus

import (
	"fmt"

	"github.com/stormzy/iroha/types"
)

// Outcome is the resolution of one round of proposal agreement: either a
// commit, optionally carrying the agreed proposal, or a reject.
//
// A commit without a fingerprint means the network agreed that no proposal
// exists for the round. A commit with a fingerprint but without a proposal
// means the network committed to a proposal this peer could not obtain; Err
// then reports why.
type Outcome struct {
	round       types.Round
	reject      bool
	proposal    *types.Proposal
	fingerprint []byte
	err         error
}

func CommitOutcome(round types.Round, proposal *types.Proposal, fingerprint []byte, err error) Outcome {
	return Outcome{
		round:       round,
		proposal:    proposal,
		fingerprint: fingerprint,
		err:         err,
	}
}

func RejectOutcome(round types.Round) Outcome {
	return Outcome{round: round, reject: true}
}

func (o Outcome) Round() types.Round {
	return o.round
}

func (o Outcome) Rejected() bool {
	return o.reject
}

// Proposal returns the agreed proposal when this peer holds it.
func (o Outcome) Proposal() (*types.Proposal, bool) {
	return o.proposal, o.proposal != nil
}

// Fingerprint returns the agreed proposal fingerprint, when the commit was
// for an actual proposal.
func (o Outcome) Fingerprint() ([]byte, bool) {
	return o.fingerprint, o.fingerprint != nil
}

// Err reports a commit this peer could not complete, such as a commit to a
// foreign proposal missing from the local cache.
func (o Outcome) Err() error {
	return o.err
}

func (o Outcome) String() string {
	switch {
	case o.reject:
		return fmt.Sprintf("Reject{%s}", o.round)
	case o.err != nil:
		return fmt.Sprintf("Commit{%s, %v}", o.round, o.err)
	case o.proposal != nil:
		return fmt.Sprintf("Commit{%s, %s}", o.round, o.proposal)
	default:
		return fmt.Sprintf("Commit{%s, empty}", o.round)
	}
}
