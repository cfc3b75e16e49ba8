package consensus

import (
	"encoding/hex"
	"fmt"

	"github.com/stormzy/iroha/types"
)

// Hash is the opaque fingerprint the agreement layer votes over. RoundKey
// encodes the round; Digest carries the hex encoded content hash of the
// proposal, or the empty string when the vote observed no proposal. Two
// peers holding the same proposal for the same round produce equal hashes.
type Hash struct {
	RoundKey string
	Digest   string
}

func (h Hash) String() string {
	if h.Digest == "" {
		return fmt.Sprintf("Hash{%s, empty}", h.RoundKey)
	}
	return fmt.Sprintf("Hash{%s, %s}", h.RoundKey, h.Digest)
}

// Vote is a peer's local candidate for a round. A nil Proposal means the
// peer observed no proposal for the round.
type Vote struct {
	Round    types.Round
	Proposal *types.Proposal
}

// ProposalInfo is the round and optional proposal fingerprint recovered from
// a Hash. Fingerprint is nil when the hash encodes an empty vote.
type ProposalInfo struct {
	Round       types.Round
	Fingerprint []byte
}

// MakeHash encodes a vote into the fingerprint understood by the agreement
// layer: the round as two decimal integers separated by a space, and the
// proposal content hash in hex.
func MakeHash(vote Vote) Hash {
	hash := Hash{
		RoundKey: fmt.Sprintf("%d %d", vote.Round.Height, vote.Round.Reject),
	}
	if vote.Proposal != nil {
		digest := vote.Proposal.Hash()
		hash.Digest = hex.EncodeToString(digest[:])
	}
	return hash
}

// MakeProposalInfo reverses MakeHash. The encoding is lossless for
// well-formed inputs; malformed hashes produced by faulty peers are reported
// as errors.
func MakeProposalInfo(hash Hash) (ProposalInfo, error) {
	var info ProposalInfo
	n, err := fmt.Sscanf(hash.RoundKey, "%d %d", &info.Round.Height, &info.Round.Reject)
	if err != nil || n != 2 {
		return ProposalInfo{}, fmt.Errorf("malformed round key %q", hash.RoundKey)
	}
	if hash.Digest != "" {
		fingerprint, err := hex.DecodeString(hash.Digest)
		if err != nil {
			return ProposalInfo{}, fmt.Errorf("malformed proposal digest %q: %w", hash.Digest, err)
		}
		info.Fingerprint = fingerprint
	}
	return info, nil
}
