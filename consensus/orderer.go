package consensus

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"

	"github.com/stormzy/iroha/types"
)

// HashSeededOrderer orders a fixed peer list by a permutation seeded from
// the vote hash, so every correct peer derives the same cluster order for
// the same fingerprint without coordination.
type HashSeededOrderer struct {
	peers []types.Peer
}

func NewHashSeededOrderer(peers []types.Peer) *HashSeededOrderer {
	return &HashSeededOrderer{peers: peers}
}

// GetOrdering returns the deterministic permutation of the configured peers
// for the hash, or false when no peers are configured.
func (o *HashSeededOrderer) GetOrdering(hash Hash) (ClusterOrder, bool) {
	if len(o.peers) == 0 {
		return ClusterOrder{}, false
	}

	seed := sha256.Sum256([]byte(hash.RoundKey + "/" + hash.Digest))
	rng := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(seed[:8]))))

	shuffled := make([]types.Peer, len(o.peers))
	copy(shuffled, o.peers)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	order, err := NewClusterOrder(shuffled)
	if err != nil {
		return ClusterOrder{}, false
	}
	return order, true
}
