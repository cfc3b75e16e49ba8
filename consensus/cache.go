package consensus

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stormzy/iroha/types"
)

// DefaultProposalCacheSize bounds the default cache used to resolve commits
// to proposals the local peer did not vote for.
const DefaultProposalCacheSize = 16

// ProposalCache stores proposals by hex encoded content fingerprint. The
// proposal gate fills it with every candidate it votes for and consults it
// when agreement commits to a hash the peer did not hold. Implementations
// backed by remote fetch can be plugged in through WithProposalCache.
type ProposalCache interface {
	Put(digest string, proposal *types.Proposal)
	Get(digest string) (*types.Proposal, bool)
}

// LRUProposalCache is the default in-memory ProposalCache.
type LRUProposalCache struct {
	cache *lru.Cache[string, *types.Proposal]
}

func NewLRUProposalCache(size int) *LRUProposalCache {
	cache, err := lru.New[string, *types.Proposal](size)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &LRUProposalCache{cache: cache}
}

func (c *LRUProposalCache) Put(digest string, proposal *types.Proposal) {
	c.cache.Add(digest, proposal)
}

func (c *LRUProposalCache) Get(digest string) (*types.Proposal, bool) {
	return c.cache.Get(digest)
}
