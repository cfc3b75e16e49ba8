package ordering

import (
	"sync"

	"github.com/algorand/go-deadlock"
	"github.com/rs/zerolog"

	"github.com/stormzy/iroha/types"
)

// Service is the on-demand ordering service. It accumulates transactions in
// per-round queues, emits a proposal for a round the first time the round is
// closed, and keeps a bounded window of recently emitted proposals so that
// slow peers can still fetch them.
//
// All operations are infallible: transactions for rounds the service does not
// currently accept are dropped, and a request for an unknown round simply
// returns nothing.
type Service struct {
	transactionLimit int
	capacity         int
	factory          types.ProposalFactory

	// mtx guards the three structures below. Closing rounds takes the write
	// lock; enqueueing and serving proposals take the read lock.
	mtx deadlock.RWMutex

	// queues holds the rounds currently accepting transactions.
	queues map[types.Round]*txQueue

	// proposals holds the recently emitted proposals, with order recording
	// insertion order for eviction.
	proposals map[types.Round]*types.Proposal
	order     []types.Round

	metrics *Metrics
	logger  zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func WithServiceMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithProposalFactory(f types.ProposalFactory) ServiceOption {
	return func(s *Service) { s.factory = f }
}

// NewService creates an ordering service accepting transactions for the
// rounds reachable from initialRound. transactionLimit bounds the size of an
// emitted proposal; capacity bounds how many emitted proposals are retained.
func NewService(transactionLimit, capacity int, initialRound types.Round, opts ...ServiceOption) *Service {
	s := &Service{
		transactionLimit: transactionLimit,
		capacity:         capacity,
		factory:          types.TimestampedProposalFactory{},
		queues:           make(map[types.Round]*txQueue),
		proposals:        make(map[types.Round]*types.Proposal),
		metrics:          NopMetrics(),
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// seed the accepted rounds as if initialRound had just been resolved
	s.OnCollaborationOutcome(initialRound)
	return s
}

// OnCollaborationOutcome signals that agreement for round has been resolved,
// by commit or by reject. The service closes the successor rounds, emitting
// proposals for any that gathered transactions, opens fresh queues for the
// plausible next rounds and evicts the eldest proposals beyond capacity.
func (s *Service) OnCollaborationOutcome(round types.Round) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.logger.Info().Stringer("round", round).Msg("collaboration outcome")

	s.packNextProposals(round)
	s.evict()
	s.metrics.CachedProposals.Set(float64(len(s.proposals)))
}

// OnTransactions enqueues transactions targeted at round. Transactions for a
// round the service does not currently accept are dropped; the sender
// re-propagates in the next sub-round.
func (s *Service) OnTransactions(round types.Round, txs []types.Transaction) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	queue, ok := s.queues[round]
	if !ok {
		s.metrics.TransactionsDropped.Add(float64(len(txs)))
		s.logger.Debug().
			Stringer("round", round).
			Int("txs", len(txs)).
			Msg("dropped transactions for unaccepted round")
		return
	}
	for _, tx := range txs {
		queue.push(tx)
	}
	s.metrics.TransactionsQueued.Add(float64(len(txs)))
}

// Proposal returns the proposal emitted for round, if any. Requesting the
// same round again returns the same proposal.
func (s *Service) Proposal(round types.Round) (*types.Proposal, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	proposal, ok := s.proposals[round]
	if ok {
		s.metrics.ProposalsServed.Inc()
	}
	return proposal, ok
}

// packNextProposals closes the rounds made unreachable by the resolution of
// round and opens queues for the rounds that remain plausible. Requires the
// write lock.
func (s *Service) packNextProposals(round types.Round) {
	s.closeRound(round.NextReject())

	if round.Reject == types.FirstReject {
		// a block round resolved: the commit round of the next height is
		// also decided, and the full window of future rounds shifts
		s.closeRound(round.NextBlock())

		s.queues = make(map[types.Round]*txQueue)
		for i := uint64(0); i <= 2; i++ {
			next := types.Round{
				Height: round.Height + i,
				Reject: round.Reject + 2 - uint32(i),
			}
			s.queues[next] = newTxQueue()
		}
		return
	}

	// a reject round resolved: only one further reject round within the same
	// height becomes plausible
	s.queues[types.Round{Height: round.Height, Reject: round.Reject + 2}] = newTxQueue()
}

// closeRound stops accepting transactions for round and, if any were
// gathered, emits the round's proposal. A round is only ever closed once,
// which makes proposal emission idempotent.
func (s *Service) closeRound(round types.Round) {
	queue, ok := s.queues[round]
	if !ok {
		return
	}
	delete(s.queues, round)

	txs := queue.drain(s.transactionLimit)
	if len(txs) == 0 {
		return
	}

	proposal := s.factory.NewProposal(round, txs)
	s.proposals[round] = proposal
	s.order = append(s.order, round)
	s.metrics.ProposalsEmitted.Inc()
	s.logger.Info().
		Stringer("round", round).
		Int("txs", len(txs)).
		Msg("emitted proposal")
}

// evict removes the eldest proposals until at most capacity remain.
// Requires the write lock.
func (s *Service) evict() {
	for len(s.order) > s.capacity {
		eldest := s.order[0]
		s.order = s.order[1:]
		delete(s.proposals, eldest)
		s.logger.Info().Stringer("round", eldest).Msg("evicted proposal")
	}
}

// txQueue is a multi-producer queue of transactions for one open round.
// Producers hold the service's read lock, so the queue serializes pushes with
// its own mutex; the single drain happens under the service's write lock.
type txQueue struct {
	mtx sync.Mutex
	txs []types.Transaction
}

func newTxQueue() *txQueue {
	return &txQueue{}
}

func (q *txQueue) push(tx types.Transaction) {
	q.mtx.Lock()
	q.txs = append(q.txs, tx)
	q.mtx.Unlock()
}

// drain removes up to limit transactions in arrival order, skipping
// duplicates by content hash.
func (q *txQueue) drain(limit int) []types.Transaction {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	var drained []types.Transaction
	seen := make(map[types.TxHash]struct{}, limit)
	for _, tx := range q.txs {
		if len(drained) >= limit {
			break
		}
		hash := tx.Hash()
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		drained = append(drained, tx)
	}
	q.txs = nil
	return drained
}
