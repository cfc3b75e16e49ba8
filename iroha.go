// Package iroha wires the on-demand ordering pipeline: the ordering service
// accumulating transactions per round, the connection manager routing them to
// the responsible peers, the proposal gate projecting round votes onto hash
// agreement and the ordering gate driving rounds from block events.
package iroha

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/stormzy/iroha/config"
	"github.com/stormzy/iroha/consensus"
	"github.com/stormzy/iroha/network"
	"github.com/stormzy/iroha/ordering"
	"github.com/stormzy/iroha/pkg/stream"
	"github.com/stormzy/iroha/types"
)

// Options are the collaborators injected into the pipeline. HashGate and
// Orderer are required; the rest default to quiet no-ops.
type Options struct {
	// HashGate is the fingerprint-level agreement primitive.
	HashGate consensus.HashGate

	// Orderer produces the cluster order for each vote.
	Orderer consensus.PeerOrderer

	// Factory builds transport sessions to peers. Nil means every slot is
	// served in-process by the local ordering service.
	Factory ordering.Factory

	// InitialPeers fills the ordering slots until the first peer set update.
	InitialPeers network.PeerSet

	// Logger receives structured pipeline logs; nil disables logging.
	Logger *zerolog.Logger

	// Registry receives the ordering metrics; nil disables them.
	Registry prometheus.Registerer
}

// Pipeline is a running ordering pipeline. Feed round events into Events,
// transactions into Gate.PropagateTransaction, and read committed proposals
// from Gate.Proposals.
type Pipeline struct {
	Service      *ordering.Service
	Connections  *network.ConnectionManager
	ProposalGate *consensus.ProposalGate
	Gate         *ordering.Gate

	// Events carries block and empty-block notifications from the storage
	// pipeline into the gate.
	Events *stream.Subject[ordering.RoundEvent]

	// PeerUpdates carries peer set changes into the connection manager.
	PeerUpdates *stream.Subject[network.PeerSet]
}

// New assembles the pipeline from the configuration and collaborators.
func New(cfg *config.Config, opts Options) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.HashGate == nil || opts.Orderer == nil {
		return nil, errors.New("hash gate and orderer are required")
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	initialRound := cfg.InitialRound()

	events := stream.NewSubject[ordering.RoundEvent]()
	peerUpdates := stream.NewSubject[network.PeerSet]()

	service := ordering.NewService(
		cfg.TransactionLimit,
		cfg.NumberOfProposals,
		initialRound,
		ordering.WithServiceLogger(logger.With().Str("component", "ordering_service").Logger()),
		ordering.WithServiceMetrics(ordering.NewMetrics(opts.Registry)),
	)

	factory := opts.Factory
	if factory == nil {
		factory = network.NewLoopbackFactory(service)
	}

	connections := network.NewConnectionManager(
		factory,
		opts.InitialPeers,
		peerUpdates,
		network.WithManagerLogger(logger.With().Str("component", "connection_manager").Logger()),
	)

	proposalGate := consensus.NewProposalGate(
		opts.HashGate,
		opts.Orderer,
		consensus.WithGateLogger(logger.With().Str("component", "proposal_gate").Logger()),
	)

	gate := ordering.NewGate(
		service,
		connections,
		proposalGate,
		events,
		initialRound,
		ordering.WithGateLogger(logger.With().Str("component", "ordering_gate").Logger()),
		ordering.WithRequestTimeout(cfg.RequestTimeout),
	)

	return &Pipeline{
		Service:      service,
		Connections:  connections,
		ProposalGate: proposalGate,
		Gate:         gate,
		Events:       events,
		PeerUpdates:  peerUpdates,
	}, nil
}

// Close detaches the pipeline components from their event streams.
func (p *Pipeline) Close() {
	p.Gate.Close()
	p.ProposalGate.Close()
	p.Connections.Close()
}

// LocalPeerSet fills every ordering slot with the same peer, the common case
// for a single-peer deployment.
func LocalPeerSet(self types.Peer) network.PeerSet {
	return network.PeerSet{
		Issuer:                     self,
		PreviousConsumer:           self,
		CurrentRoundRejectConsumer: self,
		NextRoundRejectConsumer:    self,
		NextRoundCommitConsumer:    self,
	}
}
