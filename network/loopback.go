package network

import (
	"context"

	"github.com/stormzy/iroha/ordering"
	"github.com/stormzy/iroha/types"
)

// Loopback is an in-process session over a local ordering service, used when
// a slot points at the local peer and in single-peer deployments.
type Loopback struct {
	service *ordering.Service
}

var _ ordering.Notification = (*Loopback)(nil)

func NewLoopback(service *ordering.Service) *Loopback {
	return &Loopback{service: service}
}

func (l *Loopback) OnTransactions(_ context.Context, round types.Round, txs []types.Transaction) error {
	l.service.OnTransactions(round, txs)
	return nil
}

func (l *Loopback) RequestProposal(_ context.Context, round types.Round) (*types.Proposal, error) {
	proposal, ok := l.service.Proposal(round)
	if !ok {
		return nil, nil
	}
	return proposal, nil
}

// LoopbackFactory hands out loopback sessions regardless of the peer, for
// single-process networks and tests.
type LoopbackFactory struct {
	service *ordering.Service
}

var _ ordering.Factory = (*LoopbackFactory)(nil)

func NewLoopbackFactory(service *ordering.Service) *LoopbackFactory {
	return &LoopbackFactory{service: service}
}

func (f *LoopbackFactory) Create(types.Peer) (ordering.Notification, error) {
	return NewLoopback(f.service), nil
}
