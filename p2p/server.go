package p2p

import (
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/rs/zerolog"

	"github.com/stormzy/iroha/ordering"
	"github.com/stormzy/iroha/types"
)

// Server exposes the local ordering service on the ordering protocol.
type Server struct {
	host    host.Host
	service *ordering.Service
	logger  zerolog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

func WithServerLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer registers the ordering protocol handler on the host. Call Close
// to deregister.
func NewServer(host host.Host, service *ordering.Service, opts ...ServerOption) *Server {
	s := &Server{
		host:    host,
		service: service,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	host.SetStreamHandler(ProtocolID, s.handle)
	return s
}

func (s *Server) Close() {
	s.host.RemoveStreamHandler(ProtocolID)
}

func (s *Server) handle(stream network.Stream) {
	defer stream.Close()

	var req request
	if err := decode(stream, &req); err != nil {
		s.logger.Warn().Err(err).Msg("malformed ordering request")
		stream.Reset()
		return
	}
	round := types.Round{Height: req.Height, Reject: req.Reject}

	switch req.Type {
	case msgTransactions:
		s.service.OnTransactions(round, transactionsFromWire(req.Txs))
		if err := encode(stream, ack{OK: true}); err != nil {
			s.logger.Warn().Err(err).Stringer("round", round).Msg("transaction ack failed")
			stream.Reset()
		}

	case msgRequestProposal:
		resp := response{}
		if proposal, ok := s.service.Proposal(round); ok {
			resp = proposalToWire(proposal)
		}
		if err := encode(stream, resp); err != nil {
			s.logger.Warn().Err(err).Stringer("round", round).Msg("proposal response failed")
			stream.Reset()
		}

	default:
		s.logger.Warn().Uint8("type", req.Type).Msg("unknown ordering request type")
		stream.Reset()
	}
}
