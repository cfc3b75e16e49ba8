package p2p

import (
	"io"
	"time"

	"github.com/hashicorp/go-msgpack/codec"

	"github.com/stormzy/iroha/types"
)

// Wire messages for the ordering protocol. One stream carries one request
// and one response: an ack for transactions requests, the proposal (or its
// absence) for proposal requests.

const (
	msgTransactions uint8 = iota + 1
	msgRequestProposal
)

type request struct {
	Type   uint8
	Height uint64
	Reject uint32
	Txs    [][]byte
}

// ack confirms receipt of a transactions request.
type ack struct {
	OK bool
}

type response struct {
	Found     bool
	Height    uint64
	Reject    uint32
	CreatedAt int64 // unix nanoseconds
	Txs       [][]byte
}

var msgpackHandle = &codec.MsgpackHandle{}

func encode(w io.Writer, v interface{}) error {
	return codec.NewEncoder(w, msgpackHandle).Encode(v)
}

func decode(r io.Reader, v interface{}) error {
	return codec.NewDecoder(r, msgpackHandle).Decode(v)
}

func transactionsToWire(txs []types.Transaction) [][]byte {
	wire := make([][]byte, len(txs))
	for i, tx := range txs {
		wire[i] = tx
	}
	return wire
}

func transactionsFromWire(wire [][]byte) []types.Transaction {
	txs := make([]types.Transaction, len(wire))
	for i, raw := range wire {
		txs[i] = raw
	}
	return txs
}

func proposalToWire(proposal *types.Proposal) response {
	return response{
		Found:     true,
		Height:    proposal.Round.Height,
		Reject:    proposal.Round.Reject,
		CreatedAt: proposal.CreatedAt.UnixNano(),
		Txs:       transactionsToWire(proposal.Transactions),
	}
}

func proposalFromWire(resp response) *types.Proposal {
	return &types.Proposal{
		Round:        types.Round{Height: resp.Height, Reject: resp.Reject},
		CreatedAt:    time.Unix(0, resp.CreatedAt),
		Transactions: transactionsFromWire(resp.Txs),
	}
}
