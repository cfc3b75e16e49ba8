package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const TxHashSize = sha256.Size

// TxHash is the fixed length content hash used as the key in maps.
type TxHash [TxHashSize]byte

func (h TxHash) String() string {
	return hex.EncodeToString(h[:])
}

// Transaction is an opaque signed payload. The pipeline never inspects it;
// equality is defined by the content hash.
type Transaction []byte

// Hash returns the content hash of the transaction.
func (tx Transaction) Hash() TxHash {
	return sha256.Sum256(tx)
}

// Batch is a non-empty ordered group of transactions that must appear in a
// proposal together or not at all. A singleton batch is the common case.
type Batch struct {
	id  TxHash
	txs []Transaction
}

var ErrEmptyBatch = errors.New("batch must contain at least one transaction")

// NewBatch groups the given transactions under a common batch identifier: the
// hash over the concatenation of the member transaction hashes.
func NewBatch(txs []Transaction) (Batch, error) {
	if len(txs) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	hasher := sha256.New()
	for _, tx := range txs {
		h := tx.Hash()
		hasher.Write(h[:])
	}
	var id TxHash
	copy(id[:], hasher.Sum(nil))
	return Batch{id: id, txs: txs}, nil
}

// ID returns the batch identifier shared by all member transactions.
func (b Batch) ID() TxHash {
	return b.id
}

// Transactions returns the ordered members of the batch.
func (b Batch) Transactions() []Transaction {
	return b.txs
}

// BatchFactory turns loose transactions into batches.
type BatchFactory interface {
	// Wrap places a single transaction into a singleton batch.
	Wrap(tx Transaction) Batch
}

// SingletonBatchFactory is the default BatchFactory.
type SingletonBatchFactory struct{}

func (SingletonBatchFactory) Wrap(tx Transaction) Batch {
	batch, err := NewBatch([]Transaction{tx})
	if err != nil {
		// a singleton collection is never empty
		panic(err)
	}
	return batch
}
