package chain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Reward is the amount minted by every coinbase transaction.
const Reward int64 = 50

const (
	// TxnSize is the modelled size in bytes of a transaction on the wire.
	TxnSize = 1000
	// BlockHeaderSize is the modelled size in bytes of a block without its
	// transactions.
	BlockHeaderSize = 1000
	// HashSize is the size in bytes of a block content hash.
	HashSize = blake2b.Size256
)

// MinerID identifies a simulated network participant.
type MinerID int

// NoMiner is the sender of coinbase transactions and the owner of genesis.
const NoMiner MinerID = -1

type BlockID uint64

type TxnID uint64

// GenesisID is the id of the shared root of every block tree.
const GenesisID BlockID = 0

type TxnType uint8

const (
	Normal TxnType = iota
	Coinbase
)

func (t TxnType) String() string {
	switch t {
	case Normal:
		return "NORMAL"
	case Coinbase:
		return "COINBASE"
	default:
		return fmt.Sprintf("TxnType(%d)", uint8(t))
	}
}

// Transaction moves Amount from Sender to Receiver. Two transactions are the
// same transaction if and only if their ids are equal.
type Transaction struct {
	ID       TxnID
	Type     TxnType
	Sender   MinerID
	Receiver MinerID
	Amount   int64
}

// NewCoinbase returns a transaction minting Reward to receiver.
func NewCoinbase(id TxnID, receiver MinerID) Transaction {
	return Transaction{
		ID:       id,
		Type:     Coinbase,
		Sender:   NoMiner,
		Receiver: receiver,
		Amount:   Reward,
	}
}

func (t Transaction) IsCoinbase() bool { return t.Type == Coinbase }

func (t Transaction) String() string {
	if t.IsCoinbase() {
		return fmt.Sprintf("%d: %d mines %d coins", t.ID, t.Receiver, t.Amount)
	}
	return fmt.Sprintf("%d: %d pays %d %d coins", t.ID, t.Sender, t.Receiver, t.Amount)
}

// Block is a batch of transactions extending the block identified by ParentID.
type Block struct {
	ID           BlockID
	Height       uint64
	ParentID     BlockID
	Timestamp    time.Time
	Owner        MinerID
	Transactions []Transaction
}

// Genesis returns the block every tree is rooted at.
func Genesis() Block {
	return Block{ID: GenesisID, ParentID: GenesisID, Owner: NoMiner}
}

// IsGenesis checks whether b is the root block.
func (b Block) IsGenesis() bool { return b.ID == GenesisID }

// Equal compares two blocks, disregarding Owner.
func (b Block) Equal(other Block) bool {
	return b.ID == other.ID &&
		b.Height == other.Height &&
		b.ParentID == other.ParentID &&
		b.Timestamp.Equal(other.Timestamp) &&
		slices.Equal(b.Transactions, other.Transactions)
}

// Clone returns a copy of b that shares no memory with it.
func (b Block) Clone() Block {
	b.Transactions = slices.Clone(b.Transactions)
	return b
}

// Size returns the modelled size of the block in bytes.
func (b Block) Size() int {
	return BlockHeaderSize + len(b.Transactions)*TxnSize
}

// Hash computes the content hash of the block over every field that takes part
// in equality.
func (b Block) Hash() Hash {
	var buf []byte
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.ID))
	buf = binary.BigEndian.AppendUint64(buf, b.Height)
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.ParentID))
	ts, err := b.Timestamp.MarshalBinary()
	if err != nil {
		// Only fails for timezone offsets that are not a whole minute, which the
		// simulator never produces.
		panic(err)
	}
	buf = append(buf, ts...)
	for _, txn := range b.Transactions {
		buf = binary.BigEndian.AppendUint64(buf, uint64(txn.ID))
		buf = append(buf, byte(txn.Type))
		buf = binary.BigEndian.AppendUint64(buf, uint64(txn.Sender))
		buf = binary.BigEndian.AppendUint64(buf, uint64(txn.Receiver))
		buf = binary.BigEndian.AppendUint64(buf, uint64(txn.Amount))
	}
	return blake2b.Sum256(buf)
}

func (b Block) String() string {
	return fmt.Sprintf("block %d (height %d, parent %d, owner %d, %d txns)", b.ID, b.Height, b.ParentID, b.Owner, len(b.Transactions))
}

// Hash is the content hash announced by compact block relay.
type Hash [HashSize]byte

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string {
	return hex.EncodeToString(h[:4])
}
