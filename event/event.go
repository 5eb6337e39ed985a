// Package event defines the messages exchanged between miners and the
// simulator. Every event owns its payload by value.
package event

import (
	"fmt"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
)

type Kind uint8

const (
	SendTransaction Kind = iota
	ReceiveTransaction
	SendHash
	ReceiveHash
	SendGet
	ReceiveGet
	SendBlock
	ReceiveBlock
	// BroadcastPrivateChain carries a block revealed by a ring master over the
	// malicious network.
	BroadcastPrivateChain
	ReceivePrivateChain
	// BlockCreation fires when a miner finishes mining its candidate block.
	BlockCreation
	// GetTimeout is an alarm a miner sets for itself when it requests a block.
	GetTimeout
)

func (k Kind) String() string {
	switch k {
	case SendTransaction:
		return "SEND_TXN"
	case ReceiveTransaction:
		return "RECV_TXN"
	case SendHash:
		return "SEND_HASH"
	case ReceiveHash:
		return "RECV_HASH"
	case SendGet:
		return "SEND_GET"
	case ReceiveGet:
		return "RECV_GET"
	case SendBlock:
		return "SEND_BLOCK"
	case ReceiveBlock:
		return "RECV_BLOCK"
	case BroadcastPrivateChain:
		return "BROADCAST_PRIVATE"
	case ReceivePrivateChain:
		return "RECV_PRIVATE"
	case BlockCreation:
		return "BLOCK_CREATION"
	case GetTimeout:
		return "GET_TIMEOUT"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IsSend checks whether events of this kind travel over a network.
func (k Kind) IsSend() bool {
	switch k {
	case SendTransaction, SendHash, SendGet, SendBlock, BroadcastPrivateChain:
		return true
	default:
		return false
	}
}

// Delivered returns the kind of the event a send turns into at its receiver.
// It returns k unchanged for kinds that are not sends.
func (k Kind) Delivered() Kind {
	switch k {
	case SendTransaction:
		return ReceiveTransaction
	case SendHash:
		return ReceiveHash
	case SendGet:
		return ReceiveGet
	case SendBlock:
		return ReceiveBlock
	case BroadcastPrivateChain:
		return ReceivePrivateChain
	default:
		return k
	}
}

// Payload is one of Txn, FullBlock, BlockHash or Timeout.
type Payload interface {
	// Size is the number of bytes the payload occupies on the wire.
	Size() int

	payload()
}

var (
	_ Payload = Txn{}
	_ Payload = FullBlock{}
	_ Payload = BlockHash{}
	_ Payload = Timeout{}
)

type Txn struct{ Transaction chain.Transaction }

func (Txn) Size() int { return chain.TxnSize }
func (Txn) payload()  {}

type FullBlock struct{ Block chain.Block }

func (p FullBlock) Size() int { return p.Block.Size() }
func (FullBlock) payload()    {}

// BlockHash announces, or requests, the block with the given content hash.
type BlockHash struct{ Hash chain.Hash }

func (BlockHash) Size() int { return chain.HashSize }
func (BlockHash) payload()  {}

// Timeout identifies the download attempt a GetTimeout alarm was set for.
type Timeout struct {
	Hash    chain.Hash
	Attempt int
}

func (Timeout) Size() int { return 0 }
func (Timeout) payload()  {}

// Broadcast is the Receiver of events addressed to every neighbour of their
// Sender.
const Broadcast = chain.NoMiner

type Event struct {
	Kind      Kind
	Timestamp time.Time
	// Owner is the miner that created the payload.
	Owner    chain.MinerID
	Sender   chain.MinerID
	Receiver chain.MinerID
	// Malicious selects the malicious network for delivery.
	Malicious bool
	// Broadcast marks sends that are first looped back to their sender, which
	// admits the payload and relays it to its neighbours.
	Broadcast bool
	Payload   Payload
}

// Deliver returns the event the receiver of e observes at the given time.
func (e Event) Deliver(to chain.MinerID, at time.Time) Event {
	e.Kind = e.Kind.Delivered()
	e.Receiver = to
	e.Timestamp = at
	return e
}

// Transaction returns the transaction carried by e, if any.
func (e Event) Transaction() (chain.Transaction, bool) {
	p, ok := e.Payload.(Txn)
	return p.Transaction, ok
}

// Block returns the block carried by e, if any.
func (e Event) Block() (chain.Block, bool) {
	p, ok := e.Payload.(FullBlock)
	return p.Block, ok
}

// Hash returns the block hash carried by e, if any.
func (e Event) Hash() (chain.Hash, bool) {
	switch p := e.Payload.(type) {
	case BlockHash:
		return p.Hash, true
	case Timeout:
		return p.Hash, true
	default:
		return chain.Hash{}, false
	}
}

// Size is the number of bytes the event occupies on the wire.
func (e Event) Size() int {
	if e.Payload == nil {
		return 0
	}
	return e.Payload.Size()
}

func (e Event) String() string {
	return fmt.Sprintf("%s %d->%d (owner %d, malicious %t) %v", e.Kind, e.Sender, e.Receiver, e.Owner, e.Malicious, e.Payload)
}
