// Package miner implements the protocol followed by a simulated network
// participant: generating transactions and blocks, relaying them with compact
// hash announcements, and the adversarial deviations of eclipsing miners and
// selfish ring masters.
package miner

import (
	"errors"
	"slices"
	"time"

	"github.com/filecoin-project/go-chainsim/blocktree"
	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/event"
	logging "github.com/ipfs/go-log/v2"
	"gonum.org/v1/gonum/stat/distuv"
)

var log = logging.Logger("chainsim/miner")

// MaxBlockTxns caps the number of transactions in a block, coinbase included.
const MaxBlockTxns = 1000

type Role uint8

const (
	Honest Role = iota
	// Eclipsing miners relay over the malicious network and, with eclipse
	// enabled, withhold honest blocks from honest peers.
	Eclipsing
	// RingMaster miners mine a private chain for the adversary coalition and
	// reveal it selectively.
	RingMaster
)

func (r Role) String() string {
	switch r {
	case Honest:
		return "honest"
	case Eclipsing:
		return "eclipsing"
	case RingMaster:
		return "ring-master"
	default:
		return "unknown"
	}
}

// Malicious checks whether miners of this role are adversaries.
func (r Role) Malicious() bool { return r != Honest }

type peerSet map[chain.MinerID]struct{}

// add records a peer and reports whether it was not recorded before.
func (s peerSet) add(id chain.MinerID) bool {
	if _, found := s[id]; found {
		return false
	}
	s[id] = struct{}{}
	return true
}

type source struct {
	peer      chain.MinerID
	malicious bool
}

// download tracks the retrieval of an announced block.
type download struct {
	// sources are the peers that announced the block, in announcement order.
	sources []source
	next    int
	attempt int
	pending bool
	done    bool
}

// Miner is a single simulated participant. A Miner is not safe for concurrent
// use.
type Miner struct {
	id   chain.MinerID
	role Role
	*options

	tree    *blocktree.BlockTree
	mempool *chain.Mempool
	// private is set for ring masters only.
	private     *privateChain
	adversaries map[chain.MinerID]struct{}

	txnSent     map[chain.TxnID]peerSet
	hashSent    map[chain.Hash]peerSet
	privateSent map[chain.BlockID]peerSet
	// held maps the hash of every block the miner serves to its id.
	held      map[chain.Hash]chain.BlockID
	downloads map[chain.Hash]*download

	// processing is the block being mined, if any.
	processing *chain.Block
	nextTxnAt  time.Time
	mined      int
	reveals    int
}

// New instantiates a miner with the given role.
func New(id chain.MinerID, role Role, o ...Option) (*Miner, error) {
	opts, err := newOptions(id, o...)
	if err != nil {
		return nil, err
	}
	m := &Miner{
		id:          id,
		role:        role,
		options:     opts,
		tree:        blocktree.New(),
		mempool:     chain.NewMempool(),
		adversaries: make(map[chain.MinerID]struct{}),
		txnSent:     make(map[chain.TxnID]peerSet),
		hashSent:    make(map[chain.Hash]peerSet),
		privateSent: make(map[chain.BlockID]peerSet),
		held:        map[chain.Hash]chain.BlockID{chain.Genesis().Hash(): chain.GenesisID},
		downloads:   make(map[chain.Hash]*download),
	}
	for _, a := range opts.coalition {
		m.adversaries[a] = struct{}{}
	}
	if role == RingMaster {
		m.private = newPrivateChain()
	}
	return m, nil
}

func (m *Miner) ID() chain.MinerID { return m.id }

func (m *Miner) Role() Role { return m.role }

// Tree returns the publicly visible chain of the miner.
func (m *Miner) Tree() *blocktree.BlockTree { return m.tree }

// PrivateTree returns the private chain of a ring master, or nil.
func (m *Miner) PrivateTree() *blocktree.BlockTree {
	if m.private == nil {
		return nil
	}
	return m.private.tree
}

func (m *Miner) Mempool() *chain.Mempool { return m.mempool }

// Mined returns the number of blocks the miner mined.
func (m *Miner) Mined() int { return m.mined }

// Reveals returns the number of withheld blocks a ring master revealed.
func (m *Miner) Reveals() int { return m.reveals }

// Mining returns the block being mined, if any.
func (m *Miner) Mining() (chain.Block, bool) {
	if m.processing == nil {
		return chain.Block{}, false
	}
	return *m.processing, true
}

// Withheld returns the number of mined blocks a ring master has not revealed.
func (m *Miner) Withheld() int {
	if m.private == nil {
		return 0
	}
	return len(m.private.withheld)
}

// miningTree returns the tree and mempool new blocks are mined from.
func (m *Miner) miningTree() (*blocktree.BlockTree, *chain.Mempool) {
	if m.private != nil {
		return m.private.tree, m.private.mempool
	}
	return m.tree, m.mempool
}

func (m *Miner) exponential(mean time.Duration) time.Duration {
	return time.Duration(distuv.Exponential{Rate: 1 / float64(mean), Src: m.rng}.Rand())
}

// Events generates the transactions and blocks the miner starts at now.
func (m *Miner) Events(now time.Time) []event.Event {
	var events []event.Event
	if e, ok := m.genTransaction(now); ok {
		events = append(events, e)
	}
	if e, ok := m.genBlock(now); ok {
		events = append(events, e)
	}
	return events
}

func (m *Miner) genTransaction(now time.Time) (event.Event, bool) {
	if now.Before(m.nextTxnAt) {
		return event.Event{}, false
	}
	balance := m.tree.Balance(m.id)
	if balance <= 0 {
		return event.Event{}, false
	}
	receiver := chain.MinerID(m.rng.Intn(m.totalNodes - 1))
	if receiver >= m.id {
		receiver++
	}
	txn := chain.Transaction{
		ID:       m.ids.NextTxnID(),
		Type:     chain.Normal,
		Sender:   m.id,
		Receiver: receiver,
		Amount:   1 + m.rng.Int63n(balance),
	}
	m.nextTxnAt = now.Add(m.exponential(m.txnInterval))
	return event.Event{
		Kind:      event.SendTransaction,
		Timestamp: m.nextTxnAt,
		Owner:     m.id,
		Sender:    m.id,
		Receiver:  event.Broadcast,
		Malicious: m.role.Malicious(),
		Broadcast: true,
		Payload:   event.Txn{Transaction: txn},
	}, true
}

func (m *Miner) genBlock(now time.Time) (event.Event, bool) {
	if m.processing != nil || m.hashPower <= 0 {
		return event.Event{}, false
	}
	tree, mempool := m.miningTree()
	parent := tree.Current()
	candidate := chain.Block{
		ID:           m.ids.NextBlockID(),
		Height:       parent.Height + 1,
		ParentID:     parent.ID,
		Owner:        m.id,
		Transactions: []chain.Transaction{chain.NewCoinbase(m.ids.NextTxnID(), m.id)},
	}
	for _, txn := range mempool.Sorted() {
		if len(candidate.Transactions) == MaxBlockTxns {
			break
		}
		if tree.Included(txn.ID) {
			continue
		}
		candidate.Transactions = append(candidate.Transactions, txn)
		if !tree.ValidateBlock(candidate) {
			candidate.Transactions = candidate.Transactions[:len(candidate.Transactions)-1]
		}
	}
	candidate.Timestamp = now.Add(m.exponential(time.Duration(float64(m.blockInterval) / m.hashPower)))
	m.processing = &candidate
	return event.Event{
		Kind:      event.BlockCreation,
		Timestamp: candidate.Timestamp,
		Owner:     m.id,
		Sender:    m.id,
		Receiver:  m.id,
		Malicious: m.role.Malicious(),
		Payload:   event.BlockHash{Hash: candidate.Hash()},
	}, true
}

// ConfirmBlock finalises the block being mined when its creation event fires,
// unless the event is stale. It reports whether a block was mined.
func (m *Miner) ConfirmBlock(e event.Event) ([]event.Event, bool) {
	hash, _ := e.Hash()
	if m.processing == nil || m.processing.Hash() != hash {
		return nil, false
	}
	b := *m.processing
	m.processing = nil

	tree, mempool := m.miningTree()
	if tree.Current().ID != b.ParentID {
		return nil, false
	}
	if _, err := tree.AddBlock(b, e.Timestamp); err != nil {
		log.Warnw("mined block rejected by own tree", "miner", m.id, "block", b.ID, "err", err)
		return nil, false
	}
	tree.SwitchToLongestChain(b, mempool)
	m.mined++

	if m.private != nil {
		m.private.withheld = append(m.private.withheld, b)
		return nil, true
	}
	return m.announce(e.Timestamp, b), true
}

// send returns a unicast send of payload to peer.
func (m *Miner) send(now time.Time, kind event.Kind, owner, peer chain.MinerID, malicious bool, payload event.Payload) event.Event {
	return event.Event{
		Kind:      kind,
		Timestamp: now,
		Owner:     owner,
		Sender:    m.id,
		Receiver:  peer,
		Malicious: malicious,
		Payload:   payload,
	}
}

// relay sends payload to every neighbour not in sent, and records them in
// sent. Adversaries reach their malicious neighbours over the malicious
// network first.
func (m *Miner) relay(now time.Time, kind event.Kind, owner chain.MinerID, payload event.Payload, sent peerSet) []event.Event {
	var events []event.Event
	if m.role.Malicious() {
		for _, peer := range m.maliciousPeers {
			if sent.add(peer) {
				events = append(events, m.send(now, kind, owner, peer, true, payload))
			}
		}
	}
	for _, peer := range m.honestPeers {
		if sent.add(peer) {
			events = append(events, m.send(now, kind, owner, peer, false, payload))
		}
	}
	return events
}

func sentTo[K comparable](sets map[K]peerSet, key K) peerSet {
	sent, found := sets[key]
	if !found {
		sent = make(peerSet)
		sets[key] = sent
	}
	return sent
}

// announce serves b from now on and announces its hash to every neighbour that
// does not know it yet.
func (m *Miner) announce(now time.Time, b chain.Block) []event.Event {
	hash := b.Hash()
	m.held[hash] = b.ID
	return m.relay(now, event.SendHash, b.Owner, event.BlockHash{Hash: hash}, sentTo(m.hashSent, hash))
}

// ReceiveTransaction admits a transaction to the mempool and relays it. A
// broadcast looped back to its creator is admitted the same way.
func (m *Miner) ReceiveTransaction(e event.Event) []event.Event {
	txn, ok := e.Transaction()
	if !ok {
		return nil
	}
	if sent, seen := m.txnSent[txn.ID]; seen {
		sent.add(e.Sender)
		return nil
	}
	sent := sentTo(m.txnSent, txn.ID)
	sent.add(e.Sender)
	sent.add(txn.Sender)

	if !m.tree.Included(txn.ID) {
		m.mempool.Add(txn)
	}
	if m.private != nil && !m.private.tree.Included(txn.ID) {
		m.private.mempool.Add(txn)
	}
	return m.relay(e.Timestamp, event.SendTransaction, e.Owner, event.Txn{Transaction: txn}, sent)
}

// ReceiveHash records that the sender holds the announced block, and requests
// it unless it is held or already requested.
func (m *Miner) ReceiveHash(e event.Event) []event.Event {
	hash, ok := e.Hash()
	if !ok {
		return nil
	}
	sentTo(m.hashSent, hash).add(e.Sender)
	if _, held := m.held[hash]; held {
		return nil
	}
	d, found := m.downloads[hash]
	if !found {
		d = &download{}
		m.downloads[hash] = d
	}
	if d.done {
		return nil
	}
	d.sources = append(d.sources, source{peer: e.Sender, malicious: e.Malicious})
	if d.pending {
		return nil
	}
	return m.request(e.Timestamp, hash, d)
}

// request asks the next untried source of a download for the block, and sets
// an alarm to retry with another source.
func (m *Miner) request(now time.Time, hash chain.Hash, d *download) []event.Event {
	if d.next >= len(d.sources) {
		d.pending = false
		return nil
	}
	from := d.sources[d.next]
	d.next++
	d.attempt++
	d.pending = true
	return []event.Event{
		m.send(now, event.SendGet, m.id, from.peer, from.malicious, event.BlockHash{Hash: hash}),
		{
			Kind:      event.GetTimeout,
			Timestamp: now.Add(m.exponential(m.timeout)),
			Owner:     m.id,
			Sender:    m.id,
			Receiver:  m.id,
			Malicious: m.role.Malicious(),
			Payload:   event.Timeout{Hash: hash, Attempt: d.attempt},
		},
	}
}

// HandleTimeout retries a download that did not complete in time.
func (m *Miner) HandleTimeout(e event.Event) []event.Event {
	timeout, ok := e.Payload.(event.Timeout)
	if !ok {
		return nil
	}
	d, found := m.downloads[timeout.Hash]
	if !found || d.done || !d.pending || d.attempt != timeout.Attempt {
		return nil
	}
	log.Debugw("block request timed out", "miner", m.id, "hash", timeout.Hash, "attempt", timeout.Attempt)
	return m.request(e.Timestamp, timeout.Hash, d)
}

// ReceiveGet answers a block request with the full block if it is held.
func (m *Miner) ReceiveGet(e event.Event) []event.Event {
	hash, ok := e.Hash()
	if !ok {
		return nil
	}
	id, held := m.held[hash]
	if !held {
		return nil
	}
	b, found := m.tree.Block(id)
	if !found {
		return nil
	}
	if m.withholds(e.Sender, b) {
		log.Debugw("withheld block from peer", "miner", m.id, "peer", e.Sender, "block", b.ID)
		return nil
	}
	return []event.Event{m.send(e.Timestamp, event.SendBlock, b.Owner, e.Sender, e.Malicious, event.FullBlock{Block: b})}
}

// withholds checks whether b is kept from peer: eclipsing adversaries never
// hand honest blocks to honest peers.
func (m *Miner) withholds(peer chain.MinerID, b chain.Block) bool {
	if !m.role.Malicious() || !m.eclipse {
		return false
	}
	_, adversaryPeer := m.adversaries[peer]
	_, adversaryBlock := m.adversaries[b.Owner]
	return !adversaryPeer && !adversaryBlock && !b.IsGenesis()
}

// ReceiveBlock admits a requested block and announces it, together with any
// cached descendants it unlocks.
func (m *Miner) ReceiveBlock(e event.Event) []event.Event {
	b, ok := e.Block()
	if !ok {
		return nil
	}
	sentTo(m.hashSent, b.Hash()).add(e.Sender)
	m.completeDownload(b.Hash())
	events, admitted := m.admit(e.Timestamp, b)
	if m.private != nil && len(admitted) > 0 {
		events = append(events, m.observeHonestChain(e.Timestamp, admitted)...)
	}
	return events
}

func (m *Miner) completeDownload(hash chain.Hash) {
	d, found := m.downloads[hash]
	if !found {
		d = &download{}
		m.downloads[hash] = d
	}
	d.done = true
	d.pending = false
}

// admit adds b to the public tree, switching to it and to any cached blocks it
// unlocks when they extend the chain. It returns the announcements to make and
// the blocks admitted.
func (m *Miner) admit(now time.Time, b chain.Block) ([]event.Event, []chain.Block) {
	if _, err := m.tree.AddBlock(b, now); err != nil {
		if !errors.Is(err, blocktree.ErrDuplicateBlock) {
			log.Debugw("block not admitted", "miner", m.id, "block", b.ID, "err", err)
		}
		return nil, nil
	}
	admitted := []chain.Block{b}
	for {
		child, found := m.tree.AddCachedChild()
		if !found {
			break
		}
		admitted = append(admitted, child)
	}
	var events []event.Event
	for _, a := range admitted {
		m.adopt(a)
		events = append(events, m.announce(now, a)...)
	}
	return events, admitted
}

// adopt switches the public chain to b if it is longer. Mining on the
// previous head is abandoned.
func (m *Miner) adopt(b chain.Block) {
	if !m.tree.SwitchToLongestChain(b, m.mempool) {
		return
	}
	if m.private == nil && m.processing != nil {
		log.Debugw("mining preempted", "miner", m.id, "abandoned", m.processing.ID, "head", b.ID)
		m.processing = nil
	}
}

// ReceivePrivateChain admits a block revealed by the ring master, forwards it
// once over the malicious network and announces it to honest neighbours.
func (m *Miner) ReceivePrivateChain(e event.Event) []event.Event {
	b, ok := e.Block()
	if !ok {
		return nil
	}
	if sent, seen := m.privateSent[b.ID]; seen {
		sent.add(e.Sender)
		return nil
	}
	sent := sentTo(m.privateSent, b.ID)
	sent.add(e.Sender)
	events := m.forwardPrivate(e.Timestamp, b, sent)

	sentTo(m.hashSent, b.Hash()).add(e.Sender)
	m.completeDownload(b.Hash())
	announcements, _ := m.admit(e.Timestamp, b)
	return append(events, announcements...)
}

func (m *Miner) forwardPrivate(now time.Time, b chain.Block, sent peerSet) []event.Event {
	var events []event.Event
	for _, peer := range m.maliciousPeers {
		if sent.add(peer) {
			events = append(events, m.send(now, event.BroadcastPrivateChain, b.Owner, peer, true, event.FullBlock{Block: b}))
		}
	}
	return events
}

// CheckAndBroadcastPrivate reveals every withheld block of a ring master when
// its reveal policy says so, or when forced. It is a no-op for other
// roles.
func (m *Miner) CheckAndBroadcastPrivate(now time.Time, force bool) []event.Event {
	if m.private == nil || len(m.private.withheld) == 0 {
		return nil
	}
	if !force && !m.private.due(m.reveal, m.tree.Height()) {
		return nil
	}
	return m.revealWithheld(now)
}

// Neighbors returns the honest and malicious neighbours of the miner.
func (m *Miner) Neighbors() (honest, malicious []chain.MinerID) {
	return slices.Clone(m.honestPeers), slices.Clone(m.maliciousPeers)
}
