// Package sim runs a population of miners as a discrete-event simulation over
// modelled honest and malicious peer networks.
package sim

import (
	"context"
	"fmt"
	"hash"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/event"
	"github.com/filecoin-project/go-chainsim/miner"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/rand"
	"golang.org/x/xerrors"
)

var log = logging.Logger("chainsim/sim")

type Simulation struct {
	*options
	miners []*miner.Miner
	// hashPower is indexed by miner id.
	hashPower []float64
	ids       *chain.IDGenerator
	queue     *eventQueue
	clock     time.Time

	generating bool
	confirmed  int
	revealed   int
	dispatched int
	digest     hash.Hash
}

// Trace identifies the sequence of events a run dispatched.
type Trace struct {
	Events int
	// Digest is a hash over every dispatched event in order.
	Digest chain.Hash
}

func NewSimulation(o ...Option) (*Simulation, error) {
	opts, err := newOptions(o...)
	if err != nil {
		return nil, err
	}
	digest, err := blake2b.New256(nil)
	if err != nil {
		return nil, xerrors.Errorf("initialising event digest: %w", err)
	}
	s := &Simulation{
		options:    opts,
		ids:        chain.NewIDGenerator(),
		queue:      newEventQueue(),
		generating: true,
		digest:     digest,
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// init assigns roles, builds the networks unless given and instantiates the
// miners. Miner 0 is the ring master of the adversaries, followed by the
// eclipsing miners.
func (s *Simulation) init() error {
	var (
		settings    = s.settings
		n           = settings.TotalNodes
		k           = settings.Adversaries()
		rng         = rand.New(rand.NewSource(settings.Seed))
		all         = make([]chain.MinerID, n)
		adversaries = make([]chain.MinerID, k)
	)
	for i := range all {
		all[i] = chain.MinerID(i)
	}
	copy(adversaries, all[:k])

	if s.honestNetwork == nil || (k > 0 && s.maliciousNetwork == nil) {
		honest, malicious, err := generateNetworks(all, adversaries, rng)
		if err != nil {
			return err
		}
		if s.honestNetwork == nil {
			s.honestNetwork = honest
		}
		if s.maliciousNetwork == nil && malicious != nil {
			s.maliciousNetwork = malicious
		}
	}

	s.miners = make([]*miner.Miner, n)
	s.hashPower = make([]float64, n)
	for i, id := range all {
		role := miner.Honest
		power := 1 / float64(n)
		switch {
		case i == 0 && k > 0:
			role = miner.RingMaster
			power = float64(k) / float64(n)
		case i < k:
			role = miner.Eclipsing
			power = 0
		}
		var maliciousPeers []chain.MinerID
		if role.Malicious() {
			maliciousPeers = s.maliciousNetwork.Neighbors(id)
		}
		m, err := miner.New(id, role,
			miner.WithTotalNodes(n),
			miner.WithTxnInterval(settings.TxnInterval),
			miner.WithBlockInterval(settings.BlockInterval),
			miner.WithTimeout(settings.Timeout),
			miner.WithHashPower(power),
			miner.WithPeers(s.honestNetwork.Neighbors(id), maliciousPeers),
			miner.WithCoalition(adversaries),
			miner.WithEclipse(settings.Eclipse),
			miner.WithRevealPolicy(s.reveal),
			miner.WithIDGenerator(s.ids),
			miner.WithRand(rand.New(rand.NewSource(rng.Uint64()))),
		)
		if err != nil {
			return xerrors.Errorf("instantiating miner %d: %w", id, err)
		}
		s.miners[i] = m
		s.hashPower[i] = power
	}
	log.Infow("simulation initialised", "miners", n, "adversaries", k, "eclipse", settings.Eclipse, "seed", settings.Seed)
	return nil
}

// Run dispatches events in timestamp order until block generation stops and
// every message in flight has been delivered. Generation stops once more than
// the block limit of blocks have been mined, or the time limit has passed.
// Ring masters are then forced to reveal their private chains.
func (s *Simulation) Run(ctx context.Context) error {
	start := s.clock
	for {
		if err := ctx.Err(); err != nil {
			return xerrors.Errorf("simulation interrupted at %s: %w", s.clock.Sub(start), err)
		}
		if s.generating {
			if s.limitReached(start) {
				s.stopGenerating(ctx)
			} else {
				for _, m := range s.miners {
					s.schedule(m.Events(s.clock)...)
				}
			}
		}
		e, ok := s.queue.Remove()
		if !ok {
			break
		}
		if !s.generating && e.Kind == event.BlockCreation {
			continue
		}
		s.clock = e.Timestamp
		s.dispatch(ctx, e)
	}
	log.Infow("simulation finished", "elapsed", s.clock.Sub(start), "confirmed", s.confirmed, "revealed", s.revealed, "events", s.dispatched)
	return nil
}

func (s *Simulation) limitReached(start time.Time) bool {
	settings := s.settings
	return (settings.BlockLimit > 0 && s.confirmed > settings.BlockLimit) ||
		(settings.TimeLimit > 0 && s.clock.Sub(start) > settings.TimeLimit)
}

func (s *Simulation) stopGenerating(ctx context.Context) {
	s.generating = false
	s.log(TraceLogic, "block generation stopped after %d blocks", s.confirmed)
	for _, m := range s.miners {
		s.afterReceive(ctx, m, func() []event.Event { return m.CheckAndBroadcastPrivate(s.clock, true) })
	}
}

func (s *Simulation) schedule(events ...event.Event) {
	for _, e := range events {
		s.queue.Insert(e)
	}
}

func (s *Simulation) dispatch(ctx context.Context, e event.Event) {
	s.dispatched++
	_, _ = fmt.Fprintf(s.digest, "%d %s\n", e.Timestamp.Sub(time.Time{}), e)
	recordDispatched(ctx, e.Kind)

	if e.Kind.IsSend() {
		s.send(e)
		return
	}
	if int(e.Receiver) < 0 || int(e.Receiver) >= len(s.miners) {
		log.Errorw("dropped event to unknown miner", "event", e)
		return
	}
	m := s.miners[e.Receiver]
	s.log(TraceRecvd, "P%d ← P%d: %v", e.Receiver, e.Sender, e)
	switch e.Kind {
	case event.ReceiveTransaction:
		s.schedule(m.ReceiveTransaction(e)...)
	case event.ReceiveHash:
		s.schedule(m.ReceiveHash(e)...)
	case event.ReceiveGet:
		s.schedule(m.ReceiveGet(e)...)
	case event.GetTimeout:
		s.schedule(m.HandleTimeout(e)...)
	case event.ReceiveBlock:
		s.afterReceive(ctx, m, func() []event.Event { return m.ReceiveBlock(e) })
	case event.ReceivePrivateChain:
		s.afterReceive(ctx, m, func() []event.Event { return m.ReceivePrivateChain(e) })
	case event.BlockCreation:
		out, mined := m.ConfirmBlock(e)
		if mined {
			s.confirmed++
			metrics.confirmed.Add(ctx, 1)
			s.log(TraceLogic, "P%d mined block %d", m.ID(), s.confirmed)
		}
		s.schedule(out...)
	default:
		log.Errorw("dropped event of unknown kind", "event", e)
	}
}

// afterReceive runs a handler that may change the chain of m and records the
// reorganisations and reveals it caused.
func (s *Simulation) afterReceive(ctx context.Context, m *miner.Miner, handle func() []event.Event) {
	reorgs, reveals := m.Tree().Stats().Reorgs, m.Reveals()
	s.schedule(handle()...)
	if stats := m.Tree().Stats(); stats.Reorgs > reorgs {
		metrics.reorgDepth.Record(ctx, int64(stats.LastReorgDepth))
		s.log(TraceLogic, "P%d reorganised %d blocks", m.ID(), stats.LastReorgDepth)
	}
	if n := m.Reveals() - reveals; n > 0 {
		s.revealed += n
		metrics.revealed.Add(ctx, int64(n))
	}
}

// send delivers e over the network its Malicious flag selects. Broadcasts are
// first looped back to their sender, which relays them to its neighbours.
func (s *Simulation) send(e event.Event) {
	s.log(TraceSent, "P%d ↗ P%d: %v", e.Sender, e.Receiver, e)
	if e.Broadcast {
		s.schedule(e.Deliver(e.Sender, e.Timestamp))
		return
	}
	network := s.honestNetwork
	if e.Malicious {
		network = s.maliciousNetwork
	}
	if network == nil {
		log.Errorw("dropped malicious event without a malicious network", "event", e)
		return
	}
	delay := network.Latency(e.Timestamp, e.Sender, e.Receiver, e.Size())
	s.schedule(e.Deliver(e.Receiver, e.Timestamp.Add(delay)))
}

func (s *Simulation) log(level int, format string, args ...any) {
	if level <= s.traceLevel {
		log.Infof("[%.3f] "+format, append([]any{s.clock.Sub(time.Time{}).Seconds()}, args...)...)
	}
}

// Miner returns the miner with the given id, or nil.
func (s *Simulation) Miner(id chain.MinerID) *miner.Miner {
	if int(id) < 0 || int(id) >= len(s.miners) {
		return nil
	}
	return s.miners[id]
}

func (s *Simulation) Miners() []*miner.Miner { return s.miners }

// Confirmed returns the number of blocks mined.
func (s *Simulation) Confirmed() int { return s.confirmed }

// Elapsed returns the simulated time since the start of the run.
func (s *Simulation) Elapsed() time.Duration { return s.clock.Sub(time.Time{}) }

// Dispatched identifies the events dispatched so far.
func (s *Simulation) Dispatched() Trace {
	var digest chain.Hash
	copy(digest[:], s.digest.Sum(nil))
	return Trace{Events: s.dispatched, Digest: digest}
}
