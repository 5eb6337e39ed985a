package chain

// IDGenerator allocates block and transaction ids. Every simulation owns one
// generator and shares it with its miners so that ids are unique per run and
// reproducible for a given seed.
type IDGenerator struct {
	nextBlock BlockID
	nextTxn   TxnID
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{nextBlock: GenesisID + 1, nextTxn: 1}
}

func (g *IDGenerator) NextBlockID() BlockID {
	id := g.nextBlock
	g.nextBlock++
	return id
}

func (g *IDGenerator) NextTxnID() TxnID {
	id := g.nextTxn
	g.nextTxn++
	return id
}
