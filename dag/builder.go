package dag

import (
	"encoding/binary"
	"fmt"

	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/sign"
	"github.com/gitzhang10/mysticeti/types"
	"go.dedis.ch/kyber/v3"
)

// Builder constructs DAGs deterministically, for tests and synthetic workloads.
// Every block gets a unique payload, so building the same slot twice yields an
// equivocation. Builder panics if a block cannot be encoded or signed.
type Builder struct {
	committee *committee.Committee
	signers   []kyber.Scalar
	blocks    []*types.StatementBlock
	byRound   map[uint64][]*types.StatementBlock
	nonce     uint64
}

func NewBuilder(c *committee.Committee) *Builder {
	b := &Builder{
		committee: c,
		byRound:   make(map[uint64][]*types.StatementBlock),
	}
	for _, a := range c.Authorities() {
		b.byRound[0] = append(b.byRound[0], types.NewGenesisBlock(a))
	}
	return b
}

// WithSigners makes the builder sign every block; privateKeys is indexed by authority.
func (b *Builder) WithSigners(privateKeys []kyber.Scalar) *Builder {
	b.signers = privateKeys
	return b
}

// Block builds one block of author at round with the given parents.
func (b *Builder) Block(author types.Authority, round uint64, parents ...types.BlockReference) *types.StatementBlock {
	b.nonce++
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, b.nonce)
	block, err := types.NewStatementBlock(author, round, parents, [][]byte{payload}, int64(round))
	if err != nil {
		panic(fmt.Sprintf("cannot build block %v@%d: %v", author, round, err))
	}
	if b.signers != nil {
		digest := block.Digest()
		sig, err := sign.Sign(b.signers[author], digest[:])
		if err != nil {
			panic(fmt.Sprintf("cannot sign block %v: %v", block.Reference(), err))
		}
		block.SetSignature(sig)
	}
	b.blocks = append(b.blocks, block)
	b.byRound[round] = append(b.byRound[round], block)
	return block
}

// Refs returns the reference of the first block of every authority at round,
// skipping the excluded authorities.
func (b *Builder) Refs(round uint64, exclude ...types.Authority) []types.BlockReference {
	excluded := make(map[types.Authority]bool, len(exclude))
	for _, a := range exclude {
		excluded[a] = true
	}
	seen := make(map[types.Authority]bool)
	var refs []types.BlockReference
	for _, block := range b.byRound[round] {
		if excluded[block.Author()] || seen[block.Author()] {
			continue
		}
		seen[block.Author()] = true
		refs = append(refs, block.Reference())
	}
	return refs
}

// FullRound builds one block per author (every authority if none is given), each
// referencing the first block of every authority at the previous round.
func (b *Builder) FullRound(round uint64, authors ...types.Authority) []*types.StatementBlock {
	if len(authors) == 0 {
		authors = b.committee.Authorities()
	}
	parents := b.Refs(round - 1)
	blocks := make([]*types.StatementBlock, 0, len(authors))
	for _, a := range authors {
		blocks = append(blocks, b.Block(a, round, parents...))
	}
	return blocks
}

// FullRounds builds full rounds from..to, both included.
func (b *Builder) FullRounds(from, to uint64) {
	for round := from; round <= to; round++ {
		b.FullRound(round)
	}
}

// RoundWith builds one block per author at round with the parents chosen by the callback.
func (b *Builder) RoundWith(round uint64, authors []types.Authority,
	parents func(author types.Authority) []types.BlockReference) []*types.StatementBlock {
	blocks := make([]*types.StatementBlock, 0, len(authors))
	for _, a := range authors {
		blocks = append(blocks, b.Block(a, round, parents(a)...))
	}
	return blocks
}

// Round returns the blocks built at round, genesis blocks for round 0.
func (b *Builder) Round(round uint64) []*types.StatementBlock {
	return append([]*types.StatementBlock(nil), b.byRound[round]...)
}

// Blocks returns every non-genesis block in build order.
func (b *Builder) Blocks() []*types.StatementBlock {
	return append([]*types.StatementBlock(nil), b.blocks...)
}

// HighestRound returns the highest round a block was built at.
func (b *Builder) HighestRound() uint64 {
	var highest uint64
	for round := range b.byRound {
		if round > highest {
			highest = round
		}
	}
	return highest
}

// InsertInto inserts every built block, in build order, into the store.
func (b *Builder) InsertInto(store *BlockStore) error {
	return InsertAll(store, b.blocks)
}

// InsertAll inserts blocks into the store in the given order.
func InsertAll(store *BlockStore, blocks []*types.StatementBlock) error {
	for _, block := range blocks {
		if err := store.Insert(block); err != nil {
			return err
		}
	}
	return nil
}
