/*
Package dag implements the append-only block store the committers read from.

Blocks are indexed by round in a btree and, inside a round, kept in the order they
were first inserted. A block is accepted only once all of its parents are stored, so
the causal history of a stored block never changes; reachability answers are cached
on that basis.
*/
package dag

import (
	"errors"
	"fmt"

	"github.com/algorand/go-deadlock"
	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/sign"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru"
	"github.com/hashicorp/go-hclog"
)

const (
	defaultTreeDegree        = 32
	DefaultReachabilityCache = 4096
)

var (
	ErrUnknownAuthority   = errors.New("block author is not in the committee")
	ErrGenesisBlock       = errors.New("genesis blocks cannot be inserted")
	ErrInvalidDigest      = errors.New("block digest does not match its content")
	ErrInvalidSignature   = errors.New("block signature does not verify")
	ErrMissingParent      = errors.New("block parent is not in the store")
	ErrParentRound        = errors.New("block parent is not from an earlier round")
	ErrInsufficientParent = errors.New("block does not reference a quorum of the previous round")
)

type roundEntry struct {
	round  uint64
	blocks []*types.StatementBlock // first-seen order
}

func lessRound(a, b *roundEntry) bool {
	return a.round < b.round
}

type reachKey struct {
	from  types.BlockReference
	round uint64
}

// BlockStore is safe for concurrent use by one writer and many readers.
type BlockStore struct {
	lock      deadlock.RWMutex
	committee *committee.Committee
	rounds    *btree.BTreeG[*roundEntry]
	blocks    map[types.BlockReference]*types.StatementBlock
	reach     *lru.Cache // reachKey -> []*types.StatementBlock
	logger    hclog.Logger
}

// Options configures a BlockStore.
type Options struct {
	// ReachabilityCache is the number of AncestorsAtRound answers kept in memory.
	ReachabilityCache int
	Logger            hclog.Logger
}

// NewBlockStore creates a store holding the genesis block of every authority.
func NewBlockStore(c *committee.Committee, opts Options) (*BlockStore, error) {
	if opts.ReachabilityCache <= 0 {
		opts.ReachabilityCache = DefaultReachabilityCache
	}
	if opts.Logger == nil {
		opts.Logger = hclog.New(&hclog.LoggerOptions{
			Name:   "dag-store",
			Output: hclog.DefaultOutput,
			Level:  hclog.Info,
		})
	}
	cache, err := lru.New(opts.ReachabilityCache)
	if err != nil {
		return nil, err
	}
	s := &BlockStore{
		committee: c,
		rounds:    btree.NewG(defaultTreeDegree, lessRound),
		blocks:    make(map[types.BlockReference]*types.StatementBlock),
		reach:     cache,
		logger:    opts.Logger,
	}
	for _, a := range c.Authorities() {
		s.add(types.NewGenesisBlock(a))
	}
	return s, nil
}

// Committee returns the committee the store validates blocks against.
func (s *BlockStore) Committee() *committee.Committee {
	return s.committee
}

// Insert validates and stores a block. Inserting a block that is already stored is a no-op.
func (s *BlockStore) Insert(block *types.StatementBlock) error {
	if err := s.verifyContent(block); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.blocks[block.Reference()]; ok {
		return nil
	}
	if err := s.checkParents(block); err != nil {
		return err
	}
	s.add(block)
	s.logger.Trace("block is inserted", "block", block.Reference())
	return nil
}

// checks that need no access to the stored blocks
func (s *BlockStore) verifyContent(block *types.StatementBlock) error {
	ref := block.Reference()
	if !s.committee.Exists(ref.Authority) {
		return fmt.Errorf("%v: %w", ref, ErrUnknownAuthority)
	}
	if ref.Round == 0 {
		return fmt.Errorf("%v: %w", ref, ErrGenesisBlock)
	}
	ok, err := block.VerifyDigest()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%v: %w", ref, ErrInvalidDigest)
	}
	if s.committee.VerifiesSignatures() {
		ok, err := sign.Verify(s.committee.PublicKey(ref.Authority), ref.Digest[:], block.Signature())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%v: %w", ref, ErrInvalidSignature)
		}
	}
	return nil
}

// must be called with the lock held
func (s *BlockStore) checkParents(block *types.StatementBlock) error {
	ref := block.Reference()
	previousRound := s.committee.NewQuorumAggregator()
	for _, parent := range block.Parents() {
		if parent.Round >= ref.Round {
			return fmt.Errorf("%v -> %v: %w", ref, parent, ErrParentRound)
		}
		if _, ok := s.blocks[parent]; !ok {
			return fmt.Errorf("%v -> %v: %w", ref, parent, ErrMissingParent)
		}
		if parent.Round == ref.Round-1 {
			previousRound.Add(parent.Authority)
		}
	}
	if !previousRound.Reached() {
		return fmt.Errorf("%v: %w", ref, ErrInsufficientParent)
	}
	return nil
}

// must be called with the lock held
func (s *BlockStore) add(block *types.StatementBlock) {
	s.blocks[block.Reference()] = block
	entry, ok := s.rounds.Get(&roundEntry{round: block.Round()})
	if !ok {
		entry = &roundEntry{round: block.Round()}
		s.rounds.ReplaceOrInsert(entry)
	}
	entry.blocks = append(entry.blocks, block)
}

// Get returns the block with the given reference.
func (s *BlockStore) Get(ref types.BlockReference) (*types.StatementBlock, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	block, ok := s.blocks[ref]
	return block, ok
}

// Contains reports whether the block is stored.
func (s *BlockStore) Contains(ref types.BlockReference) bool {
	_, ok := s.Get(ref)
	return ok
}

// HighestRound returns the highest round with at least one stored block.
func (s *BlockStore) HighestRound() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	entry, ok := s.rounds.Max()
	if !ok {
		return 0
	}
	return entry.round
}

// BlocksAtRound returns the blocks of a round in first-seen order.
// The returned slice is a copy and is never modified by later inserts.
func (s *BlockStore) BlocksAtRound(round uint64) []*types.StatementBlock {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.blocksAtRound(round)
}

func (s *BlockStore) blocksAtRound(round uint64) []*types.StatementBlock {
	entry, ok := s.rounds.Get(&roundEntry{round: round})
	if !ok {
		return nil
	}
	return append([]*types.StatementBlock(nil), entry.blocks...)
}

// BlocksAtAuthorityRound returns every block an authority produced in a round.
// More than one block means the authority equivocated.
func (s *BlockStore) BlocksAtAuthorityRound(a types.Authority, round uint64) []*types.StatementBlock {
	s.lock.RLock()
	defer s.lock.RUnlock()
	entry, ok := s.rounds.Get(&roundEntry{round: round})
	if !ok {
		return nil
	}
	var blocks []*types.StatementBlock
	for _, b := range entry.blocks {
		if b.Author() == a {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// Blocks returns every stored non-genesis block ordered by round, first-seen order inside a round.
func (s *BlockStore) Blocks() []*types.StatementBlock {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var blocks []*types.StatementBlock
	s.rounds.AscendGreaterOrEqual(&roundEntry{round: 1}, func(entry *roundEntry) bool {
		blocks = append(blocks, entry.blocks...)
		return true
	})
	return blocks
}

// Len returns the number of stored blocks, genesis included.
func (s *BlockStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.blocks)
}

// AncestorsAtRound returns the blocks of the given round that are in the causal
// history of from (from itself included when it is at that round), in first-seen order.
func (s *BlockStore) AncestorsAtRound(from types.BlockReference, round uint64) []*types.StatementBlock {
	key := reachKey{from: from, round: round}
	if cached, ok := s.reach.Get(key); ok {
		return cached.([]*types.StatementBlock)
	}

	s.lock.RLock()
	defer s.lock.RUnlock()
	if _, ok := s.blocks[from]; !ok || from.Round < round {
		return nil
	}
	frontier := map[types.BlockReference]struct{}{from: {}}
	for r := from.Round; r > round; r-- {
		next := make(map[types.BlockReference]struct{})
		for ref := range frontier {
			if ref.Round != r {
				// kept from an earlier step, the parent skipped some rounds
				next[ref] = struct{}{}
				continue
			}
			for _, parent := range s.blocks[ref].Parents() {
				if parent.Round >= round {
					next[parent] = struct{}{}
				}
			}
		}
		frontier = next
	}

	var ancestors []*types.StatementBlock
	for _, b := range s.blocksAtRound(round) {
		if _, ok := frontier[b.Reference()]; ok {
			ancestors = append(ancestors, b)
		}
	}
	s.reach.Add(key, ancestors)
	return ancestors
}

// Linked reports whether to is in the causal history of from (a block is linked to itself).
func (s *BlockStore) Linked(from, to types.BlockReference) bool {
	for _, b := range s.AncestorsAtRound(from, to.Round) {
		if b.Reference() == to {
			return true
		}
	}
	return false
}

// Ancestors returns the transitive parent closure of ref, genesis blocks included.
func (s *BlockStore) Ancestors(ref types.BlockReference) map[types.BlockReference]struct{} {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ancestors := make(map[types.BlockReference]struct{})
	block, ok := s.blocks[ref]
	if !ok {
		return ancestors
	}
	pending := block.Parents()
	for len(pending) > 0 {
		last := len(pending) - 1
		parent := pending[last]
		pending = pending[:last]
		if _, ok := ancestors[parent]; ok {
			continue
		}
		ancestors[parent] = struct{}{}
		pending = append(pending, s.blocks[parent].Parents()...)
	}
	return ancestors
}
