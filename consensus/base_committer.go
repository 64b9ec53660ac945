/*
Package consensus implements the commit rule of the DAG: which leader blocks are
committed and which leader slots are skipped, in a total order every honest
authority derives from its own copy of the DAG.

A BaseCommitter decides the leaders of the rounds of one pipeline offset. The
UniversalCommitter runs one BaseCommitter per offset and merges their decisions.
*/
package consensus

import (
	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/hashicorp/go-hclog"
)

// BlockReader is the part of the block store the committers read. *dag.BlockStore implements it.
type BlockReader interface {
	HighestRound() uint64
	BlocksAtRound(round uint64) []*types.StatementBlock
	BlocksAtAuthorityRound(a types.Authority, round uint64) []*types.StatementBlock
	// AncestorsAtRound returns the blocks at round in the causal history of from.
	AncestorsAtRound(from types.BlockReference, round uint64) []*types.StatementBlock
}

// BaseCommitter decides the leaders of the rounds r with (r - roundOffset) % waveLength == 0.
// The leader of round r is voted for by the blocks of round r+1 and certified by those of round r+2.
type BaseCommitter struct {
	committee   *committee.Committee
	store       BlockReader
	schedule    *LeaderSchedule
	waveLength  uint64
	roundOffset uint64
	logger      hclog.Logger
}

func NewBaseCommitter(c *committee.Committee, store BlockReader, schedule *LeaderSchedule,
	waveLength, roundOffset uint64, logger hclog.Logger) *BaseCommitter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &BaseCommitter{
		committee:   c,
		store:       store,
		schedule:    schedule,
		waveLength:  waveLength,
		roundOffset: roundOffset,
		logger:      logger.With("offset", roundOffset),
	}
}

func (c *BaseCommitter) RoundOffset() uint64 {
	return c.roundOffset
}

// ElectLeader returns the leader slot of round, or false if the committer is not
// responsible for round. Round 0 never has a leader.
func (c *BaseCommitter) ElectLeader(round uint64) (types.AuthorityRound, bool) {
	if round == 0 || round < c.roundOffset || (round-c.roundOffset)%c.waveLength != 0 {
		return types.AuthorityRound{}, false
	}
	return types.AuthorityRound{Authority: c.schedule.LeaderFor(round), Round: round}, true
}

// leaderRounds lists the rounds in (from, to] the committer is responsible for.
func (c *BaseCommitter) leaderRounds(from, to uint64) []uint64 {
	round := from + 1
	if round < c.roundOffset {
		round = c.roundOffset
	}
	if rem := (round - c.roundOffset) % c.waveLength; rem != 0 {
		round += c.waveLength - rem
	}
	var rounds []uint64
	for ; round <= to; round += c.waveLength {
		rounds = append(rounds, round)
	}
	return rounds
}

// TryDirectDecide decides the slot from the two rounds above it. A block of round
// r+1 votes for a leader block by referencing it; a block of round r+2 certifies the
// leader block when its history at round r+1 holds a quorum of votes. The slot is
// committed when a quorum of round r+2 blocks certify one of its blocks, and skipped
// when a quorum of round r+1 blocks references no block of the slot.
func (c *BaseCommitter) TryDirectDecide(slot types.AuthorityRound) LeaderStatus {
	certifiers := c.store.BlocksAtRound(slot.Round + 2)
	for _, leader := range c.store.BlocksAtAuthorityRound(slot.Authority, slot.Round) {
		certificates := c.committee.NewQuorumAggregator()
		for _, certifier := range certifiers {
			if c.isCertificate(certifier, leader) && certificates.Add(certifier.Author()) {
				return Commit(leader)
			}
		}
	}

	blames := c.committee.NewQuorumAggregator()
	for _, voter := range c.store.BlocksAtRound(slot.Round + 1) {
		if !voter.ReferencesSlot(slot) && blames.Add(voter.Author()) {
			return Skip(slot)
		}
	}
	return Undecided(slot)
}

// isCertificate reports whether the history of certifier at the round above the
// leader holds a quorum of votes for it. An equivocating voter is counted once.
func (c *BaseCommitter) isCertificate(certifier, leader *types.StatementBlock) bool {
	votes := c.committee.NewQuorumAggregator()
	for _, voter := range c.store.AncestorsAtRound(certifier.Reference(), leader.Round()+1) {
		if voter.References(leader.Reference()) && votes.Add(voter.Author()) {
			return true
		}
	}
	return false
}

// TryIndirectDecide decides the slot from the decisions of higher rounds, given in
// increasing round order. The anchor is the first committed leader of this offset at
// least a wave above the slot; skipped slots are passed over and an undecided one
// ends the search. The slot is committed if the anchor's history at round r+2 holds
// a certificate for one of its blocks, and skipped otherwise.
func (c *BaseCommitter) TryIndirectDecide(slot types.AuthorityRound, later []LeaderStatus) LeaderStatus {
	anchor := c.findAnchor(slot.Round, later)
	if anchor == nil {
		return Undecided(slot)
	}
	return c.decideFromAnchor(slot, anchor)
}

// findAnchor only considers the leader rounds of this offset, so that the anchor of
// a slot does not depend on whether other offsets run.
func (c *BaseCommitter) findAnchor(round uint64, later []LeaderStatus) *types.StatementBlock {
	for _, status := range later {
		if status.Round() < round+c.waveLength || (status.Round()-round)%c.waveLength != 0 {
			continue
		}
		switch status.Kind() {
		case KindCommit:
			return status.Block()
		case KindUndecided:
			return nil
		}
	}
	return nil
}

func (c *BaseCommitter) decideFromAnchor(slot types.AuthorityRound, anchor *types.StatementBlock) LeaderStatus {
	certifiers := c.store.AncestorsAtRound(anchor.Reference(), slot.Round+2)

	var certified *types.StatementBlock
	for _, leader := range c.store.BlocksAtAuthorityRound(slot.Authority, slot.Round) {
		if certified != nil && !leader.Digest().Less(certified.Digest()) {
			continue
		}
		for _, certifier := range certifiers {
			if c.isCertificate(certifier, leader) {
				certified = leader
				break
			}
		}
	}
	if certified != nil {
		c.logger.Trace("leader is certified in the anchor's history", "slot", slot,
			"anchor", anchor.Reference())
		return Commit(certified)
	}
	return Skip(slot)
}

// DecideLeader decides the leader of round, directly if possible and otherwise from
// the later decisions. The boolean reports a direct decision. Rounds the committer
// is not responsible for are Undecided.
func (c *BaseCommitter) DecideLeader(round uint64, later []LeaderStatus) (LeaderStatus, bool) {
	slot, ok := c.ElectLeader(round)
	if !ok {
		return Undecided(types.AuthorityRound{Round: round}), false
	}
	if status := c.TryDirectDecide(slot); status.IsDecided() {
		return status, true
	}
	return c.TryIndirectDecide(slot, later), false
}
