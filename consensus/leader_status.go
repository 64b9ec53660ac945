package consensus

import (
	"fmt"

	"github.com/gitzhang10/mysticeti/types"
)

// StatusKind tags a LeaderStatus.
type StatusKind uint8

const (
	KindUndecided StatusKind = iota
	KindCommit
	KindSkip
)

func (k StatusKind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindSkip:
		return "skip"
	default:
		return "undecided"
	}
}

// LeaderStatus is the outcome of deciding one leader slot. Only Commit carries a block.
type LeaderStatus struct {
	kind  StatusKind
	slot  types.AuthorityRound
	block *types.StatementBlock
}

// Commit orders the leader block.
func Commit(block *types.StatementBlock) LeaderStatus {
	return LeaderStatus{
		kind:  KindCommit,
		slot:  block.Reference().AuthorityRound(),
		block: block,
	}
}

// Skip orders an empty slot.
func Skip(slot types.AuthorityRound) LeaderStatus {
	return LeaderStatus{kind: KindSkip, slot: slot}
}

// Undecided means the DAG is not deep enough yet.
func Undecided(slot types.AuthorityRound) LeaderStatus {
	return LeaderStatus{kind: KindUndecided, slot: slot}
}

func (s LeaderStatus) Kind() StatusKind             { return s.kind }
func (s LeaderStatus) Slot() types.AuthorityRound   { return s.slot }
func (s LeaderStatus) Authority() types.Authority   { return s.slot.Authority }
func (s LeaderStatus) Round() uint64                { return s.slot.Round }
func (s LeaderStatus) Block() *types.StatementBlock { return s.block }
func (s LeaderStatus) IsDecided() bool              { return s.kind != KindUndecided }
func (s LeaderStatus) IsCommit() bool               { return s.kind == KindCommit }

// Reference is the watermark to pass to the next TryCommit call once this
// status has been consumed. A skipped slot yields a reference with a zero digest.
func (s LeaderStatus) Reference() types.BlockReference {
	if s.block != nil {
		return s.block.Reference()
	}
	return types.BlockReference{Authority: s.slot.Authority, Round: s.slot.Round}
}

func (s LeaderStatus) String() string {
	if s.kind == KindCommit {
		return fmt.Sprintf("Commit(%v)", s.block.Reference())
	}
	if s.kind == KindSkip {
		return fmt.Sprintf("Skip(%v)", s.slot)
	}
	return fmt.Sprintf("Undecided(%v)", s.slot)
}
