package committee

import "github.com/gitzhang10/mysticeti/types"

// StakeAggregator sums the stake of distinct authorities until a threshold is met.
// An authority is counted at most once however many times it is added.
type StakeAggregator struct {
	committee *Committee
	threshold uint64
	seen      map[types.Authority]struct{}
	stake     uint64
}

func (c *Committee) NewQuorumAggregator() *StakeAggregator {
	return c.NewStakeAggregator(c.QuorumThreshold())
}

func (c *Committee) NewValidityAggregator() *StakeAggregator {
	return c.NewStakeAggregator(c.ValidityThreshold())
}

func (c *Committee) NewStakeAggregator(threshold uint64) *StakeAggregator {
	return &StakeAggregator{
		committee: c,
		threshold: threshold,
		seen:      make(map[types.Authority]struct{}),
	}
}

// Add counts the stake of a and reports whether the threshold is reached.
func (s *StakeAggregator) Add(a types.Authority) bool {
	if _, ok := s.seen[a]; !ok {
		s.seen[a] = struct{}{}
		s.stake += s.committee.Stake(a)
	}
	return s.Reached()
}

func (s *StakeAggregator) Reached() bool {
	return s.stake >= s.threshold
}

func (s *StakeAggregator) Stake() uint64 {
	return s.stake
}
