package consensus

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/types"
	"go.dedis.ch/kyber/v3/xof/blake2xb"
)

// Scheme names a leader election scheme.
type Scheme string

const (
	RoundRobin    Scheme = "round-robin"
	StakeWeighted Scheme = "stake-weighted"
)

var ErrUnknownScheme = errors.New("unknown leader schedule")

// ParseScheme maps a configuration value to a scheme. An empty name selects StakeWeighted.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(name) {
	case "", StakeWeighted:
		return StakeWeighted, nil
	case RoundRobin:
		return RoundRobin, nil
	}
	return "", fmt.Errorf("%q: %w", name, ErrUnknownScheme)
}

// LeaderSchedule elects the leader of a round. It depends only on the committee and
// the round, so every authority computes the same schedule without communicating.
type LeaderSchedule struct {
	committee *committee.Committee
	scheme    Scheme
}

func NewLeaderSchedule(c *committee.Committee, scheme Scheme) (*LeaderSchedule, error) {
	if scheme != RoundRobin && scheme != StakeWeighted {
		return nil, fmt.Errorf("%q: %w", scheme, ErrUnknownScheme)
	}
	return &LeaderSchedule{committee: c, scheme: scheme}, nil
}

func (s *LeaderSchedule) Scheme() Scheme {
	return s.scheme
}

// LeaderFor returns the leader of round.
func (s *LeaderSchedule) LeaderFor(round uint64) types.Authority {
	if s.scheme == RoundRobin {
		return types.Authority(round % uint64(s.committee.Size()))
	}
	return s.stakeWeighted(round)
}

// the round seeds a blake2xb stream; its first 8 bytes pick a point on the
// cumulative stake line and the authority owning that point leads
func (s *LeaderSchedule) stakeWeighted(round uint64) types.Authority {
	seed := make([]byte, 8)
	binary.BigEndian.PutUint64(seed, round)
	out := make([]byte, 8)
	if _, err := blake2xb.New(seed).Read(out); err != nil {
		// reading from an unkeyed XOF does not fail
		panic(err)
	}
	point := binary.BigEndian.Uint64(out) % s.committee.TotalStake()
	var cumulative uint64
	for _, a := range s.committee.Authorities() {
		cumulative += s.committee.Stake(a)
		if point < cumulative {
			return a
		}
	}
	return types.Authority(s.committee.Size() - 1)
}
