/*
Package committee implements the frozen, stake-weighted authority set the committers
are evaluated against. All certification checks are stake based, never count based.
*/
package committee

import (
	"errors"
	"fmt"
	"math"

	"github.com/gitzhang10/mysticeti/types"
	"go.dedis.ch/kyber/v3"
)

var (
	ErrEmptyCommittee   = errors.New("committee has no authority")
	ErrZeroStake        = errors.New("authority has zero stake")
	ErrStakeOverflow    = errors.New("total stake overflows")
	ErrKeyCountMismatch = errors.New("number of public keys does not match the committee size")
)

// Committee is immutable once created.
type Committee struct {
	stakes     []uint64 // indexed by authority
	totalStake uint64
	publicKeys []kyber.Point // nil when blocks are not signed
}

// New creates a committee from the stake of each authority; authority i has stakes[i].
func New(stakes []uint64) (*Committee, error) {
	if len(stakes) == 0 {
		return nil, ErrEmptyCommittee
	}
	var total uint64
	for i, stake := range stakes {
		if stake == 0 {
			return nil, fmt.Errorf("%v: %w", types.Authority(i), ErrZeroStake)
		}
		if total > math.MaxUint64-stake {
			return nil, ErrStakeOverflow
		}
		total += stake
	}
	return &Committee{
		stakes:     append([]uint64(nil), stakes...),
		totalStake: total,
	}, nil
}

// NewEqualStake creates a committee of size authorities with stake 1 each.
func NewEqualStake(size int) (*Committee, error) {
	stakes := make([]uint64, size)
	for i := range stakes {
		stakes[i] = 1
	}
	return New(stakes)
}

// WithPublicKeys returns a copy of the committee that carries the block signing keys.
func (c *Committee) WithPublicKeys(publicKeys []kyber.Point) (*Committee, error) {
	if len(publicKeys) != len(c.stakes) {
		return nil, ErrKeyCountMismatch
	}
	for i, pk := range publicKeys {
		if pk == nil {
			return nil, fmt.Errorf("%v has no public key: %w", types.Authority(i), ErrKeyCountMismatch)
		}
	}
	return &Committee{
		stakes:     c.stakes,
		totalStake: c.totalStake,
		publicKeys: append([]kyber.Point(nil), publicKeys...),
	}, nil
}

func (c *Committee) Size() int {
	return len(c.stakes)
}

func (c *Committee) TotalStake() uint64 {
	return c.totalStake
}

// Exists reports whether a is part of the committee.
func (c *Committee) Exists(a types.Authority) bool {
	return int(a) < len(c.stakes)
}

// Stake returns the stake of a, or 0 for an unknown authority.
func (c *Committee) Stake(a types.Authority) uint64 {
	if !c.Exists(a) {
		return 0
	}
	return c.stakes[a]
}

// Authorities lists every authority in index order.
func (c *Committee) Authorities() []types.Authority {
	authorities := make([]types.Authority, len(c.stakes))
	for i := range c.stakes {
		authorities[i] = types.Authority(i)
	}
	return authorities
}

// QuorumThreshold is the smallest stake t with t > 2*total/3 (2f+1 of 3f+1).
func (c *Committee) QuorumThreshold() uint64 {
	oneThird := c.totalStake / 3
	threshold := 2 * oneThird
	if remainder := c.totalStake % 3; remainder <= 1 {
		threshold += 1
	} else {
		threshold += remainder
	}
	return threshold
}

// ValidityThreshold is the smallest stake t with t > total/3 (f+1 of 3f+1);
// any such set contains at least one honest authority.
func (c *Committee) ValidityThreshold() uint64 {
	return c.totalStake/3 + 1
}

// PublicKey returns the signing key of a, or nil if the committee carries no keys.
func (c *Committee) PublicKey(a types.Authority) kyber.Point {
	if c.publicKeys == nil || !c.Exists(a) {
		return nil
	}
	return c.publicKeys[a]
}

// VerifiesSignatures reports whether blocks must be signed by their author.
func (c *Committee) VerifiesSignatures() bool {
	return c.publicKeys != nil
}
