package committee

import (
	"math"
	"testing"

	"github.com/gitzhang10/mysticeti/sign"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
)

func TestThresholds(t *testing.T) {
	tests := []struct {
		name     string
		stakes   []uint64
		quorum   uint64
		validity uint64
	}{
		{name: "four equal", stakes: []uint64{1, 1, 1, 1}, quorum: 3, validity: 2},
		{name: "seven equal", stakes: []uint64{1, 1, 1, 1, 1, 1, 1}, quorum: 5, validity: 3},
		{name: "single", stakes: []uint64{10}, quorum: 7, validity: 4},
		{name: "weighted", stakes: []uint64{5, 3, 1, 1}, quorum: 7, validity: 4},
		{name: "total 9", stakes: []uint64{3, 3, 3}, quorum: 7, validity: 4},
		{name: "total 11", stakes: []uint64{4, 4, 3}, quorum: 8, validity: 4},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, err := New(test.stakes)
			require.NoError(t, err)
			require.Equal(t, test.quorum, c.QuorumThreshold())
			require.Equal(t, test.validity, c.ValidityThreshold())
			// two quorums always intersect in more than a third of the stake
			require.Greater(t, 2*c.QuorumThreshold(), c.TotalStake()+c.TotalStake()/3)
		})
	}
}

func TestNewRejectsInconsistentSnapshots(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrEmptyCommittee)

	_, err = New([]uint64{1, 0, 1})
	require.ErrorIs(t, err, ErrZeroStake)

	_, err = New([]uint64{math.MaxUint64, 1})
	require.ErrorIs(t, err, ErrStakeOverflow)
}

func TestStakeLookup(t *testing.T) {
	c, err := New([]uint64{5, 3, 1, 1})
	require.NoError(t, err)
	require.Equal(t, 4, c.Size())
	require.Equal(t, uint64(10), c.TotalStake())
	require.Equal(t, uint64(3), c.Stake(1))
	require.Equal(t, uint64(0), c.Stake(9))
	require.True(t, c.Exists(3))
	require.False(t, c.Exists(4))
	require.Equal(t, []types.Authority{0, 1, 2, 3}, c.Authorities())
}

func TestStakeAggregator(t *testing.T) {
	c, err := New([]uint64{5, 3, 1, 1})
	require.NoError(t, err)

	agg := c.NewQuorumAggregator()
	require.False(t, agg.Add(1))
	require.False(t, agg.Add(1)) // counted once
	require.Equal(t, uint64(3), agg.Stake())
	require.False(t, agg.Add(2))
	require.True(t, agg.Add(0))
	require.Equal(t, uint64(9), agg.Stake())

	validity := c.NewValidityAggregator()
	require.False(t, validity.Add(2))
	require.False(t, validity.Add(3))
	require.True(t, validity.Add(1))
}

func TestWithPublicKeys(t *testing.T) {
	c, err := NewEqualStake(4)
	require.NoError(t, err)
	require.False(t, c.VerifiesSignatures())
	require.Nil(t, c.PublicKey(0))

	keys := make([]kyber.Point, 4)
	for i := range keys {
		_, keys[i] = sign.GenKeys()
	}
	_, err = c.WithPublicKeys(keys[:3])
	require.ErrorIs(t, err, ErrKeyCountMismatch)

	signed, err := c.WithPublicKeys(keys)
	require.NoError(t, err)
	require.True(t, signed.VerifiesSignatures())
	require.True(t, keys[2].Equal(signed.PublicKey(2)))
	require.Nil(t, signed.PublicKey(7))
	require.Equal(t, c.QuorumThreshold(), signed.QuorumThreshold())
}
