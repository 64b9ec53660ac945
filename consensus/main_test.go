package consensus

import (
	"testing"

	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/dag"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixture couples a DAG builder with the store the committers read.
type fixture struct {
	t         require.TestingT
	committee *committee.Committee
	store     *dag.BlockStore
	builder   *dag.Builder
}

func newFixture(t require.TestingT, size int) *fixture {
	c, err := committee.NewEqualStake(size)
	require.NoError(t, err)
	store, err := dag.NewBlockStore(c, dag.Options{Logger: hclog.NewNullLogger()})
	require.NoError(t, err)
	return &fixture{
		t:         t,
		committee: c,
		store:     store,
		builder:   dag.NewBuilder(c),
	}
}

// insert stores every block built so far; already stored blocks are ignored.
func (f *fixture) insert() {
	require.NoError(f.t, f.builder.InsertInto(f.store))
}

func (f *fixture) roundRobin() *LeaderSchedule {
	schedule, err := NewLeaderSchedule(f.committee, RoundRobin)
	require.NoError(f.t, err)
	return schedule
}

func (f *fixture) base(waveLength, offset uint64) *BaseCommitter {
	return NewBaseCommitter(f.committee, f.store, f.roundRobin(), waveLength, offset, hclog.NewNullLogger())
}

func (f *fixture) committer(waveLength uint64, pipeline bool) *UniversalCommitter {
	return f.committerWithMetrics(waveLength, pipeline, nil)
}

func (f *fixture) committerWithMetrics(waveLength uint64, pipeline bool, metrics *Metrics) *UniversalCommitter {
	committer, err := NewUniversalCommitterBuilder(f.committee, f.store, metrics).
		WithWaveLength(waveLength).
		WithPipeline(pipeline).
		WithLeaderSchedule(f.roundRobin()).
		WithLogger(hclog.NewNullLogger()).
		Build()
	require.NoError(f.t, err)
	return committer
}

func roundsOf(statuses []LeaderStatus) []uint64 {
	rounds := make([]uint64, 0, len(statuses))
	for _, s := range statuses {
		rounds = append(rounds, s.Round())
	}
	return rounds
}

func byRound(statuses []LeaderStatus) map[uint64]string {
	m := make(map[uint64]string, len(statuses))
	for _, s := range statuses {
		m[s.Round()] = s.String()
	}
	return m
}

var genesis = types.GenesisReference(0)
