package consensus

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWaveLength uint64 = 3
	// MinimumWaveLength keeps the certifying round of a leader below the next leader
	// round of its offset, so every anchor sees a quorum of that round.
	MinimumWaveLength uint64 = 3
)

var ErrWaveLength = errors.New("wave length is too short")

// UniversalCommitter merges the decisions of one BaseCommitter per pipeline stage
// into a single sequence ordered by round.
type UniversalCommitter struct {
	store      BlockReader
	committers []*BaseCommitter
	metrics    *Metrics
	logger     hclog.Logger
}

type decision struct {
	status    LeaderStatus
	committer *BaseCommitter
	direct    bool
}

// TryCommit returns the leaders decided in rounds above lastDecided.Round, in
// increasing round order. It stops at the first undecided leader, which is retried
// on a later call; the caller passes the Reference of the last returned status
// as the next lastDecided. For a given DAG and watermark the result is always the same.
// Every returned leader is counted in the metrics, so a repeated call counts it again.
func (u *UniversalCommitter) TryCommit(lastDecided types.BlockReference) []LeaderStatus {
	highestRound := u.store.HighestRound()
	if lastDecided.Round >= highestRound {
		return nil
	}

	// direct decisions of every stage
	perStage := make([][]decision, len(u.committers))
	var g errgroup.Group
	for i, c := range u.committers {
		i, c := i, c
		g.Go(func() error {
			for _, round := range c.leaderRounds(lastDecided.Round, highestRound) {
				slot, _ := c.ElectLeader(round)
				status := c.TryDirectDecide(slot)
				perStage[i] = append(perStage[i], decision{
					status:    status,
					committer: c,
					direct:    status.IsDecided(),
				})
			}
			return nil
		})
	}
	// the stages never fail
	g.Wait()

	var decisions []decision
	for _, stage := range perStage {
		decisions = append(decisions, stage...)
	}
	sort.Slice(decisions, func(i, j int) bool {
		return decisions[i].status.Round() < decisions[j].status.Round()
	})

	// indirect decisions, highest round first so that every anchor candidate is settled
	statuses := make([]LeaderStatus, len(decisions))
	for i := range decisions {
		statuses[i] = decisions[i].status
	}
	for i := len(decisions) - 1; i >= 0; i-- {
		if statuses[i].IsDecided() {
			continue
		}
		statuses[i] = decisions[i].committer.TryIndirectDecide(statuses[i].Slot(), statuses[i+1:])
	}

	var decided []LeaderStatus
	for i, status := range statuses {
		if !status.IsDecided() {
			u.logger.Trace("leader is undecided", "slot", status.Slot())
			break
		}
		direct := decisions[i].direct
		u.logger.Debug("leader is decided", "status", status, "direct", direct)
		u.metrics.recordDecision(status, direct)
		decided = append(decided, status)
	}
	return decided
}

// Stages returns the number of pipeline stages.
func (u *UniversalCommitter) Stages() int {
	return len(u.committers)
}

// UniversalCommitterBuilder configures a UniversalCommitter. It performs no I/O.
type UniversalCommitterBuilder struct {
	committee  *committee.Committee
	store      BlockReader
	metrics    *Metrics
	waveLength uint64
	pipeline   bool
	schedule   *LeaderSchedule
	logger     hclog.Logger
}

func NewUniversalCommitterBuilder(c *committee.Committee, store BlockReader, metrics *Metrics) *UniversalCommitterBuilder {
	return &UniversalCommitterBuilder{
		committee:  c,
		store:      store,
		metrics:    metrics,
		waveLength: DefaultWaveLength,
	}
}

func (b *UniversalCommitterBuilder) WithWaveLength(waveLength uint64) *UniversalCommitterBuilder {
	b.waveLength = waveLength
	return b
}

// WithPipeline runs one stage per round of the wave so that every round has a leader.
func (b *UniversalCommitterBuilder) WithPipeline(pipeline bool) *UniversalCommitterBuilder {
	b.pipeline = pipeline
	return b
}

// WithLeaderSchedule replaces the default stake weighted schedule.
func (b *UniversalCommitterBuilder) WithLeaderSchedule(schedule *LeaderSchedule) *UniversalCommitterBuilder {
	b.schedule = schedule
	return b
}

func (b *UniversalCommitterBuilder) WithLogger(logger hclog.Logger) *UniversalCommitterBuilder {
	b.logger = logger
	return b
}

func (b *UniversalCommitterBuilder) Build() (*UniversalCommitter, error) {
	if b.waveLength < MinimumWaveLength {
		return nil, fmt.Errorf("%d < %d: %w", b.waveLength, MinimumWaveLength, ErrWaveLength)
	}
	schedule := b.schedule
	if schedule == nil {
		var err error
		if schedule, err = NewLeaderSchedule(b.committee, StakeWeighted); err != nil {
			return nil, err
		}
	}
	logger := b.logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "committer",
			Output: hclog.DefaultOutput,
			Level:  hclog.Info,
		})
	}

	stages := uint64(1)
	if b.pipeline {
		stages = b.waveLength
	}
	committers := make([]*BaseCommitter, 0, stages)
	for offset := uint64(0); offset < stages; offset++ {
		committers = append(committers,
			NewBaseCommitter(b.committee, b.store, schedule, b.waveLength, offset, logger))
	}
	return &UniversalCommitter{
		store:      b.store,
		committers: committers,
		metrics:    b.metrics,
		logger:     logger,
	}, nil
}
