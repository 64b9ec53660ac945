package consensus

import (
	"github.com/gitzhang10/mysticeti/types"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	authorityLabel = "authority"
	statusLabel    = "status"
	decisionLabel  = "decision"
)

// Metrics counts the leaders returned by TryCommit, once per call that returns them:
// a caller that moves its watermark forward counts every decided leader once.
// A nil *Metrics records nothing.
type Metrics struct {
	committedLeaders *prometheus.CounterVec
}

// NewMetrics creates the committer metrics and registers them when reg is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		committedLeaders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mysticeti",
				Name:      "committed_leaders_total",
				Help:      "number of leader slots returned by the committer",
			},
			[]string{authorityLabel, statusLabel, decisionLabel},
		),
	}
	if reg != nil {
		if err := reg.Register(m.committedLeaders); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordDecision(status LeaderStatus, direct bool) {
	if m == nil || !status.IsDecided() {
		return
	}
	m.CommittedLeaders(status.Authority(), status.Kind(), direct).Inc()
}

// CommittedLeaders returns the counter of one label combination, e.g.
// (1, KindCommit, true) for leaders of node1 committed directly.
func (m *Metrics) CommittedLeaders(a types.Authority, kind StatusKind, direct bool) prometheus.Counter {
	decision := "indirect"
	if direct {
		decision = "direct"
	}
	return m.committedLeaders.With(prometheus.Labels{
		authorityLabel: a.String(),
		statusLabel:    kind.String(),
		decisionLabel:  decision,
	})
}
