package main

import (
	"os"

	"github.com/gitzhang10/mysticeti/config"
	"github.com/gitzhang10/mysticeti/consensus"
	"github.com/gitzhang10/mysticeti/dag"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "mysticeti",
		Short:        "DAG commit rule of the Mysticeti consensus",
		SilenceUsage: true,
	}
	root.AddCommand(newReplayCommand())
	return root
}

func newReplayCommand() *cobra.Command {
	var configDir, configName, dagFile string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed a DAG snapshot round by round to the committer and report its decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.LoadConfig(configDir, configName)
			if err != nil {
				return err
			}
			if dagFile != "" {
				conf.DAGFile = dagFile
			}
			logger := hclog.New(&hclog.LoggerOptions{
				Name:   "mysticeti",
				Output: cmd.ErrOrStderr(),
				Level:  hclog.Level(conf.LogLevel),
			})
			_, err = replay(conf, logger, prometheus.NewRegistry())
			return err
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "./", "directory holding the configuration file")
	cmd.Flags().StringVar(&configName, "config-name", "config", "configuration file name without extension")
	cmd.Flags().StringVar(&dagFile, "dag", "", "DAG snapshot to replay, overrides dag_file")
	return cmd
}

type replaySummary struct {
	Rounds      int
	Blocks      int
	Rejected    int
	Commits     int
	Skips       int
	LastDecided types.BlockReference
	Decided     []consensus.LeaderStatus
}

// replay inserts the snapshot into a fresh block store one round at a time and
// advances the watermark with every decision the committer returns.
func replay(conf *config.Config, logger hclog.Logger, reg prometheus.Registerer) (*replaySummary, error) {
	c, err := conf.Committee()
	if err != nil {
		return nil, err
	}
	store, err := dag.NewBlockStore(c, dag.Options{
		ReachabilityCache: conf.ReachabilityCache,
		Logger:            logger.Named("store"),
	})
	if err != nil {
		return nil, err
	}
	metrics, err := consensus.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	schedule, err := consensus.NewLeaderSchedule(c, conf.LeaderSchedule)
	if err != nil {
		return nil, err
	}
	committer, err := consensus.NewUniversalCommitterBuilder(c, store, metrics).
		WithWaveLength(conf.WaveLength).
		WithPipeline(conf.Pipeline).
		WithLeaderSchedule(schedule).
		WithLogger(logger.Named("committer")).
		Build()
	if err != nil {
		return nil, err
	}

	blocks, err := dag.ReadSnapshotFile(conf.DAGFile)
	if err != nil {
		return nil, err
	}
	logger.Info("replay a DAG", "file", conf.DAGFile, "blocks", len(blocks), "stages", committer.Stages())

	summary := &replaySummary{LastDecided: types.GenesisReference(0)}
	for _, round := range dag.GroupByRound(blocks) {
		summary.Rounds++
		for _, block := range round {
			if err := store.Insert(block); err != nil {
				logger.Error("block is rejected", "block", block.Reference(), "error", err)
				summary.Rejected++
				continue
			}
			summary.Blocks++
		}
		for _, status := range committer.TryCommit(summary.LastDecided) {
			if status.IsCommit() {
				summary.Commits++
				logger.Info("commit the leader block", "round", status.Round(), "leader", status.Authority(),
					"block", status.Reference())
			} else {
				summary.Skips++
				logger.Info("skip the leader", "round", status.Round(), "leader", status.Authority())
			}
			summary.LastDecided = status.Reference()
			summary.Decided = append(summary.Decided, status)
		}
	}
	logger.Info("the total commit", "rounds", summary.Rounds, "blocks", summary.Blocks,
		"rejected", summary.Rejected, "commits", summary.Commits, "skips", summary.Skips,
		"last-decided", summary.LastDecided)
	return summary, nil
}
