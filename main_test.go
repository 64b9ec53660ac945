package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/config"
	"github.com/gitzhang10/mysticeti/consensus"
	"github.com/gitzhang10/mysticeti/dag"
	"github.com/gitzhang10/mysticeti/sign"
	"github.com/gitzhang10/mysticeti/types"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
)

// writeCluster writes a signed 4 node DAG where node3 crashes after round 4,
// and the configuration of node0.
func writeCluster(t *testing.T) (dir string, blocks []*types.StatementBlock) {
	dir = t.TempDir()
	c, err := committee.NewEqualStake(4)
	require.NoError(t, err)
	privateKeys := make([]kyber.Scalar, 4)
	var pubKeys strings.Builder
	for i := range privateKeys {
		var publicKey kyber.Point
		privateKeys[i], publicKey = sign.GenKeys()
		encoded, err := sign.EncodePublicKey(publicKey)
		require.NoError(t, err)
		fmt.Fprintf(&pubKeys, "  node%d: %s\n", i, hex.EncodeToString(encoded))
	}

	builder := dag.NewBuilder(c).WithSigners(privateKeys)
	builder.FullRounds(1, 4)
	for round := uint64(5); round <= 12; round++ {
		builder.FullRound(round, 0, 1, 2)
	}
	blocks = builder.Blocks()
	require.NoError(t, dag.WriteSnapshotFile(filepath.Join(dir, "dag.msgpack"), blocks))

	conf := `name: node0
authorities:
  node0: 1
  node1: 1
  node2: 1
  node3: 1
cluster_pubkey:
` + pubKeys.String() + `wave_length: 3
pipeline: true
leader_schedule: round-robin
dag_file: ` + filepath.Join(dir, "dag.msgpack") + `
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(conf), 0o644))
	return dir, blocks
}

func quietLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Output: io.Discard})
}

func TestReplay(t *testing.T) {
	dir, blocks := writeCluster(t)
	conf, err := config.LoadConfig(dir, "config")
	require.NoError(t, err)

	summary, err := replay(conf, quietLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.Equal(t, 12, summary.Rounds)
	require.Equal(t, len(blocks), summary.Blocks)
	require.Zero(t, summary.Rejected)

	// every round but the last is decided; the crashed node3 leads rounds 7 and 11
	require.Len(t, summary.Decided, 11)
	require.Equal(t, 2, summary.Skips)
	require.Equal(t, 9, summary.Commits)
	require.Equal(t, uint64(11), summary.LastDecided.Round)
	for i, status := range summary.Decided {
		require.Equal(t, uint64(i+1), status.Round())
	}
	require.Equal(t, consensus.Skip(types.AuthorityRound{Authority: 3, Round: 7}), summary.Decided[6])
	require.Equal(t, consensus.Skip(types.AuthorityRound{Authority: 3, Round: 11}), summary.Decided[10])
}

func TestReplayRejectsForgedBlocks(t *testing.T) {
	dir, blocks := writeCluster(t)
	conf, err := config.LoadConfig(dir, "config")
	require.NoError(t, err)

	w := blocks[len(blocks)-1].Wire()
	w.Signature = blocks[0].Signature()
	forged, err := types.FromWire(w)
	require.NoError(t, err)
	require.NoError(t, dag.WriteSnapshotFile(conf.DAGFile, append(blocks[:len(blocks)-1:len(blocks)-1], forged)))

	summary, err := replay(conf, quietLogger(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Rejected)
	require.Equal(t, len(blocks)-1, summary.Blocks)
}

func TestReplayCommand(t *testing.T) {
	dir, _ := writeCluster(t)
	var stderr bytes.Buffer
	root := newRootCommand()
	root.SetErr(&stderr)
	root.SetOut(io.Discard)
	root.SetArgs([]string{"replay", "--config-dir", dir, "--config-name", "config"})
	require.NoError(t, root.Execute())
	require.Contains(t, stderr.String(), "the total commit")

	root = newRootCommand()
	root.SetErr(io.Discard)
	root.SetArgs([]string{"replay", "--config-dir", dir, "--dag", filepath.Join(dir, "missing.msgpack")})
	require.Error(t, root.Execute())
}
