package main

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/gitzhang10/mysticeti/committee"
	"github.com/gitzhang10/mysticeti/config"
	"github.com/gitzhang10/mysticeti/dag"
	"github.com/gitzhang10/mysticeti/sign"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestReadTemplate(t *testing.T) {
	tmpl, err := readTemplate(".", "config_template")
	require.NoError(t, err)
	require.Len(t, tmpl.authorities, 4)
	require.Equal(t, uint64(100), tmpl.rounds)
	require.Equal(t, 1, tmpl.faultyNumber)
	require.Equal(t, 0.2, tmpl.partialLinks)
	require.NotZero(t, tmpl.seed)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	tmpl := &template{
		authorities:    map[string]uint64{"node0": 1, "node1": 1, "node2": 1, "node3": 1},
		rounds:         20,
		faultyNumber:   1,
		partialLinks:   0.3,
		seed:           7,
		waveLength:     3,
		pipeline:       true,
		leaderSchedule: "stake-weighted",
		logLevel:       3,
		dagFile:        "dag.msgpack",
		outputDir:      dir,
	}
	faulty, err := generate(tmpl)
	require.NoError(t, err)
	require.Len(t, faulty, 1)

	var c *committee.Committee
	for name := range tmpl.authorities {
		conf, err := config.LoadConfig(dir, name)
		require.NoError(t, err)
		require.Equal(t, name, conf.Name)
		c, err = conf.Committee()
		require.NoError(t, err)
		require.True(t, c.VerifiesSignatures())
		a, err := conf.Authority()
		require.NoError(t, err)
		require.True(t, sign.PublicKeyOf(conf.PrivateKey).Equal(c.PublicKey(a)))
	}

	blocks, err := dag.ReadSnapshotFile(filepath.Join(dir, "dag.msgpack"))
	require.NoError(t, err)
	require.Len(t, blocks, 20*3)

	store, err := dag.NewBlockStore(c, dag.Options{Logger: hclog.NewNullLogger()})
	require.NoError(t, err)
	require.NoError(t, dag.InsertAll(store, blocks))
	require.Equal(t, uint64(20), store.HighestRound())
	require.Empty(t, store.BlocksAtAuthorityRound(faulty[0], 10))
}

func TestPickFaulty(t *testing.T) {
	c, err := committee.NewEqualStake(4)
	require.NoError(t, err)
	r := rand.New(rand.NewSource(1))

	faulty, err := pickFaulty(c, 1, r)
	require.NoError(t, err)
	require.Len(t, faulty, 1)

	_, err = pickFaulty(c, 2, r)
	require.ErrorIs(t, err, errTooManyFaulty)

	none, err := pickFaulty(c, 0, r)
	require.NoError(t, err)
	require.Empty(t, none)
}
