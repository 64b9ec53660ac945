package dag

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/gitzhang10/mysticeti/types"
	"github.com/hashicorp/go-msgpack/codec"
	"github.com/stretchr/testify/require"
)

func TestSnapshotReplaysIntoStore(t *testing.T) {
	c := newCommittee(t, 4)
	builder := NewBuilder(c)
	builder.FullRounds(1, 3)
	builder.Block(1, 4, builder.Refs(3, 0)...)
	builder.Block(1, 4, builder.Refs(3, 2)...) // equivocation survives the round trip
	builder.FullRound(4, 0, 2, 3)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, builder.Blocks()))
	blocks, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Len(t, blocks, len(builder.Blocks()))

	for i, b := range blocks {
		require.Equal(t, builder.Blocks()[i].Reference(), b.Reference())
		require.Equal(t, builder.Blocks()[i].Parents(), b.Parents())
		ok, err := b.VerifyDigest()
		require.NoError(t, err)
		require.True(t, ok)
	}

	store := newTestStore(t, c)
	require.NoError(t, InsertAll(store, blocks))
	require.Equal(t, uint64(4), store.HighestRound())
	require.Len(t, store.BlocksAtAuthorityRound(1, 4), 2)
}

func TestSnapshotFile(t *testing.T) {
	c := newCommittee(t, 4)
	builder := NewBuilder(c)
	builder.FullRounds(1, 2)
	path := filepath.Join(t.TempDir(), "dag.msgpack")

	require.NoError(t, WriteSnapshotFile(path, builder.Blocks()))
	blocks, err := ReadSnapshotFile(path)
	require.NoError(t, err)
	require.Len(t, blocks, 8)

	_, err = ReadSnapshotFile(filepath.Join(t.TempDir(), "missing.msgpack"))
	require.Error(t, err)
}

func TestSnapshotRejectsUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &codec.MsgpackHandle{})
	require.NoError(t, enc.Encode(snapshotHeader{Version: snapshotVersion + 1}))
	_, err := ReadSnapshot(&buf)
	require.ErrorIs(t, err, ErrSnapshotVersion)
}

func TestSnapshotRejectsBadBlockCount(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &codec.MsgpackHandle{})
	require.NoError(t, enc.Encode(snapshotHeader{Version: snapshotVersion, Blocks: -1}))
	_, err := ReadSnapshot(&buf)
	require.ErrorIs(t, err, ErrSnapshotHeader)

	// a count far beyond the entries fails on the missing entries
	buf.Reset()
	enc = codec.NewEncoder(&buf, &codec.MsgpackHandle{})
	require.NoError(t, enc.Encode(snapshotHeader{Version: snapshotVersion, Blocks: 1 << 30}))
	builder := NewBuilder(newCommittee(t, 4))
	builder.FullRound(1)
	for _, b := range builder.Blocks() {
		require.NoError(t, enc.Encode(b.Wire()))
	}
	_, err = ReadSnapshot(&buf)
	require.Error(t, err)
}

func TestGroupByRound(t *testing.T) {
	c := newCommittee(t, 4)
	builder := NewBuilder(c)
	builder.FullRounds(1, 3)
	builder.FullRound(4, 1, 2, 3)

	rounds := GroupByRound(builder.Blocks())
	require.Len(t, rounds, 4)
	for i, round := range rounds {
		require.Equal(t, builder.Round(uint64(i+1)), round)
	}
	require.Empty(t, GroupByRound([]*types.StatementBlock{}))
}
