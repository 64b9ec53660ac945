package dag

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gitzhang10/mysticeti/types"
	"github.com/hashicorp/go-msgpack/codec"
)

const (
	snapshotVersion uint8 = 1
	// the header count is not trusted beyond this for preallocation
	maxPreallocatedBlocks = 1 << 12
)

var (
	// ErrSnapshotVersion is returned when reading a snapshot written by an unknown format.
	ErrSnapshotVersion = errors.New("unknown snapshot version")
	ErrSnapshotHeader  = errors.New("invalid snapshot header")
)

type snapshotHeader struct {
	Version uint8
	Blocks  int
}

// WriteSnapshot encodes blocks with msgpack: a header followed by one entry per block.
// Blocks should be given in an order in which they can be inserted (e.g. by round).
func WriteSnapshot(w io.Writer, blocks []*types.StatementBlock) error {
	bw := bufio.NewWriter(w)
	enc := codec.NewEncoder(bw, &codec.MsgpackHandle{})
	if err := enc.Encode(snapshotHeader{Version: snapshotVersion, Blocks: len(blocks)}); err != nil {
		return err
	}
	for _, b := range blocks {
		if err := enc.Encode(b.Wire()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadSnapshot decodes blocks written by WriteSnapshot. Digests and signatures are
// not checked here; BlockStore.Insert does that.
func ReadSnapshot(r io.Reader) ([]*types.StatementBlock, error) {
	dec := codec.NewDecoder(bufio.NewReader(r), &codec.MsgpackHandle{})
	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return nil, err
	}
	if header.Version != snapshotVersion {
		return nil, ErrSnapshotVersion
	}
	if header.Blocks < 0 {
		return nil, fmt.Errorf("%d blocks: %w", header.Blocks, ErrSnapshotHeader)
	}
	blocks := make([]*types.StatementBlock, 0, min(header.Blocks, maxPreallocatedBlocks))
	for i := 0; i < header.Blocks; i++ {
		var w types.BlockWire
		if err := dec.Decode(&w); err != nil {
			return nil, err
		}
		b, err := types.FromWire(w)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func WriteSnapshotFile(path string, blocks []*types.StatementBlock) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSnapshot(f, blocks); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadSnapshotFile(path string) ([]*types.StatementBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// GroupByRound splits blocks into consecutive rounds, keeping their relative order.
// Rounds with no block are omitted.
func GroupByRound(blocks []*types.StatementBlock) [][]*types.StatementBlock {
	var rounds [][]*types.StatementBlock
	for _, b := range blocks {
		last := len(rounds) - 1
		if last >= 0 && rounds[last][0].Round() == b.Round() {
			rounds[last] = append(rounds[last], b)
			continue
		}
		rounds = append(rounds, []*types.StatementBlock{b})
	}
	return rounds
}
