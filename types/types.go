/*
Package types defines the DAG vertices shared by the block store and the committers:
authorities, block references and statement blocks.
*/
package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-msgpack/codec"
)

// ErrMalformedBlock is returned when a block cannot be rebuilt from its wire form.
var ErrMalformedBlock = errors.New("malformed block")

// Authority is the index of a validator in the committee.
type Authority uint32

func (a Authority) String() string {
	return "node" + strconv.Itoa(int(a))
}

// Digest is the sha256 hash of a block's msgpack encoding.
type Digest [sha256.Size]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Less orders digests byte-wise.
func (d Digest) Less(other Digest) bool {
	return bytes.Compare(d[:], other[:]) < 0
}

// BlockReference uniquely identifies a block.
type BlockReference struct {
	Authority Authority
	Round     uint64
	Digest    Digest
}

// GenesisReference returns the reference of the genesis block of authority a.
// The genesis block of every authority has the zero digest so that it can be
// known without ever seeing the block.
func GenesisReference(a Authority) BlockReference {
	return BlockReference{Authority: a, Round: 0}
}

func (r BlockReference) String() string {
	return fmt.Sprintf("%v@%d#%s", r.Authority, r.Round, r.Digest.String()[:8])
}

// AuthorityRound returns the slot the block was produced in.
func (r BlockReference) AuthorityRound() AuthorityRound {
	return AuthorityRound{Authority: r.Authority, Round: r.Round}
}

// AuthorityRound is a (author, round) slot. Leaders are elected per slot.
type AuthorityRound struct {
	Authority Authority
	Round     uint64
}

func (s AuthorityRound) String() string {
	return fmt.Sprintf("%v@%d", s.Authority, s.Round)
}

// StatementBlock is a DAG vertex. It must not be modified after NewStatementBlock.
type StatementBlock struct {
	reference BlockReference
	parents   []BlockReference // votes for blocks of earlier rounds
	payload   [][]byte
	timeStamp int64
	signature []byte
}

// NewStatementBlock builds a block and computes its digest.
func NewStatementBlock(author Authority, round uint64, parents []BlockReference, payload [][]byte,
	timeStamp int64) (*StatementBlock, error) {
	b := &StatementBlock{
		reference: BlockReference{Authority: author, Round: round},
		parents:   append([]BlockReference(nil), parents...),
		payload:   payload,
		timeStamp: timeStamp,
	}
	digest, err := b.computeDigest()
	if err != nil {
		return nil, err
	}
	b.reference.Digest = digest
	return b, nil
}

// NewGenesisBlock returns the round 0 block of authority a.
func NewGenesisBlock(a Authority) *StatementBlock {
	return &StatementBlock{reference: GenesisReference(a)}
}

func (b *StatementBlock) Reference() BlockReference { return b.reference }
func (b *StatementBlock) Author() Authority          { return b.reference.Authority }
func (b *StatementBlock) Round() uint64              { return b.reference.Round }
func (b *StatementBlock) Digest() Digest             { return b.reference.Digest }
func (b *StatementBlock) Payload() [][]byte          { return b.payload }
func (b *StatementBlock) TimeStamp() int64           { return b.timeStamp }
func (b *StatementBlock) Signature() []byte          { return b.signature }

// Parents returns a copy of the parent references.
func (b *StatementBlock) Parents() []BlockReference {
	return append([]BlockReference(nil), b.parents...)
}

// References reports whether ref is one of the block's parents.
func (b *StatementBlock) References(ref BlockReference) bool {
	for _, p := range b.parents {
		if p == ref {
			return true
		}
	}
	return false
}

// ReferencesSlot reports whether any parent was produced in the given slot.
func (b *StatementBlock) ReferencesSlot(slot AuthorityRound) bool {
	for _, p := range b.parents {
		if p.Authority == slot.Authority && p.Round == slot.Round {
			return true
		}
	}
	return false
}

// SetSignature attaches the author's signature over the digest.
// It is meant to be called by the block producer before the block is shared.
func (b *StatementBlock) SetSignature(sig []byte) {
	b.signature = sig
}

// VerifyDigest recomputes the digest and compares it with the reference.
func (b *StatementBlock) VerifyDigest() (bool, error) {
	if b.reference.Round == 0 {
		return b.reference.Digest == Digest{}, nil
	}
	digest, err := b.computeDigest()
	if err != nil {
		return false, err
	}
	return digest == b.reference.Digest, nil
}

func (b *StatementBlock) String() string {
	return fmt.Sprintf("%v(parents=%d)", b.reference, len(b.parents))
}

// the signed part of a block, msgpack encoded
type blockBody struct {
	Author    uint32
	Round     uint64
	Parents   []ReferenceWire
	Payload   [][]byte
	TimeStamp int64
}

// ReferenceWire is the msgpack form of a BlockReference.
type ReferenceWire struct {
	Authority uint32
	Round     uint64
	Digest    []byte
}

// BlockWire is the msgpack form of a StatementBlock.
type BlockWire struct {
	Author    uint32
	Round     uint64
	Parents   []ReferenceWire
	Payload   [][]byte
	TimeStamp int64
	Digest    []byte
	Signature []byte
}

func (r BlockReference) wire() ReferenceWire {
	d := make([]byte, len(r.Digest))
	copy(d, r.Digest[:])
	return ReferenceWire{Authority: uint32(r.Authority), Round: r.Round, Digest: d}
}

func (w ReferenceWire) reference() (BlockReference, error) {
	ref := BlockReference{Authority: Authority(w.Authority), Round: w.Round}
	if len(w.Digest) != len(ref.Digest) {
		return BlockReference{}, fmt.Errorf("digest of %d bytes: %w", len(w.Digest), ErrMalformedBlock)
	}
	copy(ref.Digest[:], w.Digest)
	return ref, nil
}

// Wire converts the block to its msgpack form.
func (b *StatementBlock) Wire() BlockWire {
	parents := make([]ReferenceWire, 0, len(b.parents))
	for _, p := range b.parents {
		parents = append(parents, p.wire())
	}
	ref := b.reference.wire()
	return BlockWire{
		Author:    uint32(b.reference.Authority),
		Round:     b.reference.Round,
		Parents:   parents,
		Payload:   b.payload,
		TimeStamp: b.timeStamp,
		Digest:    ref.Digest,
		Signature: b.signature,
	}
}

// FromWire rebuilds a block. The digest is taken as is; use VerifyDigest to check it.
func FromWire(w BlockWire) (*StatementBlock, error) {
	ref, err := ReferenceWire{Authority: w.Author, Round: w.Round, Digest: w.Digest}.reference()
	if err != nil {
		return nil, err
	}
	parents := make([]BlockReference, 0, len(w.Parents))
	for _, p := range w.Parents {
		parent, err := p.reference()
		if err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}
	return &StatementBlock{
		reference: ref,
		parents:   parents,
		payload:   w.Payload,
		timeStamp: w.TimeStamp,
		signature: w.Signature,
	}, nil
}

func (b *StatementBlock) computeDigest() (Digest, error) {
	parents := make([]ReferenceWire, 0, len(b.parents))
	for _, p := range b.parents {
		parents = append(parents, p.wire())
	}
	payload := b.payload
	if len(payload) == 0 {
		// nil and empty payloads must hash alike, msgpack tells them apart
		payload = nil
	}
	body := blockBody{
		Author:    uint32(b.reference.Authority),
		Round:     b.reference.Round,
		Parents:   parents,
		Payload:   payload,
		TimeStamp: b.timeStamp,
	}
	var encoded []byte
	enc := codec.NewEncoderBytes(&encoded, &codec.MsgpackHandle{})
	if err := enc.Encode(body); err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(encoded), nil
}
