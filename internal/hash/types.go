package hash

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"
)

// DnaHash addresses a canonical DNA definition.
type DnaHash struct{ Hash }

// AgentPubKey addresses an agent; here it stands in for a signing key.
type AgentPubKey struct{ Hash }

// HeaderHash addresses a record created on the node.
type HeaderHash struct{ Hash }

// WasmHash addresses a zome's compiled code.
type WasmHash struct{ Hash }

// DnaHashOf hashes the canonical encoding of a DNA definition.
func DnaHashOf(canonical []byte) DnaHash { return DnaHash{Of(KindDna, canonical)} }

// WasmHashOf hashes zome code.
func WasmHashOf(code []byte) WasmHash { return WasmHash{Of(KindWasm, code)} }

// AgentPubKeyFromRaw36 wraps 36 raw bytes as an agent key.
func AgentPubKeyFromRaw36(raw []byte) (AgentPubKey, error) {
	h, err := FromRaw36(KindAgent, raw)
	if err != nil {
		return AgentPubKey{}, err
	}
	return AgentPubKey{h}, nil
}

// PlaceholderAgent returns the fixed identity used until real agent keys are
// wired in: 36 bytes of 0x01. Each call returns a fresh value.
func PlaceholderAgent() AgentPubKey {
	raw := make([]byte, RawSize)
	for i := range raw {
		raw[i] = 1
	}
	k, _ := AgentPubKeyFromRaw36(raw) // length and kind are fixed above
	return k
}

// HeaderHashFromBytes decodes a 39-byte serialized header hash.
func HeaderHashFromBytes(b []byte) (HeaderHash, error) {
	h, err := expectKind(b, KindHeader)
	if err != nil {
		return HeaderHash{}, err
	}
	return HeaderHash{h}, nil
}

// HeaderHashOf hashes content as a header. Used by tests and fakes standing
// in for the node.
func HeaderHashOf(content []byte) HeaderHash { return HeaderHash{Of(KindHeader, content)} }

// DecodeMsgpack rejects hashes of any other kind.
func (h *HeaderHash) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return fmt.Errorf("hash: decode msgpack: %w", err)
	}
	parsed, err := HeaderHashFromBytes(b)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func expectKind(b []byte, want Kind) (Hash, error) {
	h, err := FromBytes(b)
	if err != nil {
		return Hash{}, err
	}
	if h.kind != want {
		return Hash{}, fmt.Errorf("hash: expected %s, got %s", want, h.kind)
	}
	return h, nil
}

// CellID is the execution-context identifier: the DNA a call runs in and the
// agent it runs as.
type CellID struct {
	DNA   DnaHash     `json:"dna_hash"`
	Agent AgentPubKey `json:"agent_pub_key"`
}

// NewCellID combines a DNA hash with an agent key.
func NewCellID(dna DnaHash, agent AgentPubKey) CellID {
	return CellID{DNA: dna, Agent: agent}
}

// Key is a hex blake2b-256 digest over both components, each length-prefixed.
// Identical DNA and agent bytes always produce the same key.
func (c CellID) Key() string {
	h, _ := blake2b.New256(nil) // unkeyed never errors
	writeField := func(b []byte) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b))) //nolint:gosec // hashes are FullSize bytes
		h.Write(lenBuf[:])
		h.Write(b)
	}
	writeField(c.DNA.Bytes())
	writeField(c.Agent.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

func (c CellID) String() string {
	return fmt.Sprintf("CellId(%s, %s)", c.DNA, c.Agent)
}

// EncodeMsgpack encodes the cell id as a two-element array, matching the node.
func (c CellID) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.Encode(c.DNA.Hash); err != nil {
		return err
	}
	return enc.Encode(c.Agent.Hash)
}
