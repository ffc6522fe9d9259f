// Package hash provides the content-addressed identifiers used by the ledger
// node: a 3-byte type prefix, a 32-byte blake2b-256 digest and 4 DHT location
// bytes. All functions are pure and deterministic.
package hash

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"
)

const (
	// PrefixSize is the length of the type prefix.
	PrefixSize = 3
	// CoreSize is the length of the blake2b-256 digest.
	CoreSize = 32
	// LocSize is the length of the DHT location suffix.
	LocSize = 4
	// RawSize is the digest plus location, without the prefix.
	RawSize = CoreSize + LocSize
	// FullSize is the serialized length of a hash.
	FullSize = PrefixSize + RawSize
)

// Kind identifies what a hash addresses.
type Kind uint8

const (
	KindDna Kind = iota + 1
	KindAgent
	KindHeader
	KindEntry
	KindWasm
)

var prefixes = map[Kind][PrefixSize]byte{
	KindDna:    {0x84, 0x2d, 0x24},
	KindAgent:  {0x84, 0x20, 0x24},
	KindHeader: {0x84, 0x29, 0x24},
	KindEntry:  {0x84, 0x21, 0x24},
	KindWasm:   {0x84, 0x2a, 0x24},
}

var kindNames = map[Kind]string{
	KindDna:    "DnaHash",
	KindAgent:  "AgentPubKey",
	KindHeader: "HeaderHash",
	KindEntry:  "EntryHash",
	KindWasm:   "WasmHash",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Prefix returns the 3-byte serialization prefix for k.
func (k Kind) Prefix() [PrefixSize]byte {
	return prefixes[k]
}

// Hash is a typed 36-byte content address. The zero value is not a valid hash.
type Hash struct {
	kind Kind
	raw  [RawSize]byte
}

// Digest returns the blake2b-256 digest of data.
func Digest(data []byte) [CoreSize]byte {
	return blake2b.Sum256(data)
}

// Location folds a blake2b-128 digest of core into the 4 DHT location bytes.
func Location(core []byte) [LocSize]byte {
	h, _ := blake2b.New(16, nil) // size 16 with no key never errors
	h.Write(core)
	sum := h.Sum(nil)
	var out [LocSize]byte
	copy(out[:], sum[:LocSize])
	for i := LocSize; i < len(sum); i += LocSize {
		for j := range LocSize {
			out[j] ^= sum[i+j]
		}
	}
	return out
}

// Of hashes content and returns a Hash of the given kind.
func Of(kind Kind, content []byte) Hash {
	core := Digest(content)
	loc := Location(core[:])
	h := Hash{kind: kind}
	copy(h.raw[:CoreSize], core[:])
	copy(h.raw[CoreSize:], loc[:])
	return h
}

// FromRaw36 wraps 36 raw bytes (digest plus location) without verifying the
// location bytes.
func FromRaw36(kind Kind, raw []byte) (Hash, error) {
	if _, ok := prefixes[kind]; !ok {
		return Hash{}, fmt.Errorf("hash: unknown kind %d", kind)
	}
	if len(raw) != RawSize {
		return Hash{}, fmt.Errorf("hash: raw %s must be %d bytes, got %d", kind, RawSize, len(raw))
	}
	h := Hash{kind: kind}
	copy(h.raw[:], raw)
	return h, nil
}

// FromBytes decodes the 39-byte serialized form, detecting the kind from the prefix.
func FromBytes(b []byte) (Hash, error) {
	if len(b) != FullSize {
		return Hash{}, fmt.Errorf("hash: expected %d bytes, got %d", FullSize, len(b))
	}
	for kind, p := range prefixes {
		if bytes.Equal(b[:PrefixSize], p[:]) {
			return FromRaw36(kind, b[PrefixSize:])
		}
	}
	return Hash{}, fmt.Errorf("hash: unknown prefix %x", b[:PrefixSize])
}

// Parse decodes the display form produced by String.
func Parse(s string) (Hash, error) {
	if len(s) < 2 || s[0] != 'u' {
		return Hash{}, fmt.Errorf("hash: %q is not a u-prefixed base64 hash", s)
	}
	b, err := base64.RawURLEncoding.DecodeString(s[1:])
	if err != nil {
		return Hash{}, fmt.Errorf("hash: decode %q: %w", s, err)
	}
	return FromBytes(b)
}

// Kind reports what the hash addresses.
func (h Hash) Kind() Kind { return h.kind }

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool { return h.kind == 0 }

// Core returns the 32-byte digest.
func (h Hash) Core() []byte {
	out := make([]byte, CoreSize)
	copy(out, h.raw[:CoreSize])
	return out
}

// Raw36 returns the digest followed by the location bytes.
func (h Hash) Raw36() []byte {
	out := make([]byte, RawSize)
	copy(out, h.raw[:])
	return out
}

// Bytes returns the 39-byte serialized form.
func (h Hash) Bytes() []byte {
	p := prefixes[h.kind]
	out := make([]byte, 0, FullSize)
	out = append(out, p[:]...)
	return append(out, h.raw[:]...)
}

// String renders the hash as "u" followed by unpadded url-safe base64.
func (h Hash) String() string {
	if h.IsZero() {
		return ""
	}
	return "u" + base64.RawURLEncoding.EncodeToString(h.Bytes())
}

// GoString renders the hash the way the state pane shows values, e.g. HeaderHash(uhCkk...).
func (h Hash) GoString() string {
	return fmt.Sprintf("%s(%s)", h.kind, h.String())
}

// MarshalText implements encoding.TextMarshaler using the display form.
func (h Hash) MarshalText() ([]byte, error) {
	if h.IsZero() {
		return nil, fmt.Errorf("hash: marshal zero hash")
	}
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// EncodeMsgpack writes the 39-byte form as a msgpack bin value.
func (h Hash) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(h.Bytes())
}

// DecodeMsgpack reads a msgpack bin value holding the 39-byte form.
func (h *Hash) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return fmt.Errorf("hash: decode msgpack: %w", err)
	}
	parsed, err := FromBytes(b)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
