package bundle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ashita-ai/sensemaker/internal/hash"
)

// DnaDef is the canonical, hashable form of a DNA.
type DnaDef struct {
	Name       string         `msgpack:"name"`
	UID        string         `msgpack:"uid"`
	Properties map[string]any `msgpack:"properties"`
	Zomes      []Zome         `msgpack:"zomes"`
}

// Zome pairs a zome name with its definition. It encodes as a two-element array.
type Zome struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused // msgpack encoding directive
	Name     string
	Def      ZomeDef
}

// ZomeDef references zome code by hash.
type ZomeDef struct {
	WasmHash hash.WasmHash `msgpack:"wasm_hash"`
}

// DnaFile is a DNA definition with the code it references.
type DnaFile struct {
	Def  DnaDef
	Hash hash.DnaHash
	Code map[hash.WasmHash][]byte
}

// Canonical returns the deterministic msgpack encoding that the DNA hash is taken over.
func (d DnaDef) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("%w: encode dna def: %w", ErrConvert, err)
	}
	return buf.Bytes(), nil
}

// IntoDnaFile validates the manifest against the resources, hashes every zome's
// code and derives the DNA hash. ctx is checked between zomes.
func (b *Bundle) IntoDnaFile(ctx context.Context) (*DnaFile, error) {
	m := b.Manifest
	if m.ManifestVersion != ManifestVersion {
		return nil, fmt.Errorf("%w: unsupported manifest version %q", ErrConvert, m.ManifestVersion)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: manifest has no name", ErrConvert)
	}

	def := DnaDef{Name: m.Name, Properties: m.Properties}
	if m.UID != nil {
		def.UID = *m.UID
	}
	code := make(map[hash.WasmHash][]byte, len(m.Zomes))
	seen := make(map[string]bool, len(m.Zomes))

	for _, z := range m.Zomes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if z.Name == "" {
			return nil, fmt.Errorf("%w: zome with empty name", ErrConvert)
		}
		if seen[z.Name] {
			return nil, fmt.Errorf("%w: duplicate zome %q", ErrConvert, z.Name)
		}
		seen[z.Name] = true

		wasm, ok := b.Resources[z.Bundled]
		if !ok {
			return nil, fmt.Errorf("%w: zome %q references missing resource %q", ErrConvert, z.Name, z.Bundled)
		}
		wh := hash.WasmHashOf(wasm)
		if z.Hash != nil {
			declared, err := hash.Parse(*z.Hash)
			if err != nil {
				return nil, fmt.Errorf("%w: zome %q: %w", ErrConvert, z.Name, err)
			}
			if declared != wh.Hash {
				return nil, fmt.Errorf("%w: zome %q: declared hash %s does not match code hash %s", ErrConvert, z.Name, declared, wh)
			}
		}
		def.Zomes = append(def.Zomes, Zome{Name: z.Name, Def: ZomeDef{WasmHash: wh}})
		code[wh] = wasm
	}

	canonical, err := def.Canonical()
	if err != nil {
		return nil, err
	}
	return &DnaFile{Def: def, Hash: hash.DnaHashOf(canonical), Code: code}, nil
}
