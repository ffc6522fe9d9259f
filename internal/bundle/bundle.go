// Package bundle reads application bundles (.dna files), converts them into
// their canonical DNA definition and derives the DNA content hash.
//
// A bundle file is a gzip-compressed msgpack document holding a manifest and
// the resources (zome code) it references by path.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ashita-ai/sensemaker/internal/hash"
)

var (
	// ErrRead is returned when the bundle file is missing or not a valid bundle document.
	ErrRead = errors.New("bundle: read")
	// ErrConvert is returned when a well-formed bundle has contents that cannot
	// be turned into a DNA definition.
	ErrConvert = errors.New("bundle: convert")
)

// ManifestVersion is the only manifest format this package understands.
const ManifestVersion = "1"

// maxDecompressedBytes bounds the inflated size of a bundle.
const maxDecompressedBytes = 64 << 20

// Manifest describes the DNA and the zomes it is built from.
type Manifest struct {
	ManifestVersion string         `msgpack:"manifest_version"`
	Name            string         `msgpack:"name"`
	UID             *string        `msgpack:"uid"`
	Properties      map[string]any `msgpack:"properties"`
	Zomes           []ZomeManifest `msgpack:"zomes"`
}

// ZomeManifest names a zome and the resource holding its code. Hash, when
// set, is the display form of the expected wasm hash.
type ZomeManifest struct {
	Name    string  `msgpack:"name"`
	Hash    *string `msgpack:"hash"`
	Bundled string  `msgpack:"bundled"`
}

// Bundle is a decoded bundle file.
type Bundle struct {
	Manifest  Manifest          `msgpack:"manifest"`
	Resources map[string][]byte `msgpack:"resources"`
}

// File is a bundle together with the digest of the bytes it was read from.
type File struct {
	Path   string
	Digest [hash.CoreSize]byte
	Bundle *Bundle
}

// ReadFile reads and decodes the bundle at path.
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	b, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Path: path, Digest: hash.Digest(raw), Bundle: b}, nil
}

// Decode inflates and unpacks bundle bytes.
func Decode(raw []byte) (*Bundle, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: not gzip: %w", ErrRead, err)
	}
	defer func() { _ = zr.Close() }()

	inflated, err := io.ReadAll(io.LimitReader(zr, maxDecompressedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %w", ErrRead, err)
	}
	if len(inflated) > maxDecompressedBytes {
		return nil, fmt.Errorf("%w: inflated bundle exceeds %d bytes", ErrRead, maxDecompressedBytes)
	}

	var b Bundle
	if err := msgpack.Unmarshal(inflated, &b); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrRead, err)
	}
	return &b, nil
}

// Encode packs a bundle into its file form. It is the inverse of Decode.
func Encode(b *Bundle) ([]byte, error) {
	var packed bytes.Buffer
	enc := msgpack.NewEncoder(&packed)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("bundle: encode: %w", err)
	}

	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(packed.Bytes()); err != nil {
		return nil, fmt.Errorf("bundle: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: compress: %w", err)
	}
	return out.Bytes(), nil
}

// WriteFile encodes b and writes it to path.
func WriteFile(path string, b *Bundle) error {
	raw, err := Encode(b)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("bundle: write %s: %w", path, err)
	}
	return nil
}
