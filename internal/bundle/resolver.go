package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/sensemaker/internal/hash"
	"github.com/ashita-ai/sensemaker/internal/telemetry"
)

// Resolver turns the bundle at a fixed path into its DNA hash.
//
// The file is read on every call. When caching is enabled, the conversion is
// skipped if a file with the same content digest was converted before, so an
// edited bundle is always reconverted regardless of its timestamps.
// Concurrent calls share one read through singleflight.
type Resolver struct {
	path   string
	cache  bool
	logger *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[[hash.CoreSize]byte]hash.DnaHash

	lookups metric.Int64Counter
}

// NewResolver creates a Resolver for the bundle at path.
func NewResolver(path string, cache bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	lookups, _ := telemetry.Meter("sensemaker/bundle").Int64Counter("sensemaker.bundle.lookups",
		metric.WithDescription("Bundle resolutions by cache result"),
	)
	return &Resolver{
		path:    path,
		cache:   cache,
		logger:  logger,
		entries: make(map[[hash.CoreSize]byte]hash.DnaHash),
		lookups: lookups,
	}
}

// Path returns the bundle path the resolver reads.
func (r *Resolver) Path() string { return r.path }

// Resolve reads the bundle and returns its DNA hash. Errors wrap ErrRead or ErrConvert.
func (r *Resolver) Resolve(ctx context.Context) (hash.DnaHash, error) {
	// Waiters share the first caller's result; use a context that survives
	// that caller's cancellation so a superseded submission cannot fail the rest.
	v, err, _ := r.group.Do(r.path, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx))
	})
	if err != nil {
		return hash.DnaHash{}, err
	}
	if err := ctx.Err(); err != nil {
		return hash.DnaHash{}, err
	}
	return v.(hash.DnaHash), nil
}

func (r *Resolver) resolve(ctx context.Context) (hash.DnaHash, error) {
	f, err := ReadFile(r.path)
	if err != nil {
		return hash.DnaHash{}, err
	}

	if r.cache {
		if dna, ok := r.get(f.Digest); ok {
			r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
			return dna, nil
		}
	}

	dnaFile, err := f.Bundle.IntoDnaFile(ctx)
	if err != nil {
		return hash.DnaHash{}, fmt.Errorf("%s: %w", r.path, err)
	}
	r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))
	r.logger.Debug("bundle: converted",
		"path", r.path,
		"dna_hash", dnaFile.Hash.String(),
		"zomes", len(dnaFile.Def.Zomes),
	)

	if r.cache {
		r.set(f.Digest, dnaFile.Hash)
	}
	return dnaFile.Hash, nil
}

func (r *Resolver) get(digest [hash.CoreSize]byte) (hash.DnaHash, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dna, ok := r.entries[digest]
	return dna, ok
}

func (r *Resolver) set(digest [hash.CoreSize]byte, dna hash.DnaHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[digest] = dna
}

// Len returns the number of cached conversions.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
