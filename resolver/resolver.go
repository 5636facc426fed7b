// Package resolver composes the byte cache, disk cache, HTTP fetcher,
// compiled-schema cache, and the external engine's parser into a single
// Resolve(ref) operation with single-flight de-duplication at every tier.
//
// Reads go memory tier, then disk tier (remote schemas only), then the
// network; freshly fetched remote bytes are written to disk first, then to
// the memory tier once they pass the sanity check. compiledcache.Cache.GetOrBuild
// collapses concurrent builds per URI; engine.ParseSchema serializes the
// actual parse process-wide on top of that.
package resolver

import (
	"context"
	"os"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/theoremus-urban-solutions/xsd-pipeline/blobstore"
	"github.com/theoremus-urban-solutions/xsd-pipeline/bytecache"
	"github.com/theoremus-urban-solutions/xsd-pipeline/compiledcache"
	"github.com/theoremus-urban-solutions/xsd-pipeline/engine"
	"github.com/theoremus-urban-solutions/xsd-pipeline/extractor"
	"github.com/theoremus-urban-solutions/xsd-pipeline/fetcher"
	"github.com/theoremus-urban-solutions/xsd-pipeline/logging"
	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

// Resolver composes the cache tiers, fetcher, and engine into Resolve.
type Resolver struct {
	bytes    *bytecache.Cache
	disk     *blobstore.Store
	compiled *compiledcache.Cache
	http     *fetcher.Fetcher
	raw      engine.Raw
	diskTTL  time.Duration
	logger   *logging.Logger
}

// New creates a Resolver over the given cache tiers, fetcher, and engine.
// diskTTL is the expiry applied to newly written disk-cache entries for
// remote schemas. logger may be nil, in which case the package default is
// used.
func New(bytesCache *bytecache.Cache, disk *blobstore.Store, compiled *compiledcache.Cache, httpFetcher *fetcher.Fetcher, raw engine.Raw, diskTTL time.Duration, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{bytes: bytesCache, disk: disk, compiled: compiled, http: httpFetcher, raw: raw, diskTTL: diskTTL, logger: logger}
}

// Resolve returns the compiled schema for ref, fetching and parsing it on
// a cold cache. Concurrent calls for the same ref.Key() collapse into a
// single build (compiledcache.Cache.GetOrBuild); every parse is further
// serialized process-wide by engine.ParseSchema.
func (r *Resolver) Resolve(ctx context.Context, ref extractor.SchemaRef) (*engine.CompiledSchema, error) {
	key := ref.Key()
	return r.compiled.GetOrBuild(key, func(string) (*engine.CompiledSchema, error) {
		cached, err := r.loadBytes(ctx, ref)
		if err != nil {
			return nil, err
		}

		handle, err := engine.ParseSchema(r.raw, cached.Data)
		if err != nil {
			return nil, &xerrors.SchemaParsing{URL: ref.URI, Details: err.Error()}
		}
		return engine.NewCompiledSchema(r.raw, handle), nil
	})
}

// loadBytes returns the schema bytes for ref: memory-cache check, then
// local-read or remote disk-cache-then-fetch, then a sanity check on the
// resulting bytes, then a memory-cache write.
func (r *Resolver) loadBytes(ctx context.Context, ref extractor.SchemaRef) (bytecache.CachedBytes, error) {
	key := ref.Key()

	if cached, ok := r.bytes.Get(key); ok {
		return cached, nil
	}

	var data []byte
	var err error
	switch ref.Origin {
	case extractor.OriginLocal:
		data, err = r.loadLocal(ref.ResolvedPath)
	default:
		data, err = r.loadRemote(ctx, ref.URI)
	}
	if err != nil {
		return bytecache.CachedBytes{}, err
	}

	if err := validateLooksLikeXSD(data); err != nil {
		return bytecache.CachedBytes{}, &xerrors.SchemaParsing{URL: ref.URI, Details: err.Error()}
	}

	cached := bytecache.CachedBytes{
		Data: data,
		Metadata: bytecache.Metadata{
			URI:       key,
			CreatedAt: time.Now(),
			Size:      int64(len(data)),
		},
	}
	r.bytes.Put(key, cached)
	return cached, nil
}

func (r *Resolver) loadLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path resolved by extractor from a discovered file
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &xerrors.SchemaNotFound{URL: path}
		}
		return nil, &xerrors.Io{Path: path, Err: err}
	}
	return data, nil
}

func (r *Resolver) loadRemote(ctx context.Context, uri string) ([]byte, error) {
	diskKey := blobstore.Key(uri)
	if data, _, ok := r.disk.Get(diskKey); ok {
		return data, nil
	}

	data, err := r.http.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	meta := blobstore.Metadata{
		URI:       uri,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(r.diskTTL),
		Size:      int64(len(data)),
	}
	// Cache-write failures degrade to "no caching this time" rather than
	// failing resolution: log and continue with the bytes already fetched.
	if err := r.disk.Put(diskKey, data, meta); err != nil {
		r.logger.Warn("disk cache write failed", "uri", uri, "error", err.Error())
	}

	return data, nil
}

// schemaElementRegex matches a schema start tag: "<schema", "<xs:schema" or
// "<xsd:schema".
var schemaElementRegex = regexp.MustCompile(`<(?:xsd?:)?schema`)

// validateLooksLikeXSD is a conservative sanity check: UTF-8 decodable and
// contains a schema element start tag, so obvious non-schema responses (HTML
// error pages, truncated bodies) fail clearly here instead of producing
// opaque engine diagnostics.
func validateLooksLikeXSD(data []byte) error {
	if !utf8.Valid(data) {
		return &simpleError{"schema content is not valid UTF-8"}
	}
	if !schemaElementRegex.Match(data) {
		return &simpleError{"content does not appear to be an XML Schema (no schema element found)"}
	}
	return nil
}

type simpleError struct{ msg string }

func (e *simpleError) Error() string { return e.msg }
