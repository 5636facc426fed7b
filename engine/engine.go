// Package engine defines the contract for the external XSD validation
// engine and enforces process-wide serialization of schema parsing, which
// the engine's own documentation demands but does not provide.
//
// The real validation/parsing work belongs to a native library whose
// parser is not thread-safe for any input. This package defines the
// Go-side contract (Raw), the shared-ownership CompiledSchema wrapper,
// and a FakeEngine used throughout the test suite; concrete backends live
// in subpackages (see engine/libxml2).
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

// Status is the outcome of a single Validate call.
type Status int

const (
	// Valid indicates the document conforms to the schema.
	Valid Status = iota
	// Invalid indicates the document does not conform; Messages is non-empty.
	Invalid
	// InternalError indicates the engine itself failed (not a schema violation).
	InternalError
)

// ValidateResult is the engine's per-call validation outcome.
type ValidateResult struct {
	Status   Status
	Code     int
	Messages []string
}

// Handle is an opaque compiled-schema handle returned by ParseSchema.
type Handle interface{}

// Raw is the interface a concrete engine implementation provides. ParseSchema
// is NOT required to be safe for concurrent invocation by the implementation
// itself; this package's ParseSchema wrapper serializes all calls across
// every Raw instance in the process. Validate IS required to be safe for
// concurrent invocation (each call must construct its own validation
// context).
type Raw interface {
	// Init performs process-level one-time setup. Called exactly once,
	// lazily, before any parse or validate call.
	Init() error
	// ParseSchema compiles schema bytes into an opaque handle.
	ParseSchema(data []byte) (Handle, error)
	// Validate checks the file at path against the compiled schema.
	Validate(handle Handle, path string) (ValidateResult, error)
	// Free releases a handle returned by ParseSchema.
	Free(handle Handle)
}

var (
	initOnce  sync.Once
	initErr   error
	parseLock sync.Mutex
)

// EnsureInit runs raw.Init() exactly once across the process, under a
// one-time guard, regardless of how many goroutines call it concurrently.
func EnsureInit(raw Raw) error {
	initOnce.Do(func() {
		initErr = raw.Init()
	})
	return initErr
}

// ParseSchema serializes calls to raw.ParseSchema across the entire process:
// at no wall-clock instant are two ParseSchema calls in flight anywhere,
// even for different engine instances or different schema URIs. This is
// stronger than per-URI single-flight (see compiledcache and resolver,
// which still provide that on top) and exists because the external engine's
// parser is documented as not thread-safe at all, for any input.
func ParseSchema(raw Raw, data []byte) (Handle, error) {
	parseLock.Lock()
	defer parseLock.Unlock()
	return raw.ParseSchema(data)
}

// Validate is a thin passthrough. The engine's validate contract is
// thread-safe, so no additional serialization is applied here. Multiple
// goroutines may call Validate concurrently, including on the same handle.
func Validate(raw Raw, handle Handle, path string) (ValidateResult, error) {
	return raw.Validate(handle, path)
}

// CompiledSchema is a shared-ownership wrapper around a Handle: the compiled
// schema is freed exactly once, when the last holder releases it.
type CompiledSchema struct {
	raw    Raw
	handle Handle
	refs   int32
}

// NewCompiledSchema wraps handle with an initial reference count of 1.
func NewCompiledSchema(raw Raw, handle Handle) *CompiledSchema {
	return &CompiledSchema{raw: raw, handle: handle, refs: 1}
}

// Acquire increments the reference count; call once per new holder (e.g.
// each concurrent validator sharing this compiled schema).
func (c *CompiledSchema) Acquire() {
	atomic.AddInt32(&c.refs, 1)
}

// Release decrements the reference count, freeing the underlying handle via
// the engine's Free routine when the count reaches zero.
func (c *CompiledSchema) Release() {
	if atomic.AddInt32(&c.refs, -1) == 0 {
		c.raw.Free(c.handle)
	}
}

// Handle returns the opaque handle for passing to Validate.
func (c *CompiledSchema) Handle() Handle { return c.handle }

// ToOutcomeError maps an InternalError ValidateResult to an xerrors.EngineInternal.
func ToOutcomeError(r ValidateResult) error {
	if r.Status != InternalError {
		return nil
	}
	details := "unknown"
	if len(r.Messages) > 0 {
		details = r.Messages[0]
	}
	return &xerrors.EngineInternal{Details: details}
}
