//go:build !libxml2
// +build !libxml2

// Package libxml2 provides the default engine.Raw implementation used when
// the libxml2 build tag is not enabled. This stub offers a conservative
// well-formedness check via encoding/xml so the pipeline is runnable
// without cgo; full XSD content-model checking requires the tagged build
// with a real libxml2 binding.
package libxml2

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/theoremus-urban-solutions/xsd-pipeline/engine"
)

// Engine is the default, cgo-free engine.Raw implementation.
type Engine struct{}

// New returns the default well-formedness-only engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Init() error { return nil }

type schemaHandle struct {
	data []byte
}

// ParseSchema checks that the schema bytes are well-formed XML and stores
// them for reference; it does not compile an XSD schema representation,
// since that requires a real libxml2 binding (see the libxml2 build tag).
func (e *Engine) ParseSchema(data []byte) (engine.Handle, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		if _, err := dec.Token(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("schema is not well-formed XML: %w", err)
		}
	}
	return &schemaHandle{data: data}, nil
}

// Validate checks that the document at path is well-formed XML. It cannot
// check conformance to the schema's content model without a real libxml2
// binding, so a well-formed document is reported Valid and a malformed one
// is reported Invalid, never InternalError, to keep the distinction between
// "the document violates its schema" and "the engine itself failed" honest
// for the one property this stub can actually evaluate.
func (e *Engine) Validate(handle engine.Handle, path string) (engine.ValidateResult, error) {
	if _, ok := handle.(*schemaHandle); !ok {
		return engine.ValidateResult{Status: engine.InternalError, Messages: []string{"invalid schema handle"}}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from discovery, not user input at this layer
	if err != nil {
		return engine.ValidateResult{}, fmt.Errorf("reading %s: %w", path, err)
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		if _, err := dec.Token(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return engine.ValidateResult{
				Status:   engine.Invalid,
				Messages: []string{"document is not well-formed XML: " + err.Error()},
			}, nil
		}
	}
	return engine.ValidateResult{Status: engine.Valid}, nil
}

func (e *Engine) Free(handle engine.Handle) {}
