//go:build libxml2
// +build libxml2

// Package libxml2 is the engine.Raw adapter for a real libxml2-backed XSD
// engine. It exists behind the libxml2 build tag so the default build
// never requires cgo or a system libxml2 install.
//
// NOTE: this is a placeholder implementation. To make it a real
// validation backend:
//  1. Install libxml2 development headers (e.g. apt install libxml2-dev).
//  2. Add a Go libxml2 binding to go.mod, such as
//     github.com/lestrrat-go/libxml2 or a direct cgo wrapper.
//  3. Replace ParseSchema/Validate below with calls into that binding.
package libxml2

import (
	"fmt"

	"github.com/theoremus-urban-solutions/xsd-pipeline/engine"
)

// Engine is the libxml2-backed engine.Raw adapter.
type Engine struct{}

// New returns a libxml2-backed engine.Raw. Until a real binding is wired
// in, ParseSchema and Validate report that the backend is not integrated;
// Init and Free do nothing.
func New() *Engine { return &Engine{} }

func (e *Engine) Init() error { return nil }

func (e *Engine) ParseSchema(data []byte) (engine.Handle, error) {
	return nil, fmt.Errorf("libxml2 backend not integrated: install a binding and replace engine/libxml2.Engine.ParseSchema")
}

func (e *Engine) Validate(handle engine.Handle, path string) (engine.ValidateResult, error) {
	return engine.ValidateResult{}, fmt.Errorf("libxml2 backend not integrated: install a binding and replace engine/libxml2.Engine.Validate")
}

func (e *Engine) Free(handle engine.Handle) {}
