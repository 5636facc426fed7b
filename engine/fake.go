package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// FakeEngine is a test double implementing Raw without any real XSD
// validation, for use in resolver and orchestrator tests. A document fails
// validation when its path contains the literal substring "INVALID" and
// produces an internal error when it contains "ENGINEERROR"; a schema
// fails to parse when its bytes contain "BADSCHEMA". This lets tests drive
// every ValidateResult status deterministically from fixture names.
type FakeEngine struct {
	InitCalls       int32
	ParseCalls      int32
	ValidateCalls   int32
	ParseDelay      func()
	FailParseAlways bool
}

type fakeHandle struct {
	source string
}

func (f *FakeEngine) Init() error {
	atomic.AddInt32(&f.InitCalls, 1)
	return nil
}

func (f *FakeEngine) ParseSchema(data []byte) (Handle, error) {
	atomic.AddInt32(&f.ParseCalls, 1)
	if f.ParseDelay != nil {
		f.ParseDelay()
	}
	src := string(data)
	if f.FailParseAlways || strings.Contains(src, "BADSCHEMA") {
		return nil, fmt.Errorf("fake schema parse failed")
	}
	return &fakeHandle{source: src}, nil
}

func (f *FakeEngine) Validate(handle Handle, path string) (ValidateResult, error) {
	atomic.AddInt32(&f.ValidateCalls, 1)
	if _, ok := handle.(*fakeHandle); !ok {
		return ValidateResult{Status: InternalError, Messages: []string{"invalid handle"}}, nil
	}
	if strings.Contains(path, "ENGINEERROR") {
		return ValidateResult{Status: InternalError, Code: 1, Messages: []string{"fake internal failure"}}, nil
	}
	if strings.Contains(path, "INVALID") {
		return ValidateResult{Status: Invalid, Messages: []string{"fake validation violation in " + path}}, nil
	}
	return ValidateResult{Status: Valid}, nil
}

func (f *FakeEngine) Free(handle Handle) {}
