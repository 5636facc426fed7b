package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.RetryBaseDelay = time.Millisecond
	opts.RetryMaxDelay = 10 * time.Millisecond
	opts.RequestTimeout = 2 * time.Second
	return opts
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<xs:schema/>"))
	}))
	defer srv.Close()

	f := New(testOptions())
	defer f.Close()

	data, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "<xs:schema/>" {
		t.Errorf("unexpected body: %s", data)
	}
}

func TestFetch4xxNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(testOptions())
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var statusErr *xerrors.HttpStatus
	if !errorsAs(err, &statusErr) {
		t.Fatalf("expected HttpStatus error, got %T: %v", err, err)
	}
	if statusErr.Code != 404 {
		t.Errorf("expected 404, got %d", statusErr.Code)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly 1 call for non-retryable 4xx, got %d", calls)
	}
}

func TestFetch5xxRetriedThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.RetryAttempts = 5
	f := New(opts)
	defer f.Close()

	data, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("unexpected body: %s", data)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 failures + success), got %d", calls)
	}
}

func TestFetch5xxExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.RetryAttempts = 2
	f := New(opts)
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 1 initial + 2 retries = 3 calls, got %d", calls)
	}
}

func errorsAs(err error, target **xerrors.HttpStatus) bool {
	if se, ok := err.(*xerrors.HttpStatus); ok {
		*target = se
		return true
	}
	return false
}
