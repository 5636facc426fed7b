// Package fetcher downloads schema bodies over HTTP with a per-request
// timeout, bounded retries, and exponential backoff. 4xx responses fail
// immediately; 5xx, connection errors, and timeouts are retried.
//
// TODO: populate blobstore.Metadata's ETag and LastModified fields from
// response headers so near-expiry disk-cache hits can be revalidated with
// conditional requests instead of refetched.
package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

// Options configures the fetcher's transport and retry policy.
type Options struct {
	RequestTimeout        time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	KeepAlive             time.Duration
	RetryAttempts         int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	UserAgent             string
}

// DefaultOptions returns sensible defaults for schema downloads.
func DefaultOptions() Options {
	return Options{
		RequestTimeout:        30 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		KeepAlive:             30 * time.Second,
		RetryAttempts:         3,
		RetryBaseDelay:        time.Second,
		RetryMaxDelay:         30 * time.Second,
		UserAgent:             "xsd-pipeline/1.0",
	}
}

// OnChunk is invoked as bytes arrive for the progress-reporting fetch variant.
// total is -1 when the server did not report Content-Length.
type OnChunk func(downloaded, total int64)

// Fetcher downloads schema bytes over HTTP with bounded retry and backoff.
type Fetcher struct {
	client *http.Client
	opts   Options
}

// New creates a Fetcher with connection pooling and the given retry policy.
func New(opts Options) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:          opts.MaxIdleConns,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       opts.IdleConnTimeout,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: opts.KeepAlive,
		}).DialContext,
		ForceAttemptHTTP2: true,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   opts.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &Fetcher{client: client, opts: opts}
}

// Close releases idle connections held by the fetcher.
func (f *Fetcher) Close() {
	if t, ok := f.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// Fetch downloads uri's body, retrying on 5xx/connection/timeout failures
// with exponential backoff capped at RetryMaxDelay, up to RetryAttempts
// additional tries. 4xx responses fail immediately and are not retryable.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return f.FetchWithProgress(ctx, uri, nil)
}

// FetchWithProgress is the progress-callback variant of Fetch; onChunk is
// invoked as bytes arrive. The non-progress Fetch is preferred for schemas
// since bodies are small.
func (f *Fetcher) FetchWithProgress(ctx context.Context, uri string, onChunk OnChunk) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.opts.RetryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, &xerrors.Http{URL: uri, Err: err}
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		req.Header.Set("Accept", "application/xml, text/xml, */*")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = classifyTransportError(uri, err)
			if !isRetryableErr(lastErr) || attempt == f.opts.RetryAttempts {
				return nil, lastErr
			}
			if waitErr := f.wait(ctx, attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			data, err := readBody(resp, onChunk)
			_ = resp.Body.Close()
			if err != nil {
				return nil, &xerrors.Io{Path: uri, Err: err}
			}
			return data, nil
		}

		_ = resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, &xerrors.HttpStatus{Code: resp.StatusCode, URL: uri}
		}

		lastErr = &xerrors.HttpStatus{Code: resp.StatusCode, URL: uri}
		if attempt == f.opts.RetryAttempts {
			return nil, lastErr
		}
		if waitErr := f.wait(ctx, attempt); waitErr != nil {
			return nil, waitErr
		}
	}

	return nil, lastErr
}

func readBody(resp *http.Response, onChunk OnChunk) ([]byte, error) {
	if onChunk == nil {
		return io.ReadAll(resp.Body)
	}

	total := resp.ContentLength
	buf := make([]byte, 0, 32*1024)
	chunk := make([]byte, 32*1024)
	var downloaded int64
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			downloaded += int64(n)
			onChunk(downloaded, total)
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// wait sleeps min(base*2^attempt, cap), honoring context cancellation.
func (f *Fetcher) wait(ctx context.Context, attempt int) error {
	backoff := f.opts.RetryBaseDelay * time.Duration(1<<uint(attempt))
	if backoff > f.opts.RetryMaxDelay {
		backoff = f.opts.RetryMaxDelay
	}
	select {
	case <-ctx.Done():
		return &xerrors.Timeout{Seconds: 0}
	case <-time.After(backoff):
		return nil
	}
}

func classifyTransportError(uri string, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return &xerrors.Timeout{URL: uri}
	}
	if err == context.DeadlineExceeded {
		return &xerrors.Timeout{URL: uri}
	}
	return &xerrors.Http{URL: uri, Err: err}
}

func isRetryableErr(err error) bool {
	switch err.(type) {
	case *xerrors.Timeout, *xerrors.Http:
		return true
	default:
		return false
	}
}
