// Package orchestrator drives validation end-to-end: discovery, schema
// resolution, and bounded-concurrency validation wired into one run,
// producing an aggregator.RunResult.
//
// Each discovered file becomes a task that extracts its declared schema
// reference, resolves it to a compiled schema, and validates, gated by a
// weighted semaphore of size MaxConcurrentValidations and bounded by the
// configured per-file timeout.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/theoremus-urban-solutions/xsd-pipeline/aggregator"
	"github.com/theoremus-urban-solutions/xsd-pipeline/config"
	"github.com/theoremus-urban-solutions/xsd-pipeline/discovery"
	"github.com/theoremus-urban-solutions/xsd-pipeline/engine"
	"github.com/theoremus-urban-solutions/xsd-pipeline/extractor"
	"github.com/theoremus-urban-solutions/xsd-pipeline/logging"
	"github.com/theoremus-urban-solutions/xsd-pipeline/resolver"
	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

// Phase identifies which stage of a run is in progress, for Progress
// callbacks.
type Phase int

const (
	// PhaseDiscovery is file enumeration under the configured root.
	PhaseDiscovery Phase = iota
	// PhaseSchemaLoading begins once files are known and validation tasks
	// are about to be scheduled.
	PhaseSchemaLoading
	// PhaseValidation covers the bounded-concurrency per-file work.
	PhaseValidation
	// PhaseAggregation is the final reduction into a RunResult.
	PhaseAggregation
	// PhaseComplete marks the run as finished.
	PhaseComplete
)

// Progress is delivered to a ProgressFunc as a run advances.
type Progress struct {
	Phase       Phase
	CurrentFile string
	Completed   int
	Total       int
}

// ProgressFunc receives Progress updates; may be nil.
type ProgressFunc func(Progress)

// Orchestrator runs the full discover-resolve-validate-aggregate pipeline
// for one configuration.
type Orchestrator struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	raw      engine.Raw
	logger   *logging.Logger
}

// New creates an Orchestrator. logger may be nil, in which case the package
// default is used.
func New(cfg *config.Config, res *resolver.Resolver, raw engine.Raw, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{cfg: cfg, resolver: res, raw: raw, logger: logger}
}

// Run executes one end-to-end validation pass: discover files under
// cfg.RootPath, resolve and validate each against its declared schema with
// bounded concurrency, and aggregate the results. progress may be nil.
func (o *Orchestrator) Run(ctx context.Context, runID string, progress ProgressFunc) (aggregator.RunResult, error) {
	if err := engine.EnsureInit(o.raw); err != nil {
		return aggregator.RunResult{}, &xerrors.EngineInternal{Details: "engine init failed: " + err.Error()}
	}

	runStart := time.Now()
	logger := o.logger.WithRun(runID)

	report(progress, Progress{Phase: PhaseDiscovery})
	discoveryStart := time.Now()
	files, err := discovery.Discover(o.cfg.RootPath, discovery.Options{
		Extensions:     o.cfg.Extensions,
		IncludeGlobs:   o.cfg.IncludeGlobs,
		ExcludeGlobs:   o.cfg.ExcludeGlobs,
		MaxDepth:       o.cfg.MaxDepth,
		FollowSymlinks: o.cfg.FollowSymlinks,
	})
	if err != nil {
		return aggregator.RunResult{}, err
	}
	discoveryDuration := time.Since(discoveryStart)

	if len(files) == 0 {
		metrics := aggregator.PerformanceMetrics{DiscoveryDuration: discoveryDuration}
		report(progress, Progress{Phase: PhaseComplete})
		return aggregator.WithMetrics(runID, nil, metrics), nil
	}

	report(progress, Progress{Phase: PhaseSchemaLoading, Total: len(files)})

	validationStart := time.Now()
	outcomes := o.validateFiles(ctx, files, progress, logger)
	validationDuration := time.Since(validationStart)

	report(progress, Progress{Phase: PhaseAggregation, Completed: len(outcomes), Total: len(outcomes)})

	metrics := aggregator.PerformanceMetrics{
		DiscoveryDuration:     discoveryDuration,
		ValidationDuration:    validationDuration,
		ConcurrentValidations: o.cfg.MaxConcurrentValidations,
	}
	if len(outcomes) > 0 {
		metrics.AverageTimePerFile = validationDuration / time.Duration(len(outcomes))
	}
	if secs := time.Since(runStart).Seconds(); secs > 0 {
		metrics.ThroughputFilesPerSec = float64(len(outcomes)) / secs
	}

	result := aggregator.WithMetrics(runID, outcomes, metrics)
	report(progress, Progress{Phase: PhaseComplete, Completed: result.TotalFiles, Total: result.TotalFiles})
	return result, nil
}

// validateFiles runs one task per file, bounded to
// cfg.MaxConcurrentValidations concurrent tasks at a time. When cfg.FailFast
// is set, no further tasks are scheduled once the first non-valid outcome is
// observed, but tasks already in flight are allowed to finish so partial
// work is never abandoned mid-file.
func (o *Orchestrator) validateFiles(ctx context.Context, files []string, progress ProgressFunc, logger *logging.Logger) []aggregator.FileOutcome {
	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrentValidations))
	outcomes := make([]aggregator.FileOutcome, len(files))

	var completed int64
	var stop int32 // set to 1 once fail-fast has triggered
	var wg sync.WaitGroup

	for i, path := range files {
		if o.cfg.FailFast && atomic.LoadInt32(&stop) == 1 {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			acqErr := &xerrors.Concurrency{Details: "semaphore acquire: " + err.Error()}
			outcomes[i] = aggregator.FileOutcome{Path: path, Status: aggregator.StatusError, ErrorDetails: []string{acqErr.Error()}}
			continue
		}
		// Fail-fast may have tripped while this iteration was blocked on
		// the permit; re-check so no task is scheduled past the failure.
		if o.cfg.FailFast && atomic.LoadInt32(&stop) == 1 {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer sem.Release(1)

			outcome := o.validateOneFile(ctx, path, logger)
			outcomes[i] = outcome

			done := atomic.AddInt64(&completed, 1)
			report(progress, Progress{Phase: PhaseValidation, CurrentFile: path, Completed: int(done), Total: len(files)})

			if o.cfg.FailFast && outcome.Status != aggregator.StatusValid {
				atomic.StoreInt32(&stop, 1)
			}
		}(i, path)
	}

	wg.Wait()

	// Files skipped by a fail-fast break never got an outcome written;
	// trim the unused tail rather than reporting zero-value entries.
	return trimUnset(outcomes)
}

func trimUnset(outcomes []aggregator.FileOutcome) []aggregator.FileOutcome {
	out := outcomes[:0]
	for _, o := range outcomes {
		if o.Path != "" {
			out = append(out, o)
		}
	}
	return out
}

// validateOneFile implements the per-file sequence: extract the declared
// schema reference, resolve it to a compiled schema, then validate,
// honoring the configured per-file timeout.
func (o *Orchestrator) validateOneFile(ctx context.Context, path string, logger *logging.Logger) aggregator.FileOutcome {
	start := time.Now()

	fileCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.PerFileTimeout > 0 {
		fileCtx, cancel = context.WithTimeout(ctx, o.cfg.PerFileTimeout)
		defer cancel()
	}

	type taskResult struct {
		outcome aggregator.FileOutcome
	}
	resultCh := make(chan taskResult, 1)

	go func() {
		resultCh <- taskResult{outcome: o.runValidation(fileCtx, path, start)}
	}()

	select {
	case r := <-resultCh:
		return r.outcome
	case <-fileCtx.Done():
		logger.WithFile(path).Warn("per-file validation timed out", "timeout", o.cfg.PerFileTimeout)
		return aggregator.FileOutcome{
			Path:         path,
			Status:       aggregator.StatusError,
			Duration:     time.Since(start),
			ErrorDetails: []string{(&xerrors.Timeout{URL: path, Seconds: o.cfg.PerFileTimeout.Seconds()}).Error()},
		}
	}
}

func (o *Orchestrator) runValidation(ctx context.Context, path string, start time.Time) aggregator.FileOutcome {
	ref, err := extractor.Extract(path)
	if err != nil {
		if _, ok := err.(*xerrors.SchemaNotDeclared); ok {
			return aggregator.FileOutcome{Path: path, Status: aggregator.StatusSkipped, Reason: "no schema URL", Duration: time.Since(start)}
		}
		return aggregator.FileOutcome{Path: path, Status: aggregator.StatusError, Duration: time.Since(start), ErrorDetails: []string{err.Error()}}
	}

	compiled, err := o.resolver.Resolve(ctx, ref)
	if err != nil {
		return aggregator.FileOutcome{Path: path, Status: aggregator.StatusError, SchemaURI: ref.URI, Duration: time.Since(start), ErrorDetails: []string{err.Error()}}
	}
	defer compiled.Release()

	result, err := engine.Validate(o.raw, compiled.Handle(), path)
	duration := time.Since(start)
	if err != nil {
		return aggregator.FileOutcome{Path: path, Status: aggregator.StatusError, SchemaURI: ref.URI, Duration: duration, ErrorDetails: []string{err.Error()}}
	}

	switch result.Status {
	case engine.Valid:
		return aggregator.FileOutcome{Path: path, Status: aggregator.StatusValid, SchemaURI: ref.URI, Duration: duration}
	case engine.Invalid:
		return aggregator.FileOutcome{Path: path, Status: aggregator.StatusInvalid, SchemaURI: ref.URI, Duration: duration, ErrorCount: len(result.Messages), ErrorDetails: result.Messages}
	default:
		return aggregator.FileOutcome{Path: path, Status: aggregator.StatusError, SchemaURI: ref.URI, Duration: duration, ErrorDetails: result.Messages}
	}
}

func report(progress ProgressFunc, p Progress) {
	if progress != nil {
		progress(p)
	}
}
