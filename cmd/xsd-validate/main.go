package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/theoremus-urban-solutions/xsd-pipeline/aggregator"
	"github.com/theoremus-urban-solutions/xsd-pipeline/blobstore"
	"github.com/theoremus-urban-solutions/xsd-pipeline/bytecache"
	"github.com/theoremus-urban-solutions/xsd-pipeline/compiledcache"
	"github.com/theoremus-urban-solutions/xsd-pipeline/config"
	"github.com/theoremus-urban-solutions/xsd-pipeline/engine/libxml2"
	"github.com/theoremus-urban-solutions/xsd-pipeline/fetcher"
	"github.com/theoremus-urban-solutions/xsd-pipeline/logging"
	"github.com/theoremus-urban-solutions/xsd-pipeline/orchestrator"
	"github.com/theoremus-urban-solutions/xsd-pipeline/resolver"
)

// Exit codes reported to callers.
const (
	exitAllValid    = 0
	exitFatal       = 1
	exitSomeErrors  = 2
	exitSomeInvalid = 3
)

var (
	rootPath       string
	extensions     []string
	includeGlobs   []string
	excludeGlobs   []string
	maxDepth       int
	followSymlinks bool
	concurrency    int
	perFileTimeout time.Duration
	failFast       bool
	outputFormat   string
	outputFile     string
	quiet          bool
	verbose        bool
	configFile     string

	cacheDir       string
	cacheTTL       time.Duration
	memoryEntries  int
	memoryTTL      time.Duration
	requestTimeout time.Duration
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	userAgent      string

	cpuProfile string
	memProfile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xsd-validate [path]",
		Short: "Validate XML documents against their declared XML Schemas",
		Long: `Validates collections of XML documents against the XSD schemas they
declare via xsi:schemaLocation or xsi:noNamespaceSchemaLocation.

Each distinct schema is fetched and compiled once per run, remote schemas
are cached on disk across runs, and validations execute in parallel.

Examples:
  xsd-validate ./data
  xsd-validate ./data --ext xml,xsd --concurrency 8
  xsd-validate ./data --exclude '**/drafts/**' --fail-fast
  xsd-validate file.xml --format json -o report.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runValidate,
	}

	rootCmd.Flags().StringVarP(&rootPath, "path", "p", "", "Root directory or file to validate (also accepted as the positional argument)")
	rootCmd.Flags().StringSliceVar(&extensions, "ext", []string{"xml"}, "File extensions to validate")
	rootCmd.Flags().StringArrayVar(&includeGlobs, "include", nil, "Glob patterns a path must match (repeatable)")
	rootCmd.Flags().StringArrayVar(&excludeGlobs, "exclude", nil, "Glob patterns that reject a path (repeatable)")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", -1, "Maximum directory depth to descend (-1 = unlimited)")
	rootCmd.Flags().BoolVar(&followSymlinks, "follow-symlinks", false, "Follow symbolic links during discovery")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum concurrent validations (0 = config default)")
	rootCmd.Flags().DurationVar(&perFileTimeout, "timeout", 0, "Per-file validation timeout (0 = config default)")
	rootCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop scheduling new files after the first failure")
	rootCmd.Flags().StringVar(&outputFormat, "format", "text", "Output format: text or json")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	rootCmd.Flags().StringVar(&configFile, "config", "", "YAML configuration file path")

	rootCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Directory for the persistent schema cache")
	rootCmd.Flags().DurationVar(&cacheTTL, "cache-ttl", 0, "TTL for disk-cached schemas (0 = config default)")
	rootCmd.Flags().IntVar(&memoryEntries, "cache-max-entries", 0, "Maximum in-memory schema entries (0 = config default)")
	rootCmd.Flags().DurationVar(&memoryTTL, "cache-memory-ttl", 0, "TTL for in-memory schema entries (0 = config default)")
	rootCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 0, "HTTP request timeout for schema downloads (0 = config default)")
	rootCmd.Flags().IntVar(&retryAttempts, "retry-attempts", -1, "HTTP retry attempts for schema downloads (-1 = config default)")
	rootCmd.Flags().DurationVar(&retryBaseDelay, "retry-base-delay", 0, "Base delay for HTTP retry backoff (0 = config default)")
	rootCmd.Flags().DurationVar(&retryMaxDelay, "retry-max-delay", 0, "Maximum delay for HTTP retry backoff (0 = config default)")
	rootCmd.Flags().StringVar(&userAgent, "user-agent", "", "User-Agent header for schema downloads")

	rootCmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().StringVar(&memProfile, "memprofile", "", "Write memory profile to file")

	generateConfigCmd := &cobra.Command{
		Use:   "generate-config [file]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "xsd-validate.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", path)
			return nil
		},
	}
	rootCmd.AddCommand(generateConfigCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitFatal)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
		defer f.Close()
	}

	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	if quiet {
		level = logging.LevelError
	}
	logger := logging.New(logging.LoggerConfig{Level: level, Format: "text", Output: os.Stderr})

	disk, err := blobstore.New(cfg.Cache.Directory)
	if err != nil {
		return fmt.Errorf("opening schema cache at %s: %w", cfg.Cache.Directory, err)
	}
	if swept := disk.CleanupExpired(); swept.Removed > 0 {
		logger.Debug("removed expired schema cache entries", "count", swept.Removed, "freed_bytes", swept.FreedBytes)
	}
	httpFetcher := fetcher.New(fetcher.Options{
		RequestTimeout:        cfg.Network.RequestTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		KeepAlive:             30 * time.Second,
		RetryAttempts:         cfg.Network.RetryAttempts,
		RetryBaseDelay:        cfg.Network.RetryBaseDelay,
		RetryMaxDelay:         cfg.Network.RetryMaxDelay,
		UserAgent:             cfg.Network.UserAgent,
	})
	defer httpFetcher.Close()

	raw := libxml2.New()
	res := resolver.New(
		bytecache.New(cfg.Cache.MaxMemoryEntries, cfg.Cache.MemoryTTL),
		disk,
		compiledcache.New(cfg.Cache.MaxMemoryEntries),
		httpFetcher,
		raw,
		cfg.Cache.EntryTTL,
		logger,
	)
	orch := orchestrator.New(cfg, res, raw, logger)

	runID := uuid.New().String()
	var progress orchestrator.ProgressFunc
	if !quiet && outputFile == "" && outputFormat == "text" {
		progress = textProgress()
	}

	result, err := orch.Run(context.Background(), runID, progress)
	if err != nil {
		return err
	}

	if memProfile != "" {
		if f, err := os.Create(memProfile); err == nil {
			_ = pprof.WriteHeapProfile(f)
			_ = f.Close()
		}
	}

	if err := writeResult(result, disk); err != nil {
		return err
	}
	// os.Exit skips deferred calls, so the CPU profile is flushed here.
	pprof.StopCPUProfile()
	os.Exit(exitCode(result, cfg.FailFast))
	return nil
}

// buildConfig layers command-line flags over the loaded (or default) config
// file. Only flags the user actually set override file values.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.RootPath = args[0]
	}
	if rootPath != "" {
		cfg.RootPath = rootPath
	}
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("no input path given (positional argument or --path)")
	}

	if cmd.Flags().Changed("ext") {
		cfg.Extensions = extensions
	}
	if cmd.Flags().Changed("include") {
		cfg.IncludeGlobs = includeGlobs
	}
	if cmd.Flags().Changed("exclude") {
		cfg.ExcludeGlobs = excludeGlobs
	}
	if maxDepth >= 0 {
		depth := maxDepth
		cfg.MaxDepth = &depth
	}
	if cmd.Flags().Changed("follow-symlinks") {
		cfg.FollowSymlinks = followSymlinks
	}
	if concurrency > 0 {
		cfg.MaxConcurrentValidations = concurrency
	}
	if perFileTimeout > 0 {
		cfg.PerFileTimeout = perFileTimeout
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.FailFast = failFast
	}
	if cacheDir != "" {
		cfg.Cache.Directory = cacheDir
	}
	if cacheTTL > 0 {
		cfg.Cache.EntryTTL = cacheTTL
	}
	if memoryEntries > 0 {
		cfg.Cache.MaxMemoryEntries = memoryEntries
	}
	if memoryTTL > 0 {
		cfg.Cache.MemoryTTL = memoryTTL
	}
	if requestTimeout > 0 {
		cfg.Network.RequestTimeout = requestTimeout
	}
	if retryAttempts >= 0 {
		cfg.Network.RetryAttempts = retryAttempts
	}
	if retryBaseDelay > 0 {
		cfg.Network.RetryBaseDelay = retryBaseDelay
	}
	if retryMaxDelay > 0 {
		cfg.Network.RetryMaxDelay = retryMaxDelay
	}
	if userAgent != "" {
		cfg.Network.UserAgent = userAgent
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// textProgress renders a single-line progress indicator on stderr during
// the validation phase.
func textProgress() orchestrator.ProgressFunc {
	return func(p orchestrator.Progress) {
		switch p.Phase {
		case orchestrator.PhaseDiscovery:
			fmt.Fprintf(os.Stderr, "Discovering files...\n")
		case orchestrator.PhaseValidation:
			if p.Total > 0 {
				fmt.Fprintf(os.Stderr, "\rValidating %d/%d", p.Completed, p.Total)
			}
		case orchestrator.PhaseComplete:
			fmt.Fprintf(os.Stderr, "\n")
		}
	}
}

func writeResult(result aggregator.RunResult, disk *blobstore.Store) error {
	var out []byte
	var err error
	switch outputFormat {
	case "json":
		out, err = renderJSON(result, disk)
	case "text":
		out = []byte(renderText(result, disk))
	default:
		return fmt.Errorf("unsupported output format: %s (supported: text, json)", outputFormat)
	}
	if err != nil {
		return err
	}

	if outputFile != "" {
		return os.WriteFile(outputFile, out, 0o600)
	}
	fmt.Print(string(out))
	return nil
}

type jsonReport struct {
	RunID       string            `json:"run_id"`
	Totals      jsonTotals        `json:"totals"`
	Duration    jsonDurations     `json:"duration"`
	Throughput  float64           `json:"throughput_files_per_second"`
	SchemasUsed []string          `json:"schemas_used"`
	CacheStats  jsonCacheStats    `json:"cache_stats"`
	Files       []jsonFileOutcome `json:"files"`
}

type jsonTotals struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Error   int `json:"error"`
	Skipped int `json:"skipped"`
}

type jsonDurations struct {
	Total      string `json:"total"`
	Discovery  string `json:"discovery"`
	Validation string `json:"validation"`
	AvgPerFile string `json:"avg_per_file"`
}

type jsonCacheStats struct {
	DiskEntries int   `json:"disk_entries"`
	DiskBytes   int64 `json:"disk_bytes"`
}

type jsonFileOutcome struct {
	Path       string   `json:"path"`
	Status     string   `json:"status"`
	SchemaURI  string   `json:"schema_uri,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	ErrorCount int      `json:"error_count,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

func renderJSON(result aggregator.RunResult, disk *blobstore.Store) ([]byte, error) {
	diskStats := disk.Stats()
	report := jsonReport{
		RunID: result.RunID,
		Totals: jsonTotals{
			Total:   result.TotalFiles,
			Valid:   result.ValidFiles,
			Invalid: result.InvalidFiles,
			Error:   result.ErrorFiles,
			Skipped: result.SkippedFiles,
		},
		Duration: jsonDurations{
			Total:      result.PerformanceMetrics.TotalDuration.String(),
			Discovery:  result.PerformanceMetrics.DiscoveryDuration.String(),
			Validation: result.PerformanceMetrics.ValidationDuration.String(),
			AvgPerFile: result.AverageDuration.String(),
		},
		Throughput:  result.PerformanceMetrics.ThroughputFilesPerSec,
		SchemasUsed: result.SchemasUsed,
		CacheStats:  jsonCacheStats{DiskEntries: diskStats.EntryCount, DiskBytes: diskStats.TotalBytes},
	}
	for _, f := range result.FileResults {
		report.Files = append(report.Files, jsonFileOutcome{
			Path:       f.Path,
			Status:     f.Status.String(),
			SchemaURI:  f.SchemaURI,
			DurationMS: f.Duration.Milliseconds(),
			ErrorCount: f.ErrorCount,
			Errors:     f.ErrorDetails,
			Reason:     f.Reason,
		})
	}
	return json.MarshalIndent(report, "", "  ")
}

func renderText(result aggregator.RunResult, disk *blobstore.Store) string {
	var b strings.Builder

	for _, f := range result.FileResults {
		switch f.Status {
		case aggregator.StatusValid:
			continue
		case aggregator.StatusInvalid:
			fmt.Fprintf(&b, "INVALID  %s (%d errors)\n", f.Path, f.ErrorCount)
			for _, msg := range f.ErrorDetails {
				fmt.Fprintf(&b, "         %s\n", msg)
			}
		case aggregator.StatusError:
			fmt.Fprintf(&b, "ERROR    %s\n", f.Path)
			for _, msg := range f.ErrorDetails {
				fmt.Fprintf(&b, "         %s\n", msg)
			}
		case aggregator.StatusSkipped:
			fmt.Fprintf(&b, "SKIPPED  %s (%s)\n", f.Path, f.Reason)
		}
	}

	diskStats := disk.Stats()
	fmt.Fprintf(&b, "\n%d files: %d valid, %d invalid, %d errors, %d skipped\n",
		result.TotalFiles, result.ValidFiles, result.InvalidFiles, result.ErrorFiles, result.SkippedFiles)
	fmt.Fprintf(&b, "schemas: %d distinct, disk cache: %d entries (%d bytes)\n",
		len(result.SchemasUsed), diskStats.EntryCount, diskStats.TotalBytes)
	fmt.Fprintf(&b, "duration: %s total, %s discovery, %s validation (%.1f files/sec)\n",
		result.PerformanceMetrics.TotalDuration.Round(time.Millisecond),
		result.PerformanceMetrics.DiscoveryDuration.Round(time.Millisecond),
		result.PerformanceMetrics.ValidationDuration.Round(time.Millisecond),
		result.PerformanceMetrics.ThroughputFilesPerSec)
	return b.String()
}

func exitCode(result aggregator.RunResult, failFast bool) int {
	switch {
	case failFast && (result.ErrorFiles > 0 || result.InvalidFiles > 0 || result.SkippedFiles > 0):
		return exitFatal
	case result.ErrorFiles > 0:
		return exitSomeErrors
	case result.InvalidFiles > 0:
		return exitSomeInvalid
	default:
		return exitAllValid
	}
}
