// Package backfill computes and stores the phonetic code array of every
// document in a collection.
//
// A pass scans the collection once through a cursor, builds a CodeSet per
// document and writes non-empty sets in fixed-size batches of set-union
// updates. Updates are idempotent, so a pass that stopped early can simply be
// run again.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/fuzzysearch/internal/codeset"
	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

// DefaultField is the array field that receives the codes.
const DefaultField = "soundex"

// Config configures a backfill pass.
type Config struct {
	// Field is the array field receiving the codes.
	Field string

	// BatchSize is both the cursor batch size and the write batch size.
	BatchSize int

	// FetchTimeout bounds every cursor round-trip.
	FetchTimeout time.Duration

	// MaxAttempts bounds bulk write attempts per batch.
	MaxAttempts int

	// BaseDelay is the linear backoff unit.
	BaseDelay time.Duration

	// RateLimit caps batch submissions per second. Zero means unlimited.
	RateLimit float64
}

// DefaultConfig returns batches of 100, a 5s fetch timeout and 10 attempts
// on a 50ms linear backoff.
func DefaultConfig() Config {
	return Config{
		Field:        DefaultField,
		BatchSize:    DefaultBatchSize,
		FetchTimeout: store.DefaultFetchTimeout,
		MaxAttempts:  DefaultMaxAttempts,
		BaseDelay:    DefaultBaseDelay,
	}
}

// Progress is reported after every batch.
type Progress struct {
	Batch     int
	Size      int
	Attempts  int
	Documents int
	Failed    bool
}

// Dependencies contains the injected dependencies for Pipeline.
type Dependencies struct {
	// Store holds the collection (required).
	Store store.Store

	// Builder computes per-document codes (required).
	Builder *codeset.Builder

	// OnProgress is called after each batch (optional).
	OnProgress func(Progress)
}

// Result contains the outcome of a pass.
type Result struct {
	// Paths are the field paths read, as "array.leaf".
	Paths []string

	// Documents is the number of documents read from the cursor.
	Documents int

	// Requests is the number of update requests built.
	Requests int

	// Skipped is the number of documents that produced no codes.
	Skipped int

	// Batches is the number of batches written successfully.
	Batches int

	// FailedBatches is the number of batches abandoned after the attempt ceiling.
	FailedBatches int

	// FailedRequests is the number of update requests in abandoned batches.
	FailedRequests int

	// Attempts is the total number of bulk write calls.
	Attempts int

	// Matched and Modified aggregate the store's bulk write counters.
	Matched  int64
	Modified int64

	// FieldsSkipped counts field reads that failed during the pass.
	FieldsSkipped int64

	// Duration is the wall-clock time of the pass.
	Duration time.Duration
}

// Complete reports whether every batch was written.
func (r *Result) Complete() bool {
	return r.FailedBatches == 0
}

// Incomplete returns ERR_502_BACKFILL_INCOMPLETE when batches were abandoned.
func (r *Result) Incomplete() error {
	if r.Complete() {
		return nil
	}
	return apperrors.New(apperrors.ErrCodeBackfillIncomplete,
		fmt.Sprintf("backfill incomplete: %d of %d update requests were not written",
			r.FailedRequests, r.Requests), nil).
		WithDetail("failed_batches", fmt.Sprintf("%d", r.FailedBatches)).
		WithSuggestion("run the backfill again; updates are idempotent")
}

// Pipeline runs backfill passes.
type Pipeline struct {
	cfg        Config
	store      store.Store
	builder    *codeset.Builder
	submitter  *Submitter
	onProgress func(Progress)
}

// New creates a Pipeline with injected dependencies.
func New(deps Dependencies, cfg Config) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Builder == nil {
		return nil, fmt.Errorf("code set builder is required")
	}

	def := DefaultConfig()
	if cfg.Field == "" {
		cfg.Field = def.Field
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}

	return &Pipeline{
		cfg:     cfg,
		store:   deps.Store,
		builder: deps.Builder,
		submitter: NewSubmitter(deps.Store, SubmitConfig{
			Field:       cfg.Field,
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			RateLimit:   cfg.RateLimit,
		}),
		onProgress: deps.OnProgress,
	}, nil
}

// Submitter returns the batch submitter.
func (p *Pipeline) Submitter() *Submitter {
	return p.submitter
}

// Run executes one pass over the collection.
//
// A batch that exhausts its attempts is logged, counted in the Result and
// dropped so the scan can continue; check Result.Complete. A fatal store
// error or a cursor failure stops the pass: the partial Result is returned
// together with the error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{Paths: pathNames(p.builder.Paths())}
	fieldsSkippedBefore := p.builder.Stats().FieldsSkipped

	finish := func() *Result {
		result.Duration = time.Since(start)
		result.FieldsSkipped = p.builder.Stats().FieldsSkipped - fieldsSkippedBefore
		return result
	}

	slog.Info("backfill_started",
		slog.String("field", p.cfg.Field),
		slog.Any("paths", result.Paths),
		slog.Int("batch_size", p.cfg.BatchSize))

	cur, err := p.store.Scan(ctx, store.ScanOptions{
		BatchSize:    p.cfg.BatchSize,
		FetchTimeout: p.cfg.FetchTimeout,
	})
	if err != nil {
		return finish(), err
	}
	defer func() { _ = cur.Close(context.WithoutCancel(ctx)) }()

	batch := NewBatch(p.cfg.BatchSize)
	for cur.Next(ctx) {
		doc := cur.Document()
		result.Documents++

		codes := p.builder.Build(doc)
		if codes.Empty() {
			result.Skipped++
			continue
		}
		if doc.ID() == nil {
			result.Skipped++
			slog.Warn("backfill_document_without_id", slog.Int("codes", codes.Len()))
			continue
		}

		result.Requests++
		if batch.Add(store.UpdateRequest{ID: doc.ID(), Codes: codes.Codes()}) {
			if err := p.flush(ctx, batch, result); err != nil {
				return finish(), err
			}
		}
	}
	if err := cur.Err(); err != nil {
		slog.Error("backfill_cursor_failed", apperrors.LogAttrs(err)...)
		return finish(), err
	}

	if batch.Len() > 0 {
		if err := p.flush(ctx, batch, result); err != nil {
			return finish(), err
		}
	}

	finish()
	slog.Info("backfill_complete",
		slog.Int("documents", result.Documents),
		slog.Int("requests", result.Requests),
		slog.Int("skipped", result.Skipped),
		slog.Int("batches", result.Batches),
		slog.Int("failed_batches", result.FailedBatches),
		slog.Int("failed_requests", result.FailedRequests),
		slog.Int("attempts", result.Attempts),
		slog.Int64("modified", result.Modified),
		slog.Int64("fields_skipped", result.FieldsSkipped),
		slog.Int64("duration_ms", result.Duration.Milliseconds()))
	return result, nil
}

// flush submits the batch. The batch is cleared after success or after an
// exhausted batch has been recorded; a fatal error leaves it untouched.
func (p *Pipeline) flush(ctx context.Context, batch *Batch, result *Result) error {
	size := batch.Len()
	sr, err := p.submitter.Submit(ctx, batch.Requests())
	if sr != nil {
		result.Attempts += sr.Attempts
	}

	if err == nil {
		result.Batches++
		result.Matched += sr.Matched
		result.Modified += sr.Modified
		batch.Clear()
		p.report(Progress{Batch: result.Batches + result.FailedBatches, Size: size, Attempts: sr.Attempts, Documents: result.Documents})
		return nil
	}

	if apperrors.HasCode(err, apperrors.ErrCodeBackfillIncomplete) {
		result.FailedBatches++
		result.FailedRequests += size
		attrs := []any{slog.Int("batch_size", size), slog.Any("ids", batch.IDs())}
		slog.Error("backfill_batch_failed", append(attrs, apperrors.LogAttrs(err)...)...)
		batch.Clear()
		p.report(Progress{Batch: result.Batches + result.FailedBatches, Size: size, Attempts: sr.Attempts, Documents: result.Documents, Failed: true})
		return nil
	}

	attrs := []any{slog.Int("batch_size", size), slog.Any("ids", batch.IDs())}
	slog.Error("backfill_aborted", append(attrs, apperrors.LogAttrs(err)...)...)
	return err
}

func pathNames(paths []document.FieldPath) []string {
	names := make([]string, len(paths))
	for i, fp := range paths {
		names[i] = fp.String()
	}
	return names
}

func (p *Pipeline) report(ev Progress) {
	if p.onProgress != nil {
		p.onProgress(ev)
	}
}
