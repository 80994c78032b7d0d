// Package app runs one fuzzysearch invocation: ping, backfill, index and
// search, in that order.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/fuzzysearch/internal/backfill"
	"github.com/Aman-CERP/fuzzysearch/internal/codeset"
	"github.com/Aman-CERP/fuzzysearch/internal/config"
	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/index"
	"github.com/Aman-CERP/fuzzysearch/internal/output"
	"github.com/Aman-CERP/fuzzysearch/internal/phonetic"
	"github.com/Aman-CERP/fuzzysearch/internal/search"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

// Plan selects the phases of a run. Phases with nothing to do are skipped.
type Plan struct {
	// Fields are the paths to backfill. Empty skips the backfill.
	Fields []document.FieldPath

	// CreateIndex ensures the index on the code field.
	CreateIndex bool

	// Predicates are searched after the other phases. Empty skips the search.
	Predicates []string
}

// Report summarizes a run.
type Report struct {
	Database string
	Ping     time.Duration

	// Backfill is nil when no fields were given or the run lock was held.
	Backfill       *backfill.Result
	BackfillLocked bool

	Index *index.Result

	// Codes are the codes searched for; Matches counts returned documents.
	Codes   []string
	Matches int

	// CachedTokens is the size of the encoder's token cache after the run.
	CachedTokens int

	Duration time.Duration
}

// OpenFunc opens a store.
type OpenFunc func(ctx context.Context, opts store.Options) (store.Store, error)

// Dependencies contains the injected dependencies for Runner.
type Dependencies struct {
	// Config is the loaded configuration (required).
	Config *config.Config

	// Output receives the human-readable report (required).
	Output *output.Writer

	// Open opens the store. Defaults to store.Open.
	Open OpenFunc

	// Encoder encodes tokens and predicates. Defaults to a cached Soundex.
	Encoder phonetic.Encoder
}

// Runner executes runs with injected dependencies.
type Runner struct {
	cfg     *config.Config
	out     *output.Writer
	open    OpenFunc
	encoder phonetic.Encoder
}

// NewRunner creates a Runner.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Output == nil {
		return nil, fmt.Errorf("output writer is required")
	}

	open := deps.Open
	if open == nil {
		open = store.Open
	}
	encoder := deps.Encoder
	if encoder == nil {
		encoder = phonetic.NewCachedEncoder(phonetic.SoundexEncoder, phonetic.DefaultCacheSize)
	}

	return &Runner{
		cfg:     deps.Config,
		out:     deps.Output,
		open:    open,
		encoder: encoder,
	}, nil
}

// Run executes plan against the configured collection.
//
// The database is resolved before any store call. A fatal error in any phase
// stops the run. A backfill that gave up on some batches does not: index and
// search still run, and the incomplete backfill is returned as the error.
func (r *Runner) Run(ctx context.Context, plan Plan) (*Report, error) {
	start := time.Now()
	report := &Report{}

	database, err := r.cfg.ResolveDatabase()
	if err != nil {
		return report, err
	}
	report.Database = database

	st, err := r.open(ctx, store.Options{
		Backend:    store.Backend(r.cfg.Store.Backend),
		URI:        r.cfg.Store.URI,
		Database:   database,
		Collection: r.cfg.Store.Collection,
		SQLitePath: r.cfg.ResolveSQLitePath(database),
	})
	if err != nil {
		return report, err
	}
	defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()

	latency, err := st.Ping(ctx)
	if err != nil {
		return report, err
	}
	report.Ping = latency
	r.out.Ping(latency)

	var incomplete error
	if len(plan.Fields) > 0 {
		if err := r.backfill(ctx, st, plan.Fields, report); err != nil {
			return report, err
		}
		if report.Backfill != nil {
			incomplete = report.Backfill.Incomplete()
		}
	}

	if plan.CreateIndex {
		if err := r.ensureIndex(ctx, st, report); err != nil {
			return report, err
		}
	}

	if len(plan.Predicates) > 0 {
		if err := r.search(ctx, st, plan.Predicates, report); err != nil {
			return report, err
		}
	}

	report.Duration = time.Since(start)
	if cached, ok := r.encoder.(*phonetic.CachedEncoder); ok {
		report.CachedTokens = cached.Len()
	}
	slog.Info("run_complete",
		slog.String("database", database),
		slog.String("collection", r.cfg.Store.Collection),
		slog.Int("cached_tokens", report.CachedTokens),
		slog.Int64("duration_ms", report.Duration.Milliseconds()))

	return report, incomplete
}

func (r *Runner) backfill(ctx context.Context, st store.Store, paths []document.FieldPath, report *Report) error {
	r.out.BeginPhase("backfill")
	defer r.out.EndPhase("backfill")

	lock, err := backfill.AcquireLock(r.cfg.Backfill.LockDir, report.Database, r.cfg.Store.Collection)
	if err != nil {
		return apperrors.InternalError("failed to take the backfill lock", err)
	}
	if lock == nil {
		report.BackfillLocked = true
		locked := apperrors.New(apperrors.ErrCodeBackfillLocked,
			"another backfill is running on this collection", nil).
			WithDetail("collection", r.cfg.Store.Collection)
		slog.Warn("backfill_skipped", apperrors.LogAttrs(locked)...)
		r.out.Warning("Skipped: " + locked.Message)
		return nil
	}
	defer func() { _ = lock.Unlock() }()
	slog.Debug("backfill_lock_acquired", slog.String("path", lock.Path()))

	pipeline, err := backfill.New(backfill.Dependencies{
		Store:      st,
		Builder:    codeset.NewBuilder(paths, r.encoder),
		OnProgress: r.reportBatch,
	}, backfill.Config{
		Field:        r.cfg.Index.Field,
		BatchSize:    r.cfg.Backfill.BatchSize,
		FetchTimeout: r.cfg.Backfill.FetchTimeout,
		MaxAttempts:  r.cfg.Backfill.MaxAttempts,
		BaseDelay:    r.cfg.Backfill.BaseDelay,
		RateLimit:    r.cfg.Backfill.RateLimit,
	})
	if err != nil {
		return apperrors.InternalError("failed to build the backfill pipeline", err)
	}

	result, err := pipeline.Run(ctx)
	report.Backfill = result
	if err != nil {
		r.out.Errorf("Backfill stopped after %d documents", result.Documents)
		return err
	}

	r.out.Successf("Scanned %d documents, %d updates in %d batches", result.Documents, result.Requests, result.Batches)
	r.out.KeyValue("without codes", result.Skipped)
	r.out.KeyValue("modified", result.Modified)
	if !result.Complete() {
		r.out.Warningf("%d batches (%d updates) gave up after %d attempts",
			result.FailedBatches, result.FailedRequests, pipeline.Submitter().MaxAttempts())
	}
	r.out.Duration("pass", result.Duration)
	return nil
}

func (r *Runner) reportBatch(p backfill.Progress) {
	if p.Failed {
		r.out.Warningf("batch %d: %d updates not written", p.Batch, p.Size)
		return
	}
	r.out.Statusf("", "batch %d: %d updates, %d attempt(s)", p.Batch, p.Size, p.Attempts)
}

func (r *Runner) ensureIndex(ctx context.Context, st store.Store, report *Report) error {
	r.out.BeginPhase("index")
	defer r.out.EndPhase("index")

	mgr, err := index.NewManager(st, r.cfg.Index.Name, r.cfg.Index.Field)
	if err != nil {
		return apperrors.InternalError("failed to build the index manager", err)
	}

	result, err := mgr.EnsureIndex(ctx)
	if err != nil {
		return err
	}
	report.Index = result

	if result.Created {
		r.out.Successf("Created index %s on %s", result.Name, result.Field)
	} else {
		r.out.Successf("Index %s already exists", result.Name)
	}
	r.out.Duration("index", result.Duration)
	return nil
}

func (r *Runner) search(ctx context.Context, st store.Store, predicates []string, report *Report) error {
	r.out.BeginPhase("search")
	defer r.out.EndPhase("search")

	exec, err := search.NewExecutor(st,
		search.WithEncoder(r.encoder),
		search.WithField(r.cfg.Index.Field))
	if err != nil {
		return apperrors.InternalError("failed to build the search executor", err)
	}

	result, err := exec.Search(ctx, predicates)
	if err != nil {
		return err
	}
	defer func() { _ = result.Close(context.WithoutCancel(ctx)) }()
	report.Codes = result.Codes
	if result.Warning != nil {
		r.out.Warningf("%s: %s", result.Warning.Message, result.Warning.Suggestion)
	}

	r.out.KeyValue("codes", result.Codes)
	for doc, err := range result.Documents(ctx) {
		if err != nil {
			return err
		}
		report.Matches++
		if err := r.out.Document(doc); err != nil {
			return apperrors.InternalError("failed to print a match", err)
		}
	}

	r.out.Successf("%d matching documents", report.Matches)
	return nil
}
