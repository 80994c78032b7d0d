package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fuzzysearch/internal/config"
	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/output"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

// maxLineSize bounds one NDJSON document.
const maxLineSize = 16 * 1024 * 1024

func newImportCmd() *cobra.Command {
	var sf storeFlags

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load JSON documents into the collection",
		Long: `Load documents from a JSON array or from newline-delimited JSON
(one object per line) into the collection. Use "-" to read stdin.

Documents without an _id get a generated one.`,
		Example: `  # Seed a local SQLite collection
  fuzzysearch import --backend sqlite -c persons people.json

  # Pipe NDJSON into MongoDB
  cat people.ndjson | fuzzysearch import -d people -c persons -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &sf)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), cmd, cfg, args[0])
		},
	}

	sf.register(cmd)
	return cmd
}

func runImport(ctx context.Context, cmd *cobra.Command, cfg *config.Config, source string) error {
	out := output.New(cmd.OutOrStdout())

	var r io.Reader = cmd.InOrStdin()
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			return apperrors.ValidationError("cannot open import file", err).WithDetail("path", source)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	docs, err := readDocuments(r)
	if err != nil {
		return err
	}

	database, err := cfg.ResolveDatabase()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, store.Options{
		Backend:    store.Backend(cfg.Store.Backend),
		URI:        cfg.Store.URI,
		Database:   database,
		Collection: cfg.Store.Collection,
		SQLitePath: cfg.ResolveSQLitePath(database),
	})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()

	retry := apperrors.DefaultRetryConfig()
	retry.ShouldRetry = apperrors.IsRetryable
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		slog.Warn("import_retry", append(apperrors.LogAttrs(err),
			slog.Int("attempt", attempt),
			slog.Int64("delay_ms", delay.Milliseconds()))...)
	}

	inserted, err := insertAll(ctx, st, docs, cfg.Backfill.BatchSize, retry)
	if err != nil {
		out.Errorf("Import stopped after %d documents", inserted)
		return err
	}

	slog.Info("import_complete",
		slog.String("collection", cfg.Store.Collection),
		slog.Int("documents", inserted))
	out.Successf("Imported %d documents into %s.%s", inserted, database, cfg.Store.Collection)
	return nil
}

// inserter is the part of store.Store that import writes through.
type inserter interface {
	InsertMany(ctx context.Context, docs []document.Document) (int, error)
}

// insertAll writes docs in chunks of batchSize. A retried chunk resumes after
// the documents an earlier attempt already stored, so none is written twice.
func insertAll(ctx context.Context, st inserter, docs []document.Document, batchSize int, retry apperrors.RetryConfig) (int, error) {
	if batchSize <= 0 {
		batchSize = len(docs)
	}

	inserted := 0
	for start := 0; start < len(docs); start += batchSize {
		chunk := docs[start:min(start+batchSize, len(docs))]
		err := apperrors.Retry(ctx, retry, func() error {
			n, err := st.InsertMany(ctx, chunk)
			inserted += n
			chunk = chunk[n:]
			return err
		})
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// readDocuments parses a JSON array of objects or NDJSON.
func readDocuments(r io.Reader) ([]document.Document, error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ValidationError("cannot read import data", err)
	}

	if first == '[' {
		var raw []json.RawMessage
		dec := json.NewDecoder(br)
		if err := dec.Decode(&raw); err != nil {
			return nil, apperrors.ValidationError("invalid JSON array", err)
		}
		docs := make([]document.Document, 0, len(raw))
		for i, msg := range raw {
			doc, err := store.DecodeJSONDocument(msg)
			if err != nil {
				return nil, apperrors.ValidationError("invalid document", err).
					WithDetail("element", fmt.Sprintf("%d", i))
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	var docs []document.Document
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		doc, err := store.DecodeJSONDocument(data)
		if err != nil {
			return nil, apperrors.ValidationError("invalid document", err).
				WithDetail("line", fmt.Sprintf("%d", line))
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.ValidationError("cannot read import data", err)
	}
	return docs, nil
}

// peekNonSpace skips leading whitespace and returns the next byte unread.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
