package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
)

// Server error codes the store boundary classifies.
const (
	// mongoCodeNoProgress is returned when a write batch applied nothing.
	mongoCodeNoProgress = 82

	mongoCodeIndexOptionsConflict  = 85
	mongoCodeIndexKeySpecsConflict = 86
)

const defaultServerSelectionTimeout = 10 * time.Second

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	coll   *mongo.Collection
}

// Verify interface implementation at compile time
var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to uri and binds database.collection.
// Connecting is lazy; the first round-trip happens on Ping or the first request.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if database == "" {
		return nil, apperrors.New(apperrors.ErrCodeDatabaseUnresolved, "database name is required", nil)
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(defaultServerSelectionTimeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, apperrors.StoreError("failed to create mongo client", err).
			WithSuggestion("check the connection string")
	}

	db := client.Database(database)
	slog.Debug("mongo_store_opened",
		slog.String("database", database),
		slog.String("collection", collection))

	return &MongoStore{
		client: client,
		db:     db,
		coll:   db.Collection(collection),
	}, nil
}

// Ping runs the ping command against the database.
func (s *MongoStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return 0, classifyMongo(ctx, "ping", err)
	}
	return time.Since(start), nil
}

// Scan opens a cursor over the whole collection.
func (s *MongoStore) Scan(ctx context.Context, opts ScanOptions) (Cursor, error) {
	opts = opts.withDefaults()

	findOpts := options.Find().SetBatchSize(int32(opts.BatchSize))
	if opts.FetchTimeout > 0 {
		findOpts.SetMaxAwaitTime(opts.FetchTimeout)
	}

	cur, err := s.find(ctx, bson.D{}, opts.FetchTimeout, findOpts)
	if err != nil {
		return nil, classifyMongo(ctx, "scan", err)
	}
	return cur, nil
}

// BulkAddToSet issues one unordered bulk write of $addToSet/$each updates.
func (s *MongoStore) BulkAddToSet(ctx context.Context, field string, reqs []UpdateRequest) (*BulkResult, error) {
	if len(reqs) == 0 {
		return &BulkResult{}, nil
	}

	models := make([]mongo.WriteModel, 0, len(reqs))
	for _, r := range reqs {
		update := bson.D{{Key: "$addToSet", Value: bson.D{
			{Key: field, Value: bson.D{{Key: "$each", Value: r.Codes}}},
		}}}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: document.IDField, Value: r.ID}}).
			SetUpdate(update))
	}

	res, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return nil, classifyMongo(ctx, "bulk write", err)
	}
	return &BulkResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// mongoIndex is the subset of a listIndexes entry we compare.
type mongoIndex struct {
	Name string `bson:"name"`
	Key  bson.D `bson:"key"`
}

// EnsureIndex creates {field: 1} under spec.Name unless it already exists.
func (s *MongoStore) EnsureIndex(ctx context.Context, spec IndexSpec) (bool, error) {
	existing, err := s.findIndex(ctx, spec.Name)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if !sameAscendingKey(existing.Key, spec.Field) {
			return false, indexConflict(spec, fmt.Errorf("existing key %v", existing.Key))
		}
		return false, nil
	}

	model := mongo.IndexModel{
		Keys:    bson.D{{Key: spec.Field, Value: 1}},
		Options: options.Index().SetName(spec.Name),
	}
	if _, err := s.coll.Indexes().CreateOne(ctx, model); err != nil {
		if isIndexConflict(err) {
			return false, indexConflict(spec, err)
		}
		return false, classifyMongo(ctx, "create index", err)
	}
	return true, nil
}

func (s *MongoStore) findIndex(ctx context.Context, name string) (*mongoIndex, error) {
	cur, err := s.coll.Indexes().List(ctx)
	if err != nil {
		return nil, classifyMongo(ctx, "list indexes", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	for cur.Next(ctx) {
		var idx mongoIndex
		if err := cur.Decode(&idx); err != nil {
			return nil, classifyMongo(ctx, "decode index", err)
		}
		if idx.Name == name {
			return &idx, nil
		}
	}
	if err := cur.Err(); err != nil {
		return nil, classifyMongo(ctx, "list indexes", err)
	}
	return nil, nil
}

// FindIn runs {field: {$in: values}}.
func (s *MongoStore) FindIn(ctx context.Context, field string, values []string) (Cursor, error) {
	filter := bson.D{{Key: field, Value: bson.D{{Key: "$in", Value: values}}}}
	cur, err := s.find(ctx, filter, 0, options.Find())
	if err != nil {
		return nil, classifyMongo(ctx, "find", err)
	}
	return cur, nil
}

// InsertMany inserts docs in order and stops at the first failure. Documents
// without _id get an ObjectID assigned in place, so a retry of the same
// slice re-sends the same ids. On failure the count is the inserted prefix.
func (s *MongoStore) InsertMany(ctx context.Context, docs []document.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]any, len(docs))
	for i, d := range docs {
		if d.ID() == nil {
			d[document.IDField] = bson.NewObjectID()
		}
		batch[i] = map[string]any(d)
	}
	res, err := s.coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(true))
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err != nil {
		return inserted, classifyMongo(ctx, "insert", err)
	}
	return inserted, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter any, fetchTimeout time.Duration, opts *options.FindOptionsBuilder) (*mongoCursor, error) {
	findCtx := ctx
	if fetchTimeout > 0 {
		var cancel context.CancelFunc
		findCtx, cancel = context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
	}

	cur, err := s.coll.Find(findCtx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &mongoCursor{cur: cur, fetchTimeout: fetchTimeout}, nil
}

// mongoCursor adapts *mongo.Cursor, bounding each getMore by fetchTimeout.
type mongoCursor struct {
	cur          *mongo.Cursor
	fetchTimeout time.Duration
	doc          document.Document
	err          error
}

func (c *mongoCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}

	fetchCtx := ctx
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	if !c.cur.Next(fetchCtx) {
		if err := c.cur.Err(); err != nil {
			c.err = classifyMongo(ctx, "cursor", err)
		}
		return false
	}

	var raw bson.M
	if err := c.cur.Decode(&raw); err != nil {
		c.err = apperrors.InternalError("failed to decode document", err)
		return false
	}
	c.doc = normalizeDocument(raw)
	return true
}

func (c *mongoCursor) Document() document.Document { return c.doc }

func (c *mongoCursor) Err() error { return c.err }

func (c *mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

// classifyMongo maps driver errors onto internal/errors codes. A failure
// caused by the caller's own ctx ending is never a retryable store timeout.
func classifyMongo(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}

	msg := op + " failed"

	if ctx.Err() != nil {
		return interrupted(msg, err)
	}

	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(mongoCodeNoProgress) {
		return apperrors.BackpressureError(msg+": no progress made", err)
	}
	if mongo.IsTimeout(err) {
		return apperrors.New(apperrors.ErrCodeStoreTimeout, msg+": timed out", err)
	}
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.New(apperrors.ErrCodeDuplicateID, msg+": duplicate _id", err).
			WithSuggestion("the collection already holds a document with this _id")
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		return apperrors.New(apperrors.ErrCodeBulkWritePartial, msg+": some writes were rejected", err).
			WithDetail("write_errors", fmt.Sprintf("%d", len(bwe.WriteErrors)))
	}
	return apperrors.StoreError(msg, err)
}

func isIndexConflict(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(mongoCodeIndexOptionsConflict) || se.HasErrorCode(mongoCodeIndexKeySpecsConflict)
}

func indexConflict(spec IndexSpec, cause error) error {
	return apperrors.New(apperrors.ErrCodeIndexConflict,
		fmt.Sprintf("index %q exists with a different definition", spec.Name), cause).
		WithDetail("index", spec.Name).
		WithDetail("field", spec.Field).
		WithSuggestion("drop the existing index or configure another index name")
}

// sameAscendingKey reports whether key is exactly {field: 1}.
func sameAscendingKey(key bson.D, field string) bool {
	if len(key) != 1 || key[0].Key != field {
		return false
	}
	switch v := key[0].Value.(type) {
	case int32:
		return v == 1
	case int64:
		return v == 1
	case float64:
		return v == 1
	default:
		return false
	}
}

// normalizeDocument converts driver types so nested documents are
// map[string]any and arrays are []any.
func normalizeDocument(m bson.M) document.Document {
	doc := make(document.Document, len(m))
	for k, v := range m {
		doc[k] = normalizeValue(v)
	}
	return doc
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(normalizeDocument(t))
	case map[string]any:
		return map[string]any(normalizeDocument(t))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		return normalizeArray(t)
	case []any:
		return normalizeArray(t)
	default:
		return v
	}
}

func normalizeArray(arr []any) []any {
	out := make([]any, len(arr))
	for i, v := range arr {
		out[i] = normalizeValue(v)
	}
	return out
}

func interrupted(msg string, err error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeInterrupted, msg+": interrupted", err)
}
