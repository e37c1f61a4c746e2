package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/utils"
)

// MongoProductStore implements the RecordStore interface on MongoDB. Records
// are keyed by source URL with a unique index, so re-acquiring a page updates
// the existing document instead of duplicating it.
type MongoProductStore struct {
	client  *mongo.Client
	records *mongo.Collection
	log     *logrus.Entry
}

// NewMongoProductStore connects, verifies the server with a ping, and ensures
// the collection indexes exist.
func NewMongoProductStore(ctx context.Context, uri, database, collection string, logger *logrus.Entry) (*MongoProductStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to MongoDB: %w", utils.ErrDatabase, err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("%w: can't ping MongoDB: %w", utils.ErrDatabase, err)
	}

	s := &MongoProductStore{
		client:  client,
		records: client.Database(database).Collection(collection),
		log:     logger,
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%w: can't create indexes: %w", utils.ErrDatabase, err)
	}

	logger.Infof("Product store initialized (db=%s collection=%s)", database, collection)
	return s, nil
}

func (s *MongoProductStore) createIndexes(ctx context.Context) error {
	idxCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source_url", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "index_state", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "quality_score", Value: 1}},
		},
	}
	_, err := s.records.Indexes().CreateMany(idxCtx, indexes)
	return err
}

// buildUpsert constructs the update document for one record. Exactly one
// pricing shape ends up with non-null fields; the other price fields are
// written as explicit nulls so stale values from a previous extraction never
// survive a re-acquisition. index_state drops back to pending on every write
// because the changed document needs re-indexing.
func buildUpsert(rec *models.CandidateRecord, now time.Time) bson.M {
	set := bson.M{
		"sku":            rec.SKU,
		"title":          rec.Title,
		"category":       rec.Category,
		"specifications": rec.Specifications,
		"pricing_kind":   string(rec.Pricing.Kind),
		"box_price":      rec.Pricing.BoxPrice,
		"area_price":     rec.Pricing.AreaPrice,
		"piece_price":    rec.Pricing.PiecePrice,
		"quality_score":  rec.QualityScore,
		"flagged":        rec.Flagged,
		"source_url":     rec.SourceURL,
		"index_state":    string(models.IndexStatePending),
		"last_updated":   now,
	}
	if len(rec.Images) > 0 {
		set["images"] = rec.Images
	}
	if len(rec.Resources) > 0 {
		set["resources"] = rec.Resources
	}
	if rec.DescriptionMarkdown != "" {
		set["description_markdown"] = rec.DescriptionMarkdown
	}

	return bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"first_seen": now},
		"$inc":         bson.M{"extraction_count": 1},
	}
}

// Upsert implements the RecordStore interface. The pricing invariant is
// checked before anything touches the wire. Failures are classified: a write
// error the server returned for this one document wraps ErrRecordRejected,
// while connectivity trouble wraps ErrDatabase so callers can tell a bad
// record from a down store.
func (s *MongoProductStore) Upsert(ctx context.Context, rec *models.CandidateRecord) error {
	if !rec.Pricing.Consistent() {
		return fmt.Errorf("%w: record %q has inconsistent pricing (kind=%s)", utils.ErrRecordRejected, rec.SourceURL, rec.Pricing.Kind)
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"source_url": rec.SourceURL}
	update := buildUpsert(rec, time.Now().UTC())
	opts := options.Update().SetUpsert(true)

	res, err := s.records.UpdateOne(opCtx, filter, update, opts)
	if err != nil {
		var writeErr mongo.WriteException
		if errors.As(err, &writeErr) {
			return fmt.Errorf("%w: upserting record %q: %w", utils.ErrRecordRejected, rec.SourceURL, err)
		}
		return fmt.Errorf("%w: upserting record %q: %w", utils.ErrDatabase, rec.SourceURL, err)
	}

	if res.UpsertedCount > 0 {
		s.log.Debugf("Inserted new product record for %s", rec.SourceURL)
	} else {
		s.log.Debugf("Updated existing product record for %s", rec.SourceURL)
	}
	return nil
}

// MarkIndexRequested implements the RecordStore interface.
func (s *MongoProductStore) MarkIndexRequested(ctx context.Context, sourceURL string) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"source_url": sourceURL}
	update := bson.M{"$set": bson.M{
		"index_state":        string(models.IndexStateRequested),
		"index_requested_at": time.Now().UTC(),
	}}

	res, err := s.records.UpdateOne(opCtx, filter, update)
	if err != nil {
		return fmt.Errorf("%w: marking index requested for %q: %w", utils.ErrDatabase, sourceURL, err)
	}
	if res.MatchedCount == 0 {
		s.log.Warnf("MarkIndexRequested: no stored record for %s", sourceURL)
	}
	return nil
}

// QualityDistribution implements the RecordStore interface. Scores are binned
// into quarter-width buckets for the status report.
func (s *MongoProductStore) QualityDistribution(ctx context.Context) (map[string]int, error) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$bucket", Value: bson.D{
			{Key: "groupBy", Value: "$quality_score"},
			{Key: "boundaries", Value: bson.A{0.0, 0.25, 0.5, 0.75, 1.01}},
			{Key: "default", Value: "other"},
			{Key: "output", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}},
		}}},
	}

	cursor, err := s.records.Aggregate(opCtx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%w: quality distribution aggregation: %w", utils.ErrDatabase, err)
	}
	defer cursor.Close(opCtx)

	var buckets []struct {
		ID    any `bson:"_id"`
		Count int `bson:"count"`
	}
	if err := cursor.All(opCtx, &buckets); err != nil {
		return nil, fmt.Errorf("%w: decoding quality distribution: %w", utils.ErrDatabase, err)
	}

	dist := make(map[string]int, len(buckets))
	for _, b := range buckets {
		dist[bucketLabel(b.ID)] = b.Count
	}
	return dist, nil
}

// bucketLabel translates a $bucket lower boundary into a human-readable range.
func bucketLabel(id any) string {
	lower, ok := toFloat(id)
	if !ok {
		return "other"
	}
	switch lower {
	case 0.0:
		return "0.00-0.25"
	case 0.25:
		return "0.25-0.50"
	case 0.5:
		return "0.50-0.75"
	case 0.75:
		return "0.75-1.00"
	}
	return fmt.Sprintf("%.2f+", lower)
}

func toFloat(id any) (float64, bool) {
	switch v := id.(type) {
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Close implements the RecordStore interface.
func (s *MongoProductStore) Close(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	s.log.Info("Closing product store connection...")
	return s.client.Disconnect(opCtx)
}
