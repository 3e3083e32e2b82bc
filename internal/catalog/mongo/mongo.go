// Package mongo stores the catalog in MongoDB Atlas and searches it with the
// $vectorSearch aggregation stage. Documents keep the nested layout of the
// upstream product feed (details, nutrition_information, price_instructions).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
)

// scoreField carries the $meta vectorSearchScore in projected results.
const scoreField = "score"

var fieldPaths = map[catalog.Field]string{
	catalog.FieldDisplayName: "display_name",
	catalog.FieldLegalName:   "details.legal_name",
	catalog.FieldDescription: "details.description",
	catalog.FieldIngredients: "nutrition_information.ingredients",
	catalog.FieldAllergens:   "nutrition_information.allergens",
	catalog.FieldPhotos:      "photos",
	catalog.FieldThumbnail:   "thumbnail",
	catalog.FieldBulkPrice:   "price_instructions.bulk_price",
}

var allFields = catalog.Projection{
	catalog.FieldDisplayName, catalog.FieldLegalName, catalog.FieldDescription, catalog.FieldIngredients,
	catalog.FieldAllergens, catalog.FieldPhotos, catalog.FieldThumbnail, catalog.FieldBulkPrice,
}

// Store implements catalog.Store over one collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri with a bounded server selection timeout.
func Connect(ctx context.Context, uri, database, collection string, selectionTimeout time.Duration) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo URI is empty")
	}
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(selectionTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return New(client, database, collection), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database, collection string) *Store {
	return &Store{client: client, coll: client.Database(database).Collection(collection)}
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// productDoc mirrors the stored document.
type productDoc struct {
	ID          bson.RawValue `bson:"_id"`
	DisplayName string        `bson:"display_name"`
	Thumbnail   string        `bson:"thumbnail,omitempty"`
	Details     struct {
		LegalName   string `bson:"legal_name,omitempty"`
		Description string `bson:"description,omitempty"`
	} `bson:"details"`
	Nutrition struct {
		Ingredients string `bson:"ingredients,omitempty"`
		Allergens   string `bson:"allergens,omitempty"`
	} `bson:"nutrition_information"`
	Photos []struct {
		Regular string `bson:"regular"`
	} `bson:"photos,omitempty"`
	Price struct {
		BulkPrice bson.RawValue `bson:"bulk_price"`
	} `bson:"price_instructions"`
	Score float64 `bson:"score,omitempty"`
}

func (d productDoc) record() catalog.ProductRecord {
	r := catalog.ProductRecord{
		ID:          idString(d.ID),
		DisplayName: d.DisplayName,
		LegalName:   d.Details.LegalName,
		Description: d.Details.Description,
		Ingredients: d.Nutrition.Ingredients,
		Allergens:   d.Nutrition.Allergens,
		Thumbnail:   d.Thumbnail,
		BulkPrice:   decimalString(d.Price.BulkPrice),
	}
	for _, p := range d.Photos {
		r.Photos = append(r.Photos, p.Regular)
	}
	return r
}

// setDoc renders the product fields of r for a $set; embeddings are left alone.
func setDoc(r catalog.ProductRecord) bson.D {
	photos := bson.A{}
	for _, p := range r.Photos {
		photos = append(photos, bson.D{{Key: "regular", Value: p}})
	}
	return bson.D{
		{Key: "display_name", Value: r.DisplayName},
		{Key: "thumbnail", Value: r.Thumbnail},
		{Key: "details.legal_name", Value: r.LegalName},
		{Key: "details.description", Value: r.Description},
		{Key: "nutrition_information.ingredients", Value: r.Ingredients},
		{Key: "nutrition_information.allergens", Value: r.Allergens},
		{Key: "photos", Value: photos},
		{Key: "price_instructions.bulk_price", Value: r.BulkPrice},
	}
}

func idString(v bson.RawValue) string {
	switch v.Type {
	case bsontype.String:
		return v.StringValue()
	case bsontype.ObjectID:
		return v.ObjectID().Hex()
	case bsontype.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case bsontype.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	default:
		return ""
	}
}

func decimalString(v bson.RawValue) string {
	switch v.Type {
	case bsontype.String:
		return v.StringValue()
	case bsontype.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case bsontype.Decimal128:
		return v.Decimal128().String()
	case bsontype.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case bsontype.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	default:
		return ""
	}
}

// idValues matches both string ids and ObjectIDs rendered as hex.
func idValues(ids []string) bson.A {
	out := bson.A{}
	for _, id := range ids {
		out = append(out, id)
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

func filterDoc(f catalog.Filter) bson.D {
	if len(f.IDs) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: idValues(f.IDs)}}}}
}

func projectionDoc(p catalog.Projection) bson.D {
	if len(p) == 0 {
		p = allFields
	}
	out := bson.D{{Key: "_id", Value: 1}}
	for _, f := range p {
		if path, ok := fieldPaths[f]; ok {
			out = append(out, bson.E{Key: path, Value: 1})
		}
	}
	return out
}

// upsertDocs matches an existing document whichever _id type it was stored
// with. Ids that parse as ObjectID hex match both forms, so the new _id is
// pinned explicitly; new documents keep the id as a string.
func upsertDocs(r catalog.ProductRecord) (filter, update bson.D) {
	update = bson.D{{Key: "$set", Value: setDoc(r)}}
	if _, err := primitive.ObjectIDFromHex(r.ID); err != nil {
		return bson.D{{Key: "_id", Value: r.ID}}, update
	}
	update = append(update, bson.E{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: r.ID}}})
	return filterDoc(catalog.Filter{IDs: []string{r.ID}}), update
}

func (s *Store) Insert(ctx context.Context, records ...catalog.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return model.NewStoreError("insert", errors.New("record without id"))
		}
		filter, update := upsertDocs(r)
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(update).
			SetUpsert(true))
	}
	if _, err := s.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return model.NewStoreError("insert", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, f catalog.Filter, proj catalog.Projection, skip, limit int) ([]catalog.ProductRecord, error) {
	opts := options.Find().
		SetProjection(projectionDoc(proj)).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(max(skip, 0)))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filterDoc(f), opts)
	if err != nil {
		return nil, model.NewStoreError("find", err)
	}
	defer cur.Close(ctx)

	out := []catalog.ProductRecord{}
	for cur.Next(ctx) {
		var d productDoc
		if err := cur.Decode(&d); err != nil {
			return nil, model.NewStoreError("find", err)
		}
		out = append(out, d.record())
	}
	return out, model.NewStoreError("find", cur.Err())
}

func (s *Store) Count(ctx context.Context, f catalog.Filter) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, filterDoc(f))
	if err != nil {
		return 0, model.NewStoreError("count", err)
	}
	return n, nil
}

func (s *Store) Update(ctx context.Context, id string, emb catalog.Embeddings) error {
	if err := emb.Validate(); err != nil {
		return model.NewStoreError("update", err)
	}
	set := bson.D{}
	for _, rec := range emb.Records(id) {
		set = append(set, bson.E{Key: rec.Space.Field(), Value: rec.Vector})
	}
	res, err := s.coll.UpdateOne(ctx, filterDoc(catalog.Filter{IDs: []string{id}}), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return model.NewStoreError("update", err)
	}
	if res.MatchedCount == 0 {
		return model.NewStoreError("update", fmt.Errorf("%s: %w", id, catalog.ErrNotFound))
	}
	return nil
}

func (s *Store) Embeddings(ctx context.Context, id string) (catalog.Embeddings, error) {
	proj := bson.D{}
	for _, sp := range catalog.Spaces() {
		proj = append(proj, bson.E{Key: sp.Field(), Value: 1})
	}
	var raw bson.M
	err := s.coll.FindOne(ctx, filterDoc(catalog.Filter{IDs: []string{id}}), options.FindOne().SetProjection(proj)).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = fmt.Errorf("%s: %w", id, catalog.ErrNotFound)
		}
		return nil, model.NewStoreError("embeddings", err)
	}
	out := catalog.Embeddings{}
	for _, sp := range catalog.Spaces() {
		if arr, ok := raw[sp.Field()].(bson.A); ok {
			out[sp] = floats(arr)
		}
	}
	return out, nil
}

func floats(arr bson.A) []float32 {
	out := make([]float32, 0, len(arr))
	for _, x := range arr {
		switch v := x.(type) {
		case float64:
			out = append(out, float32(v))
		case int32:
			out = append(out, float32(v))
		case int64:
			out = append(out, float32(v))
		}
	}
	return out
}

// pipeline builds the $vectorSearch aggregation for q.
func pipeline(q catalog.VectorQuery) mongo.Pipeline {
	project := projectionDoc(q.Projection)
	project = append(project, bson.E{Key: scoreField, Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}})
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: q.Index},
			{Key: "path", Value: q.Path},
			{Key: "queryVector", Value: q.Vector},
			{Key: "numCandidates", Value: q.NumCandidates},
			{Key: "limit", Value: q.Limit},
		}}},
		{{Key: "$project", Value: project}},
	}
}

func (s *Store) VectorSearch(ctx context.Context, q catalog.VectorQuery) ([]catalog.Hit, error) {
	if err := q.Validate(); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	cur, err := s.coll.Aggregate(ctx, pipeline(q))
	if err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	defer cur.Close(ctx)

	hits := []catalog.Hit{}
	for cur.Next(ctx) {
		var d productDoc
		if err := cur.Decode(&d); err != nil {
			return nil, model.NewStoreError("vector_search", err)
		}
		hits = append(hits, catalog.Hit{Record: q.Projection.Apply(d.record()), Score: d.Score})
	}
	return hits, model.NewStoreError("vector_search", cur.Err())
}

// EnsureSchema creates one Atlas vectorSearch index per space with cosine
// similarity, skipping indexes that already exist.
func (s *Store) EnsureSchema(ctx context.Context, dims map[catalog.VectorSpace]int) error {
	view := s.coll.SearchIndexes()
	for _, sp := range catalog.Spaces() {
		d, ok := dims[sp]
		if !ok || d <= 0 {
			continue
		}
		exists, err := s.searchIndexExists(ctx, sp.Index())
		if err != nil {
			return model.NewStoreError("schema", err)
		}
		if exists {
			continue
		}
		_, err = view.CreateOne(ctx, mongo.SearchIndexModel{
			Definition: vectorIndexDefinition(sp, d),
			Options:    options.SearchIndexes().SetName(sp.Index()).SetType("vectorSearch"),
		})
		if err != nil {
			return model.NewStoreError("schema", fmt.Errorf("create %s: %w", sp.Index(), err))
		}
	}
	return nil
}

func vectorIndexDefinition(sp catalog.VectorSpace, dim int) bson.D {
	return bson.D{{Key: "fields", Value: bson.A{
		bson.D{
			{Key: "type", Value: "vector"},
			{Key: "path", Value: sp.Field()},
			{Key: "numDimensions", Value: dim},
			{Key: "similarity", Value: "cosine"},
		},
	}}}
}

func (s *Store) searchIndexExists(ctx context.Context, name string) (bool, error) {
	cur, err := s.coll.SearchIndexes().List(ctx, options.SearchIndexes().SetName(name))
	if err != nil {
		return false, err
	}
	defer cur.Close(ctx)
	return cur.Next(ctx), cur.Err()
}
