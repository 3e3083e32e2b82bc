// Package weaviate stores the catalog as Weaviate objects with one named vector
// per vector space. Object ids are derived from product ids, so re-imports and
// re-indexing address the same object.
package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	filters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/vector"
)

// maxResults mirrors Weaviate's default QUERY_MAXIMUM_RESULTS.
const maxResults = 10000

var propNames = map[catalog.Field]string{
	catalog.FieldDisplayName: "displayName",
	catalog.FieldLegalName:   "legalName",
	catalog.FieldDescription: "description",
	catalog.FieldIngredients: "ingredients",
	catalog.FieldAllergens:   "allergens",
	catalog.FieldPhotos:      "photos",
	catalog.FieldThumbnail:   "thumbnail",
	catalog.FieldBulkPrice:   "bulkPrice",
}

var allFields = catalog.Projection{
	catalog.FieldDisplayName, catalog.FieldLegalName, catalog.FieldDescription, catalog.FieldIngredients,
	catalog.FieldAllergens, catalog.FieldPhotos, catalog.FieldThumbnail, catalog.FieldBulkPrice,
}

// Store implements catalog.Store over one Weaviate class.
type Store struct {
	client    *weaviate.Client
	className string
}

// New constructs a store backed by Weaviate at host (host:port, no scheme).
func New(host, className string) (*Store, error) {
	cl, err := weaviate.NewClient(weaviate.Config{Scheme: "http", Host: host})
	if err != nil {
		return nil, err
	}
	return &Store{client: cl, className: className}, nil
}

// ObjectID derives the Weaviate object id for a product id.
func ObjectID(productID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("product:"+productID)).String())
}

// HealthPing implements health.HealthPinger via GET /v1/meta.
func (s *Store) HealthPing(ctx context.Context) error {
	_, err := s.client.Misc().MetaGetter().Do(ctx)
	return err
}

// classDefinition builds the class with one cosine HNSW named vector per space.
func classDefinition(className string, dims map[catalog.VectorSpace]int) *models.Class {
	vc := map[string]models.VectorConfig{}
	for _, sp := range catalog.Spaces() {
		if d, ok := dims[sp]; !ok || d <= 0 {
			continue
		}
		vc[sp.Field()] = models.VectorConfig{
			Vectorizer:        map[string]interface{}{"none": map[string]interface{}{}},
			VectorIndexType:   "hnsw",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
		}
	}
	return &models.Class{
		Class: className,
		Properties: []*models.Property{
			{Name: "productId", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "displayName", DataType: []string{"text"}},
			{Name: "legalName", DataType: []string{"text"}},
			{Name: "description", DataType: []string{"text"}},
			{Name: "ingredients", DataType: []string{"text"}},
			{Name: "allergens", DataType: []string{"text"}},
			{Name: "photos", DataType: []string{"text[]"}},
			{Name: "thumbnail", DataType: []string{"text"}},
			{Name: "bulkPrice", DataType: []string{"text"}},
		},
		VectorConfig: vc,
	}
}

// EnsureSchema creates the class when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context, dims map[catalog.VectorSpace]int) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx)
	if err != nil {
		return model.NewStoreError("schema", err)
	}
	if exists {
		return nil
	}
	if err := s.client.Schema().ClassCreator().WithClass(classDefinition(s.className, dims)).Do(ctx); err != nil {
		return model.NewStoreError("schema", fmt.Errorf("create class %s: %w", s.className, err))
	}
	return nil
}

func properties(r catalog.ProductRecord) map[string]interface{} {
	photos := r.Photos
	if photos == nil {
		photos = []string{}
	}
	return map[string]interface{}{
		"productId":   r.ID,
		"displayName": r.DisplayName,
		"legalName":   r.LegalName,
		"description": r.Description,
		"ingredients": r.Ingredients,
		"allergens":   r.Allergens,
		"photos":      photos,
		"thumbnail":   r.Thumbnail,
		"bulkPrice":   r.BulkPrice,
	}
}

func record(m map[string]interface{}) catalog.ProductRecord {
	str := func(k string) string { v, _ := m[k].(string); return v }
	r := catalog.ProductRecord{
		ID:          str("productId"),
		DisplayName: str("displayName"),
		LegalName:   str("legalName"),
		Description: str("description"),
		Ingredients: str("ingredients"),
		Allergens:   str("allergens"),
		Thumbnail:   str("thumbnail"),
		BulkPrice:   str("bulkPrice"),
	}
	if arr, ok := m["photos"].([]interface{}); ok {
		for _, p := range arr {
			if s, ok := p.(string); ok {
				r.Photos = append(r.Photos, s)
			}
		}
	}
	return r
}

func fields(p catalog.Projection, additional ...gql.Field) []gql.Field {
	if len(p) == 0 {
		p = allFields
	}
	out := []gql.Field{{Name: "productId"}}
	for _, f := range p {
		if name, ok := propNames[f]; ok {
			out = append(out, gql.Field{Name: name})
		}
	}
	if len(additional) > 0 {
		out = append(out, gql.Field{Name: "_additional", Fields: additional})
	}
	return out
}

func where(f catalog.Filter) *filters.WhereBuilder {
	if len(f.IDs) == 0 {
		return nil
	}
	return filters.Where().WithPath([]string{"productId"}).WithOperator(filters.ContainsAny).WithValueText(f.IDs...)
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	return s.client.Data().Checker().WithClassName(s.className).WithID(string(ObjectID(id))).Do(ctx)
}

// storedVectors loads the named vectors of an existing object.
func (s *Store) storedVectors(ctx context.Context, id string) (models.Vectors, error) {
	objs, err := s.client.Data().ObjectsGetter().
		WithClassName(s.className).
		WithID(string(ObjectID(id))).
		WithVector().
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%s: %w", id, catalog.ErrNotFound)
	}
	out := models.Vectors{}
	for k, v := range objs[0].Vectors {
		out[k] = v
	}
	return out, nil
}

// Insert creates objects, or replaces their properties while keeping stored vectors.
func (s *Store) Insert(ctx context.Context, records ...catalog.ProductRecord) error {
	for _, r := range records {
		if r.ID == "" {
			return model.NewStoreError("insert", errors.New("record without id"))
		}
		ok, err := s.exists(ctx, r.ID)
		if err != nil {
			return model.NewStoreError("insert", err)
		}
		if !ok {
			_, err := s.client.Data().Creator().
				WithClassName(s.className).
				WithID(string(ObjectID(r.ID))).
				WithProperties(properties(r)).
				Do(ctx)
			if err != nil {
				return model.NewStoreError("insert", err)
			}
			continue
		}
		vecs, err := s.storedVectors(ctx, r.ID)
		if err != nil {
			return model.NewStoreError("insert", err)
		}
		upd := s.client.Data().Updater().
			WithClassName(s.className).
			WithID(string(ObjectID(r.ID))).
			WithProperties(properties(r))
		if len(vecs) > 0 {
			upd = upd.WithVectors(vecs)
		}
		if err := upd.Do(ctx); err != nil {
			return model.NewStoreError("insert", err)
		}
	}
	return nil
}

// Find pages by productId when filtered by ids. Unfiltered scans use the
// cursor API in object-id order, which is stable and not bound by
// QUERY_MAXIMUM_RESULTS.
func (s *Store) Find(ctx context.Context, f catalog.Filter, proj catalog.Projection, skip, limit int) ([]catalog.ProductRecord, error) {
	if len(f.IDs) == 0 {
		items, err := walkCursor(max(skip, 0), limit, func(after string, n int, withProps bool) ([]map[string]interface{}, error) {
			return s.cursorPage(ctx, proj, after, n, withProps)
		})
		if err != nil {
			return nil, model.NewStoreError("find", err)
		}
		return records(items, proj), nil
	}
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}
	req := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields(proj)...).
		WithSort(gql.Sort{Path: []string{"productId"}, Order: gql.Asc}).
		WithOffset(max(skip, 0)).
		WithLimit(limit).
		WithWhere(where(f))
	items, err := s.get(ctx, req)
	if err != nil {
		return nil, model.NewStoreError("find", err)
	}
	return records(items, proj), nil
}

func (s *Store) get(ctx context.Context, req *gql.GetBuilder) ([]map[string]interface{}, error) {
	resp, err := req.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}
	return getItems(resp.Data, s.className), nil
}

// cursorPage reads up to n objects after the given object id. Skipped pages
// fetch only the id.
func (s *Store) cursorPage(ctx context.Context, proj catalog.Projection, after string, n int, withProps bool) ([]map[string]interface{}, error) {
	fs := []gql.Field{{Name: "_additional", Fields: []gql.Field{{Name: "id"}}}}
	if withProps {
		fs = fields(proj, gql.Field{Name: "id"})
	}
	return s.get(ctx, s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fs...).
		WithAfter(after).
		WithLimit(n))
}

type cursorFetch func(after string, n int, withProps bool) ([]map[string]interface{}, error)

// walkCursor skips skip objects, then collects limit objects (all remaining
// when limit <= 0), in chunks of at most maxResults.
func walkCursor(skip, limit int, fetch cursorFetch) ([]map[string]interface{}, error) {
	after := ""
	for skip > 0 {
		n := min(skip, maxResults)
		page, err := fetch(after, n, false)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return []map[string]interface{}{}, nil
		}
		if after, err = lastID(page); err != nil {
			return nil, err
		}
		skip -= len(page)
		if len(page) < n {
			return []map[string]interface{}{}, nil
		}
	}
	out := []map[string]interface{}{}
	for limit <= 0 || len(out) < limit {
		n := maxResults
		if limit > 0 {
			n = min(limit-len(out), maxResults)
		}
		page, err := fetch(after, n, true)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < n {
			break
		}
		if after, err = lastID(page); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func lastID(page []map[string]interface{}) (string, error) {
	add, _ := page[len(page)-1]["_additional"].(map[string]interface{})
	id, _ := add["id"].(string)
	if id == "" {
		return "", errors.New("cursor page without object id")
	}
	return id, nil
}

func records(items []map[string]interface{}, proj catalog.Projection) []catalog.ProductRecord {
	out := make([]catalog.ProductRecord, 0, len(items))
	for _, m := range items {
		out = append(out, proj.Apply(record(m)))
	}
	return out
}

func (s *Store) Count(ctx context.Context, f catalog.Filter) (int64, error) {
	req := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(gql.Field{Name: "meta", Fields: []gql.Field{{Name: "count"}}})
	if w := where(f); w != nil {
		req = req.WithWhere(w)
	}
	resp, err := req.Do(ctx)
	if err != nil {
		return 0, model.NewStoreError("count", err)
	}
	if len(resp.Errors) > 0 {
		return 0, model.NewStoreError("count", fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors)))
	}
	agg, ok := resp.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	arr, ok := agg[s.className].([]interface{})
	if !ok || len(arr) == 0 {
		return 0, nil
	}
	meta, _ := arr[0].(map[string]interface{})["meta"].(map[string]interface{})
	cnt, _ := meta["count"].(float64)
	return int64(cnt), nil
}

// Update merges the given named vectors into the object and writes it back.
func (s *Store) Update(ctx context.Context, id string, emb catalog.Embeddings) error {
	if err := emb.Validate(); err != nil {
		return model.NewStoreError("update", err)
	}
	objs, err := s.client.Data().ObjectsGetter().
		WithClassName(s.className).
		WithID(string(ObjectID(id))).
		WithVector().
		Do(ctx)
	if err != nil || len(objs) == 0 {
		ok, cerr := s.exists(ctx, id)
		if cerr == nil && !ok {
			return model.NewStoreError("update", fmt.Errorf("%s: %w", id, catalog.ErrNotFound))
		}
		if err == nil {
			err = cerr
		}
		return model.NewStoreError("update", err)
	}
	obj := objs[0]
	vecs := models.Vectors{}
	for k, v := range obj.Vectors {
		vecs[k] = v
	}
	for _, rec := range emb.Records(id) {
		vecs[rec.Space.Field()] = rec.Vector
	}
	err = s.client.Data().Updater().
		WithClassName(s.className).
		WithID(string(ObjectID(id))).
		WithProperties(obj.Properties).
		WithVectors(vecs).
		Do(ctx)
	return model.NewStoreError("update", err)
}

func (s *Store) Embeddings(ctx context.Context, id string) (catalog.Embeddings, error) {
	vecs, err := s.storedVectors(ctx, id)
	if err != nil {
		return nil, model.NewStoreError("embeddings", err)
	}
	out := catalog.Embeddings{}
	for name, v := range vecs {
		if sp, ok := catalog.SpaceForField(name); ok {
			if f := toFloats(v); len(f) > 0 {
				out[sp] = f
			}
		}
	}
	return out, nil
}

// VectorSearch runs nearVector against the named vector of the query's space.
// HNSW ef is a class setting in Weaviate, so NumCandidates only bounds validation.
func (s *Store) VectorSearch(ctx context.Context, q catalog.VectorQuery) ([]catalog.Hit, error) {
	if err := q.Validate(); err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	nv := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(q.Vector).
		WithTargetVectors(q.Path)
	resp, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nv).
		WithLimit(q.Limit).
		WithFields(fields(q.Projection, gql.Field{Name: "distance"})...).
		Do(ctx)
	if err != nil {
		return nil, model.NewStoreError("vector_search", err)
	}
	if len(resp.Errors) > 0 {
		return nil, model.NewStoreError("vector_search", fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors)))
	}
	hits := []catalog.Hit{}
	for _, m := range getItems(resp.Data, s.className) {
		var distance float64
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			distance = number(add["distance"])
		}
		hits = append(hits, catalog.Hit{Record: q.Projection.Apply(record(m)), Score: vector.ScoreFromDistance(distance)})
	}
	return hits, nil
}

func getItems(data map[string]models.JSONObject, className string) []map[string]interface{} {
	getData, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	arr, ok := getData[className].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func number(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case json.Number:
		f, _ := x.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	return 0
}

// toFloats converts a stored named vector of any numeric slice shape.
func toFloats(v interface{}) []float32 {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]float32, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i)
		if e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		switch e.Kind() {
		case reflect.Float32, reflect.Float64:
			out = append(out, float32(e.Float()))
		default:
			return nil
		}
	}
	return out
}

// formatGraphQLErrors returns compact string with messages extracted for logging.
func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
