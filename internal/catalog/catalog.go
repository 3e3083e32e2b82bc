// Package catalog defines the product catalog store consumed by the indexer
// and the retrieval service. Implementations live under internal/catalog/<driver>/.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned by Update when no record carries the given id.
var ErrNotFound = errors.New("product not found")

// MaxNumCandidates mirrors the Atlas $vectorSearch ceiling.
const MaxNumCandidates = 10000

// VectorSpace identifies the provider+modality that produced a vector.
// All vectors in one space come from the same model and dimension.
type VectorSpace string

const (
	SpaceTextOpenAI  VectorSpace = "text-openai"
	SpaceTextVoyage  VectorSpace = "text-voyage"
	SpaceImageVoyage VectorSpace = "image-voyage"
)

type spaceLayout struct {
	field string
	index string
}

var layouts = map[VectorSpace]spaceLayout{
	SpaceTextOpenAI:  {field: "embedding", index: "vector_index"},
	SpaceTextVoyage:  {field: "vo_embedding", index: "vo_vector_index"},
	SpaceImageVoyage: {field: "vo_img_embedding", index: "vo_image_index"},
}

// Spaces lists every known vector space in a stable order.
func Spaces() []VectorSpace {
	return []VectorSpace{SpaceTextOpenAI, SpaceTextVoyage, SpaceImageVoyage}
}

// ParseVectorSpace validates s.
func ParseVectorSpace(s string) (VectorSpace, error) {
	sp := VectorSpace(s)
	if _, ok := layouts[sp]; !ok {
		return "", fmt.Errorf("unknown vector space %q", s)
	}
	return sp, nil
}

// Field is the record sub-field holding vectors of this space.
func (s VectorSpace) Field() string { return layouts[s].field }

// Index is the search index name built over Field.
func (s VectorSpace) Index() string { return layouts[s].index }

// SpaceForField resolves a vector field path back to its space.
func SpaceForField(path string) (VectorSpace, bool) {
	for sp, l := range layouts {
		if l.field == path {
			return sp, true
		}
	}
	return "", false
}

// ProductRecord is a catalog product. Only the indexer mutates it, and only
// its embedding sub-fields.
type ProductRecord struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	LegalName   string   `json:"legal_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Ingredients string   `json:"ingredients,omitempty"`
	Allergens   string   `json:"allergens,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	// BulkPrice is kept as the decimal string the catalog delivers.
	BulkPrice string `json:"bulk_price,omitempty"`
}

// EmbeddingRecord is one stored vector.
type EmbeddingRecord struct {
	RecordID string
	Space    VectorSpace
	Vector   []float32
}

// Embeddings maps a space to the vector to upsert for it.
type Embeddings map[VectorSpace][]float32

// Records flattens e for id in stable space order.
func (e Embeddings) Records(id string) []EmbeddingRecord {
	out := make([]EmbeddingRecord, 0, len(e))
	for _, sp := range Spaces() {
		if v, ok := e[sp]; ok {
			out = append(out, EmbeddingRecord{RecordID: id, Space: sp, Vector: v})
		}
	}
	return out
}

// Validate rejects unknown spaces and empty vectors.
func (e Embeddings) Validate() error {
	if len(e) == 0 {
		return errors.New("no embeddings to write")
	}
	for sp, v := range e {
		if _, ok := layouts[sp]; !ok {
			return fmt.Errorf("unknown vector space %q", sp)
		}
		if len(v) == 0 {
			return fmt.Errorf("empty vector for %s", sp)
		}
	}
	return nil
}

// Filter selects records. The zero value matches every record.
type Filter struct {
	IDs []string
}

// Match reports whether id passes the filter.
func (f Filter) Match(id string) bool {
	if len(f.IDs) == 0 {
		return true
	}
	for _, x := range f.IDs {
		if x == id {
			return true
		}
	}
	return false
}

// Field names a projectable record field.
type Field string

const (
	FieldDisplayName Field = "display_name"
	FieldLegalName   Field = "legal_name"
	FieldDescription Field = "description"
	FieldIngredients Field = "ingredients"
	FieldAllergens   Field = "allergens"
	FieldPhotos      Field = "photos"
	FieldThumbnail   Field = "thumbnail"
	FieldBulkPrice   Field = "bulk_price"
)

// Projection lists the fields to return. An empty projection returns all fields.
// The id is always returned.
type Projection []Field

// Has reports whether f is projected.
func (p Projection) Has(f Field) bool {
	if len(p) == 0 {
		return true
	}
	for _, x := range p {
		if x == f {
			return true
		}
	}
	return false
}

// Apply zeroes the fields of r that are not projected.
func (p Projection) Apply(r ProductRecord) ProductRecord {
	if len(p) == 0 {
		return r
	}
	out := ProductRecord{ID: r.ID}
	if p.Has(FieldDisplayName) {
		out.DisplayName = r.DisplayName
	}
	if p.Has(FieldLegalName) {
		out.LegalName = r.LegalName
	}
	if p.Has(FieldDescription) {
		out.Description = r.Description
	}
	if p.Has(FieldIngredients) {
		out.Ingredients = r.Ingredients
	}
	if p.Has(FieldAllergens) {
		out.Allergens = r.Allergens
	}
	if p.Has(FieldPhotos) {
		out.Photos = r.Photos
	}
	if p.Has(FieldThumbnail) {
		out.Thumbnail = r.Thumbnail
	}
	if p.Has(FieldBulkPrice) {
		out.BulkPrice = r.BulkPrice
	}
	return out
}

// VectorQuery parameterizes a similarity search.
type VectorQuery struct {
	Index         string
	Path          string
	Vector        []float32
	NumCandidates int
	Limit         int
	Projection    Projection
}

// NewVectorQuery builds a query over the index and field of space.
func NewVectorQuery(space VectorSpace, vec []float32, numCandidates, limit int, proj Projection) VectorQuery {
	return VectorQuery{
		Index:         space.Index(),
		Path:          space.Field(),
		Vector:        vec,
		NumCandidates: numCandidates,
		Limit:         limit,
		Projection:    proj,
	}
}

// Space resolves the query's vector path.
func (q VectorQuery) Space() (VectorSpace, error) {
	sp, ok := SpaceForField(q.Path)
	if !ok {
		return "", fmt.Errorf("unknown vector path %q", q.Path)
	}
	return sp, nil
}

// Validate checks the query against the limits every backend enforces.
func (q VectorQuery) Validate() error {
	if _, err := q.Space(); err != nil {
		return err
	}
	if len(q.Vector) == 0 {
		return errors.New("query vector is empty")
	}
	if q.Limit <= 0 {
		return fmt.Errorf("limit must be > 0, got %d", q.Limit)
	}
	if q.NumCandidates < q.Limit || q.NumCandidates > MaxNumCandidates {
		return fmt.Errorf("numCandidates must be in [limit, %d], got %d", MaxNumCandidates, q.NumCandidates)
	}
	return nil
}

// Hit is a projected record annotated with its similarity score in [0, 1].
type Hit struct {
	Record ProductRecord `json:"record"`
	Score  float64       `json:"score"`
}

// SortHits orders hits by descending score, ties broken by id.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})
}

// Store exposes the catalog operations required by the pipelines.
type Store interface {
	Find(ctx context.Context, filter Filter, proj Projection, skip, limit int) ([]ProductRecord, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	Update(ctx context.Context, id string, emb Embeddings) error
	VectorSearch(ctx context.Context, q VectorQuery) ([]Hit, error)
}

// Writer is implemented by stores that accept catalog imports.
// Insert replaces records with the same id.
type Writer interface {
	Insert(ctx context.Context, records ...ProductRecord) error
}

// EmbeddingReader exposes stored vectors for verification and tooling.
type EmbeddingReader interface {
	Embeddings(ctx context.Context, id string) (Embeddings, error)
}

// SchemaBootstrapper creates tables, classes or search indexes for the given
// per-space dimensions.
type SchemaBootstrapper interface {
	EnsureSchema(ctx context.Context, dims map[VectorSpace]int) error
}
