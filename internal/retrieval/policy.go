package retrieval

import (
	"fmt"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/model"
)

// ProviderSelection is the caller's choice of retrieval pipeline.
type ProviderSelection string

const (
	OpenAIText       ProviderSelection = "openai-text"
	VoyageText       ProviderSelection = "voyage-text"
	VoyageTextRerank ProviderSelection = "voyage-text-rerank"
	VoyageImage      ProviderSelection = "voyage-image"
)

// RerankTopK is how many candidates survive reranking, or the similarity
// fallback when reranking is unavailable.
const RerankTopK = 5

// Policy is the search shape applied for one selection.
type Policy struct {
	Space         catalog.VectorSpace
	NumCandidates int
	Limit         int
	Rerank        bool
	Image         bool
}

var policies = map[ProviderSelection]Policy{
	OpenAIText:       {Space: catalog.SpaceTextOpenAI, NumCandidates: 150, Limit: 5},
	VoyageText:       {Space: catalog.SpaceTextVoyage, NumCandidates: 150, Limit: 5},
	VoyageTextRerank: {Space: catalog.SpaceTextVoyage, NumCandidates: 1000, Limit: 50, Rerank: true},
	VoyageImage:      {Space: catalog.SpaceImageVoyage, NumCandidates: 250, Limit: 10, Image: true},
}

// Selections lists the supported selections in a stable order.
func Selections() []ProviderSelection {
	return []ProviderSelection{OpenAIText, VoyageText, VoyageTextRerank, VoyageImage}
}

// ParseProviderSelection accepts the selection names, plus the legacy form
// values "openai", "voyageai" and "voyageai_reranking".
func ParseProviderSelection(s string) (ProviderSelection, error) {
	switch s {
	case "openai":
		return OpenAIText, nil
	case "voyageai":
		return VoyageText, nil
	case "voyageai_reranking":
		return VoyageTextRerank, nil
	}
	sel := ProviderSelection(s)
	if _, ok := policies[sel]; !ok {
		return "", model.NewInputError("provider", fmt.Sprintf("unsupported provider %q", s))
	}
	return sel, nil
}

// PolicyFor resolves the search shape of sel.
func PolicyFor(sel ProviderSelection) (Policy, error) {
	p, ok := policies[sel]
	if !ok {
		return Policy{}, model.NewInputError("provider", fmt.Sprintf("unsupported provider %q", sel))
	}
	return p, nil
}

// Projection returns the fields returned to callers, plus ingredients when the
// reranker needs them.
func (p Policy) Projection() catalog.Projection {
	proj := catalog.Projection{
		catalog.FieldDisplayName, catalog.FieldLegalName, catalog.FieldDescription,
		catalog.FieldThumbnail, catalog.FieldBulkPrice,
	}
	if p.Rerank {
		proj = append(proj, catalog.FieldIngredients)
	}
	return proj
}
