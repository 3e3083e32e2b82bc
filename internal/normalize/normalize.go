// Package normalize turns catalog records into the text that gets embedded.
//
// The composed text has a fixed field order: name, description, ingredients,
// allergens. Indexing and the reranker template both rely on that order.
package normalize

import (
	"fmt"
	"strings"

	"github.com/mercasmart/catalog-search/internal/catalog"
)

// inlineTags is the closed set of markup the catalog feed emits.
var inlineTags = strings.NewReplacer(
	"<strong>", "",
	"</strong>", "",
	"<p>", "",
	"</p>", "",
)

// StripTags removes the known inline tags. Replacement runs to a fixpoint so
// tags split by other tags ("<st<p>rong>") cannot survive and a second call is a no-op.
func StripTags(s string) string {
	for {
		out := inlineTags.Replace(s)
		if out == s {
			return strings.TrimSpace(out)
		}
		s = out
	}
}

// Labels names each composed section.
type Labels struct {
	Name        string
	Description string
	Ingredients string
	Allergens   string
}

var locales = map[string]Labels{
	"en": {Name: "name", Description: "description", Ingredients: "ingredients", Allergens: "allergens"},
	"es": {Name: "nombre", Description: "descripcion", Ingredients: "ingredientes", Allergens: "alergenos"},
}

// LabelsFor returns the label set of a locale.
func LabelsFor(locale string) (Labels, error) {
	l, ok := locales[locale]
	if !ok {
		return Labels{}, fmt.Errorf("unsupported label locale %q", locale)
	}
	return l, nil
}

// Section selects a part of the composed text.
type Section int

const (
	SectionName Section = iota
	SectionDescription
	SectionIngredients
	SectionAllergens
)

// DocumentSections is the full indexing layout.
var DocumentSections = []Section{SectionName, SectionDescription, SectionIngredients, SectionAllergens}

// RerankSections is the smaller layout fed to the reranker.
var RerankSections = []Section{SectionName, SectionIngredients}

// Normalizer composes labeled record text.
type Normalizer struct {
	labels Labels
}

// New returns a normalizer for locale ("en" or "es").
func New(locale string) (*Normalizer, error) {
	l, err := LabelsFor(locale)
	if err != nil {
		return nil, err
	}
	return &Normalizer{labels: l}, nil
}

// Text composes the requested sections of r, always in DocumentSections order,
// joined by " - ". Missing fields contribute empty values.
func (n *Normalizer) Text(r catalog.ProductRecord, sections []Section) string {
	want := map[Section]bool{}
	for _, s := range sections {
		want[s] = true
	}
	parts := make([]string, 0, len(DocumentSections))
	for _, s := range DocumentSections {
		if !want[s] {
			continue
		}
		parts = append(parts, n.section(r, s))
	}
	return strings.Join(parts, " - ")
}

// Document is the text embedded for a record.
func (n *Normalizer) Document(r catalog.ProductRecord) string {
	return n.Text(r, DocumentSections)
}

// Rerank is the reranker input for a record: name and ingredients.
func (n *Normalizer) Rerank(r catalog.ProductRecord) string {
	return n.Text(r, RerankSections)
}

func (n *Normalizer) section(r catalog.ProductRecord, s Section) string {
	switch s {
	case SectionName:
		name := strings.TrimSpace(strings.Join([]string{StripTags(r.DisplayName), StripTags(r.LegalName)}, " "))
		return n.labels.Name + ": " + name
	case SectionDescription:
		return n.labels.Description + ": " + StripTags(r.Description)
	case SectionIngredients:
		return n.labels.Ingredients + ": " + StripTags(r.Ingredients)
	case SectionAllergens:
		return n.labels.Allergens + ": " + StripTags(r.Allergens)
	}
	return ""
}
