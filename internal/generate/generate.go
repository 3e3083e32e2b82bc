// Package generate produces a grounded answer from retrieved products using a
// chat completion model, and renders the markdown reply as HTML.
package generate

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/mercasmart/catalog-search/internal/model"
)

// SystemPrompt is the fixed system role for answer generation.
const SystemPrompt = "You are a helpful expert nutrition and chef assistant."

// Generator turns a system prompt and a user prompt into a reply.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ContextItem is one retrieved product contributing to the prompt.
type ContextItem struct {
	DisplayName string
	Description string
}

// BuildContext joins "name - description" lines with blank lines.
func BuildContext(items []ContextItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.DisplayName+" - "+it.Description)
	}
	return strings.Join(lines, "\n\n")
}

// BuildPrompt renders the answer instruction for the given context.
func BuildPrompt(context, query, currency string) string {
	return fmt.Sprintf("Using the following ingredients, providing nutrition valuable information and one recipe with those as well as the price in %s:\n%s\nanswer the query: %s",
		currency, context, query)
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Render converts a markdown reply to HTML.
func Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Answerer wraps a Generator with the product prompt and HTML rendering.
type Answerer struct {
	gen      Generator
	currency string
}

// NewAnswerer builds an Answerer quoting prices in currency.
func NewAnswerer(gen Generator, currency string) *Answerer {
	if currency == "" {
		currency = "euros"
	}
	return &Answerer{gen: gen, currency: currency}
}

// Answer asks the model about query grounded on items and returns HTML.
func (a *Answerer) Answer(ctx context.Context, query string, items []ContextItem) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", model.NewInputError("query", "must not be empty")
	}
	reply, err := a.gen.Generate(ctx, SystemPrompt, BuildPrompt(BuildContext(items), query, a.currency))
	if err != nil {
		return "", err
	}
	return Render(reply)
}
