package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/api/respond"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/retrieval"
)

const (
	maxSearchBody = 64 << 10
	maxImageBody  = 10 << 20
)

// Searcher runs a catalog search.
type Searcher interface {
	Search(ctx context.Context, req retrieval.QueryRequest) (*retrieval.Result, error)
}

// SearchHandler handles POST /api/search and POST /api/search/image.
type SearchHandler struct {
	svc Searcher
	log zerolog.Logger
}

func NewSearchHandler(svc Searcher, log zerolog.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, log: log.With().Str("component", "api").Logger()}
}

type searchRequest struct {
	Query    string `json:"query"`
	Provider string `json:"provider"`
	Generate bool   `json:"generate"`
}

type searchResponse struct {
	*retrieval.Result
	Count int `json:"count"`
}

// HandleSearch runs a text search.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if body.Provider == "" {
		body.Provider = string(retrieval.VoyageText)
	}
	sel, err := retrieval.ParseProviderSelection(body.Provider)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	if sel == retrieval.VoyageImage {
		respond.WriteBadRequest(w, "use /api/search/image for image queries")
		return
	}
	h.run(w, r, retrieval.QueryRequest{Text: body.Query, Provider: sel, Generate: body.Generate})
}

// HandleImageSearch runs a multimodal search from a multipart upload with an
// "image" file field.
func (h *SearchHandler) HandleImageSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	if err := r.ParseMultipartForm(maxImageBody); err != nil {
		respond.WriteBadRequest(w, "invalid multipart body: "+err.Error())
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		respond.WriteBadRequest(w, "missing image file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respond.WriteBadRequest(w, "unreadable image file")
		return
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		respond.WriteDomainError(w, model.NewInputError("image", "not an image: "+mime))
		return
	}
	sel := retrieval.VoyageImage
	if p := r.FormValue("provider"); p != "" {
		if sel, err = retrieval.ParseProviderSelection(p); err != nil {
			respond.WriteDomainError(w, err)
			return
		}
	}
	gen, _ := strconv.ParseBool(r.FormValue("generate"))
	h.run(w, r, retrieval.QueryRequest{
		Text:     r.FormValue("query"),
		Image:    &embeddings.Image{Data: data, MIMEType: mime},
		Provider: sel,
		Generate: gen,
	})
}

func (h *SearchHandler) run(w http.ResponseWriter, r *http.Request, req retrieval.QueryRequest) {
	if h.svc == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "search not configured")
		return
	}
	res, err := h.svc.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		ev := h.log.Warn()
		if respond.StatusFor(err) >= http.StatusInternalServerError {
			ev = h.log.Error().Stack()
		}
		ev.Err(err).Str("provider", string(req.Provider)).Msg("search failed")
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, searchResponse{Result: res, Count: len(res.Items)})
}
