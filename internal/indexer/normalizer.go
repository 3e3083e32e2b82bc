package indexer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/embeddings"
	"github.com/mercasmart/catalog-search/internal/model"
	"github.com/mercasmart/catalog-search/internal/normalize"
	"github.com/mercasmart/catalog-search/internal/platform/retry"
)

// Normalizer turns a record into the provider input for one vector space.
type Normalizer interface {
	// Projection lists the record fields Normalize reads.
	Projection() catalog.Projection
	Normalize(ctx context.Context, r catalog.ProductRecord) ([]embeddings.Part, error)
}

// TextNormalizer embeds the labeled document text.
type TextNormalizer struct {
	n *normalize.Normalizer
}

func NewTextNormalizer(n *normalize.Normalizer) *TextNormalizer {
	return &TextNormalizer{n: n}
}

func (t *TextNormalizer) Projection() catalog.Projection {
	return catalog.Projection{
		catalog.FieldDisplayName, catalog.FieldLegalName, catalog.FieldDescription,
		catalog.FieldIngredients, catalog.FieldAllergens,
	}
}

func (t *TextNormalizer) Normalize(_ context.Context, r catalog.ProductRecord) ([]embeddings.Part, error) {
	return []embeddings.Part{embeddings.TextPart(t.n.Document(r))}, nil
}

// ImageConfig configures the photo fetcher.
type ImageConfig struct {
	Caption    string
	PhotoIndex int
	MaxBytes   int64
	Timeout    time.Duration
	Retry      retry.Policy
}

// ImageNormalizer downloads one product photo and pairs it with a caption.
type ImageNormalizer struct {
	client *resty.Client
	cfg    ImageConfig
	log    zerolog.Logger
}

func NewImageNormalizer(cfg ImageConfig, log zerolog.Logger) *ImageNormalizer {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	return &ImageNormalizer{
		client: resty.New().SetTimeout(cfg.Timeout),
		cfg:    cfg,
		log:    log.With().Str("component", "image_fetcher").Logger(),
	}
}

func (n *ImageNormalizer) Projection() catalog.Projection {
	return catalog.Projection{catalog.FieldPhotos}
}

// PhotoURL picks the configured photo, falling back to the first one when the
// record has fewer photos.
func (n *ImageNormalizer) PhotoURL(r catalog.ProductRecord) (string, error) {
	if len(r.Photos) == 0 {
		return "", model.NewInputError("photos", "record has no photos")
	}
	i := n.cfg.PhotoIndex
	if i < 0 || i >= len(r.Photos) {
		i = 0
	}
	u := strings.TrimSpace(r.Photos[i])
	if u == "" {
		return "", model.NewInputError("photos", fmt.Sprintf("photo %d is empty", i))
	}
	return u, nil
}

func (n *ImageNormalizer) Normalize(ctx context.Context, r catalog.ProductRecord) ([]embeddings.Part, error) {
	u, err := n.PhotoURL(r)
	if err != nil {
		return nil, err
	}
	img, err := n.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return []embeddings.Part{embeddings.TextPart(n.cfg.Caption), embeddings.ImagePart(img)}, nil
}

// Fetch downloads url and sniffs its MIME type. Payloads that are not images
// or exceed the size limit are input errors.
func (n *ImageNormalizer) Fetch(ctx context.Context, url string) (embeddings.Image, error) {
	return retry.Do(ctx, n.cfg.Retry, n.log, func(ctx context.Context) (embeddings.Image, error) {
		resp, err := n.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
		if err != nil {
			return embeddings.Image{}, retry.Classify(ctx, "photo", resp, err)
		}
		body := resp.RawBody()
		defer body.Close()
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			return embeddings.Image{}, model.ClassifyHTTP("photo", resp.StatusCode(), "")
		}
		data, err := io.ReadAll(io.LimitReader(body, n.cfg.MaxBytes+1))
		if err != nil {
			return embeddings.Image{}, model.NewTransientError("photo", err)
		}
		if int64(len(data)) > n.cfg.MaxBytes {
			return embeddings.Image{}, model.NewInputError("photo", fmt.Sprintf("larger than %d bytes", n.cfg.MaxBytes))
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return embeddings.Image{}, model.NewInputError("photo", "not an image: "+mime)
		}
		return embeddings.Image{Data: data, MIMEType: mime}, nil
	})
}
