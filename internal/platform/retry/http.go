package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mercasmart/catalog-search/internal/model"
)

const maxErrorBody = 512

// NewClient returns a resty client bound to baseURL with a finite timeout.
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
}

// Classify converts a resty outcome into the provider error taxonomy.
// Caller cancellation is returned unchanged so it is never retried.
func Classify(ctx context.Context, provider string, resp *resty.Response, err error) error {
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.NewTransientError(provider, err)
	}
	if resp == nil {
		return model.NewTransientError(provider, errors.New("empty response"))
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return model.ClassifyHTTP(provider, resp.StatusCode(), body)
	}
	return nil
}

// Decode unmarshals a successful reply body into out regardless of the reply's
// Content-Type. A body that does not parse is a permanent provider error.
func Decode(provider string, resp *resty.Response, out any) error {
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return model.NewPermanentError(provider, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
