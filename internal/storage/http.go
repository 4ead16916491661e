package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPStore fetches documents addressed by a full http(s) URL. Kept for
// references created before uploads moved to managed storage.
type HTTPStore struct {
	client *resty.Client
}

func NewHTTPStore(timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		client: resty.New().SetTimeout(timeout),
	}
}

func (s *HTTPStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	resp, err := s.client.R().SetContext(ctx).Get(ref)
	if err != nil {
		return nil, fmt.Errorf("fetch document %q: %w", ref, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("ref %q: %w", ref, ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch document %q: unexpected status %d", ref, resp.StatusCode())
	}
	return resp.Body(), nil
}
