package indexclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

// DefaultTimeout bounds one pull request when the caller's client has none.
const DefaultTimeout = 10 * time.Second

// StatusError reports a non-2xx reply from the pull API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPFetcher pulls component snapshots from the indexer's HTTP API.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher returns a fetcher for baseURL with a bounded client.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// Fetch returns the current values of the named components of one entity.
// Components absent on the ledger are missing from the result.
func (f *HTTPFetcher) Fetch(ctx context.Context, entity ir.EntityID, names []string) (map[string]ir.IRObject, error) {
	u := fmt.Sprintf("%s/v1/entities/%s", f.BaseURL, url.PathEscape(string(entity)))
	if len(names) > 0 {
		u += "?components=" + url.QueryEscape(strings.Join(names, ","))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	var snap EntitySnapshot
	if err := f.do(req, &snap); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", entity, err)
	}
	if snap.Components == nil {
		snap.Components = map[string]ir.IRObject{}
	}
	return snap.Components, nil
}

// Snapshot returns every entity matching the chain, or every entity when
// the chain is empty.
func (f *HTTPFetcher) Snapshot(ctx context.Context, chain []queryir.Fragment) ([]EntitySnapshot, error) {
	specs, err := queryir.ToSpecs(chain)
	if err != nil {
		return nil, fmt.Errorf("encode resync filter: %w", err)
	}
	body, err := json.Marshal(ResyncRequest{Fragments: specs})
	if err != nil {
		return nil, fmt.Errorf("encode resync request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/resync", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build resync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp ResyncResponse
	if err := f.do(req, &resp); err != nil {
		return nil, fmt.Errorf("resync: %w", err)
	}
	return resp.Entities, nil
}

// Apply posts new component values for an entity to a devnet indexer.
// A nil value deletes the component.
func (f *HTTPFetcher) Apply(ctx context.Context, entity ir.EntityID, components map[string]ir.IRObject) error {
	body, err := json.Marshal(ApplyRequest{Components: components})
	if err != nil {
		return fmt.Errorf("encode apply request: %w", err)
	}
	u := fmt.Sprintf("%s/v1/entities/%s", f.BaseURL, url.PathEscape(string(entity)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build apply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := f.do(req, nil); err != nil {
		return fmt.Errorf("apply %s: %w", entity, err)
	}
	return nil
}

func (f *HTTPFetcher) do(req *http.Request, out any) error {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var er ErrorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
