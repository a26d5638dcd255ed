package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/sectionloader/internal/types"
)

// HTTPStore reads lists from a SharePoint-style REST API:
//
//	GET {base}/_api/web/lists/getbytitle('{list}')/items?$select=...&$filter=...
//
// and expects a JSON body of the form {"value": [{...}, ...]}.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	headers http.Header
}

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPStore) { s.client = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPStore) { s.headers.Add(key, value) }
}

// NewHTTPStore creates a store rooted at baseURL.
func NewHTTPStore(baseURL string, opts ...HTTPOption) (*HTTPStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid source url %q: scheme must be http or https", baseURL)
	}

	s := &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		headers: http.Header{},
	}
	s.headers.Set("Accept", "application/json;odata=nometadata")
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ItemsURL returns the request URL for q.
func (s *HTTPStore) ItemsURL(q types.Query) string {
	title := strings.ReplaceAll(q.SourceName, "'", "''")
	u := fmt.Sprintf("%s/_api/web/lists/getbytitle('%s')/items", s.baseURL, url.PathEscape(title))

	params := url.Values{}
	if len(q.Columns) > 0 {
		params.Set("$select", strings.Join(q.ColumnNames(), ","))
	}
	if len(q.Filters) > 0 {
		params.Set("$filter", q.FilterExpression())
	}
	if len(params) == 0 {
		return u
	}
	return u + "?" + params.Encode()
}

type itemsResponse struct {
	Value []map[string]interface{} `json:"value"`
}

// Query implements Store.
func (s *HTTPStore) Query(ctx context.Context, q types.Query) ([]types.Row, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ItemsURL(q), nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range s.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.SourceName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, q.SourceName)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("querying %s: status %d: %s", q.SourceName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", q.SourceName, err)
	}

	rows := make([]types.Row, 0, len(payload.Value))
	for _, item := range payload.Value {
		row := make(types.Row, len(item))
		for k, v := range item {
			row[k] = stringify(v)
		}
		rows = append(rows, project(row, q.Columns))
	}
	return rows, nil
}

// Ping implements Store.
func (s *HTTPStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/_api/web", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("source returned status %d", resp.StatusCode)
	}
	return nil
}

// Kind implements Store.
func (s *HTTPStore) Kind() string {
	return KindHTTP
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
