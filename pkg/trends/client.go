package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://trends.googleapis.com/v1"

// Client performs search-interest API operations.
type Client interface {
	InterestOverTime(ctx context.Context, req InterestRequest) (*InterestResponse, error)
}

// InterestRequest holds query parameters for interest over time.
type InterestRequest struct {
	Keyword string
	Geo     string
	Days    int
}

// InterestResponse is the response for one keyword.
type InterestResponse struct {
	Keyword string  `json:"keyword"`
	Points  []Point `json:"points"`
}

// Point is a daily relative interest value on a 0-100 scale.
type Point struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// StatusError is returned when the API responds with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trends: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a search-interest API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) InterestOverTime(ctx context.Context, interestReq InterestRequest) (*InterestResponse, error) {
	params := url.Values{}
	params.Set("keyword", interestReq.Keyword)
	params.Set("geo", interestReq.Geo)
	params.Set("days", fmt.Sprintf("%d", interestReq.Days))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/interest:overTime?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "trends: create request")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "trends: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "trends: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result InterestResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "trends: unmarshal response")
	}

	return &result, nil
}
