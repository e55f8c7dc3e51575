package yelp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.yelp.com/v3"

// MaxPageSize is the largest page the business search endpoint allows.
const MaxPageSize = 50

// Client performs Yelp Fusion API operations.
type Client interface {
	BusinessSearch(ctx context.Context, req BusinessSearchRequest) (*BusinessSearchResponse, error)
}

// BusinessSearchRequest holds query parameters for business search.
type BusinessSearchRequest struct {
	Term      string
	Latitude  float64
	Longitude float64
	RadiusM   int
	Limit     int
	Offset    int
}

// BusinessSearchResponse is the response from business search.
type BusinessSearchResponse struct {
	Businesses []Business `json:"businesses"`
	Total      int        `json:"total"`
}

// Business represents a business returned by the API.
type Business struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Rating      float64    `json:"rating"`
	ReviewCount int        `json:"review_count"`
	Phone       string     `json:"phone"`
	URL         string     `json:"url"`
	Coordinates Coordinate `json:"coordinates"`
	Location    Location   `json:"location"`
}

// Coordinate is a latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location holds the business street address.
type Location struct {
	Address1 string `json:"address1"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zip_code"`
}

// StatusError is returned when the API responds with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("yelp: unexpected status %d: %s", e.StatusCode, e.Body)
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

// NewClient creates a Yelp Fusion API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) BusinessSearch(ctx context.Context, searchReq BusinessSearchRequest) (*BusinessSearchResponse, error) {
	limit := searchReq.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	params := url.Values{}
	params.Set("term", searchReq.Term)
	params.Set("latitude", strconv.FormatFloat(searchReq.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(searchReq.Longitude, 'f', -1, 64))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(searchReq.Offset))
	if searchReq.RadiusM > 0 {
		params.Set("radius", strconv.Itoa(searchReq.RadiusM))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/businesses/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result BusinessSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "yelp: unmarshal response")
	}

	return &result, nil
}
