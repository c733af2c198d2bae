// Package nsopw provides a client for the National Sex Offender Public
// Website name search.
package nsopw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the NSOPW search operations.
type Client interface {
	// SearchByName returns offenders whose registered names match.
	SearchByName(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is a name search, optionally limited to jurisdictions.
type SearchRequest struct {
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	Jurisdictions []string `json:"jurisdictions,omitempty"`
}

// SearchResponse is the parsed search result.
type SearchResponse struct {
	Offenders []Offender `json:"offenders"`
	// TotalHits may exceed len(Offenders) when the service truncates.
	TotalHits int `json:"totalHits"`
}

// Offender is one registered offender.
type Offender struct {
	Name         Name   `json:"name"`
	Aliases      []Name `json:"aliases"`
	DOB          string `json:"dob"`
	Jurisdiction string `json:"jurisdictionId"`
	OffenderURI  string `json:"offenderUri"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// Name is a structured offender name.
type Name struct {
	GivenName  string `json:"givenName"`
	MiddleName string `json:"middleName"`
	SurName    string `json:"surName"`
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nsopw: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request is worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// DefaultBaseURL is the public NSOPW endpoint.
const DefaultBaseURL = "https://www.nsopw.gov"

// NewClient creates an NSOPW client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   DefaultBaseURL,
		userAgent: "verify-cli/1.0",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchByName(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(sr.FirstName) == "" || strings.TrimSpace(sr.LastName) == "" {
		return nil, eris.New("nsopw: first and last name are required")
	}

	payload, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "nsopw: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search/name", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "nsopw: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nsopw: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, eris.Wrap(err, "nsopw: read response")
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "nsopw: decode response")
	}
	return &out, nil
}
