package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/permitlink/internal/apperrors"
)

// Client talks to an ArcGIS-style REST directory. Every request carries
// an explicit timeout; the client performs no retries of its own -
// retry policy belongs to the extractor.
type Client struct {
	httpClient *http.Client
	token      string
	logger     *zap.Logger
}

// NewClient creates a directory client with the given per-request
// timeout and optional access token.
func NewClient(timeout time.Duration, token string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
		logger:     logger,
	}
}

// serviceError is the error object some portals return inside a 200
// response body.
type serviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// catalog is a directory listing: subfolders plus service references.
type catalog struct {
	Folders  []string      `json:"folders"`
	Services []serviceRef  `json:"services"`
	Error    *serviceError `json:"error"`
}

type serviceRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// serviceInfo describes one service's queryable layers.
type serviceInfo struct {
	Layers []layerRef    `json:"layers"`
	Error  *serviceError `json:"error"`
}

type layerRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type countResponse struct {
	Count int           `json:"count"`
	Error *serviceError `json:"error"`
}

type queryResponse struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
	ExceededTransferLimit bool          `json:"exceededTransferLimit"`
	Error                 *serviceError `json:"error"`
}

// getJSON fetches endpoint with f=json and decodes the body into out.
// Network failures, 429s and 5xxs come back as TransientError; decode
// failures as MalformedResponseError.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("bad endpoint %s: %w", endpoint, err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("f", "json")
	if c.token != "" {
		params.Set("token", c.token)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "permitlink/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperrors.TransientError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return &apperrors.TransientError{Op: endpoint, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d from %s: %s", resp.StatusCode, endpoint, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperrors.TransientError{Op: endpoint, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apperrors.MalformedResponseError{URL: endpoint, Err: err}
	}
	return nil
}

// embeddedError pulls the in-body error out of a decoded response.
func embeddedError(endpoint string, se *serviceError) error {
	if se == nil {
		return nil
	}
	return &apperrors.MalformedResponseError{
		URL: endpoint,
		Err: fmt.Errorf("service error %d: %s", se.Code, se.Message),
	}
}

// Count asks a layer's query endpoint for its record count only.
func (c *Client) Count(ctx context.Context, queryURL string) (int, error) {
	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("returnCountOnly", "true")

	var cr countResponse
	if err := c.getJSON(ctx, queryURL, params, &cr); err != nil {
		return 0, err
	}
	if err := embeddedError(queryURL, cr.Error); err != nil {
		return 0, err
	}
	return cr.Count, nil
}

// QueryPage fetches one offset-based page of attribute records from a
// layer's query endpoint. Ordering by OBJECTID keeps pagination stable
// across requests.
func (c *Client) QueryPage(ctx context.Context, queryURL string, offset, limit int) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("outFields", "*")
	params.Set("orderByFields", "OBJECTID")
	params.Set("resultOffset", strconv.Itoa(offset))
	params.Set("resultRecordCount", strconv.Itoa(limit))

	var qr queryResponse
	if err := c.getJSON(ctx, queryURL, params, &qr); err != nil {
		return nil, err
	}
	if err := embeddedError(queryURL, qr.Error); err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(qr.Features))
	for _, f := range qr.Features {
		records = append(records, f.Attributes)
	}
	return records, nil
}
