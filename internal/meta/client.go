package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const userAgent = "tablewatch/0.1"

// httpTimeout bounds a single metadata request. Deliberately short: the
// scheduler treats a failed lookup as "try again next cycle", so there is
// no value in waiting out a stalled connection.
const httpTimeout = 30 * time.Second

// TableDetail is the structural metadata returned for a single table.
// LastImportDate is the opaque freshness signal the watch engine compares;
// Columns feed the empty-table workaround's placeholder header.
type TableDetail struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	LastImportDate string   `json:"lastImportDate"`
	RowsCount      int64    `json:"rowsCount"`
	Columns        []string `json:"columns"`
}

// Client is an HTTP client for the storage metadata API. It performs no
// retries: the scheduler's cycle cadence is the retry policy, and the error
// taxonomy (throttled, server error) is surfaced to the caller via the
// sentinel errors in this package.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a metadata API client. baseURL is the service root,
// e.g. "https://connection.example.com".
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Table fetches the full metadata record for a table.
func (c *Client) Table(ctx context.Context, tableID string) (*TableDetail, error) {
	path := "/v2/storage/tables/" + url.PathEscape(tableID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("meta: building request for %s: %w", tableID, err)
	}

	req.Header.Set("X-StorageApi-Token", c.token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meta: fetching table %s: %w", tableID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			body = []byte("(failed to read response body)")
		}

		c.logger.Debug("metadata request failed",
			slog.String("table_id", tableID),
			slog.Int("status", resp.StatusCode),
		)

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	var detail TableDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("meta: decoding table %s: %w", tableID, err)
	}

	return &detail, nil
}

// FreshnessSignal returns the table's current freshness marker. An empty
// string means the service could not state when the table last changed;
// the caller must treat that as "cannot determine", never as "unchanged".
func (c *Client) FreshnessSignal(ctx context.Context, tableID string) (string, error) {
	detail, err := c.Table(ctx, tableID)
	if err != nil {
		return "", err
	}

	return detail.LastImportDate, nil
}
