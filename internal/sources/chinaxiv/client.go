// Package chinaxiv implements the sources.Source interface for the
// ChinaXiv search API.
package chinaxiv

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/sources"
)

const (
	// DefaultBaseURL is the default ChinaXiv base URL.
	DefaultBaseURL = "https://chinaxiv.org"

	// DefaultMaxResults is the default maximum results per search request.
	// The search API caps a single page at 50 items.
	DefaultMaxResults = 50

	// sourceName is the human-readable name for this source.
	sourceName = "ChinaXiv"
)

// chinaxivIDRegex validates ChinaXiv paper IDs (format YYYYMM.NNNNN,
// e.g. "202601.00191").
var chinaxivIDRegex = regexp.MustCompile(`^\d{6}\.\d+$`)

// Config holds configuration for the ChinaXiv client.
type Config struct {
	// BaseURL is the ChinaXiv base URL.
	BaseURL string

	// MaxResults is the maximum results to return per search request.
	MaxResults int

	// Enabled indicates whether this source participates in searches.
	Enabled bool

	// HTTP configures the underlying rate-limited HTTP client.
	HTTP sources.HTTPClientConfig
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.MaxResults == 0 || c.MaxResults > DefaultMaxResults {
		c.MaxResults = DefaultMaxResults
	}
}

// searchRequest is the JSON payload for the search endpoint.
type searchRequest struct {
	Key       string `json:"key"`
	Page      int    `json:"page"`
	Size      int    `json:"size"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// searchResponse is the JSON envelope returned by the search endpoint.
// Data is either an object holding a "list" field or a bare array.
type searchResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type searchPage struct {
	List []searchItem `json:"list"`
}

// searchItem is a single result. The API uses two naming generations for
// most fields, so both are decoded and the first non-empty one wins.
type searchItem struct {
	ID           string     `json:"id"`
	ChinaXivID   string     `json:"chinaxivId"`
	Title        string     `json:"title"`
	ResourceName string     `json:"resourceName"`
	Abstract     string     `json:"abstract"`
	Description  string     `json:"description"`
	Authors      authorList `json:"authors"`
	Author       authorList `json:"author"`
	PublishDate  string     `json:"publishDate"`
	PublishTime  string     `json:"publishTime"`
	PDFURL       string     `json:"pdfUrl"`
	Discipline   string     `json:"discipline"`
	Category     string     `json:"category"`
	DOI          string     `json:"doi"`
}

// authorList accepts either a JSON array of names or a single
// comma-separated string.
type authorList []string

func (a *authorList) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		*a = names
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	for _, name := range strings.Split(joined, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*a = append(*a, name)
		}
	}
	return nil
}

// Client queries the ChinaXiv search API and converts results to records.
type Client struct {
	config Config
	http   *sources.HTTPClient
}

var _ sources.Source = (*Client)(nil)

// New creates a new ChinaXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config: cfg,
		http:   sources.NewHTTPClient(sourceName, cfg.HTTP),
	}
}

// NewWithHTTPClient creates a new ChinaXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, http: httpClient}
}

// Search queries ChinaXiv for records matching the given parameters.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) ([]*domain.Record, error) {
	maxResults := params.MaxResults
	if maxResults == 0 || maxResults > c.config.MaxResults {
		maxResults = c.config.MaxResults
	}

	reqBody := searchRequest{
		Key:  params.Query,
		Page: 1,
		Size: maxResults,
	}
	if params.DateFrom != nil {
		reqBody.StartDate = params.DateFrom.Format("2006-01-02")
	}
	if params.DateTo != nil {
		reqBody.EndDate = params.DateTo.Format("2006-01-02")
	}

	body, err := c.http.PostJSON(ctx, strings.TrimRight(c.config.BaseURL, "/")+"/api/search", reqBody)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "search rejected"
		}
		return nil, fmt.Errorf("%s: %s: %w", sourceName, msg, domain.ErrRejected)
	}

	items, err := decodeItems(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding result list: %w", err)
	}

	records := make([]*domain.Record, 0, len(items))
	for i := range items {
		if len(records) >= maxResults {
			break
		}
		rec := c.itemToRecord(&items[i])
		if rec == nil {
			continue
		}
		if err := rec.Validate(); err != nil {
			continue
		}
		if !inDateRange(rec.Published, params.DateFrom, params.DateTo) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceChinaXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func decodeItems(data json.RawMessage) ([]searchItem, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var page searchPage
	if err := json.Unmarshal(data, &page); err == nil && page.List != nil {
		return page.List, nil
	}
	var items []searchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// itemToRecord converts a ChinaXiv search item to a domain record.
func (c *Client) itemToRecord(item *searchItem) *domain.Record {
	id := firstNonEmpty(item.ID, item.ChinaXivID)
	if !chinaxivIDRegex.MatchString(id) {
		return nil
	}

	var pubDate *time.Time
	rawDate := firstNonEmpty(item.PublishDate, item.PublishTime)
	if rawDate != "" {
		// Dates arrive as "2026-01-15" or "2026-01-15T08:00:00".
		if t, err := time.Parse("2006-01-02", strings.SplitN(rawDate, "T", 2)[0]); err == nil {
			pubDate = &t
		}
	}

	names := item.Authors
	if len(names) == 0 {
		names = item.Author
	}
	authors := make([]domain.Author, 0, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}

	return &domain.Record{
		ArchiveID: id,
		DOI:       strings.TrimSpace(item.DOI),
		Title:     strings.TrimSpace(firstNonEmpty(item.Title, item.ResourceName)),
		Abstract:  strings.TrimSpace(firstNonEmpty(item.Abstract, item.Description)),
		Authors:   authors,
		Published: pubDate,
		Source:    domain.SourceChinaXiv,
		PDFURL:    strings.TrimSpace(item.PDFURL),
		Venue:     strings.TrimSpace(firstNonEmpty(item.Discipline, item.Category)),
	}
}

func inDateRange(published *time.Time, from, to *time.Time) bool {
	if published == nil {
		return true
	}
	if from != nil && published.Before(*from) {
		return false
	}
	if to != nil && published.After(*to) {
		return false
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
