// Package zotero implements the bibliography store interface against the
// Zotero Web API v3.
//
// The client performs no rate limiting or retry of its own; callers wrap it
// in bibstore.Throttled, which owns the library quota.
package zotero

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/GhUserLiu/paperflow/internal/bibstore"
	"github.com/GhUserLiu/paperflow/internal/domain"
)

const (
	// DefaultBaseURL is the Zotero Web API endpoint.
	DefaultBaseURL = "https://api.zotero.org"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// apiVersion pins the Zotero API schema version.
	apiVersion = "3"

	// storeName identifies the store in errors.
	storeName = "zotero"

	// itemTypePreprint is the item type records are created as.
	itemTypePreprint = "journalArticle"
)

// LibraryType selects between a personal and a group library.
type LibraryType string

const (
	LibraryUser  LibraryType = "users"
	LibraryGroup LibraryType = "groups"
)

// Config holds Zotero connection settings. APIKey is a secret and must come
// from the environment, never from config files.
type Config struct {
	BaseURL     string
	LibraryID   string
	LibraryType LibraryType
	APIKey      string
	Timeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.LibraryType == "" {
		c.LibraryType = LibraryUser
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks that the config can reach a library.
func (c *Config) Validate() error {
	if c.LibraryID == "" {
		return domain.NewValidationError("library_id", "must be set")
	}
	if c.APIKey == "" {
		return domain.NewValidationError("api_key", "must be set")
	}
	return nil
}

// Client talks to one Zotero library.
type Client struct {
	config Config
	client *http.Client
	log    zerolog.Logger
}

var _ bibstore.Store = (*Client)(nil)

// New creates a Zotero client for the configured library.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("component", "zotero").Str("library_id", cfg.LibraryID).Logger(),
	}, nil
}

// libraryURL builds a URL under the library prefix.
func (c *Client) libraryURL(parts ...string) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	segments := append([]string{string(c.config.LibraryType), c.config.LibraryID}, parts...)
	return base + "/" + strings.Join(segments, "/")
}

// itemPayload is the Zotero item JSON written on create.
type itemPayload struct {
	ItemType         string       `json:"itemType"`
	Title            string       `json:"title"`
	AbstractNote     string       `json:"abstractNote,omitempty"`
	Creators         []creator    `json:"creators,omitempty"`
	Date             string       `json:"date,omitempty"`
	DOI              string       `json:"DOI,omitempty"`
	URL              string       `json:"url,omitempty"`
	PublicationTitle string       `json:"publicationTitle,omitempty"`
	ArchiveLocation  string       `json:"archiveLocation,omitempty"`
	Extra            string       `json:"extra,omitempty"`
	Collections      []string     `json:"collections,omitempty"`
	Tags             []tagPayload `json:"tags,omitempty"`
}

type creator struct {
	CreatorType string `json:"creatorType"`
	Name        string `json:"name"`
}

type tagPayload struct {
	Tag string `json:"tag"`
}

// writeResponse is the envelope Zotero returns for write requests.
type writeResponse struct {
	Successful map[string]struct {
		Key string `json:"key"`
	} `json:"successful"`
	Failed map[string]struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"failed"`
}

// itemEnvelope is one element of a GET /items response.
type itemEnvelope struct {
	Key     string          `json:"key"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// CreateItem writes one record as a new library item.
func (c *Client) CreateItem(ctx context.Context, rec *domain.Record) (string, error) {
	payload := recordToPayload(rec)

	var resp writeResponse
	if err := c.doJSON(ctx, http.MethodPost, c.libraryURL("items"), []itemPayload{payload}, &resp); err != nil {
		return "", err
	}

	for _, s := range resp.Successful {
		c.log.Debug().Str("item_key", s.Key).Str("identifier", rec.Key().String()).Msg("item created")
		return s.Key, nil
	}
	for _, f := range resp.Failed {
		return "", domain.NewExternalAPIError(storeName, f.Code, f.Message, nil)
	}
	return "", fmt.Errorf("%s: create returned no item key: %w", storeName, domain.ErrRejected)
}

// ListRecent returns up to limit items newest-first, optionally scoped to a
// collection.
func (c *Client) ListRecent(ctx context.Context, scope bibstore.Scope, limit int) ([]bibstore.Item, error) {
	query := url.Values{}
	query.Set("sort", "dateAdded")
	query.Set("direction", "desc")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("format", "json")

	var endpoint string
	if scope.Global() {
		endpoint = c.libraryURL("items")
	} else {
		endpoint = c.libraryURL("collections", scope.Collection, "items")
	}

	var envelopes []itemEnvelope
	if err := c.doJSON(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil, &envelopes); err != nil {
		return nil, err
	}

	items := make([]bibstore.Item, 0, len(envelopes))
	for _, env := range envelopes {
		fields := map[string]string{}
		var data map[string]any
		if err := json.Unmarshal(env.Data, &data); err == nil {
			for k, v := range data {
				if s, ok := v.(string); ok {
					fields[k] = s
				}
			}
		}
		items = append(items, bibstore.Item{Key: env.Key, Fields: fields})
	}
	return items, nil
}

// AddToCollection adds an existing item to a collection by patching the
// item's collections array, guarded by its current version.
func (c *Client) AddToCollection(ctx context.Context, itemKey, collectionKey string) error {
	var env itemEnvelope
	if err := c.doJSON(ctx, http.MethodGet, c.libraryURL("items", itemKey), nil, &env); err != nil {
		return err
	}

	var data struct {
		Collections []string `json:"collections"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("%s: decoding item %s: %w", storeName, itemKey, err)
	}
	for _, key := range data.Collections {
		if key == collectionKey {
			return nil
		}
	}

	patch := map[string]any{"collections": append(data.Collections, collectionKey)}
	headers := map[string]string{"If-Unmodified-Since-Version": strconv.Itoa(env.Version)}
	return c.doJSONHeaders(ctx, http.MethodPatch, c.libraryURL("items", itemKey), patch, nil, headers)
}

// attachmentTemplate is the metadata item created in step one of an upload.
type attachmentTemplate struct {
	ItemType    string `json:"itemType"`
	LinkMode    string `json:"linkMode"`
	Title       string `json:"title"`
	ParentItem  string `json:"parentItem"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// uploadAuthorization is Zotero's response to a file upload request.
type uploadAuthorization struct {
	Exists      int    `json:"exists"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Prefix      string `json:"prefix"`
	Suffix      string `json:"suffix"`
	UploadKey   string `json:"uploadKey"`
}

// UploadAttachment attaches a file to an existing item using Zotero's
// three-step upload protocol: create the attachment item, request upload
// authorization, then upload and register the file.
func (c *Client) UploadAttachment(ctx context.Context, itemKey, filename string, data []byte) error {
	tmpl := attachmentTemplate{
		ItemType:    "attachment",
		LinkMode:    "imported_file",
		Title:       filename,
		ParentItem:  itemKey,
		Filename:    filename,
		ContentType: "application/pdf",
	}
	var created writeResponse
	if err := c.doJSON(ctx, http.MethodPost, c.libraryURL("items"), []attachmentTemplate{tmpl}, &created); err != nil {
		return err
	}
	attachmentKey := ""
	for _, s := range created.Successful {
		attachmentKey = s.Key
	}
	if attachmentKey == "" {
		return fmt.Errorf("%s: attachment item not created: %w", storeName, domain.ErrRejected)
	}

	sum := md5.Sum(data)
	form := url.Values{}
	form.Set("md5", hex.EncodeToString(sum[:]))
	form.Set("filename", filename)
	form.Set("filesize", strconv.Itoa(len(data)))
	form.Set("mtime", strconv.FormatInt(time.Now().UnixMilli(), 10))

	fileURL := c.libraryURL("items", attachmentKey, "file")
	var auth uploadAuthorization
	if err := c.doForm(ctx, fileURL, form, &auth); err != nil {
		return err
	}
	if auth.Exists == 1 {
		return nil
	}

	if err := c.uploadToStorage(ctx, auth, data); err != nil {
		return err
	}

	register := url.Values{}
	register.Set("upload", auth.UploadKey)
	return c.doForm(ctx, fileURL, register, nil)
}

// ListCollections returns the library's collections.
func (c *Client) ListCollections(ctx context.Context) ([]bibstore.Collection, error) {
	var envelopes []struct {
		Key  string `json:"key"`
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.libraryURL("collections")+"?format=json", nil, &envelopes); err != nil {
		return nil, err
	}

	collections := make([]bibstore.Collection, 0, len(envelopes))
	for _, env := range envelopes {
		collections = append(collections, bibstore.Collection{Key: env.Key, Name: env.Data.Name})
	}
	return collections, nil
}

// uploadToStorage sends prefix+data+suffix to the storage URL from an
// upload authorization. This is the one request that bypasses the API host.
func (c *Client) uploadToStorage(ctx context.Context, auth uploadAuthorization, data []byte) error {
	body := make([]byte, 0, len(auth.Prefix)+len(data)+len(auth.Suffix))
	body = append(body, auth.Prefix...)
	body = append(body, data...)
	body = append(body, auth.Suffix...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, auth.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build storage request: %w", storeName, err)
	}
	req.Header.Set("Content-Type", auth.ContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.wrapTransport(err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewExternalAPIError(storeName, resp.StatusCode, "storage upload failed", nil)
	}
	return nil
}

// doJSON performs an API request with an optional JSON payload, decoding the
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	return c.doJSONHeaders(ctx, method, endpoint, payload, out, nil)
}

func (c *Client) doJSONHeaders(ctx context.Context, method, endpoint string, payload, out any, headers map[string]string) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode payload: %w", storeName, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", storeName, err)
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.send(req, out)
}

// doForm performs a form-encoded upload-protocol request. These require the
// If-None-Match guard so an existing file is never clobbered.
func (c *Client) doForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", storeName, err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("If-None-Match", "*")

	return c.send(req, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Zotero-API-Version", apiVersion)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return c.wrapTransport(err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.NewExternalAPIError(storeName, resp.StatusCode, strings.TrimSpace(string(msg)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", storeName, err)
	}
	return nil
}

func (c *Client) wrapTransport(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", storeName, domain.ErrUnavailable, err)
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// recordToPayload maps a record onto Zotero item fields. The accession
// number lands in the field the record's source dictates.
func recordToPayload(rec *domain.Record) itemPayload {
	payload := itemPayload{
		ItemType:         itemTypePreprint,
		Title:            rec.Title,
		AbstractNote:     rec.Abstract,
		DOI:              rec.DOI,
		URL:              rec.PDFURL,
		PublicationTitle: rec.Venue,
	}

	if rec.Published != nil {
		payload.Date = rec.Published.Format("2006-01-02")
	}

	for _, a := range rec.Authors {
		payload.Creators = append(payload.Creators, creator{CreatorType: "author", Name: a.Name})
	}

	key := rec.Key()
	switch key.Field {
	case domain.FieldExtra:
		payload.Extra = key.Value
	case domain.FieldArchiveID:
		payload.ArchiveLocation = key.Value
	}

	if rec.Source != "" {
		payload.Tags = []tagPayload{{Tag: string(rec.Source)}}
	}

	return payload
}
