// Package pdf downloads full-text PDFs for attachment upload.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sentinel errors for PDF download operations.
var (
	// ErrNotPDF is returned when the response Content-Type is not application/pdf.
	ErrNotPDF = errors.New("pdf: response is not a PDF")
	// ErrTooLarge is returned when the file exceeds the maximum allowed size.
	ErrTooLarge = errors.New("pdf: file exceeds maximum size")
	// ErrDownloadFailed is returned when the download fails due to network or HTTP errors.
	ErrDownloadFailed = errors.New("pdf: download failed")
	// ErrPrivateAddress is returned when the URL resolves to a private or internal network address.
	ErrPrivateAddress = errors.New("pdf: request to private network denied")
)

// maxFilenameLen bounds generated attachment filenames.
const maxFilenameLen = 100

// Config holds fetcher configuration.
type Config struct {
	// Timeout is the HTTP request timeout. Default: 60 seconds.
	Timeout time.Duration
	// MaxSize is the maximum file size in bytes. Default: 50MB.
	MaxSize int64
	// UserAgent is the User-Agent header.
	UserAgent string
	// AllowPrivateNetworks disables the private-IP checks. This MUST only
	// be set in test environments.
	AllowPrivateNetworks bool
}

// Fetcher downloads PDFs and derives attachment filenames from record
// titles. Safe for concurrent use.
type Fetcher struct {
	client               *http.Client
	maxSize              int64
	userAgent            string
	allowPrivateNetworks bool
	log                  zerolog.Logger
}

// NewFetcher creates a Fetcher with the given configuration.
func NewFetcher(cfg Config, log zerolog.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 50 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "paperflow/1.0"
	}

	f := &Fetcher{
		maxSize:              cfg.MaxSize,
		userAgent:            cfg.UserAgent,
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
		log:                  log.With().Str("component", "pdf").Logger(),
	}

	f.client = &http.Client{
		Timeout: cfg.Timeout,
		// Each redirect hop is re-validated so an open redirect cannot
		// land the request on an internal address.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("%w: too many redirects", ErrPrivateAddress)
			}
			if !f.allowPrivateNetworks {
				return validatePublicURL(req.URL.String())
			}
			return nil
		},
	}
	return f
}

// Fetch downloads the PDF at rawURL and returns an attachment filename
// derived from the record title along with the file contents.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, title string) (string, []byte, error) {
	if !f.allowPrivateNetworks {
		if err := validatePublicURL(rawURL); err != nil {
			return "", nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid URL: %w", ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return "", nil, fmt.Errorf("%w: Content-Type is %q", ErrNotPDF, contentType)
	}

	// Read one extra byte past the cap to detect oversized files.
	content, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}
	if int64(len(content)) > f.maxSize {
		return "", nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, f.maxSize)
	}

	f.log.Debug().Str("url", rawURL).Int("size_bytes", len(content)).Msg("downloaded pdf")
	return Filename(title), content, nil
}

// Filename derives a filesystem-safe attachment filename from a title.
func Filename(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
		if b.Len() >= maxFilenameLen {
			break
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "attachment"
	}
	return name + ".pdf"
}

// validatePublicURL rejects non-HTTP schemes and hostnames resolving to
// private, loopback or link-local addresses.
func validatePublicURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrivateAddress, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrPrivateAddress, parsed.Scheme)
	}

	host := parsed.Hostname()
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %w", ErrDownloadFailed, host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, host, ipStr)
		}
	}
	return nil
}
