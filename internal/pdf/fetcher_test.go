package pdf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFetcher(Config{AllowPrivateNetworks: true}, zerolog.Nop()), srv
}

func servePDF(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(data)
	}
}

func TestFetch(t *testing.T) {
	pdfData := []byte("%PDF-1.4 content")

	t.Run("downloads a PDF and names it after the title", func(t *testing.T) {
		f, srv := newTestFetcher(t, servePDF(pdfData))

		name, data, err := f.Fetch(context.Background(), srv.URL, "A Study of Things")
		require.NoError(t, err)
		assert.Equal(t, "A_Study_of_Things.pdf", name)
		assert.Equal(t, pdfData, data)
	})

	t.Run("rejects non-PDF content types", func(t *testing.T) {
		f, srv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>paywall</html>"))
		})

		_, _, err := f.Fetch(context.Background(), srv.URL, "t")
		assert.ErrorIs(t, err, ErrNotPDF)
	})

	t.Run("accepts content types with parameters", func(t *testing.T) {
		f, srv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf; charset=binary")
			_, _ = w.Write(pdfData)
		})

		_, _, err := f.Fetch(context.Background(), srv.URL, "t")
		assert.NoError(t, err)
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		big := make([]byte, 2048)
		srv := httptest.NewServer(servePDF(big))
		t.Cleanup(srv.Close)
		f := NewFetcher(Config{MaxSize: 1024, AllowPrivateNetworks: true}, zerolog.Nop())

		_, _, err := f.Fetch(context.Background(), srv.URL, "t")
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("reports HTTP failures", func(t *testing.T) {
		f, srv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, _, err := f.Fetch(context.Background(), srv.URL, "t")
		require.ErrorIs(t, err, ErrDownloadFailed)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("sends the configured user agent", func(t *testing.T) {
		var gotUA string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			servePDF(pdfData)(w, r)
		}))
		t.Cleanup(srv.Close)
		f := NewFetcher(Config{UserAgent: "paperflow-test/2.0", AllowPrivateNetworks: true}, zerolog.Nop())

		_, _, err := f.Fetch(context.Background(), srv.URL, "t")
		require.NoError(t, err)
		assert.Equal(t, "paperflow-test/2.0", gotUA)
	})

	t.Run("follows redirects", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/pdf", servePDF(pdfData))
		mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/pdf", http.StatusFound)
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		f := NewFetcher(Config{AllowPrivateNetworks: true}, zerolog.Nop())

		_, data, err := f.Fetch(context.Background(), srv.URL+"/start", "t")
		require.NoError(t, err)
		assert.Equal(t, pdfData, data)
	})

	t.Run("denies private addresses when the guard is on", func(t *testing.T) {
		srv := httptest.NewServer(servePDF(pdfData))
		t.Cleanup(srv.Close)
		f := NewFetcher(Config{}, zerolog.Nop())

		_, _, err := f.Fetch(context.Background(), srv.URL, "t")
		assert.ErrorIs(t, err, ErrPrivateAddress, "httptest listens on loopback")
	})

	t.Run("denies non-HTTP schemes", func(t *testing.T) {
		f := NewFetcher(Config{}, zerolog.Nop())
		_, _, err := f.Fetch(context.Background(), "file:///etc/passwd", "t")
		assert.ErrorIs(t, err, ErrPrivateAddress)
	})
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"simple", "Attention Is All You Need", "Attention_Is_All_You_Need.pdf"},
		{"punctuation collapses", "Graphs: A (Brief) Survey!", "Graphs_A_Brief_Survey.pdf"},
		{"hyphens survive", "Multi-Agent Systems", "Multi-Agent_Systems.pdf"},
		{"non-latin titles fall back", "图神经网络综述", "attachment.pdf"},
		{"empty title falls back", "", "attachment.pdf"},
		{"long titles are truncated", strings.Repeat("a", 300), strings.Repeat("a", 100) + ".pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.title))
		})
	}
}
