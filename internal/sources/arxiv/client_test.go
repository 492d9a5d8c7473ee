package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/sources"
)

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <opensearch:totalResults xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">2</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <title>Attention Is
       Not All You Need</title>
    <summary>  A study of
      transformer limits.  </summary>
    <published>2023-01-30T18:00:00Z</published>
    <author><name>Alice Smith</name></author>
    <author><name>Bob Jones</name><arxiv:affiliation>MIT</arxiv:affiliation></author>
    <link href="http://arxiv.org/abs/2301.12345v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2301.12345v2" rel="related" type="application/pdf" title="pdf"/>
    <arxiv:doi>10.1000/xyz</arxiv:doi>
    <arxiv:journal_ref>Journal of ML 12</arxiv:journal_ref>
    <arxiv:primary_category term="cs.LG"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/hep-th/9901001v1</id>
    <title>Old Style Identifier</title>
    <summary>Pre-2007 identifier scheme.</summary>
    <published>1999-01-04T00:00:00Z</published>
    <author><name>Carol Wu</name></author>
    <arxiv:primary_category term="hep-th"/>
  </entry>
  <entry>
    <id>http://example.com/not-arxiv</id>
    <title>Broken Entry</title>
  </entry>
</feed>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL: srv.URL,
		Enabled: true,
		HTTP:    sources.HTTPClientConfig{RateLimit: 1000, BurstSize: 1000},
	})
}

func TestClientSearch(t *testing.T) {
	t.Run("parses entries into records", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(atomFixture))
		})

		records, err := c.Search(context.Background(), sources.SearchParams{Query: "transformers"})
		require.NoError(t, err)
		require.Len(t, records, 2, "the entry without an arXiv ID is dropped")

		first := records[0]
		assert.Equal(t, "2301.12345", first.ArchiveID, "version suffix stripped")
		assert.Equal(t, "Attention Is Not All You Need", first.Title)
		assert.Equal(t, "A study of transformer limits.", first.Abstract)
		assert.Equal(t, "10.1000/xyz", first.DOI)
		assert.Equal(t, "Journal of ML 12", first.Venue)
		assert.Equal(t, "http://arxiv.org/pdf/2301.12345v2", first.PDFURL)
		assert.Equal(t, domain.SourceArxiv, first.Source)
		require.Len(t, first.Authors, 2)
		assert.Equal(t, "Alice Smith", first.Authors[0].Name)
		assert.Equal(t, "MIT", first.Authors[1].Affiliation)
		require.NotNil(t, first.Published)
		assert.Equal(t, 2023, first.Published.Year())

		second := records[1]
		assert.Equal(t, "hep-th/9901001", second.ArchiveID)
		assert.Equal(t, "hep-th", second.Venue, "primary category stands in for a missing journal ref")
		assert.Equal(t, "http://arxiv.org/pdf/hep-th/9901001", second.PDFURL, "constructed when no pdf link is present")
	})

	t.Run("builds the query string", func(t *testing.T) {
		var gotQuery url.Values
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			_, _ = w.Write([]byte(`<feed></feed>`))
		})

		from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)
		_, err := c.Search(context.Background(), sources.SearchParams{
			Query:      "quantum computing",
			Categories: []string{"cs.AI", " cs.LG ", ""},
			DateFrom:   &from,
			DateTo:     &to,
			MaxResults: 25,
		})
		require.NoError(t, err)

		assert.Equal(t,
			"all:quantum computing AND (cat:cs.AI OR cat:cs.LG) AND submittedDate:[202301010000 TO 202306302359]",
			gotQuery.Get("search_query"))
		assert.Equal(t, "25", gotQuery.Get("max_results"))
		assert.Equal(t, "submittedDate", gotQuery.Get("sortBy"))
		assert.Equal(t, "descending", gotQuery.Get("sortOrder"))
	})

	t.Run("open-ended date ranges use wildcards", func(t *testing.T) {
		from := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, "submittedDate:[202403150000 TO *]", buildDateFilter(&from, nil))
		assert.Equal(t, "submittedDate:[* TO 202403152359]", buildDateFilter(nil, &from))
	})

	t.Run("uses the configured default for max results", func(t *testing.T) {
		var gotMax string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotMax = r.URL.Query().Get("max_results")
			_, _ = w.Write([]byte(`<feed></feed>`))
		})

		_, err := c.Search(context.Background(), sources.SearchParams{Query: "x"})
		require.NoError(t, err)
		assert.Equal(t, "100", gotMax)
	})

	t.Run("surfaces malformed responses", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"xml"}`))
		})

		_, err := c.Search(context.Background(), sources.SearchParams{Query: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoding response")
	})
}

func TestExtractArXivID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"modern id with version", "http://arxiv.org/abs/2301.12345v1", "2301.12345"},
		{"modern id without version", "http://arxiv.org/abs/2301.12345", "2301.12345"},
		{"legacy id", "http://arxiv.org/abs/hep-th/9901001v2", "hep-th/9901001"},
		{"https scheme", "https://arxiv.org/abs/2401.00001v10", "2401.00001"},
		{"not an arxiv url", "http://example.com/abs/123", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractArXivID(tt.in))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	c := New(Config{Enabled: true})
	assert.Equal(t, domain.SourceArxiv, c.SourceType())
	assert.Equal(t, "arXiv", c.Name())
	assert.True(t, c.IsEnabled())
	assert.False(t, New(Config{}).IsEnabled())
}
