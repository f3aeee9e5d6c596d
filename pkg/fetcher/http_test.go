// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Async Patterns</title>
  <meta name="description" content="A guide to event loops and coroutines">
</head>
<body>
  <article>
    <h1>Async Patterns</h1>
    <p>Event loops schedule coroutines cooperatively across await points, and this
    paragraph carries enough prose for readability to keep the article body.</p>
    <p>A second paragraph describing how awaitables resume after the scheduler
    hands control back, with more than enough text to matter.</p>
    <a href="/docs/event-loop">Event loop internals</a>
    <a href="/docs/coroutines" title="Coroutine guide">Coroutines</a>
    <a href="https://elsewhere.example.com/post">External post</a>
    <a href="#section">Fragment only</a>
    <a href="mailto:team@example.com">Mail</a>
  </article>
</body>
</html>`

func TestFetchExtractsMarkdownAndLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	result, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Contains(t, result.Markdown.RawMarkdown, "Event loops")
	assert.NotContains(t, result.Markdown.RawMarkdown, "<p>")

	require.Len(t, result.Links.Internal, 2)
	assert.Equal(t, srv.URL+"/docs/event-loop", result.Links.Internal[0].Href)
	assert.Equal(t, "Event loop internals", result.Links.Internal[0].Text)
	assert.Equal(t, "Coroutine guide", result.Links.Internal[1].Title)

	require.Len(t, result.Links.External, 1)
	assert.Equal(t, "https://elsewhere.example.com/post", result.Links.External[0].Href)
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	result, err := f.Fetch(context.Background(), srv.URL+"/missing", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestFetchRejectsBadURL(t *testing.T) {
	f := NewHTTPFetcher()
	_, err := f.Fetch(context.Background(), "ftp://example.com/file", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestFetchPreviewsFilterInternalWithoutHead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Seed</title></head><body>
			<p>seed content about event loops and coroutines in detail</p>
			<a href="/good">Event loop guide</a>
			<a href="/bare">Bare page</a>
		</body></html>`))
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Event loop guide</title>
			<meta name="description" content="coroutines and event loops explained">
			</head><body>body</body></html>`))
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>no head metadata here</body></html>`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFetcher()
	result, err := f.Fetch(context.Background(), srv.URL+"/", &PreviewOptions{
		IncludeInternal: true,
		Query:           "event loop coroutines",
		ScoreLinks:      true,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	// The bare page yields no head metadata and is filtered out.
	require.Len(t, result.Links.Internal, 1)
	link := result.Links.Internal[0]
	assert.Equal(t, srv.URL+"/good", link.Href)
	assert.Equal(t, "coroutines and event loops explained", link.HeadMeta["description"])

	require.NotNil(t, link.ContextualScore)
	assert.Greater(t, *link.ContextualScore, 0.0)
	require.NotNil(t, link.IntrinsicScore)
	assert.GreaterOrEqual(t, *link.IntrinsicScore, 0.0)
	assert.LessOrEqual(t, *link.IntrinsicScore, 1.0)
}

func TestContextualScore(t *testing.T) {
	matched := contextualScore("event loop coroutines", "the event loop schedules coroutines")
	missed := contextualScore("event loop coroutines", "gardening tips for spring")
	assert.Greater(t, matched, missed)
	assert.Equal(t, 0.0, missed)
	assert.LessOrEqual(t, matched, 1.0)

	assert.Equal(t, 0.0, contextualScore("", "anything"))
}

func TestIntrinsicScore(t *testing.T) {
	shallow := intrinsicScore("https://x.example/docs/intro")
	deep := intrinsicScore("https://x.example/a/b/c/d/e/f?page=2&id=12345678901234")
	assert.Greater(t, shallow, deep)
}

func TestParseHeadMetaTruncated(t *testing.T) {
	head := `<html><head><title>Cut off</title><meta name="description" content="still parses"`
	meta := parseHeadMeta([]byte(head))
	require.NotNil(t, meta)
	assert.Equal(t, "Cut off", meta["title"])
}

func TestResolveLink(t *testing.T) {
	base, _ := url.Parse("https://site.example/section/page")

	link, ok := resolveLink("../other", "", "Other", base)
	require.True(t, ok)
	assert.Equal(t, "https://site.example/other", link.Href)

	_, ok = resolveLink("javascript:void(0)", "", "", base)
	assert.False(t, ok)

	link, ok = resolveLink("/abs#frag", "", "", base)
	require.True(t, ok)
	assert.False(t, strings.Contains(link.Href, "#"))
}
