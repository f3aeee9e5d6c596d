// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// HTTPOptions tunes the HTTP fetcher. The zero value is completed with
// defaults by NewHTTPFetcher.
type HTTPOptions struct {
	// Timeout is the overall deadline for a page request.
	Timeout time.Duration

	// MaxBytes caps how much of a response body is read.
	MaxBytes int64

	// PreferReadable extracts the main article with readability before
	// markdown conversion, falling back to the full document.
	PreferReadable bool

	// UserAgent overrides the default UA.
	UserAgent string

	// MaxRedirects caps redirect following. Zero means 10.
	MaxRedirects int
}

// HTTPOption mutates HTTPOptions.
type HTTPOption func(*HTTPOptions)

// WithTimeout sets the total request timeout.
func WithTimeout(d time.Duration) HTTPOption { return func(o *HTTPOptions) { o.Timeout = d } }

// WithMaxBytes sets the response body read cap.
func WithMaxBytes(n int64) HTTPOption { return func(o *HTTPOptions) { o.MaxBytes = n } }

// WithPreferReadable toggles readability extraction.
func WithPreferReadable(v bool) HTTPOption { return func(o *HTTPOptions) { o.PreferReadable = v } }

// WithUserAgent sets a custom UA.
func WithUserAgent(ua string) HTTPOption { return func(o *HTTPOptions) { o.UserAgent = ua } }

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"

// HTTPFetcher implements Fetcher over plain HTTP with markdown extraction
// and link previews. JS-heavy sites that need rendering are out of scope;
// plug a rendering Fetcher behind the same interface for those.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher creates an HTTP fetcher with hardened transport defaults.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	o := HTTPOptions{
		Timeout:        20 * time.Second,
		MaxBytes:       8 << 20,
		PreferReadable: true,
		MaxRedirects:   10,
	}
	for _, fn := range opts {
		fn(&o)
	}

	dialer := &net.Dialer{
		Timeout:   7 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	maxRedirects := o.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   o.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &HTTPFetcher{client: client, opts: o}
}

// Fetch retrieves the URL, extracts markdown and links, and (when opts is
// non-nil) collects link previews. A failed fetch returns a Result with
// Success false and a nil error only when the failure is the page's own
// (bad status, unsupported type); transport errors return an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts *PreviewOptions) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	body, resp, err := f.get(ctx, u.String(), f.opts.MaxBytes)
	if err != nil {
		return nil, err
	}

	result := &Result{
		URL:     rawURL,
		Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
		Metadata: map[string]interface{}{
			"status":       resp.StatusCode,
			"final_url":    resp.Request.URL.String(),
			"content_type": resp.Header.Get("Content-Type"),
			"fetched_at":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if !result.Success {
		return result, nil
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	finalURL := resp.Request.URL

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml" || mediaType == "":
		decoded, err := decodeCharset(body, resp.Header.Get("Content-Type"))
		if err != nil {
			decoded = body
		}
		md, title, err := f.htmlToMarkdown(decoded, finalURL)
		if err != nil {
			return nil, fmt.Errorf("markdown extraction failed: %w", err)
		}
		result.Markdown = Markdown{RawMarkdown: md}
		if title != "" {
			result.Metadata["title"] = title
		}
		result.Links = extractLinks(decoded, finalURL)

	case mediaType == "application/pdf" || strings.HasSuffix(strings.ToLower(u.Path), ".pdf"):
		text, pages, err := extractPDFText(body)
		if err != nil {
			return nil, fmt.Errorf("pdf extraction failed: %w", err)
		}
		result.Markdown = Markdown{RawMarkdown: text}
		result.Metadata["page_count"] = pages

	case strings.HasPrefix(mediaType, "text/"):
		decoded, err := decodeCharset(body, resp.Header.Get("Content-Type"))
		if err != nil {
			decoded = body
		}
		result.Markdown = Markdown{RawMarkdown: string(decoded)}

	default:
		result.Success = false
		result.Metadata["skip_reason"] = "unsupported content type: " + mediaType
		return result, nil
	}

	if opts != nil {
		f.collectPreviews(ctx, result, opts)
	}

	return result, nil
}

// get performs a capped-body GET and returns the body with the response.
func (f *HTTPFetcher) get(ctx context.Context, u string, maxBytes int64) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	ua := f.opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("reading body: %w", err)
	}
	return body, resp, nil
}

// htmlToMarkdown converts an HTML document to markdown, optionally routing
// through readability first to isolate the main content.
func (f *HTTPFetcher) htmlToMarkdown(doc []byte, pageURL *url.URL) (markdown, title string, err error) {
	source := string(doc)

	if f.opts.PreferReadable {
		article, rerr := readability.FromReader(bytes.NewReader(doc), pageURL)
		if rerr == nil && strings.TrimSpace(article.Content) != "" {
			source = article.Content
			title = article.Title
		}
	}

	md, err := htmltomarkdown.ConvertString(source)
	if err != nil {
		return "", "", err
	}
	if title == "" {
		title = documentTitle(doc)
	}
	return strings.TrimSpace(md), title, nil
}

func decodeCharset(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// documentTitle returns the <title> text of an HTML document, if any.
func documentTitle(doc []byte) string {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return title
}

// extractLinks walks the document and returns deduplicated outbound links,
// split by host relative to pageURL.
func extractLinks(doc []byte, pageURL *url.URL) Links {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return Links{}
	}

	var links Links
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, title string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					href = attr.Val
				case "title":
					title = attr.Val
				}
			}
			if link, ok := resolveLink(href, title, anchorText(n), pageURL); ok && !seen[link.Href] {
				seen[link.Href] = true
				if sameHost(link.Href, pageURL) {
					links.Internal = append(links.Internal, link)
				} else {
					links.External = append(links.External, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}

func resolveLink(href, title, text string, base *url.URL) (Link, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return Link{}, false
	}
	u, err := url.Parse(href)
	if err != nil {
		return Link{}, false
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return Link{}, false
	}
	resolved.Fragment = ""
	return Link{
		Href:  resolved.String(),
		Text:  strings.TrimSpace(text),
		Title: strings.TrimSpace(title),
	}, true
}

func sameHost(href string, base *url.URL) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), base.Hostname())
}

// anchorText collects the visible text inside an anchor element.
func anchorText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
