// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// headByteLimit caps how much of a previewed page is read; the <head>
// section of real pages fits comfortably.
const headByteLimit = 64 << 10

// BM25 saturation parameter for contextual preview scoring.
const previewBM25K1 = 1.2

// collectPreviews fetches the <head> of discovered links, attaches metadata
// and scores, then drops internal links that yielded no head metadata (the
// crawl core relies on that filter).
func (f *HTTPFetcher) collectPreviews(ctx context.Context, result *Result, opts *PreviewOptions) {
	budget := opts.maxLinks()

	if opts.IncludeInternal {
		n := min(budget, len(result.Links.Internal))
		f.previewBatch(ctx, result.Links.Internal[:n], opts)
		budget -= n

		kept := result.Links.Internal[:0]
		for i, link := range result.Links.Internal {
			if i < n && len(link.HeadMeta) == 0 {
				continue
			}
			kept = append(kept, link)
		}
		result.Links.Internal = kept
	}
	if opts.IncludeExternal && budget > 0 {
		n := min(budget, len(result.Links.External))
		f.previewBatch(ctx, result.Links.External[:n], opts)
	}
}

// previewBatch fetches heads concurrently and mutates the links in place.
func (f *HTTPFetcher) previewBatch(ctx context.Context, links []Link, opts *PreviewOptions) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())

	for i := range links {
		link := &links[i]
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(gctx, opts.timeout())
			defer cancel()

			meta, ok := f.fetchHead(reqCtx, link.Href)
			if ok {
				link.HeadMeta = meta
			}
			f.scoreLink(link, opts)
			return nil
		})
	}
	_ = g.Wait()
}

// fetchHead retrieves up to headByteLimit bytes of a page and extracts
// title/description/keywords from its head section.
func (f *HTTPFetcher) fetchHead(ctx context.Context, u string) (HeadMeta, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false
	}
	ua := f.opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, false
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, headByteLimit))
	meta := parseHeadMeta(body)
	return meta, len(meta) > 0
}

// parseHeadMeta pulls title and meta tags out of a (possibly truncated)
// HTML document. html.Parse tolerates the truncation.
func parseHeadMeta(doc []byte) HeadMeta {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil
	}

	meta := make(HeadMeta)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil {
					if t := strings.TrimSpace(n.FirstChild.Data); t != "" {
						meta["title"] = t
					}
				}
			case "meta":
				var name, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "name", "property":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				content = strings.TrimSpace(content)
				if content == "" {
					break
				}
				switch name {
				case "description", "og:description":
					meta["description"] = content
				case "keywords":
					meta["keywords"] = content
				case "author":
					meta["author"] = content
				case "og:title":
					if _, exists := meta["title"]; !exists {
						meta["title"] = content
					}
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if len(meta) == 0 {
		return nil
	}
	return meta
}

// scoreLink attaches contextual and intrinsic scores when requested.
func (f *HTTPFetcher) scoreLink(link *Link, opts *PreviewOptions) {
	if opts.Query != "" {
		preview := strings.Join([]string{
			link.Text, link.Title,
			link.HeadMeta["title"], link.HeadMeta["description"], link.HeadMeta["keywords"],
		}, " ")
		if s := contextualScore(opts.Query, preview); s > 0 {
			link.ContextualScore = &s
		}
	}
	if opts.ScoreLinks {
		s := intrinsicScore(link.Href)
		link.IntrinsicScore = &s
	}
}

// contextualScore is a BM25-style saturation score of query terms in the
// preview text, normalized to [0,1) by the number of query terms.
func contextualScore(query, preview string) float64 {
	queryTerms := previewTokens(query)
	if len(queryTerms) == 0 {
		return 0
	}
	tf := make(map[string]int)
	for _, t := range previewTokens(preview) {
		tf[t]++
	}

	var score float64
	for _, q := range queryTerms {
		n := float64(tf[q])
		score += n * (previewBM25K1 + 1) / (n + previewBM25K1) / (previewBM25K1 + 1)
	}
	return score / float64(len(queryTerms))
}

// intrinsicScore rates URL structure: shallow, wordy paths over deep ones,
// penalizing query strings and numeric path segments.
func intrinsicScore(href string) float64 {
	score := 0.5
	lower := strings.ToLower(href)

	depth := strings.Count(strings.TrimRight(lower, "/"), "/") - 2
	switch {
	case depth <= 1:
		score += 0.2
	case depth <= 3:
		score += 0.1
	default:
		score -= 0.1
	}
	if strings.Contains(lower, "?") {
		score -= 0.1
	}
	if digitHeavy(lower) {
		score -= 0.1
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// digitHeavy reports whether over a third of the URL's path characters are
// digits (session IDs, hashes, pagination artifacts).
func digitHeavy(u string) bool {
	idx := strings.Index(u, "://")
	if idx >= 0 {
		u = u[idx+3:]
	}
	if slash := strings.Index(u, "/"); slash >= 0 {
		u = u[slash:]
	} else {
		return false
	}
	if len(u) == 0 {
		return false
	}
	digits := 0
	for _, r := range u {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return float64(digits) > float64(len(u))/3
}

// previewTokens is the fetcher-local tokenization used for contextual
// scoring only; the crawl core has its own canonical tokenizer.
func previewTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
