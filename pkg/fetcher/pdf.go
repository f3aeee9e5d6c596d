// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package fetcher

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDFText pulls plain text from a fetched PDF body. The pdf library
// needs a seekable file, so the body goes through a temp file.
func extractPDFText(body []byte) (text string, pages int, err error) {
	tmp, err := os.CreateTemp("", "fetch-*.pdf")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	f, reader, err := pdf.Open(tmp.Name())
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	pages = reader.NumPage()
	for pageNum := 1; pageNum <= pages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// Some pages are malformed; keep what we can.
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n\n")
	}

	return strings.TrimSpace(b.String()), pages, nil
}
