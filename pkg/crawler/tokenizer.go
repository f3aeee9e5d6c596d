// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenize splits text into terms: every character that is not a word
// character or whitespace becomes a space, the result is split on
// whitespace, and tokens of length <= 2 runes are dropped. No stemming, no
// stop words. Lowercasing is the caller's responsibility so that term
// accounting and coverage see identical streams.
func Tokenize(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// isWordRune matches the \w class: letters, digits, underscore.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
