// Package render transforms raw assistant text into citation-linked HTML.
// Document identifiers are recognized by an explicit scanner rather than
// chained regex replaces, so precedence between valid and malformed forms
// stays testable: valid patterns are always tried before malformed cleanup.
package render

import (
	"fmt"
	"strings"
)

// uuidLen is the canonical textual length of a document identifier.
const uuidLen = 36

// Result is the output of rendering one assistant message.
type Result struct {
	HTML string
	// DocIDs maps citation number-1 to the normalized (lowercase)
	// identifier: first unique id seen gets [1], repeats reuse numbers.
	DocIDs []string
}

// citations assigns stable numbers in order of first appearance.
type citations struct {
	numbers map[string]int
	ids     []string
}

func newCitations() *citations {
	return &citations{numbers: make(map[string]int)}
}

// number returns the citation number for id, assigning the next one on
// first sight. Identifiers are normalized to lowercase.
func (c *citations) number(id string) int {
	id = strings.ToLower(id)
	if n, ok := c.numbers[id]; ok {
		return n
	}
	n := len(c.ids) + 1
	c.numbers[id] = n
	c.ids = append(c.ids, id)
	return n
}

func (c *citations) badge(id string) string {
	n := c.number(id)
	return fmt.Sprintf(`<sup class="citation" data-doc-id="%s">[%d]</sup>`, strings.ToLower(id), n)
}

// isHexDigit reports whether b is a lowercase or uppercase hex digit.
func isHexDigit(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'
}

// scanUUID reports whether s starts with a full canonical UUID and returns it.
func scanUUID(s string) (string, bool) {
	if len(s) < uuidLen {
		return "", false
	}
	for i := 0; i < uuidLen; i++ {
		switch i {
		case 8, 13, 18, 23:
			if s[i] != '-' {
				return "", false
			}
		default:
			if !isHexDigit(s[i]) {
				return "", false
			}
		}
	}
	// A longer hex run means this is not a standalone identifier.
	if len(s) > uuidLen && (isHexDigit(s[uuidLen]) || s[uuidLen] == '-') {
		return "", false
	}
	return s[:uuidLen], true
}

// scanPartialUUID matches a truncated identifier fragment: at least the
// first hyphenated group of a UUID followed by more hex/dash noise that
// never completes. Runs only after scanUUID has failed.
func scanPartialUUID(s string) (int, bool) {
	i := 0
	for i < 8 && i < len(s) && isHexDigit(s[i]) {
		i++
	}
	if i < 8 || i >= len(s) || s[i] != '-' {
		return 0, false
	}
	i++
	n := 0
	for i < len(s) && (isHexDigit(s[i]) || s[i] == '-') {
		i++
		n++
	}
	if n == 0 {
		return 0, false
	}
	return i, true
}

// scanDocToken recognizes one document-identifier token at the start of s.
// Surface forms, in precedence order:
//
//	[Doc ID: <uuid>]   bracketed form
//	Doc <uuid>         bare prefixed form
//	<uuid>             lone identifier
//
// Malformed forms (bracket without a single valid id, truncated fragments)
// consume their text and emit nothing.
func scanDocToken(s string, c *citations) (emit string, consumed int, ok bool) {
	// Bracketed form and its malformed variants.
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			if strings.HasPrefix(strings.ToLower(s[1:]), "doc id") {
				// Unterminated bracket at end of text.
				return "", len(s), true
			}
			return "", 0, false
		}
		inner := s[1:end]
		if strings.HasPrefix(strings.ToLower(inner), "doc id:") {
			body := strings.TrimSpace(inner[len("doc id:"):])
			if id, full := scanUUID(body); full && len(body) == uuidLen {
				return c.badge(id), end + 1, true
			}
			// Multi-id or truncated bracket: strip it whole.
			return "", end + 1, true
		}
		return "", 0, false
	}

	// Bare "Doc <uuid>" form.
	if strings.HasPrefix(s, "Doc ") || strings.HasPrefix(s, "doc ") {
		rest := s[4:]
		if id, full := scanUUID(rest); full {
			return c.badge(id), 4 + uuidLen, true
		}
		return "", 0, false
	}

	// Lone identifier, valid first, then truncated cleanup.
	if id, full := scanUUID(s); full {
		return c.badge(id), uuidLen, true
	}
	if n, partial := scanPartialUUID(s); partial {
		return "", n, true
	}
	return "", 0, false
}
