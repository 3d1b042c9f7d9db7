package render

import (
	"fmt"
	"strings"
)

// blockKind is the block-level token type of one source line.
type blockKind int

const (
	blockPlain blockKind = iota
	blockHeader
	blockQuote
	blockListItem
	blockBlank
)

// Assistant renders assistant message text to HTML with numbered citation
// badges. User messages must never pass through here; they are only
// payload-stripped before display.
func Assistant(text string) *Result {
	c := newCitations()
	var b strings.Builder

	inList := false
	closeList := func() {
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
	}

	for _, line := range strings.Split(text, "\n") {
		kind, level, body := lexBlock(line)

		if kind != blockListItem {
			closeList()
		}

		switch kind {
		case blockBlank:
			// collapsed

		case blockHeader:
			tag := fmt.Sprintf("h%d", level+2) // # -> h3, ## -> h4 ...
			if level > 3 {
				tag = "h6"
			}
			fmt.Fprintf(&b, "<%s>%s</%s>", tag, renderInline(body, c), tag)

		case blockQuote:
			fmt.Fprintf(&b, "<blockquote>%s</blockquote>", renderInline(body, c))

		case blockListItem:
			if !inList {
				b.WriteString("<ul>")
				inList = true
			}
			fmt.Fprintf(&b, "<li>%s</li>", renderInline(body, c))

		default:
			fmt.Fprintf(&b, "<p>%s</p>", renderInline(body, c))
		}
	}
	closeList()

	return &Result{HTML: b.String(), DocIDs: c.ids}
}

// lexBlock classifies one line and returns its kind, header level and body.
func lexBlock(line string) (blockKind, int, string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return blockBlank, 0, ""
	}
	if strings.HasPrefix(trimmed, "#") {
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		if level <= 4 && level < len(trimmed) && trimmed[level] == ' ' {
			return blockHeader, level, strings.TrimSpace(trimmed[level:])
		}
	}
	if body, ok := strings.CutPrefix(trimmed, "> "); ok {
		return blockQuote, 0, body
	}
	if body, ok := strings.CutPrefix(trimmed, "- "); ok {
		return blockListItem, 0, body
	}
	if body, ok := strings.CutPrefix(trimmed, "* "); ok {
		return blockListItem, 0, body
	}
	if i := strings.IndexByte(trimmed, '.'); i > 0 && i <= 3 && isDigits(trimmed[:i]) && i+1 < len(trimmed) && trimmed[i+1] == ' ' {
		return blockListItem, 0, strings.TrimSpace(trimmed[i+1:])
	}
	return blockPlain, 0, trimmed
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// renderInline walks one line emitting escaped text, bold spans and citation
// badges. Doc-id recognition always runs before any escape or bold handling
// at each position.
func renderInline(s string, c *citations) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if emit, n, ok := scanDocToken(s[i:], c); ok {
			b.WriteString(emit)
			i += n
			continue
		}
		if strings.HasPrefix(s[i:], "**") {
			if end := strings.Index(s[i+2:], "**"); end >= 0 {
				fmt.Fprintf(&b, "<strong>%s</strong>", renderInline(s[i+2:i+2+end], c))
				i += end + 4
				continue
			}
		}
		writeEscaped(&b, s[i])
		i++
	}
	return b.String()
}

func writeEscaped(b *strings.Builder, ch byte) {
	switch ch {
	case '&':
		b.WriteString("&amp;")
	case '<':
		b.WriteString("&lt;")
	case '>':
		b.WriteString("&gt;")
	case '"':
		b.WriteString("&quot;")
	default:
		b.WriteByte(ch)
	}
}
