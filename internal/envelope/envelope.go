// Package envelope models the in-band protocol between the UI and the chat
// backend. Requests are an explicit tagged union internally and are rendered
// to the sentinel text format only at the network boundary, so no other layer
// pattern-matches on markers.
package envelope

import (
	"fmt"
	"strings"
)

// Sentinel markers understood by the retrieval backend.
const (
	DocStart      = "<!-- DOCUMENTO_INICIO -->"
	DocEnd        = "<!-- DOCUMENTO_FIN -->"
	SentenceStart = "<!-- SENTENCIA_INICIO -->"
	SentenceEnd   = "<!-- SENTENCIA_FIN -->"
	DraftMarker   = "[REDACTAR_DOCUMENTO]"
	AuditMarker   = "[AUDITAR_SENTENCIA]"
	AttachPrefix  = `[DOCUMENTO ADJUNTO: "`
	AttachSuffix  = `"]`
)

// Kind discriminates the request union.
type Kind string

const (
	KindPlain            Kind = "plain"
	KindDocumentAnalysis Kind = "documentAnalysis"
	KindDraft            Kind = "draft"
	KindSentenceAudit    Kind = "sentenceAudit"
)

// DraftSpec holds the structured fields of a document drafting request.
type DraftSpec struct {
	TipoDocumento string `json:"tipo_documento"`
	Promovente    string `json:"promovente"`
	Demandado     string `json:"demandado,omitempty"`
	Hechos        string `json:"hechos"`
	Pretensiones  string `json:"pretensiones,omitempty"`
}

// Request is a chat request before sentinel serialization.
type Request struct {
	Kind         Kind       `json:"kind"`
	Prompt       string     `json:"prompt"`
	DocumentName string     `json:"document_name,omitempty"`
	DocumentText string     `json:"document_text,omitempty"`
	Draft        *DraftSpec `json:"draft,omitempty"`
}

// Plain wraps a typed prompt with no hidden payload.
func Plain(prompt string) Request {
	return Request{Kind: KindPlain, Prompt: prompt}
}

// DocumentAnalysis builds an attached-document analysis request.
func DocumentAnalysis(prompt, name, text string) Request {
	return Request{Kind: KindDocumentAnalysis, Prompt: prompt, DocumentName: name, DocumentText: text}
}

// SentenceAudit builds a sentence-audit request over a ruling's full text.
func SentenceAudit(prompt, text string) Request {
	return Request{Kind: KindSentenceAudit, Prompt: prompt, DocumentText: text}
}

// Serialize renders the request to the sentinel text format the retrieval
// backend parses. Plain requests pass through untouched.
func (r Request) Serialize() string {
	switch r.Kind {
	case KindDocumentAnalysis:
		var b strings.Builder
		b.WriteString(AttachPrefix)
		b.WriteString(r.DocumentName)
		b.WriteString(AttachSuffix)
		b.WriteString("\n")
		if r.Prompt != "" {
			b.WriteString(r.Prompt)
			b.WriteString("\n")
		}
		b.WriteString(DocStart)
		b.WriteString("\n")
		b.WriteString(r.DocumentText)
		b.WriteString("\n")
		b.WriteString(DocEnd)
		return b.String()

	case KindDraft:
		var b strings.Builder
		b.WriteString(DraftMarker)
		b.WriteString(" ")
		if r.Draft != nil {
			fmt.Fprintf(&b, "Tipo: %s. Promovente: %s.", r.Draft.TipoDocumento, r.Draft.Promovente)
			if r.Draft.Demandado != "" {
				fmt.Fprintf(&b, " Demandado: %s.", r.Draft.Demandado)
			}
			fmt.Fprintf(&b, "\nHechos: %s", r.Draft.Hechos)
			if r.Draft.Pretensiones != "" {
				fmt.Fprintf(&b, "\nPretensiones: %s", r.Draft.Pretensiones)
			}
		}
		if r.Prompt != "" {
			b.WriteString("\n")
			b.WriteString(r.Prompt)
		}
		return b.String()

	case KindSentenceAudit:
		var b strings.Builder
		b.WriteString(AuditMarker)
		b.WriteString(" ")
		b.WriteString(r.Prompt)
		b.WriteString("\n")
		b.WriteString(SentenceStart)
		b.WriteString("\n")
		b.WriteString(r.DocumentText)
		b.WriteString("\n")
		b.WriteString(SentenceEnd)
		return b.String()

	default:
		return r.Prompt
	}
}

// DetectKind classifies already-serialized message text by its markers.
func DetectKind(content string) Kind {
	switch {
	case strings.Contains(content, DocStart):
		return KindDocumentAnalysis
	case strings.HasPrefix(content, AuditMarker) || strings.Contains(content, SentenceStart):
		return KindSentenceAudit
	case strings.HasPrefix(content, DraftMarker):
		return KindDraft
	default:
		return KindPlain
	}
}

// Parse reconstructs a Request from serialized text, reversing Serialize for
// well-formed input. Draft requests flatten their structured fields into
// prose on the way out, so they come back with the prose in Prompt and a nil
// Draft. Unrecognized text parses as a plain request.
func Parse(content string) Request {
	switch DetectKind(content) {
	case KindDocumentAnalysis:
		req := Request{Kind: KindDocumentAnalysis}
		rest := content
		if strings.HasPrefix(rest, AttachPrefix) {
			if end := strings.Index(rest, AttachSuffix); end >= 0 {
				req.DocumentName = rest[len(AttachPrefix):end]
				rest = rest[end+len(AttachSuffix):]
			}
		}
		if i := strings.Index(rest, DocStart); i >= 0 {
			req.Prompt = strings.TrimSpace(rest[:i])
			body := rest[i+len(DocStart):]
			if j := strings.Index(body, DocEnd); j >= 0 {
				body = body[:j]
			}
			req.DocumentText = strings.TrimSpace(body)
		} else {
			req.Prompt = strings.TrimSpace(rest)
		}
		return req

	case KindSentenceAudit:
		req := Request{Kind: KindSentenceAudit}
		rest := strings.TrimPrefix(content, AuditMarker)
		if i := strings.Index(rest, SentenceStart); i >= 0 {
			req.Prompt = strings.TrimSpace(rest[:i])
			body := rest[i+len(SentenceStart):]
			if j := strings.Index(body, SentenceEnd); j >= 0 {
				body = body[:j]
			}
			req.DocumentText = strings.TrimSpace(body)
		} else {
			req.Prompt = strings.TrimSpace(rest)
		}
		return req

	case KindDraft:
		rest := strings.TrimSpace(strings.TrimPrefix(content, DraftMarker))
		return Request{Kind: KindDraft, Prompt: rest}

	default:
		return Plain(content)
	}
}

// FilterDocumentContent strips hidden sentinel-delimited payloads and the
// attachment header so the user only sees their own typed prompt. It is
// idempotent: text with no markers passes through unchanged.
func FilterDocumentContent(content string) string {
	content = stripBlock(content, DocStart, DocEnd)
	content = stripBlock(content, SentenceStart, SentenceEnd)

	var out []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, AttachPrefix) && strings.HasSuffix(trimmed, AttachSuffix) {
			name := strings.TrimSuffix(strings.TrimPrefix(trimmed, AttachPrefix), AttachSuffix)
			out = append(out, fmt.Sprintf("\U0001F4CE %s", name))
			continue
		}
		out = append(out, line)
	}
	result := strings.Join(out, "\n")
	return strings.TrimSpace(result)
}

// stripBlock removes everything between start and end markers, inclusive.
// An unterminated block is stripped to the end of the text rather than shown.
func stripBlock(s, start, end string) string {
	for {
		i := strings.Index(s, start)
		if i < 0 {
			return s
		}
		j := strings.Index(s[i:], end)
		if j < 0 {
			return strings.TrimRight(s[:i], " \n")
		}
		s = s[:i] + s[i+j+len(end):]
	}
}
