package envelope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDocumentAnalysis(t *testing.T) {
	req := DocumentAnalysis("Analiza este contrato", "contrato.pdf", "CLÁUSULA PRIMERA")
	out := req.Serialize()

	assert.True(t, strings.HasPrefix(out, AttachPrefix+"contrato.pdf"+AttachSuffix))
	assert.Contains(t, out, "Analiza este contrato")
	assert.Contains(t, out, DocStart+"\nCLÁUSULA PRIMERA\n"+DocEnd)
}

func TestSerializeSentenceAudit(t *testing.T) {
	req := SentenceAudit("Audita esta sentencia", "VISTOS los autos")
	out := req.Serialize()

	assert.True(t, strings.HasPrefix(out, AuditMarker))
	assert.Contains(t, out, SentenceStart+"\nVISTOS los autos\n"+SentenceEnd)
}

func TestSerializeDraft(t *testing.T) {
	req := Request{
		Kind:   KindDraft,
		Prompt: "con lenguaje formal",
		Draft: &DraftSpec{
			TipoDocumento: "demanda de amparo",
			Promovente:    "Juan Pérez",
			Demandado:     "Autoridad responsable",
			Hechos:        "El acto reclamado ocurrió el 3 de marzo.",
		},
	}
	out := req.Serialize()

	assert.True(t, strings.HasPrefix(out, DraftMarker))
	assert.Contains(t, out, "Tipo: demanda de amparo.")
	assert.Contains(t, out, "Demandado: Autoridad responsable.")
	assert.Contains(t, out, "Hechos: El acto reclamado ocurrió el 3 de marzo.")
	assert.Contains(t, out, "con lenguaje formal")
}

func TestSerializePlainPassesThrough(t *testing.T) {
	assert.Equal(t, "¿Qué es el amparo?", Plain("¿Qué es el amparo?").Serialize())
}

func TestDetectKindRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want Kind
	}{
		{"plain", Plain("hola"), KindPlain},
		{"document", DocumentAnalysis("p", "n.pdf", "texto"), KindDocumentAnalysis},
		{"audit", SentenceAudit("p", "texto"), KindSentenceAudit},
		{"draft", Request{Kind: KindDraft, Draft: &DraftSpec{TipoDocumento: "t", Promovente: "p", Hechos: "h"}}, KindDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectKind(tt.req.Serialize()))
		})
	}
}

func TestParseReversesSerialize(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"plain", Plain("¿Qué es el amparo directo?")},
		{"document", DocumentAnalysis("Analiza este contrato", "contrato.pdf", "CLÁUSULA PRIMERA")},
		{"document without prompt", DocumentAnalysis("", "demanda.docx", "HECHOS")},
		{"audit", SentenceAudit("Audita esta sentencia", "VISTOS los autos")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.req, Parse(tt.req.Serialize()))
		})
	}
}

func TestParseDraftKeepsProsePrompt(t *testing.T) {
	req := Request{
		Kind:  KindDraft,
		Draft: &DraftSpec{TipoDocumento: "demanda de amparo", Promovente: "Juan Pérez", Hechos: "h"},
	}
	got := Parse(req.Serialize())

	require.Equal(t, KindDraft, got.Kind)
	assert.Nil(t, got.Draft)
	assert.Contains(t, got.Prompt, "demanda de amparo")
	assert.Contains(t, got.Prompt, "Juan Pérez")
}

func TestParseUnterminatedDocumentBlock(t *testing.T) {
	content := AttachPrefix + "contrato.pdf" + AttachSuffix + "\npregunta\n" + DocStart + "\ntexto sin cierre"
	got := Parse(content)

	require.Equal(t, KindDocumentAnalysis, got.Kind)
	assert.Equal(t, "contrato.pdf", got.DocumentName)
	assert.Equal(t, "pregunta", got.Prompt)
	assert.Equal(t, "texto sin cierre", got.DocumentText)
}

func TestFilterDocumentContentStripsHiddenPayload(t *testing.T) {
	serialized := DocumentAnalysis("Revisa las cláusulas", "contrato.pdf", "texto privado del documento").Serialize()
	visible := FilterDocumentContent(serialized)

	assert.NotContains(t, visible, "texto privado")
	assert.NotContains(t, visible, DocStart)
	assert.Contains(t, visible, "\U0001F4CE contrato.pdf")
	assert.Contains(t, visible, "Revisa las cláusulas")
}

func TestFilterDocumentContentIdempotent(t *testing.T) {
	serialized := SentenceAudit("Audita", "VISTOS").Serialize()
	once := FilterDocumentContent(serialized)
	twice := FilterDocumentContent(once)
	require.Equal(t, once, twice)

	// Marker-free text passes through untouched.
	plain := "texto sin marcadores\ncon dos líneas"
	assert.Equal(t, plain, FilterDocumentContent(plain))
}

func TestFilterDocumentContentUnterminatedBlock(t *testing.T) {
	content := "pregunta visible\n" + DocStart + "\npayload sin cierre"
	visible := FilterDocumentContent(content)
	assert.Equal(t, "pregunta visible", visible)
}

func TestFilterDocumentContentMultipleBlocks(t *testing.T) {
	content := "antes\n" + DocStart + "\nuno\n" + DocEnd + "\nentre\n" + DocStart + "\ndos\n" + DocEnd + "\ndespués"
	visible := FilterDocumentContent(content)
	assert.NotContains(t, visible, "uno")
	assert.NotContains(t, visible, "dos")
	assert.Contains(t, visible, "antes")
	assert.Contains(t, visible, "entre")
	assert.Contains(t, visible, "después")
}
