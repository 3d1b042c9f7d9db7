// Package rag is a thin client for the retrieval backend that owns hybrid
// search, chat streaming, document audit and text enhancement. Each call is
// one HTTP request with no retry, caching or backoff; failures surface the
// response body text for diagnostics.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client is a retrieval backend API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no timeout so long chat streams are not cut off
	// mid-response; cancellation comes from the request context.
	streamClient *http.Client
	topK         int
}

// NewClient creates a new retrieval backend client.
func NewClient(baseURL string, timeout time.Duration, topK int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if topK <= 0 {
		topK = 5
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		topK:         topK,
	}
}

// ChatMessage is a message in the chat history sent to POST /chat.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query  string `json:"query"`
	Estado string `json:"estado,omitempty"`
	TopK   int    `json:"top_k"`
}

// SearchResult is one hit from the search endpoint.
type SearchResult struct {
	ID           string  `json:"id"`
	Texto        string  `json:"texto"`
	Ref          string  `json:"ref"`
	Origen       string  `json:"origen"`
	Jurisdiccion string  `json:"jurisdiccion"`
	Score        float64 `json:"score"`
}

// SearchResponse is the response from POST /search.
type SearchResponse struct {
	Query          string         `json:"query"`
	EstadoFiltrado string         `json:"estado_filtrado"`
	Resultados     []SearchResult `json:"resultados"`
	Total          int            `json:"total"`
}

// AuditRequest is the request body for POST /audit.
type AuditRequest struct {
	Documento   string `json:"documento"`
	Estado      string `json:"estado,omitempty"`
	Profundidad string `json:"profundidad"`
}

// AuditFinding is one structured finding from a document audit.
type AuditFinding struct {
	Tipo        string `json:"tipo"`
	Severidad   string `json:"severidad"`
	Descripcion string `json:"descripcion"`
	Fundamento  string `json:"fundamento,omitempty"`
}

// AuditResponse is the response from POST /audit.
type AuditResponse struct {
	Hallazgos []AuditFinding `json:"hallazgos"`
	Resumen   string         `json:"resumen"`
}

// Document is a source document returned by GET /document/{id}.
type Document struct {
	ID           string `json:"id"`
	Texto        string `json:"texto"`
	Ref          string `json:"ref"`
	Origen       string `json:"origen"`
	Jurisdiccion string `json:"jurisdiccion"`
	Entidad      string `json:"entidad"`
	Silo         string `json:"silo"`
	Found        bool   `json:"found"`
}

// EnhanceRequest is the request body for POST /enhance.
type EnhanceRequest struct {
	Texto         string `json:"texto"`
	TipoDocumento string `json:"tipo_documento"`
	Estado        string `json:"estado,omitempty"`
}

// EnhanceResponse is the response from POST /enhance.
type EnhanceResponse struct {
	TextoMejorado    string   `json:"texto_mejorado"`
	DocumentosUsados []string `json:"documentos_usados"`
	TokensUsados     int      `json:"tokens_usados"`
}

// Search performs a hybrid search against the legal corpus.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if req.TopK <= 0 {
		req.TopK = c.topK
	}
	var resp SearchResponse
	if err := c.postJSON(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AuditDocument runs a structured audit over a legal document.
func (c *Client) AuditDocument(ctx context.Context, req *AuditRequest) (*AuditResponse, error) {
	if req.Profundidad == "" {
		req.Profundidad = "completa"
	}
	var resp AuditResponse
	if err := c.postJSON(ctx, "/audit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDocument fetches a source document by its identifier.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/document/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rag: status %d: %s", resp.StatusCode, string(body))
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &doc, nil
}

// EnhanceText asks the backend to improve a drafted legal text.
func (c *Client) EnhanceText(ctx context.Context, req *EnhanceRequest) (*EnhanceResponse, error) {
	var resp EnhanceResponse
	if err := c.postJSON(ctx, "/enhance", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExtractText uploads a file to POST /extract-text, the server-side fallback
// for formats the service cannot parse locally (legacy .doc).
func (c *Client) ExtractText(ctx context.Context, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("copy file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract-text", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("rag: status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Text, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rag: status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
