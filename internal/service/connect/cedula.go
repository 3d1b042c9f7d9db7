package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// CedulaClient queries the government professional-license lookup.
type CedulaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCedulaClient creates a new cédula lookup client.
func NewCedulaClient(baseURL string) *CedulaClient {
	return &CedulaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CedulaRecord is one professional-license record from the registry.
type CedulaRecord struct {
	Numero      string `json:"numero"`
	Nombre      string `json:"nombre"`
	Paterno     string `json:"paterno"`
	Materno     string `json:"materno"`
	Titulo      string `json:"titulo"`
	Institucion string `json:"institucion"`
}

type cedulaResponse struct {
	Items []CedulaRecord `json:"items"`
	Total int            `json:"total"`
}

// Validate looks up a cédula number and returns its record, or nil when the
// registry has no match.
func (c *CedulaClient) Validate(ctx context.Context, cedulaNumber string) (*CedulaRecord, error) {
	reqURL := fmt.Sprintf("%s/cedula?numero=%s", c.baseURL, url.QueryEscape(cedulaNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cedula lookup: status %d: %s", resp.StatusCode, string(body))
	}

	var out cedulaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	for i := range out.Items {
		if out.Items[i].Numero == cedulaNumber {
			return &out.Items[i], nil
		}
	}
	return nil, nil
}
