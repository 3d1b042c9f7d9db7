package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PostalClient queries the postal-code catalog used to prefill office
// addresses.
type PostalClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPostalClient creates a new postal-code lookup client.
func NewPostalClient(baseURL string) *PostalClient {
	return &PostalClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PostalInfo is the resolved location for a postal code.
type PostalInfo struct {
	CP        string   `json:"cp"`
	Estado    string   `json:"estado"`
	Municipio string   `json:"municipio"`
	Colonias  []string `json:"colonias"`
}

// Lookup resolves a five-digit postal code, or returns nil when unknown.
func (c *PostalClient) Lookup(ctx context.Context, cp string) (*PostalInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cp/"+cp, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("postal lookup: status %d: %s", resp.StatusCode, string(body))
	}

	var info PostalInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}
