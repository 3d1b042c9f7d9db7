package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"
)

// ChunkCallback is called for each text fragment as it arrives. Returning an
// error stops consumption and aborts the underlying request.
type ChunkCallback func(chunk string) error

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Estado   string        `json:"estado,omitempty"`
	TopK     int           `json:"top_k"`
}

// StreamChat opens a chunked text/plain response from POST /chat and invokes
// onChunk for every fragment in arrival order. Fragments are rune-aligned so
// each one is valid UTF-8 on its own. The stream is finite and
// non-restartable; the caller is responsible for concatenation. Cancelling
// ctx closes the connection mid-stream.
func (c *Client) StreamChat(ctx context.Context, req *ChatRequest, onChunk ChunkCallback) error {
	if req.TopK <= 0 {
		req.TopK = c.topK
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rag: status %d: %s", resp.StatusCode, string(respBody))
	}

	// Reads land on arbitrary byte boundaries, so a trailing incomplete
	// UTF-8 sequence is held back until the next read; every chunk handed
	// to the callback is valid on its own.
	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if cut := runeBoundary(pending); cut > 0 {
				if cbErr := onChunk(string(pending[:cut])); cbErr != nil {
					return cbErr
				}
				pending = pending[:copy(pending, pending[cut:])]
			}
		}
		if err == io.EOF {
			if len(pending) > 0 {
				if cbErr := onChunk(string(pending)); cbErr != nil {
					return cbErr
				}
			}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

// runeBoundary returns the length of the longest prefix of b that does not
// end partway through a multi-byte UTF-8 sequence. Invalid bytes count as
// complete so garbage input is passed through rather than buffered forever.
func runeBoundary(b []byte) int {
	end := len(b)
	i := end - 1
	for i >= 0 && end-i < utf8.UTFMax && !utf8.RuneStart(b[i]) {
		i--
	}
	if i < 0 || utf8.FullRune(b[i:end]) {
		return end
	}
	return i
}
