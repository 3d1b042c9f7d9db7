package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchAppliesDefaultTopK(t *testing.T) {
	var got SearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(SearchResponse{
			Query:      got.Query,
			Resultados: []SearchResult{{ID: "doc-1", Texto: "artículo 103"}},
			Total:      1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 7)
	resp, err := c.Search(context.Background(), &SearchRequest{Query: "amparo", Estado: "Jalisco"})
	require.NoError(t, err)
	assert.Equal(t, 7, got.TopK)
	assert.Equal(t, "Jalisco", got.Estado)
	require.Len(t, resp.Resultados, 1)
	assert.Equal(t, "doc-1", resp.Resultados[0].ID)
}

func TestSearchSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "índice no disponible", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5)
	_, err := c.Search(context.Background(), &SearchRequest{Query: "amparo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "índice no disponible")
}

func TestGetDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/document/doc-1", r.URL.Path)
		json.NewEncoder(w).Encode(Document{ID: "doc-1", Texto: "contenido", Found: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5)
	doc, err := c.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, doc.Found)
	assert.Equal(t, "contenido", doc.Texto)
}

func TestAuditDocumentDefaultsDepth(t *testing.T) {
	var got AuditRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(AuditResponse{
			Hallazgos: []AuditFinding{{Tipo: "procedimental", Severidad: "alta", Descripcion: "falta de emplazamiento"}},
			Resumen:   "una irregularidad",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5)
	resp, err := c.AuditDocument(context.Background(), &AuditRequest{Documento: "VISTOS los autos"})
	require.NoError(t, err)
	assert.Equal(t, "completa", got.Profundidad)
	require.Len(t, resp.Hallazgos, 1)
	assert.Equal(t, "alta", resp.Hallazgos[0].Severidad)
}

func TestExtractTextUploadsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/extract-text", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "escrito.doc", header.Filename)
		json.NewEncoder(w).Encode(map[string]string{"text": "contenido extraído"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5)
	text, err := c.ExtractText(context.Background(), "escrito.doc", strings.NewReader("binario"))
	require.NoError(t, err)
	assert.Equal(t, "contenido extraído", text)
}

func TestStreamChatDeliversChunksInOrder(t *testing.T) {
	chunks := []string{"El juicio ", "de amparo ", "procede."}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat", r.URL.Path)
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		flusher := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = w.Write([]byte(c))
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5)
	var got strings.Builder
	err := c.StreamChat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "¿procede el amparo?"}},
	}, func(chunk string) error {
		got.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "El juicio de amparo procede.", got.String())
}

func TestStreamChatKeepsMultibyteRunesIntact(t *testing.T) {
	// "á" split across two writes: the first byte alone is not valid UTF-8
	// and must be held until its continuation arrives.
	acute := []byte("á")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write(acute[:1])
		flusher.Flush()
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write(append(acute[1:], []byte("guila y león")...))
		flusher.Flush()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5)
	var chunks []string
	err := c.StreamChat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "dime"}},
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)

	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %q is not valid UTF-8", chunk)
	}
	assert.Equal(t, "águila y león", strings.Join(chunks, ""))
}

func TestStreamChatCallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 100; i++ {
			_, _ = w.Write([]byte("fragmento "))
			flusher.Flush()
			time.Sleep(time.Millisecond)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5)
	stop := assert.AnError
	calls := 0
	err := c.StreamChat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hola"}},
	}, func(chunk string) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamChatContextCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("inicio "))
		flusher.Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	c := NewClient(srv.URL, time.Second, 5)
	err := c.StreamChat(ctx, &ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hola"}},
	}, func(chunk string) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreamChatNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "modelo sobrecargado", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 5)
	err := c.StreamChat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hola"}},
	}, func(chunk string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modelo sobrecargado")
}
