package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lexmx/asistente-backend/internal/extract"
	"github.com/lexmx/asistente-backend/internal/rag"
)

// maxUploadBytes bounds document uploads.
const maxUploadBytes = 10 << 20

// Search proxies a corpus search to the retrieval backend.
func (s *Server) Search(c echo.Context) error {
	var req rag.SearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cuerpo de la solicitud inválido"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "la búsqueda no puede estar vacía"})
	}

	resp, err := s.ragClient.Search(c.Request().Context(), &req)
	if err != nil {
		s.logger.WithError(err).Error("search failed")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "la búsqueda no está disponible en este momento"})
	}
	return c.JSON(http.StatusOK, resp)
}

// GetDocument fetches a cited source document. Citation clicks resolve
// through here with the normalized identifier.
func (s *Server) GetDocument(c echo.Context) error {
	id := c.Param("id")
	doc, err := s.ragClient.GetDocument(c.Request().Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("get document failed")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "no se pudo cargar el documento"})
	}
	if !doc.Found {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "documento no encontrado"})
	}
	return c.JSON(http.StatusOK, doc)
}

// AuditDocument runs a structured audit over an uploaded ruling.
func (s *Server) AuditDocument(c echo.Context) error {
	var req rag.AuditRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cuerpo de la solicitud inválido"})
	}
	if err := extract.Validate(req.Documento); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	resp, err := s.ragClient.AuditDocument(c.Request().Context(), &req)
	if err != nil {
		s.logger.WithError(err).Error("audit failed")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "la auditoría no está disponible en este momento"})
	}
	return c.JSON(http.StatusOK, resp)
}

// EnhanceText asks the backend to improve a drafted legal text.
func (s *Server) EnhanceText(c echo.Context) error {
	var req rag.EnhanceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cuerpo de la solicitud inválido"})
	}
	if err := extract.Validate(req.Texto); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	resp, err := s.ragClient.EnhanceText(c.Request().Context(), &req)
	if err != nil {
		s.logger.WithError(err).Error("enhance failed")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "la mejora de texto no está disponible en este momento"})
	}
	return c.JSON(http.StatusOK, resp)
}

// ExtractText extracts plain text from an uploaded document. Formats without
// a local extractor (legacy .doc) fall through to the retrieval backend.
func (s *Server) ExtractText(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "archivo requerido"})
	}
	if fileHeader.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "el archivo excede el tamaño máximo de 10 MB"})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no se pudo leer el archivo"})
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no se pudo leer el archivo"})
	}

	text, err := extract.Text(fileHeader.Filename, content)
	if errors.Is(err, extract.ErrNeedsServerExtraction) {
		text, err = s.ragClient.ExtractText(c.Request().Context(), fileHeader.Filename, bytes.NewReader(content))
		if err != nil {
			s.logger.WithError(err).Error("server-side extraction failed")
			return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "no se pudo extraer el texto del documento"})
		}
	} else if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	if err := extract.Validate(text); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"text": text})
}
