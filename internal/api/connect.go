package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lexmx/asistente-backend/internal/service/connect"
	"github.com/lexmx/asistente-backend/internal/storage/postgres"
	"github.com/lexmx/asistente-backend/internal/types"
)

// RegisterProfileRequest is the body for POST /connect/profile.
type RegisterProfileRequest struct {
	CedulaNumber  string              `json:"cedula_number"`
	FullName      string              `json:"full_name"`
	Specialties   []string            `json:"specialties"`
	Bio           string              `json:"bio"`
	OfficeAddress types.OfficeAddress `json:"office_address"`
	Phone         *string             `json:"phone,omitempty"`
}

// RegisterProfile creates or updates the caller's lawyer profile.
func (s *Server) RegisterProfile(c echo.Context) error {
	var req RegisterProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cuerpo de la solicitud inválido"})
	}
	if req.CedulaNumber == "" || req.FullName == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cédula y nombre completo son requeridos"})
	}

	profile := &types.LawyerProfile{
		ID:            GetUserID(c),
		CedulaNumber:  req.CedulaNumber,
		FullName:      req.FullName,
		Specialties:   req.Specialties,
		Bio:           req.Bio,
		OfficeAddress: req.OfficeAddress,
		Phone:         req.Phone,
	}

	err := s.connectService.RegisterProfile(c.Request().Context(), profile)
	switch {
	case errors.Is(err, connect.ErrCedulaNotFound),
		errors.Is(err, connect.ErrTooManySpecialties),
		errors.Is(err, connect.ErrInvalidPhone):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, postgres.ErrDuplicateProfile):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "el perfil ya existe"})
	case err != nil:
		s.logger.WithError(err).Error("register profile failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudo registrar el perfil"})
	}
	return c.JSON(http.StatusOK, profile)
}

// GetOwnProfile returns the caller's lawyer profile if one exists.
func (s *Server) GetOwnProfile(c echo.Context) error {
	profile, err := s.connectService.GetProfile(c.Request().Context(), GetUserID(c))
	if errors.Is(err, postgres.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "perfil no encontrado"})
	}
	if err != nil {
		s.logger.WithError(err).Error("get profile failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudo cargar el perfil"})
	}
	return c.JSON(http.StatusOK, profile)
}

// SearchLawyers lists verified lawyers filtered by estado and specialty.
func (s *Server) SearchLawyers(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	lawyers, err := s.connectService.SearchLawyers(
		c.Request().Context(),
		c.QueryParam("estado"),
		c.QueryParam("especialidad"),
		limit,
	)
	if err != nil {
		s.logger.WithError(err).Error("search lawyers failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudo buscar abogados"})
	}
	return c.JSON(http.StatusOK, map[string]any{"lawyers": lawyers})
}

// CreateConnectRequestBody is the body for POST /connect/requests.
type CreateConnectRequestBody struct {
	LawyerID string `json:"lawyer_id"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// CreateConnectRequest files a contact request against a lawyer.
func (s *Server) CreateConnectRequest(c echo.Context) error {
	var body CreateConnectRequestBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cuerpo de la solicitud inválido"})
	}

	req := &types.ConnectRequest{
		ClientID: GetUserID(c),
		LawyerID: body.LawyerID,
		Subject:  body.Subject,
		Message:  body.Message,
	}
	err := s.connectService.CreateRequest(c.Request().Context(), req)
	if errors.Is(err, postgres.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "abogado no encontrado"})
	}
	if err != nil {
		s.logger.WithError(err).Error("create connect request failed")
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, req)
}

// ListConnectRequests returns the caller's inbound requests (lawyer inbox).
func (s *Server) ListConnectRequests(c echo.Context) error {
	requests, err := s.connectService.ListInbound(c.Request().Context(), GetUserID(c))
	if err != nil {
		s.logger.WithError(err).Error("list connect requests failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudieron cargar las solicitudes"})
	}
	return c.JSON(http.StatusOK, map[string]any{"requests": requests})
}

// UpdateConnectRequestBody is the body for POST /connect/requests/:id/status.
type UpdateConnectRequestBody struct {
	Status types.ConnectRequestStatus `json:"status"`
}

// UpdateConnectRequest transitions a request's status as the lawyer responds.
func (s *Server) UpdateConnectRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "identificador de solicitud inválido"})
	}

	var body UpdateConnectRequestBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cuerpo de la solicitud inválido"})
	}

	err = s.connectService.RespondToRequest(c.Request().Context(), id, GetUserID(c), body.Status)
	if errors.Is(err, postgres.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "solicitud no encontrada"})
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// LookupPostalCode resolves a Mexican postal code to estado and municipio.
func (s *Server) LookupPostalCode(c echo.Context) error {
	info, err := s.postalClient.Lookup(c.Request().Context(), c.Param("cp"))
	if err != nil {
		s.logger.WithError(err).Error("postal lookup failed")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "la consulta de código postal no está disponible"})
	}
	if info == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "código postal no encontrado"})
	}
	return c.JSON(http.StatusOK, info)
}
