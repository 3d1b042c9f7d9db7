package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetQuota returns the caller's subscription quota and remaining queries.
func (s *Server) GetQuota(c echo.Context) error {
	result, err := s.quotaService.CheckCanQuery(c.Request().Context(), GetUserID(c))
	if err != nil {
		s.logger.WithError(err).Error("quota check failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "no se pudo consultar la cuota"})
	}
	return c.JSON(http.StatusOK, result)
}
