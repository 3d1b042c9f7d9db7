package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware validates JWT bearer tokens and stores the user id in the
// request context.
func (s *Server) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "falta el encabezado de autorización"})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "encabezado de autorización inválido"})
		}

		claims, err := s.authService.ValidateToken(parts[1])
		if err != nil {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "sesión inválida o expirada"})
		}

		c.Set("user_id", claims.UserID)
		return next(c)
	}
}

// RateLimitMiddleware applies the Redis fixed-window limit per user.
func (s *Server) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil {
			key := GetUserID(c)
			if key == "" {
				key = c.RealIP()
			}
			if !s.limiter.Allow(c.Request().Context(), key) {
				return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "demasiadas solicitudes, intenta más tarde"})
			}
		}
		return next(c)
	}
}

// GetUserID extracts the authenticated user id from the echo context.
func GetUserID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}
