package presenter

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/logger"
)

func moduleLog() *zerolog.Logger {
	l := logger.Module("presenter")
	return &l
}

type errorResponse struct {
	Message string `json:"message"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

// Raw writes stored JSON bytes as they are.
func Raw(c echo.Context, status int, contentType string, body []byte) error {
	return c.Blob(status, contentType, body)
}

func BadRequest(c echo.Context, err error) error {
	moduleLog().Debug().Err(err).Str("path", c.Path()).Msg("bad request")
	return c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	moduleLog().Debug().Str("reason", msg).Str("path", c.Path()).Msg("bad request")
	return c.JSON(http.StatusBadRequest, errorResponse{Message: msg})
}

func Forbidden(c echo.Context, msg string) error {
	moduleLog().Debug().Str("reason", msg).Str("path", c.Path()).Msg("forbidden")
	return c.JSON(http.StatusForbidden, errorResponse{Message: msg})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Message: msg})
}

func UnsupportedMediaType(c echo.Context) error {
	return c.JSON(http.StatusUnsupportedMediaType, errorResponse{
		Message: "Content-Type must be application/json or application/<type>+json",
	})
}

// InternalError never exposes the underlying error to the client.
func InternalError(c echo.Context, err error) error {
	moduleLog().Error().Err(err).Str("path", c.Path()).Msg("internal error")
	return c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal server error"})
}

// Error maps usecase errors to status codes.
func Error(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(c, err.Error())
	case errors.Is(err, domain.ErrMalformed):
		return BadRequest(c, err)
	default:
		return InternalError(c, err)
	}
}
