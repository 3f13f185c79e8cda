package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/jsonkeeper/internal/domain"
)

var tracer = otel.Tracer("auth")

// Credentials collects the access and identity tokens of a request into its
// context. Verification happens later, against the ownership of the target
// document.
func Credentials(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.Credentials")
		defer span.End()

		header := c.Request().Header
		cred := domain.Credential{
			AccessToken:   strings.TrimSpace(header.Get(domain.AccessTokenHeader)),
			IdentityToken: strings.TrimSpace(header.Get(domain.IdentityTokenHeader)),
		}

		// # identity token
		// also accepted as a bearer authorization header
		if cred.IdentityToken == "" {
			split := strings.Split(header.Get("Authorization"), " ")
			if len(split) == 2 && split[0] == "Bearer" {
				cred.IdentityToken = split[1]
			}
		}

		span.SetAttributes(
			attribute.Bool("HasAccessToken", cred.AccessToken != ""),
			attribute.Bool("HasIdentityToken", cred.IdentityToken != ""),
		)

		ctx = domain.WithCredential(ctx, cred)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
