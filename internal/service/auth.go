package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/jwt"
)

var tracer = otel.Tracer("auth")

// AuthService verifies self-signed identity tokens locally.
type AuthService struct {
	audience string

	Now func() time.Time
}

func NewAuthService(audience string) *AuthService {
	return &AuthService{
		audience: audience,
		Now:      time.Now,
	}
}

// Verify returns the ccid that signed token.
func (s *AuthService) Verify(ctx context.Context, token string) (string, error) {
	_, span := tracer.Start(ctx, "Auth.Service.Verify")
	defer span.End()

	identity, err := jwt.Verify(token, jwt.Expectations{
		Audience: s.audience,
		Now:      s.Now,
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt verification failed"))
		return "", domain.VerificationError{Err: err}
	}

	return identity.Signer, nil
}
