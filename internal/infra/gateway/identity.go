package gateway

import (
	"context"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/usecase"
)

// IdentityGateway asks each verifier in turn and returns the first subject.
type IdentityGateway struct {
	verifiers []usecase.IdentityVerifier
}

func NewIdentityGateway(verifiers ...usecase.IdentityVerifier) *IdentityGateway {
	var active []usecase.IdentityVerifier
	for _, v := range verifiers {
		if v != nil {
			active = append(active, v)
		}
	}
	return &IdentityGateway{verifiers: active}
}

func (g *IdentityGateway) Empty() bool {
	return len(g.verifiers) == 0
}

func (g *IdentityGateway) Verify(ctx context.Context, token string) (string, error) {
	ctx, span := tracer.Start(ctx, "Gateway.Identity.Verify")
	defer span.End()

	var lastErr error = domain.VerificationError{Unavailable: true}
	for _, v := range g.verifiers {
		subject, err := v.Verify(ctx, token)
		if err == nil {
			return subject, nil
		}
		span.RecordError(err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}
