package usecase

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/totegamma/jsonkeeper/internal/domain"
)

// DigestToken is the stored form of a self-managed access token.
func DigestToken(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// AccessGuard decides creation-time ownership and authorizes mutations
// against it. A nil verifier disables identity tokens entirely.
type AccessGuard struct {
	verifier IdentityVerifier
	timeout  time.Duration
}

func NewAccessGuard(verifier IdentityVerifier, timeout time.Duration) *AccessGuard {
	return &AccessGuard{verifier: verifier, timeout: timeout}
}

// Authorize returns nil when cred may mutate a document owned by own.
func (g *AccessGuard) Authorize(ctx context.Context, own domain.Ownership, cred domain.Credential) error {
	switch own.Mode {
	case domain.OwnershipNone:
		return nil
	case domain.OwnershipSelfManaged:
		if cred.AccessToken == "" {
			return domain.ForbiddenError{Reason: "access token required"}
		}
		if subtle.ConstantTimeCompare([]byte(DigestToken(cred.AccessToken)), []byte(own.Value)) != 1 {
			return domain.ForbiddenError{Reason: "access token mismatch"}
		}
		return nil
	case domain.OwnershipVerified:
		if cred.IdentityToken == "" {
			return domain.ForbiddenError{Reason: "identity token required"}
		}
		subject, err := g.verify(ctx, cred.IdentityToken)
		if err != nil {
			return domain.ForbiddenError{Reason: "identity verification failed"}
		}
		if subject != own.Value {
			return domain.ForbiddenError{Reason: "identity mismatch"}
		}
		return nil
	default:
		return domain.ForbiddenError{Reason: "unknown ownership"}
	}
}

// Resolve decides the ownership recorded for a new document.
// An identity token takes precedence over an access token.
func (g *AccessGuard) Resolve(ctx context.Context, cred domain.Credential) (domain.Ownership, error) {
	if cred.IdentityToken != "" && g.verifier != nil {
		subject, err := g.verify(ctx, cred.IdentityToken)
		if err != nil {
			return domain.Ownership{}, domain.ForbiddenError{Reason: "identity verification failed"}
		}
		return domain.Verified(subject), nil
	}
	if cred.AccessToken != "" {
		return domain.SelfManaged(DigestToken(cred.AccessToken)), nil
	}
	return domain.Unrestricted(), nil
}

// Owner is the ownership a credential maps to when listing documents.
func (g *AccessGuard) Owner(ctx context.Context, cred domain.Credential) (domain.Ownership, error) {
	return g.Resolve(ctx, cred)
}

func (g *AccessGuard) verify(ctx context.Context, token string) (string, error) {
	if g.verifier == nil {
		return "", domain.VerificationError{Unavailable: true, Err: errors.New("no identity verifier configured")}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	subject, err := g.verifier.Verify(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.VerificationError{Unavailable: true, Err: ctx.Err()}
		}
		return "", err
	}
	if subject == "" {
		return "", domain.VerificationError{Err: errors.New("empty subject")}
	}
	return subject, nil
}
