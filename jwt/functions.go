package jwt

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrMalformed   = errors.New("malformed token")
	ErrAlgorithm   = errors.New("unsupported token algorithm")
	ErrIssuer      = errors.New("issuer is not a ccid")
	ErrSignature   = errors.New("signature does not match issuer")
	ErrAudience    = errors.New("audience mismatch")
	ErrExpired     = errors.New("token expired")
	ErrNotYetValid = errors.New("token not yet valid")
)

// Issue signs claims with privatekey. An empty issuer is filled in with the
// key's ccid, and a zero IssuedAt with the current time.
func Issue(claims Claims, privatekey string) (string, error) {
	if claims.Issuer == "" {
		ccid, err := CCIDFromPrivateKey(privatekey)
		if err != nil {
			return "", err
		}
		claims.Issuer = ccid
	}
	if claims.IssuedAt == 0 {
		claims.IssuedAt = time.Now().Unix()
	}

	header, err := json.Marshal(Header{Type: "JWT", Algorithm: Algorithm})
	if err != nil {
		return "", errors.Wrap(err, "encode header")
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", errors.Wrap(err, "encode claims")
	}

	input := segment(header) + "." + segment(payload)
	signature, err := SignBytes([]byte(input), privatekey)
	if err != nil {
		return "", err
	}
	return input + "." + segment(signature), nil
}

// Verify checks the signature first and the claims second, so claims of a
// forged token are never interpreted.
func Verify(token string, expect Expectations) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, ErrMalformed
	}

	var header Header
	if err := decodeSegment(parts[0], &header); err != nil {
		return Identity{}, err
	}
	if header.Type != "JWT" || header.Algorithm != Algorithm {
		return Identity{}, ErrAlgorithm
	}

	var claims Claims
	if err := decodeSegment(parts[1], &claims); err != nil {
		return Identity{}, err
	}

	signer := header.KeyID
	if signer == "" {
		signer = claims.Issuer
	}
	if !IsCCID(signer) {
		return Identity{}, ErrIssuer
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Identity{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if err := VerifySignature([]byte(parts[0]+"."+parts[1]), signature, signer); err != nil {
		return Identity{}, errors.Wrap(ErrSignature, err.Error())
	}

	if err := checkClaims(claims, expect); err != nil {
		return Identity{}, err
	}
	return Identity{Signer: signer, Claims: claims}, nil
}

// checkClaims requires an expiry, and the configured audience when set.
func checkClaims(claims Claims, expect Expectations) error {
	if expect.Audience != "" && claims.Audience != expect.Audience {
		return errors.Wrapf(ErrAudience, "expected %q, got %q", expect.Audience, claims.Audience)
	}

	now := time.Now
	if expect.Now != nil {
		now = expect.Now
	}
	leeway := expect.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}
	at := now()

	if claims.ExpiresAt == 0 {
		return errors.Wrap(ErrExpired, "no exp claim")
	}
	if at.After(time.Unix(claims.ExpiresAt, 0).Add(leeway)) {
		return ErrExpired
	}
	if claims.NotBefore != 0 && at.Add(leeway).Before(time.Unix(claims.NotBefore, 0)) {
		return ErrNotYetValid
	}
	return nil
}

func segment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeSegment(s string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	return nil
}
