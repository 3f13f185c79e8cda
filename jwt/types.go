package jwt

import "time"

// Algorithm is a recoverable secp256k1 signature over the keccak256 digest
// of the signing input.
const Algorithm = "ES256K-R"

// DefaultLeeway is the clock skew tolerated on exp and nbf.
const DefaultLeeway = 30 * time.Second

type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid,omitempty"`
}

// Claims are the registered claims an identity token carries. Times are
// NumericDate (unix seconds).
type Claims struct {
	Issuer    string `json:"iss"` // ccid of the signer
	Subject   string `json:"sub,omitempty"`
	Audience  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Expectations are what a verifier requires of a token beyond its signature.
type Expectations struct {
	Audience string
	Now      func() time.Time
	Leeway   time.Duration
}

// Identity is a verified token: the ccid that signed it and its claims.
type Identity struct {
	Signer string
	Claims Claims
}
