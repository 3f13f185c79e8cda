package domain

import (
	"context"
	"time"
)

// Ownership records who may mutate a document. It is fixed at creation.
//   - OwnershipNone: unrestricted, Value is empty
//   - OwnershipSelfManaged: Value is the digest of the client chosen token
//   - OwnershipVerified: Value is the verified subject id
type Ownership struct {
	Mode  OwnershipMode
	Value string
}

func Unrestricted() Ownership {
	return Ownership{Mode: OwnershipNone}
}

func SelfManaged(digest string) Ownership {
	return Ownership{Mode: OwnershipSelfManaged, Value: digest}
}

func Verified(subject string) Ownership {
	return Ownership{Mode: OwnershipVerified, Value: subject}
}

func (o Ownership) Restricted() bool {
	return o.Mode != OwnershipNone
}

// Document is a stored JSON document together with its metadata.
type Document struct {
	ID        string
	Payload   []byte
	Ownership Ownership
	Unlisted  bool
	IsJSONLD  bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// LastModified is max(CreatedAt, UpdatedAt).
func (d Document) LastModified() time.Time {
	if d.UpdatedAt != nil && d.UpdatedAt.After(d.CreatedAt) {
		return *d.UpdatedAt
	}
	return d.CreatedAt
}

// Metadata is a Document without its payload.
type Metadata struct {
	ID        string
	Ownership Ownership
	Unlisted  bool
	IsJSONLD  bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}

func (d Document) Metadata() Metadata {
	return Metadata{
		ID:        d.ID,
		Ownership: d.Ownership,
		Unlisted:  d.Unlisted,
		IsJSONLD:  d.IsJSONLD,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (m Metadata) LastModified() time.Time {
	if m.UpdatedAt != nil && m.UpdatedAt.After(m.CreatedAt) {
		return *m.UpdatedAt
	}
	return m.CreatedAt
}

// Credential is what a request presents for access control.
type Credential struct {
	AccessToken   string
	IdentityToken string
}

func (c Credential) Empty() bool {
	return c.AccessToken == "" && c.IdentityToken == ""
}

func WithCredential(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, CredentialCtxKey, cred)
}

func CredentialFromContext(ctx context.Context) Credential {
	cred, _ := ctx.Value(CredentialCtxKey).(Credential)
	return cred
}
