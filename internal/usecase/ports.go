package usecase

import (
	"context"
	"time"

	"github.com/totegamma/jsonkeeper"
	"github.com/totegamma/jsonkeeper/internal/domain"
)

// DocumentRepository defines storage operations for documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc domain.Document) error
	Get(ctx context.Context, id string) (domain.Document, error)
	GetMetadata(ctx context.Context, id string) (domain.Metadata, error)
	// Update runs fn against the current row while holding a row lock and
	// stores whatever fn returns.
	Update(ctx context.Context, id string, fn func(current domain.Document) (domain.Document, error)) (domain.Document, error)
	UpdateUnlisted(ctx context.Context, id string, unlisted bool) (domain.Document, error)
	Delete(ctx context.Context, id string) error
	// DeleteIfStale deletes the document only if it is unrestricted and was
	// last modified before cutoff, checked in the same statement.
	DeleteIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error)
	ListMetadata(ctx context.Context) ([]domain.Metadata, error)
	ListByOwner(ctx context.Context, owner domain.Ownership) ([]domain.Document, error)
	Count(ctx context.Context) (int64, error)
}

// ActivityRepository is the append-only activity log store.
type ActivityRepository interface {
	// Append stores records as consecutive positions in one transaction and
	// returns them with positions filled in.
	Append(ctx context.Context, records []domain.ActivityRecord) ([]domain.ActivityRecord, error)
	Count(ctx context.Context) (int64, error)
	// Range returns records with from <= position <= to in ascending order.
	Range(ctx context.Context, from, to int64) ([]domain.ActivityRecord, error)
	// Latest returns the most recent record of a document, or NotFound.
	Latest(ctx context.Context, documentID string) (domain.ActivityRecord, error)
}

// IdentityVerifier resolves an identity token to a subject id.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// TypeExpander returns the expanded (absolute IRI) @type values of a node.
type TypeExpander interface {
	ExpandTypes(ctx context.Context, node any) ([]string, error)
}

// DocumentCache is an optional read-through cache in front of the repository.
type DocumentCache interface {
	Get(ctx context.Context, id string) (domain.Document, bool)
	Set(ctx context.Context, doc domain.Document)
	Invalidate(ctx context.Context, id string)
}

// ActivityPublisher fans appended activities out to realtime subscribers.
type ActivityPublisher interface {
	Publish(ctx context.Context, event jsonkeeper.Event) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (domain.Document, bool) { return domain.Document{}, false }
func (noopCache) Set(context.Context, domain.Document)                {}
func (noopCache) Invalidate(context.Context, string)                  {}
