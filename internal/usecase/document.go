package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/jsonkeeper"
	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/logger"
	"github.com/totegamma/jsonkeeper/internal/metrics"
	"github.com/totegamma/jsonkeeper/internal/utils"
)

var tracer = otel.Tracer("usecase")

type CreateInput struct {
	Payload    []byte
	IsJSONLD   bool
	Unlisted   bool
	Credential domain.Credential
}

type UpdateInput struct {
	Payload    []byte
	Credential domain.Credential
}

// StatusPatch is a partial update of document metadata. Nil fields are kept.
type StatusPatch struct {
	Unlisted *bool `json:"unlisted"`
}

type WriteResult struct {
	Document   domain.Document
	URL        string
	Outcome    domain.WriteOutcome
	Activities []domain.ActivityRecord
}

type DocumentUsecase struct {
	repo     DocumentRepository
	cache    DocumentCache
	guard    *AccessGuard
	rewriter *IdentifierRewriter
	activity *ActivityLog
	cfg      domain.Config
	locks    *keyedMutex
	metrics  *metrics.Metrics
	log      zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

func NewDocumentUsecase(
	repo DocumentRepository,
	cache DocumentCache,
	guard *AccessGuard,
	rewriter *IdentifierRewriter,
	activity *ActivityLog,
	cfg domain.Config,
	m *metrics.Metrics,
) *DocumentUsecase {
	if cache == nil {
		cache = noopCache{}
	}
	return &DocumentUsecase{
		repo:     repo,
		cache:    cache,
		guard:    guard,
		rewriter: rewriter,
		activity: activity,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		metrics:  m,
		log:      logger.Module("document"),
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

func (uc *DocumentUsecase) DocumentURL(id string) string {
	return jsonkeeper.ComposeDocumentURL(uc.cfg.ServerURL, uc.cfg.APIPath, id)
}

func (uc *DocumentUsecase) Create(ctx context.Context, input CreateInput) (WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Document.Usecase.Create")
	defer span.End()

	root, err := utils.DecodeOrdered(input.Payload)
	if err != nil {
		return WriteResult{}, domain.MalformedInputError{Reason: err.Error()}
	}

	ownership, err := uc.guard.Resolve(ctx, input.Credential)
	if err != nil {
		span.RecordError(err)
		uc.metrics.RecordForbidden("create")
		return WriteResult{}, err
	}

	id := uc.NewID()
	url := uc.DocumentURL(id)
	processed := uc.process(ctx, input.IsJSONLD, input.Payload, root, url)

	doc := domain.Document{
		ID:        id,
		Payload:   processed.Payload,
		Ownership: ownership,
		Unlisted:  input.Unlisted,
		IsJSONLD:  input.IsJSONLD,
		CreatedAt: uc.Now().UTC(),
	}

	pctx, cancel := uc.bounded(ctx)
	err = uc.repo.Create(pctx, doc)
	cancel()
	if err != nil {
		span.RecordError(err)
		return WriteResult{}, persistenceError(err)
	}
	uc.cache.Set(ctx, doc)
	uc.metrics.RecordWrite("create", processed.Outcome.String())

	records := uc.logActivity(ctx, uc.activity.RecordCreate, subjectOf(doc, processed))

	return WriteResult{
		Document:   doc,
		URL:        url,
		Outcome:    processed.Outcome,
		Activities: records,
	}, nil
}

func (uc *DocumentUsecase) Update(ctx context.Context, id string, input UpdateInput) (WriteResult, error) {
	ctx, span := tracer.Start(ctx, "Document.Usecase.Update")
	defer span.End()

	root, err := utils.DecodeOrdered(input.Payload)
	if err != nil {
		return WriteResult{}, domain.MalformedInputError{Reason: err.Error()}
	}

	unlock := uc.locks.Lock(id)
	defer unlock()

	current, err := uc.getFresh(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	if err := uc.guard.Authorize(ctx, current.Ownership, input.Credential); err != nil {
		span.RecordError(err)
		uc.metrics.RecordForbidden("update")
		return WriteResult{}, err
	}

	url := uc.DocumentURL(id)
	processed := uc.process(ctx, current.IsJSONLD, input.Payload, root, url)

	pctx, cancel := uc.bounded(ctx)
	updated, err := uc.repo.Update(pctx, id, func(row domain.Document) (domain.Document, error) {
		now := uc.Now().UTC()
		if last := row.LastModified(); !now.After(last) {
			now = last.Add(time.Microsecond)
		}
		row.Payload = processed.Payload
		row.UpdatedAt = &now
		return row, nil
	})
	cancel()
	uc.cache.Invalidate(ctx, id)
	if err != nil {
		span.RecordError(err)
		return WriteResult{}, persistenceError(err)
	}
	uc.metrics.RecordWrite("update", processed.Outcome.String())

	records := uc.logActivity(ctx, uc.activity.RecordUpdate, subjectOf(updated, processed))

	return WriteResult{
		Document:   updated,
		URL:        url,
		Outcome:    processed.Outcome,
		Activities: records,
	}, nil
}

func (uc *DocumentUsecase) Get(ctx context.Context, id string) (domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Usecase.Get")
	defer span.End()

	if doc, ok := uc.cache.Get(ctx, id); ok {
		return doc, nil
	}

	doc, err := uc.getFresh(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	uc.cache.Set(ctx, doc)
	return doc, nil
}

func (uc *DocumentUsecase) Delete(ctx context.Context, id string, cred domain.Credential) error {
	ctx, span := tracer.Start(ctx, "Document.Usecase.Delete")
	defer span.End()

	unlock := uc.locks.Lock(id)
	defer unlock()

	current, err := uc.getFresh(ctx, id)
	if err != nil {
		return err
	}
	if err := uc.guard.Authorize(ctx, current.Ownership, cred); err != nil {
		span.RecordError(err)
		uc.metrics.RecordForbidden("delete")
		return err
	}

	pctx, cancel := uc.bounded(ctx)
	err = uc.repo.Delete(pctx, id)
	cancel()
	uc.cache.Invalidate(ctx, id)
	if err != nil {
		span.RecordError(err)
		return persistenceError(err)
	}
	uc.metrics.RecordWrite("delete", "deleted")

	if current.IsJSONLD && current.Ownership.Restricted() {
		uc.logActivity(ctx, uc.activity.RecordDelete, domain.ActivitySubject{
			Document:     current,
			DocumentType: documentType(current.Payload),
		})
	}
	return nil
}

// Status returns the document metadata to a caller allowed to mutate it.
func (uc *DocumentUsecase) Status(ctx context.Context, id string, cred domain.Credential) (domain.Metadata, error) {
	ctx, span := tracer.Start(ctx, "Document.Usecase.Status")
	defer span.End()

	pctx, cancel := uc.bounded(ctx)
	meta, err := uc.repo.GetMetadata(pctx, id)
	cancel()
	if err != nil {
		return domain.Metadata{}, persistenceError(err)
	}
	if err := uc.guard.Authorize(ctx, meta.Ownership, cred); err != nil {
		uc.metrics.RecordForbidden("status")
		return domain.Metadata{}, err
	}
	return meta, nil
}

// PatchStatus changes the unlisted flag. A document that becomes listed is
// announced with a Create activity when it qualifies for the feed; one that
// becomes unlisted is withdrawn with a Delete when it is in the feed.
func (uc *DocumentUsecase) PatchStatus(ctx context.Context, id string, cred domain.Credential, patch StatusPatch) (domain.Metadata, error) {
	ctx, span := tracer.Start(ctx, "Document.Usecase.PatchStatus")
	defer span.End()

	unlock := uc.locks.Lock(id)
	defer unlock()

	current, err := uc.getFresh(ctx, id)
	if err != nil {
		return domain.Metadata{}, err
	}
	if err := uc.guard.Authorize(ctx, current.Ownership, cred); err != nil {
		span.RecordError(err)
		uc.metrics.RecordForbidden("status")
		return domain.Metadata{}, err
	}
	if patch.Unlisted == nil || *patch.Unlisted == current.Unlisted {
		return current.Metadata(), nil
	}

	pctx, cancel := uc.bounded(ctx)
	updated, err := uc.repo.UpdateUnlisted(pctx, id, *patch.Unlisted)
	cancel()
	uc.cache.Invalidate(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Metadata{}, persistenceError(err)
	}

	switch {
	case !updated.IsJSONLD:
	case current.Unlisted && !updated.Unlisted:
		root, err := utils.DecodeOrdered(updated.Payload)
		if err == nil {
			processed := uc.process(ctx, true, updated.Payload, root, uc.DocumentURL(id))
			uc.logActivity(ctx, uc.activity.RecordCreate, subjectOf(updated, processed))
		}
	case !current.Unlisted && updated.Unlisted:
		uc.logActivity(ctx, uc.activity.RecordDelete, domain.ActivitySubject{
			Document:     updated,
			DocumentType: documentType(updated.Payload),
		})
	}

	return updated.Metadata(), nil
}

// ListByCredential returns the documents owned by whoever presents cred.
// A credential that maps to no owner lists nothing.
func (uc *DocumentUsecase) ListByCredential(ctx context.Context, cred domain.Credential) ([]domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Usecase.ListByCredential")
	defer span.End()

	owner, err := uc.guard.Owner(ctx, cred)
	if err != nil {
		return nil, err
	}
	if !owner.Restricted() {
		return []domain.Document{}, nil
	}

	pctx, cancel := uc.bounded(ctx)
	defer cancel()
	docs, err := uc.repo.ListByOwner(pctx, owner)
	if err != nil {
		span.RecordError(err)
		return nil, persistenceError(err)
	}
	return docs, nil
}

func (uc *DocumentUsecase) UserList(ctx context.Context, cred domain.Credential) ([]string, error) {
	docs, err := uc.ListByCredential(ctx, cred)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(docs))
	for _, doc := range docs {
		urls = append(urls, uc.DocumentURL(doc.ID))
	}
	return urls, nil
}

// UserDocs describes the caller's documents, adding the configured top-level
// payload properties (null when absent).
func (uc *DocumentUsecase) UserDocs(ctx context.Context, cred domain.Credential) ([]jsonkeeper.DocumentMetadata, error) {
	docs, err := uc.ListByCredential(ctx, cred)
	if err != nil {
		return nil, err
	}

	out := make([]jsonkeeper.DocumentMetadata, 0, len(docs))
	for _, doc := range docs {
		view := MetadataView(doc.Metadata())
		if len(uc.cfg.UserdocsExtra) > 0 {
			view.Extra = map[string]any{}
			root, _ := utils.DecodeOrdered(doc.Payload)
			obj, _ := root.(utils.OrderedKVMap[any])
			for _, key := range uc.cfg.UserdocsExtra {
				value, ok := obj.Get(key)
				if !ok {
					view.Extra[key] = nil
					continue
				}
				view.Extra[key] = value
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// Range returns the n-th nested reference node of a document, carrying the
// root @context when it has none of its own.
func (uc *DocumentUsecase) Range(ctx context.Context, id string, n int) ([]byte, error) {
	doc, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	root, err := utils.DecodeOrdered(doc.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored document")
	}
	node, ok := FindNode(root, jsonkeeper.ComposeRangeURL(uc.DocumentURL(id), n))
	if !ok {
		return nil, domain.NotFoundError{Resource: "range"}
	}

	out := utils.OrderedKVMap[any]{}
	if obj, ok := root.(utils.OrderedKVMap[any]); ok {
		if rootCtx, ok := obj.Get("@context"); ok {
			if _, has := node.Get("@context"); !has {
				out.Set("@context", rootCtx)
			}
		}
	}
	for _, key := range node.Keys() {
		out.Set(key, node[key].Value)
	}
	return utils.Encode(out)
}

type Stats struct {
	Documents     int64
	ActivityPages int64
	CollectionURL string
}

func (uc *DocumentUsecase) Stats(ctx context.Context) (Stats, error) {
	pctx, cancel := uc.bounded(ctx)
	defer cancel()

	count, err := uc.repo.Count(pctx)
	if err != nil {
		return Stats{}, persistenceError(err)
	}
	stats := Stats{Documents: count}
	if uc.cfg.Activity.Enabled() {
		pages, err := uc.activity.PageCount(pctx)
		if err != nil {
			return Stats{}, persistenceError(err)
		}
		stats.ActivityPages = pages
		stats.CollectionURL = uc.activity.CollectionURL()
	}
	return stats, nil
}

func (uc *DocumentUsecase) getFresh(ctx context.Context, id string) (domain.Document, error) {
	pctx, cancel := uc.bounded(ctx)
	defer cancel()

	doc, err := uc.repo.Get(pctx, id)
	if err != nil {
		return domain.Document{}, persistenceError(err)
	}
	return doc, nil
}

func (uc *DocumentUsecase) process(ctx context.Context, isJSONLD bool, raw []byte, root any, url string) RewriteResult {
	if !isJSONLD || uc.rewriter == nil || !uc.cfg.Rewrite.Enabled() {
		return RewriteResult{Payload: raw, Outcome: domain.OutcomePlain}
	}
	result := uc.rewriter.Process(ctx, raw, root, url)
	if result.Outcome == domain.OutcomeStoredWithoutRewrite {
		uc.log.Debug().Str("url", url).Msg("stored without rewrite")
	}
	return result
}

// logActivity never fails the surrounding write.
func (uc *DocumentUsecase) logActivity(
	ctx context.Context,
	record func(context.Context, domain.ActivitySubject) ([]domain.ActivityRecord, error),
	subject domain.ActivitySubject,
) []domain.ActivityRecord {
	if uc.activity == nil {
		return nil
	}
	records, err := record(ctx, subject)
	if err != nil {
		uc.metrics.RecordActivityError()
		uc.log.Error().Err(err).Str("id", subject.Document.ID).Msg("failed to append activity")
		return nil
	}
	return records
}

func (uc *DocumentUsecase) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.PersistenceTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.cfg.PersistenceTimeout)
}

func subjectOf(doc domain.Document, processed RewriteResult) domain.ActivitySubject {
	return domain.ActivitySubject{
		Document:      doc,
		ExpandedTypes: processed.ExpandedTypes,
		DocumentType:  processed.DocumentType,
		IsContainer:   processed.Decision.IsContainer,
		Nested:        processed.Nested,
	}
}

// documentType is the root @type of a stored payload, as written.
func documentType(payload []byte) any {
	root, err := utils.DecodeOrdered(payload)
	if err != nil {
		return nil
	}
	obj, ok := root.(utils.OrderedKVMap[any])
	if !ok {
		return nil
	}
	t, ok := obj.Get("@type")
	if !ok {
		return nil
	}
	return utils.ToPlain(t)
}

// MetadataView is the wire form of document metadata.
func MetadataView(meta domain.Metadata) jsonkeeper.DocumentMetadata {
	view := jsonkeeper.DocumentMetadata{
		ID:        meta.ID,
		Ownership: meta.Ownership.Mode.String(),
		Unlisted:  meta.Unlisted,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}
	if meta.Ownership.Mode == domain.OwnershipVerified {
		view.Owner = meta.Ownership.Value
	}
	return view
}

func persistenceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrMalformed) ||
		errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return domain.PersistenceError{Err: err}
}
