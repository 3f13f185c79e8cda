package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/totegamma/jsonkeeper"
	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/logger"
	"github.com/totegamma/jsonkeeper/internal/metrics"
)

// ActivityLog is the append-only Change Discovery activity feed.
type ActivityLog struct {
	repo      ActivityRepository
	publisher ActivityPublisher
	cfg       domain.Config
	metrics   *metrics.Metrics
	log       zerolog.Logger

	Now func() time.Time
}

func NewActivityLog(repo ActivityRepository, publisher ActivityPublisher, cfg domain.Config, m *metrics.Metrics) *ActivityLog {
	return &ActivityLog{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		log:       logger.Module("activity"),
		Now:       time.Now,
	}
}

// Qualifies reports whether lifecycle events of the subject are logged.
func (l *ActivityLog) Qualifies(subject domain.ActivitySubject) bool {
	return l.cfg.Activity.Enabled() &&
		subject.Document.Ownership.Restricted() &&
		!subject.Document.Unlisted &&
		Intersects(subject.ExpandedTypes, l.cfg.Activity.Types)
}

func (l *ActivityLog) RecordCreate(ctx context.Context, subject domain.ActivitySubject) ([]domain.ActivityRecord, error) {
	if !l.Qualifies(subject) {
		return nil, nil
	}

	create := jsonkeeper.Activity{
		ID:   newActivityID(),
		Type: string(domain.ActivityCreate),
		Object: jsonkeeper.ObjectRef{
			ID:   l.documentURL(subject.Document.ID),
			Type: subject.DocumentType,
		},
		EndTime: l.Now().UTC(),
	}
	return l.append(ctx, subject.Document.ID, create)
}

// RecordUpdate appends a Reference and an Offer for every update of a
// container document, whether or not the payload changed. Other qualifying
// documents get a single Update.
func (l *ActivityLog) RecordUpdate(ctx context.Context, subject domain.ActivitySubject) ([]domain.ActivityRecord, error) {
	if !l.Qualifies(subject) {
		return nil, nil
	}
	if !subject.IsContainer {
		update := jsonkeeper.Activity{
			ID:   newActivityID(),
			Type: string(domain.ActivityUpdate),
			Object: jsonkeeper.ObjectRef{
				ID:   l.documentURL(subject.Document.ID),
				Type: subject.DocumentType,
			},
			EndTime: l.Now().UTC(),
		}
		return l.append(ctx, subject.Document.ID, update)
	}

	origin := &jsonkeeper.ObjectRef{
		ID:   l.documentURL(subject.Document.ID),
		Type: subject.DocumentType,
	}

	ranges := make([]jsonkeeper.ObjectRef, 0, len(subject.Nested))
	targets := []jsonkeeper.ObjectRef{}
	seen := map[string]bool{}
	for _, node := range subject.Nested {
		ranges = append(ranges, jsonkeeper.ObjectRef{ID: node.ID, Type: node.Type})
		for _, within := range node.Within {
			if seen[within] {
				continue
			}
			seen[within] = true
			targets = append(targets, jsonkeeper.ObjectRef{ID: within})
		}
	}

	now := l.Now().UTC()
	reference := jsonkeeper.Activity{
		ID:      newActivityID(),
		Type:    string(domain.ActivityReference),
		Origin:  origin,
		Object:  ranges,
		EndTime: now,
	}
	offer := jsonkeeper.Activity{
		ID:      newActivityID(),
		Type:    string(domain.ActivityOffer),
		Origin:  origin,
		Object:  ranges,
		Target:  targets,
		EndTime: now,
	}
	return l.append(ctx, subject.Document.ID, reference, offer)
}

// RecordDelete announces that a document left the feed, either deleted or
// unlisted. Documents that never entered the feed, or already left it, get
// nothing.
func (l *ActivityLog) RecordDelete(ctx context.Context, subject domain.ActivitySubject) ([]domain.ActivityRecord, error) {
	if !l.cfg.Activity.Enabled() {
		return nil, nil
	}

	latest, err := l.repo.Latest(ctx, subject.Document.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if latest.Kind == domain.ActivityDelete {
		return nil, nil
	}

	del := jsonkeeper.Activity{
		ID:   newActivityID(),
		Type: string(domain.ActivityDelete),
		Object: jsonkeeper.ObjectRef{
			ID:   l.documentURL(subject.Document.ID),
			Type: subject.DocumentType,
		},
		EndTime: l.Now().UTC(),
	}
	return l.append(ctx, subject.Document.ID, del)
}

func (l *ActivityLog) append(ctx context.Context, documentID string, activities ...jsonkeeper.Activity) ([]domain.ActivityRecord, error) {
	records := make([]domain.ActivityRecord, 0, len(activities))
	for _, activity := range activities {
		body, err := json.Marshal(activity)
		if err != nil {
			return nil, errors.Wrap(err, "marshal activity")
		}
		records = append(records, domain.ActivityRecord{
			ID:         activity.ID,
			Kind:       domain.ActivityKind(activity.Type),
			DocumentID: documentID,
			EndTime:    activity.EndTime,
			Body:       body,
		})
	}

	stored, err := l.repo.Append(ctx, records)
	if err != nil {
		return nil, err
	}

	for i, record := range stored {
		l.metrics.RecordActivity(string(record.Kind))
		if l.publisher == nil {
			continue
		}
		event := jsonkeeper.Event{Position: record.Position, Activity: activities[i]}
		if err := l.publisher.Publish(ctx, event); err != nil {
			l.log.Warn().Err(err).Int64("position", record.Position).Msg("failed to publish activity")
		}
	}

	return stored, nil
}

func (l *ActivityLog) pageSize() int64 {
	if l.cfg.Activity.PageSize <= 0 {
		return domain.DefaultPageSize
	}
	return int64(l.cfg.Activity.PageSize)
}

func (l *ActivityLog) CollectionURL() string {
	return jsonkeeper.ComposeURL(l.cfg.ServerURL, l.cfg.Activity.CollectionPath)
}

func (l *ActivityLog) documentURL(id string) string {
	return jsonkeeper.ComposeDocumentURL(l.cfg.ServerURL, l.cfg.APIPath, id)
}

func (l *ActivityLog) pageRef(page int64) *jsonkeeper.PageRef {
	return &jsonkeeper.PageRef{
		ID:   jsonkeeper.ComposePageURL(l.CollectionURL(), page),
		Type: "OrderedCollectionPage",
	}
}

// PageCount is the number of pages the collection currently spans.
func (l *ActivityLog) PageCount(ctx context.Context) (int64, error) {
	total, err := l.repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	size := l.pageSize()
	return (total + size - 1) / size, nil
}

func (l *ActivityLog) Collection(ctx context.Context) (jsonkeeper.OrderedCollection, error) {
	if !l.cfg.Activity.Enabled() {
		return jsonkeeper.OrderedCollection{}, domain.NotFoundError{Resource: "activity collection"}
	}

	total, err := l.repo.Count(ctx)
	if err != nil {
		return jsonkeeper.OrderedCollection{}, err
	}

	collection := jsonkeeper.OrderedCollection{
		Context:    []string{jsonkeeper.DiscoveryContext, jsonkeeper.ActivityStreamsContext},
		ID:         l.CollectionURL(),
		Type:       "OrderedCollection",
		TotalItems: total,
	}
	if total > 0 {
		size := l.pageSize()
		collection.First = l.pageRef(0)
		collection.Last = l.pageRef((total - 1) / size)
	}
	return collection, nil
}

// Page renders page k, which holds positions k*size+1 .. (k+1)*size.
func (l *ActivityLog) Page(ctx context.Context, k int64) (jsonkeeper.OrderedCollectionPage, error) {
	if !l.cfg.Activity.Enabled() {
		return jsonkeeper.OrderedCollectionPage{}, domain.NotFoundError{Resource: "activity collection"}
	}

	total, err := l.repo.Count(ctx)
	if err != nil {
		return jsonkeeper.OrderedCollectionPage{}, err
	}
	size := l.pageSize()
	pages := (total + size - 1) / size
	if k < 0 || k >= pages {
		return jsonkeeper.OrderedCollectionPage{}, domain.NotFoundError{Resource: "activity page"}
	}

	from := k*size + 1
	to := min((k+1)*size, total)
	records, err := l.repo.Range(ctx, from, to)
	if err != nil {
		return jsonkeeper.OrderedCollectionPage{}, err
	}

	items := make([]jsonkeeper.Activity, 0, len(records))
	for _, record := range records {
		var activity jsonkeeper.Activity
		if err := json.Unmarshal(record.Body, &activity); err != nil {
			return jsonkeeper.OrderedCollectionPage{}, errors.Wrapf(err, "decode activity %d", record.Position)
		}
		items = append(items, activity)
	}

	page := jsonkeeper.OrderedCollectionPage{
		Context:      []string{jsonkeeper.DiscoveryContext, jsonkeeper.ActivityStreamsContext},
		ID:           jsonkeeper.ComposePageURL(l.CollectionURL(), k),
		Type:         "OrderedCollectionPage",
		PartOf:       jsonkeeper.PageRef{ID: l.CollectionURL(), Type: "OrderedCollection"},
		StartIndex:   from - 1,
		OrderedItems: items,
	}
	if k > 0 {
		page.Prev = l.pageRef(k - 1)
	}
	if k < pages-1 {
		page.Next = l.pageRef(k + 1)
	}
	return page, nil
}

func newActivityID() string {
	return "urn:uuid:" + uuid.NewString()
}
