package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/totegamma/jsonkeeper"
	"github.com/totegamma/jsonkeeper/internal/domain"
)

const (
	curationIRI = domain.DefaultContainerType
	rangeIRI    = domain.DefaultNestedType
	manifestIRI = "http://iiif.io/api/presentation/2#Manifest"
	canvasIRI   = "http://iiif.io/api/presentation/2#Canvas"
)

type mockDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]domain.Document
	fail error

	// afterList runs once ListMetadata has taken its snapshot.
	afterList func()
}

func newMockDocumentRepo() *mockDocumentRepo {
	return &mockDocumentRepo{docs: map[string]domain.Document{}}
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.docs[doc.ID] = doc
	return nil
}

func (m *mockDocumentRepo) Get(ctx context.Context, id string) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return domain.Document{}, domain.NotFoundError{Resource: "document"}
	}
	return doc, nil
}

func (m *mockDocumentRepo) GetMetadata(ctx context.Context, id string) (domain.Metadata, error) {
	doc, err := m.Get(ctx, id)
	if err != nil {
		return domain.Metadata{}, err
	}
	return doc.Metadata(), nil
}

func (m *mockDocumentRepo) Update(ctx context.Context, id string, fn func(domain.Document) (domain.Document, error)) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return domain.Document{}, m.fail
	}
	current, ok := m.docs[id]
	if !ok {
		return domain.Document{}, domain.NotFoundError{Resource: "document"}
	}
	updated, err := fn(current)
	if err != nil {
		return domain.Document{}, err
	}
	m.docs[id] = updated
	return updated, nil
}

func (m *mockDocumentRepo) UpdateUnlisted(ctx context.Context, id string, unlisted bool) (domain.Document, error) {
	return m.Update(ctx, id, func(d domain.Document) (domain.Document, error) {
		d.Unlisted = unlisted
		return d, nil
	})
}

func (m *mockDocumentRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return domain.NotFoundError{Resource: "document"}
	}
	delete(m.docs, id)
	return nil
}

func (m *mockDocumentRepo) DeleteIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.Ownership.Restricted() || !doc.LastModified().Before(cutoff) {
		return false, nil
	}
	delete(m.docs, id)
	return true, nil
}

func (m *mockDocumentRepo) ListMetadata(ctx context.Context) ([]domain.Metadata, error) {
	m.mu.Lock()
	out := make([]domain.Metadata, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc.Metadata())
	}
	hook := m.afterList
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *mockDocumentRepo) ListByOwner(ctx context.Context, owner domain.Ownership) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Document
	for _, doc := range m.docs {
		if doc.Ownership == owner {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockDocumentRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.docs)), nil
}

type mockActivityRepo struct {
	mu      sync.Mutex
	records []domain.ActivityRecord
	fail    error
}

func (m *mockActivityRepo) Append(ctx context.Context, records []domain.ActivityRecord) ([]domain.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := make([]domain.ActivityRecord, 0, len(records))
	for _, r := range records {
		r.Position = int64(len(m.records)) + 1
		m.records = append(m.records, r)
		out = append(out, r)
	}
	return out, nil
}

func (m *mockActivityRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *mockActivityRepo) Range(ctx context.Context, from, to int64) ([]domain.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ActivityRecord
	for _, r := range m.records {
		if r.Position >= from && r.Position <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockActivityRepo) Latest(ctx context.Context, documentID string) (domain.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].DocumentID == documentID {
			return m.records[i], nil
		}
	}
	return domain.ActivityRecord{}, domain.NotFoundError{Resource: "activity"}
}

func (m *mockActivityRepo) kinds() []domain.ActivityKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ActivityKind, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Kind)
	}
	return out
}

type mockPublisher struct {
	mu     sync.Mutex
	events []jsonkeeper.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event jsonkeeper.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// mockVerifier maps tokens to subjects. The token "slow" blocks until the
// context expires.
type mockVerifier struct {
	subjects map[string]string
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "slow" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	subject, ok := m.subjects[token]
	if !ok {
		return "", domain.VerificationError{Err: errors.New("unknown token")}
	}
	return subject, nil
}

// prefixExpander expands compact @type values using a fixed prefix table
// and ignores @context. A @type of "broken" fails expansion.
type prefixExpander struct {
	calls int
}

var testPrefixes = map[string]string{
	"cr": "http://codh.rois.ac.jp/iiif/curation/1#",
	"sc": "http://iiif.io/api/presentation/2#",
}

func (p *prefixExpander) ExpandTypes(ctx context.Context, node any) ([]string, error) {
	p.calls++
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, errors.New("not an object")
	}
	var raw []any
	switch t := obj["@type"].(type) {
	case nil:
		return nil, nil
	case string:
		raw = []any{t}
	case []any:
		raw = t
	default:
		return nil, errors.New("invalid @type")
	}

	var out []string
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, errors.New("invalid @type")
		}
		if s == "broken" {
			return nil, errors.New("cannot expand")
		}
		if prefix, local, found := strings.Cut(s, ":"); found {
			if iri, ok := testPrefixes[prefix]; ok {
				s = iri + local
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func testConfig() domain.Config {
	return domain.Config{
		ServerURL: "http://localhost:5000",
		APIPath:   "api",
		Rewrite: domain.RewriteConfig{
			Types:         []string{curationIRI, manifestIRI},
			ContainerType: curationIRI,
			NestedType:    rangeIRI,
		},
		Activity: domain.ActivityConfig{
			CollectionPath: "as/collection.json",
			Types:          []string{curationIRI},
			PageSize:       100,
		},
		VerifyTimeout:      time.Second,
		PersistenceTimeout: time.Second,
	}
}

type fixture struct {
	docs      *mockDocumentRepo
	acts      *mockActivityRepo
	publisher *mockPublisher
	log       *ActivityLog
	uc        *DocumentUsecase
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(cfg domain.Config) *fixture {
	docs := newMockDocumentRepo()
	acts := &mockActivityRepo{}
	publisher := &mockPublisher{}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	verifier := &mockVerifier{subjects: map[string]string{"alice-token": "con1alice", "bob-token": "con1bob"}}
	guard := NewAccessGuard(verifier, cfg.VerifyTimeout)
	rewriter := NewIdentifierRewriter(&prefixExpander{}, cfg.Rewrite)
	log := NewActivityLog(acts, publisher, cfg, nil)
	log.Now = clock.Now
	uc := NewDocumentUsecase(docs, nil, guard, rewriter, log, cfg, nil)
	uc.Now = clock.Now

	seq := 0
	uc.NewID = func() string {
		seq++
		return fmt.Sprintf("doc%d", seq)
	}

	return &fixture{docs: docs, acts: acts, publisher: publisher, log: log, uc: uc, clock: clock}
}
