package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/piprate/json-gold/ld"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gateway")

// JSONLDGateway expands JSON-LD nodes with json-gold. Remote contexts are
// cached in memory.
type JSONLDGateway struct {
	processor *ld.JsonLdProcessor
	loader    *contextLoader
}

// NewJSONLDGateway wraps next with a context cache. A nil next fetches
// contexts over HTTP with the given timeout.
func NewJSONLDGateway(next ld.DocumentLoader, timeout, ttl time.Duration) *JSONLDGateway {
	if next == nil {
		next = ld.NewDefaultDocumentLoader(&http.Client{Timeout: timeout})
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JSONLDGateway{
		processor: ld.NewJsonLdProcessor(),
		loader: &contextLoader{
			next:  next,
			cache: cache.New(ttl, 2*ttl),
		},
	}
}

// Preload pins a context document so it is never fetched.
func (g *JSONLDGateway) Preload(url string, document any) {
	g.loader.cache.Set(url, &ld.RemoteDocument{DocumentURL: url, Document: document}, cache.NoExpiration)
}

// ExpandTypes returns the expanded @type IRIs of the top-level node(s).
func (g *JSONLDGateway) ExpandTypes(ctx context.Context, node any) ([]string, error) {
	_, span := tracer.Start(ctx, "Gateway.JSONLD.ExpandTypes")
	defer span.End()

	opts := ld.NewJsonLdOptions("")
	opts.DocumentLoader = g.loader

	expanded, err := g.processor.Expand(node, opts)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "expand")
	}

	var types []string
	seen := map[string]bool{}
	for _, item := range expanded {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		list, _ := obj["@type"].([]any)
		for _, t := range list {
			s, ok := t.(string)
			if !ok || seen[s] {
				continue
			}
			seen[s] = true
			types = append(types, s)
		}
	}
	return types, nil
}

type contextLoader struct {
	next  ld.DocumentLoader
	cache *cache.Cache
}

func (l *contextLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if cached, found := l.cache.Get(u); found {
		return cached.(*ld.RemoteDocument), nil
	}

	doc, err := l.next.LoadDocument(u)
	if err != nil {
		return nil, err
	}

	l.cache.Set(u, doc, cache.DefaultExpiration)
	return doc, nil
}
