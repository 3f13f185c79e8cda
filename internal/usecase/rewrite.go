package usecase

import (
	"context"
	"slices"

	"github.com/pkg/errors"

	"github.com/totegamma/jsonkeeper"
	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/utils"
)

type RewriteResult struct {
	Payload       []byte
	Outcome       domain.WriteOutcome
	Decision      RewriteDecision
	ExpandedTypes []string
	DocumentType  any
	Nested        []domain.NestedNode
}

// IdentifierRewriter assigns dereferenceable @id values to documents of the
// configured types and to nested reference nodes of the container type.
type IdentifierRewriter struct {
	expander TypeExpander
	cfg      domain.RewriteConfig
}

func NewIdentifierRewriter(expander TypeExpander, cfg domain.RewriteConfig) *IdentifierRewriter {
	return &IdentifierRewriter{expander: expander, cfg: cfg}
}

// Process classifies a decoded JSON-LD payload and rewrites it when it
// qualifies. It never fails; unusable input is reported through Outcome.
func (r *IdentifierRewriter) Process(ctx context.Context, raw []byte, root any, ownURL string) RewriteResult {
	result := RewriteResult{Payload: raw, Outcome: domain.OutcomeUnchanged}

	obj, ok := root.(utils.OrderedKVMap[any])
	if !ok || r.expander == nil {
		return degraded(raw)
	}
	if t, ok := obj.Get("@type"); ok {
		result.DocumentType = utils.ToPlain(t)
	}

	types, err := r.expander.ExpandTypes(ctx, utils.ToPlain(obj))
	if err != nil {
		return degraded(raw)
	}
	result.ExpandedTypes = types
	result.Decision = Classify(types, r.cfg)
	if !result.Decision.Applies {
		return result
	}

	changed, nested, err := r.Rewrite(ctx, obj, ownURL, result.Decision)
	if err != nil {
		return degraded(raw)
	}
	result.Nested = nested
	if !changed {
		return result
	}

	payload, err := utils.Encode(obj)
	if err != nil {
		return degraded(raw)
	}
	result.Payload = payload
	result.Outcome = domain.OutcomeRewritten
	return result
}

// degraded keeps the submitted bytes and drops the classification, so a
// document stored without rewrite never reaches the activity log.
func degraded(raw []byte) RewriteResult {
	return RewriteResult{Payload: raw, Outcome: domain.OutcomeStoredWithoutRewrite}
}

// Rewrite modifies root in place. It reports whether any identifier changed
// and the nested reference nodes it visited, in document order.
func (r *IdentifierRewriter) Rewrite(ctx context.Context, root utils.OrderedKVMap[any], ownURL string, decision RewriteDecision) (bool, []domain.NestedNode, error) {
	if !decision.Applies {
		return false, nil, nil
	}

	changed := setID(root, ownURL)
	if !decision.IsContainer || r.cfg.NestedType == "" {
		return changed, nil, nil
	}

	rootCtx, _ := root.Get("@context")
	w := &nestedWalker{
		expander: r.expander,
		nested:   r.cfg.NestedType,
		ownURL:   ownURL,
		rootCtx:  rootCtx,
		memo:     map[string]bool{},
	}
	for _, key := range root.Keys() {
		if key == "@context" {
			continue
		}
		if err := w.visit(ctx, root[key].Value); err != nil {
			return false, nil, err
		}
	}

	return changed || w.changed, w.found, nil
}

type nestedWalker struct {
	expander TypeExpander
	nested   string
	ownURL   string
	rootCtx  any
	memo     map[string]bool

	count   int
	changed bool
	found   []domain.NestedNode
}

func (w *nestedWalker) visit(ctx context.Context, v any) error {
	switch node := v.(type) {
	case utils.OrderedKVMap[any]:
		if t, ok := node.Get("@type"); ok {
			isNested, err := w.isNestedType(ctx, node, t)
			if err != nil {
				return err
			}
			if isNested {
				w.count++
				id := jsonkeeper.ComposeRangeURL(w.ownURL, w.count)
				if setID(node, id) {
					w.changed = true
				}
				w.found = append(w.found, domain.NestedNode{
					ID:     id,
					Type:   utils.ToPlain(t),
					Within: withinTargets(node),
				})
			}
		}
		for _, key := range node.Keys() {
			if key == "@context" {
				continue
			}
			if err := w.visit(ctx, node[key].Value); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range node {
			if err := w.visit(ctx, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// isNestedType expands the node's @type against the root context (and the
// node's own context, if any). Results are memoized per walk.
func (w *nestedWalker) isNestedType(ctx context.Context, node utils.OrderedKVMap[any], t any) (bool, error) {
	nodeCtx, _ := node.Get("@context")

	key, err := utils.Encode([]any{nodeCtx, t})
	if err != nil {
		return false, errors.Wrap(err, "encode type key")
	}
	if hit, ok := w.memo[string(key)]; ok {
		return hit, nil
	}

	var contexts []any
	if w.rootCtx != nil {
		contexts = append(contexts, utils.ToPlain(w.rootCtx))
	}
	if nodeCtx != nil {
		contexts = append(contexts, utils.ToPlain(nodeCtx))
	}
	synthetic := map[string]any{"@type": utils.ToPlain(t)}
	switch len(contexts) {
	case 0:
	case 1:
		synthetic["@context"] = contexts[0]
	default:
		synthetic["@context"] = contexts
	}

	types, err := w.expander.ExpandTypes(ctx, synthetic)
	if err != nil {
		return false, errors.Wrap(err, "expand nested type")
	}
	hit := slices.Contains(types, w.nested)
	w.memo[string(key)] = hit
	return hit, nil
}

func setID(node utils.OrderedKVMap[any], id string) bool {
	if current, ok := node.Get("@id"); ok {
		if s, ok := current.(string); ok && s == id {
			return false
		}
	}
	node.Set("@id", id)
	return true
}

func withinTargets(node utils.OrderedKVMap[any]) []string {
	within, ok := node.Get("within")
	if !ok {
		return nil
	}
	var out []string
	var collect func(v any)
	collect = func(v any) {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case utils.OrderedKVMap[any]:
			if id, ok := t.Get("@id"); ok {
				if s, ok := id.(string); ok {
					out = append(out, s)
				}
			}
		case []any:
			for _, item := range t {
				collect(item)
			}
		}
	}
	collect(within)
	return out
}

// FindNode returns the first object in document order whose @id equals id.
func FindNode(v any, id string) (utils.OrderedKVMap[any], bool) {
	switch node := v.(type) {
	case utils.OrderedKVMap[any]:
		if current, ok := node.Get("@id"); ok {
			if s, ok := current.(string); ok && s == id {
				return node, true
			}
		}
		for _, key := range node.Keys() {
			if found, ok := FindNode(node[key].Value, id); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range node {
			if found, ok := FindNode(item, id); ok {
				return found, true
			}
		}
	}
	return nil, false
}
