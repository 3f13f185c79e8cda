package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/utils"
)

const ownURL = "http://localhost:5000/api/doc1"

const curationInput = `{"@context":["http://iiif.io/api/presentation/2/context.json","http://codh.rois.ac.jp/iiif/curation/1/context.json"],` +
	`"@type":"cr:Curation","@id":"http://example.org/cur1","label":"A & B",` +
	`"selections":[` +
	`{"@id":"http://example.org/r1","@type":"sc:Range","label":"first",` +
	`"members":[{"@id":"http://example.org/canvas/1#xywh=0,0,10,10","@type":"sc:Canvas"}],` +
	`"within":{"@id":"http://example.org/manifest1","@type":"sc:Manifest"}},` +
	`{"@type":"sc:Range","members":[],"within":"http://example.org/manifest2","price":1.50}]}`

const curationRewritten = `{"@context":["http://iiif.io/api/presentation/2/context.json","http://codh.rois.ac.jp/iiif/curation/1/context.json"],` +
	`"@type":"cr:Curation","@id":"http://localhost:5000/api/doc1","label":"A & B",` +
	`"selections":[` +
	`{"@id":"http://localhost:5000/api/doc1/range1","@type":"sc:Range","label":"first",` +
	`"members":[{"@id":"http://example.org/canvas/1#xywh=0,0,10,10","@type":"sc:Canvas"}],` +
	`"within":{"@id":"http://example.org/manifest1","@type":"sc:Manifest"}},` +
	`{"@type":"sc:Range","members":[],"within":"http://example.org/manifest2","price":1.50,"@id":"http://localhost:5000/api/doc1/range2"}]}`

func runProcess(t *testing.T, r *IdentifierRewriter, raw string) RewriteResult {
	t.Helper()
	root, err := utils.DecodeOrdered([]byte(raw))
	require.NoError(t, err)
	return r.Process(context.Background(), []byte(raw), root, ownURL)
}

func TestRewriteContainer(t *testing.T) {
	r := NewIdentifierRewriter(&prefixExpander{}, testConfig().Rewrite)

	result := runProcess(t, r, curationInput)

	assert.Equal(t, domain.OutcomeRewritten, result.Outcome)
	assert.Equal(t, curationRewritten, string(result.Payload))
	assert.True(t, result.Decision.IsContainer)
	assert.Equal(t, "cr:Curation", result.DocumentType)
	require.Len(t, result.Nested, 2)
	assert.Equal(t, domain.NestedNode{
		ID:     "http://localhost:5000/api/doc1/range1",
		Type:   "sc:Range",
		Within: []string{"http://example.org/manifest1"},
	}, result.Nested[0])
	assert.Equal(t, []string{"http://example.org/manifest2"}, result.Nested[1].Within)
}

func TestRewriteIsIdempotent(t *testing.T) {
	r := NewIdentifierRewriter(&prefixExpander{}, testConfig().Rewrite)

	first := runProcess(t, r, curationInput)
	second := runProcess(t, r, string(first.Payload))

	assert.Equal(t, domain.OutcomeUnchanged, second.Outcome)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, first.Nested, second.Nested)
}

func TestRewriteNonContainerOnlyTouchesRoot(t *testing.T) {
	r := NewIdentifierRewriter(&prefixExpander{}, testConfig().Rewrite)

	input := `{"@type":"sc:Manifest","label":"m","structures":[{"@id":"http://example.org/r1","@type":"sc:Range"}]}`
	result := runProcess(t, r, input)

	assert.Equal(t, domain.OutcomeRewritten, result.Outcome)
	assert.Equal(t,
		`{"@type":"sc:Manifest","label":"m","structures":[{"@id":"http://example.org/r1","@type":"sc:Range"}],"@id":"http://localhost:5000/api/doc1"}`,
		string(result.Payload))
	assert.Empty(t, result.Nested)
}

func TestRewriteSkipsUnconfiguredTypes(t *testing.T) {
	r := NewIdentifierRewriter(&prefixExpander{}, testConfig().Rewrite)

	input := `{ "@type": "sc:Canvas", "@id": "http://example.org/c" }`
	result := runProcess(t, r, input)

	assert.Equal(t, domain.OutcomeUnchanged, result.Outcome)
	assert.Equal(t, input, string(result.Payload))
	assert.False(t, result.Decision.Applies)
	assert.Equal(t, []string{canvasIRI}, result.ExpandedTypes)
}

func TestRewriteDegradesOnUnusableInput(t *testing.T) {
	r := NewIdentifierRewriter(&prefixExpander{}, testConfig().Rewrite)

	for _, input := range []string{
		`[{"@type":"cr:Curation"}]`,
		`"just a string"`,
		`{"@type":"broken"}`,
		`{"@type":"cr:Curation","selections":[{"@type":"broken"}]}`,
	} {
		result := runProcess(t, r, input)
		assert.Equal(t, domain.OutcomeStoredWithoutRewrite, result.Outcome, input)
		assert.Equal(t, input, string(result.Payload), input)
		assert.Empty(t, result.ExpandedTypes, input)
		assert.False(t, result.Decision.Applies, input)
		assert.Empty(t, result.Nested, input)
	}
}

func TestRewriteMemoizesNestedTypes(t *testing.T) {
	expander := &prefixExpander{}
	r := NewIdentifierRewriter(expander, testConfig().Rewrite)

	input := `{"@type":"cr:Curation","selections":[{"@type":"sc:Range"},{"@type":"sc:Range"},{"@type":"sc:Range"}]}`
	result := runProcess(t, r, input)

	require.Len(t, result.Nested, 3)
	assert.Equal(t, "http://localhost:5000/api/doc1/range3", result.Nested[2].ID)
	// one call for the root, one for the nested type
	assert.Equal(t, 2, expander.calls)
}

func TestFindNode(t *testing.T) {
	root, err := utils.DecodeOrdered([]byte(curationRewritten))
	require.NoError(t, err)

	node, ok := FindNode(root, "http://localhost:5000/api/doc1/range2")
	require.True(t, ok)
	within, _ := node.Get("within")
	assert.Equal(t, "http://example.org/manifest2", within)

	_, ok = FindNode(root, "http://localhost:5000/api/doc1/range3")
	assert.False(t, ok)
}
