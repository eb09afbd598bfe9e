package wit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItemURLRoundTrip(t *testing.T) {
	url := WorkItemURL("https://dev.azure.com/org/", 118)
	assert.Equal(t, "https://dev.azure.com/org/_apis/wit/workitems/118", url)

	id, err := ParseWorkItemURL(url)
	require.NoError(t, err)
	assert.Equal(t, 118, id)

	id, err = ParseWorkItemURL(WorkItemURL("sandbox://local", -3))
	require.NoError(t, err)
	assert.Equal(t, -3, id)
}

func TestParseWorkItemURLInvalid(t *testing.T) {
	for _, url := range []string{"", "no-slash", "http://x/_apis/wit/workitems/", "http://x/abc"} {
		_, err := ParseWorkItemURL(url)
		assert.Error(t, err, url)
	}
}

func TestRebaseWorkItemURL(t *testing.T) {
	assert.Equal(t, "http://x/_apis/wit/workitems/118", RebaseWorkItemURL("http://x/_apis/wit/workitems/-1", 118))
}

func TestWorkItemAccessors(t *testing.T) {
	wi := &WorkItem{Fields: map[string]any{FieldWorkItemType: "Task", FieldTeamProject: "Demo", FieldTitle: 3}}
	assert.Equal(t, "Task", wi.WorkItemType())
	assert.Equal(t, "Demo", wi.TeamProject())
	assert.True(t, IsTemporaryID(-1))
	assert.False(t, IsTemporaryID(1))
}

func TestPatchDocumentFilters(t *testing.T) {
	doc := PatchDocument{
		{Op: OpTest, Path: PathRev, Value: 3},
		{Op: OpReplace, Path: FieldPath(FieldTitle), Value: "x"},
		{Op: OpAdd, Path: PathRelations, Value: Relation{Rel: "r", URL: "u/1"}},
	}

	assert.Len(t, doc.WithoutTests(), 2)
	assert.Len(t, doc.WithoutRelations(), 2)
	assert.Len(t, doc.WithoutTests().WithoutRelations(), 1)
	assert.Len(t, doc, 3, "filters must not mutate the receiver")

	name, ok := doc[1].FieldName()
	assert.True(t, ok)
	assert.Equal(t, FieldTitle, name)
}

func TestRelationValueFromDecodedJSON(t *testing.T) {
	op := PatchOperation{Op: OpAdd, Path: PathRelations, Value: map[string]any{"rel": "r", "url": "u/5"}}
	rel, ok := op.RelationValue()
	require.True(t, ok)
	assert.Equal(t, Relation{Rel: "r", URL: "u/5"}, rel)

	_, ok = PatchOperation{Op: OpAdd, Path: PathRelations, Value: "bogus"}.RelationValue()
	assert.False(t, ok)
}

func TestBatchResponseIsSuccess(t *testing.T) {
	assert.True(t, BatchResponse{Code: 200}.IsSuccess())
	assert.True(t, BatchResponse{Code: 299}.IsSuccess())
	assert.False(t, BatchResponse{Code: 400}.IsSuccess())
	assert.False(t, BatchResponse{Code: 199}.IsSuccess())
}
