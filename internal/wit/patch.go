package wit

import "strings"

// Op is a JSON patch operation kind.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
	OpTest    Op = "test"
)

// Patch paths.
const (
	PathFieldsPrefix = "/fields/"
	PathRelations    = "/relations/-"
	PathID           = "/id"
	PathRev          = "/rev"
)

// PatchOperation is one entry of a patch document.
type PatchOperation struct {
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// FieldPath returns the patch path for a field reference name.
func FieldPath(name string) string {
	return PathFieldsPrefix + name
}

// FieldName returns the field name addressed by op, if any.
func (o PatchOperation) FieldName() (string, bool) {
	if !strings.HasPrefix(o.Path, PathFieldsPrefix) {
		return "", false
	}
	return strings.TrimPrefix(o.Path, PathFieldsPrefix), true
}

// IsRelation reports whether op targets the relation collection.
func (o PatchOperation) IsRelation() bool {
	return o.Path == PathRelations
}

// IsTest reports whether op is an optimistic concurrency guard.
func (o PatchOperation) IsTest() bool {
	return o.Op == OpTest
}

// RelationValue returns the relation carried by a relation operation.
// Values decoded from JSON arrive as maps and are converted.
func (o PatchOperation) RelationValue() (Relation, bool) {
	switch v := o.Value.(type) {
	case Relation:
		return v, true
	case *Relation:
		if v == nil {
			return Relation{}, false
		}
		return *v, true
	case map[string]any:
		rel, _ := v["rel"].(string)
		url, _ := v["url"].(string)
		if rel == "" || url == "" {
			return Relation{}, false
		}
		r := Relation{Rel: rel, URL: url}
		if attrs, ok := v["attributes"].(map[string]any); ok {
			r.Attributes = attrs
		}
		return r, true
	default:
		return Relation{}, false
	}
}

// PatchDocument is an ordered set of patch operations for one work item.
type PatchDocument []PatchOperation

// Without returns a copy of d without the operations matching drop.
func (d PatchDocument) Without(drop func(PatchOperation) bool) PatchDocument {
	out := make(PatchDocument, 0, len(d))
	for _, op := range d {
		if drop(op) {
			continue
		}
		out = append(out, op)
	}
	return out
}

// WithoutTests drops optimistic concurrency guards.
func (d PatchDocument) WithoutTests() PatchDocument {
	return d.Without(PatchOperation.IsTest)
}

// WithoutRelations drops relation operations.
func (d PatchDocument) WithoutRelations() PatchDocument {
	return d.Without(PatchOperation.IsRelation)
}
