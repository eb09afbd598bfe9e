// Package changeset reads YAML change sets and applies them to a session.
//
// A change set lists work items to load or create and the edits to make on
// each: field values, relations to add or remove, and recycle bin moves.
// Documents are checked against an embedded CUE schema before decoding.
package changeset

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// ErrInvalid is wrapped by every error caused by the document's content.
var ErrInvalid = errors.New("invalid change set")

// ChangeSet is a parsed change set document.
type ChangeSet struct {
	// Project is used for new items that do not name one.
	Project string `yaml:"project"`
	Items   []Item `yaml:"items"`
}

// Item is one work item to edit.
// Exactly one of ID and New is set.
type Item struct {
	Ref       string           `yaml:"ref"`
	ID        int              `yaml:"id"`
	New       *NewItem         `yaml:"new"`
	Fields    map[string]any   `yaml:"fields"`
	Relations []RelationChange `yaml:"relations"`
	Delete    bool             `yaml:"delete"`
	Restore   bool             `yaml:"restore"`
}

// NewItem describes a work item to create.
type NewItem struct {
	Type    string `yaml:"type"`
	Project string `yaml:"project"`
}

// Relation change operations.
const (
	OpAdd    = "add"
	OpRemove = "remove"
)

// RelationChange adds or removes one relation.
type RelationChange struct {
	Op  string `yaml:"op"`
	Rel string `yaml:"rel"`
	To  Target `yaml:"to"`
}

// Target names a relation target: a ref declared in the same change set or
// the id of an existing work item.
type Target struct {
	Ref string
	ID  int
}

// UnmarshalYAML decodes an integer as an id and anything else as a ref.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: relation target must be a ref or an id", node.Line)
	}
	if node.Tag == "!!int" {
		id, err := strconv.Atoi(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		t.ID = id
		return nil
	}
	t.Ref = node.Value
	return nil
}

func (t Target) String() string {
	if t.Ref != "" {
		return t.Ref
	}
	return strconv.Itoa(t.ID)
}

// ParseFile reads and parses the change set at path.
func ParseFile(path string) (*ChangeSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read change set: %w", err)
	}
	cs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cs, nil
}

// Parse validates data against the #ChangeSet schema and decodes it.
func Parse(data []byte) (*ChangeSet, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var cs ChangeSet
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i := range cs.Items {
		for j := range cs.Items[i].Relations {
			if cs.Items[i].Relations[j].Op == "" {
				cs.Items[i].Relations[j].Op = OpAdd
			}
		}
	}
	if err := cs.validate(); err != nil {
		return nil, err
	}
	return &cs, nil
}

// validateSchema unifies the decoded document with #ChangeSet.
func validateSchema(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile change set schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#ChangeSet"))
	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}
	return nil
}

// schemaError reports every violation with its document path.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := e.Path(); len(path) > 0 {
			msg = strings.Join(path, ".") + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// validate checks rules that span items.
func (cs *ChangeSet) validate() error {
	refs := make(map[string]int, len(cs.Items))
	for i, item := range cs.Items {
		if item.Ref == "" {
			continue
		}
		if prev, ok := refs[item.Ref]; ok {
			return fmt.Errorf("%w: items %d and %d both use ref %q", ErrInvalid, prev, i, item.Ref)
		}
		refs[item.Ref] = i
	}

	for i, item := range cs.Items {
		if item.Delete && item.Restore {
			return fmt.Errorf("%w: item %d is both deleted and restored", ErrInvalid, i)
		}
		if item.New != nil && item.Restore {
			return fmt.Errorf("%w: item %d is new and cannot be restored", ErrInvalid, i)
		}
		for _, r := range item.Relations {
			if r.To.Ref == "" {
				continue
			}
			if _, ok := refs[r.To.Ref]; !ok {
				return fmt.Errorf("%w: item %d relates to unknown ref %q", ErrInvalid, i, r.To.Ref)
			}
		}
	}
	return nil
}
