package share

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind represents the type of a share member.
type Kind int

const (
	KindUnspecified Kind = iota
	KindTable
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "TABLE"
	case KindSchema:
		return "SCHEMA"
	default:
		return "UNSPECIFIED"
	}
}

// ParseKind parses the text form of a Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(s) {
	case "TABLE":
		return KindTable, nil
	case "SCHEMA":
		return KindSchema, nil
	case "", "UNSPECIFIED":
		return KindUnspecified, nil
	}
	return KindUnspecified, fmt.Errorf("unknown member kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Action tags a working set entry with the pending change for its member.
type Action int

const (
	ActionUnchanged Action = iota
	ActionAdd
	ActionRemove

	// ActionUpdate mirrors the remote protocol. No local operation produces it.
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "ADD"
	case ActionRemove:
		return "REMOVE"
	case ActionUpdate:
		return "UPDATE"
	default:
		return "UNCHANGED"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	switch string(text) {
	case "UNCHANGED":
		*a = ActionUnchanged
	case "ADD":
		*a = ActionAdd
	case "REMOVE":
		*a = ActionRemove
	case "UPDATE":
		*a = ActionUpdate
	default:
		return fmt.Errorf("unknown action %q", text)
	}
	return nil
}

// Member represents an item that belongs to a share, for example a table or a schema.
type Member struct {
	// Name identifies the member within the share's namespace. It is made of the
	// dot-separated path segments of the member, e.g. "catalog.schema.table".
	Name string `json:"name" yaml:"name"`

	Kind Kind `json:"kind" yaml:"kind"`

	// SharedAs is the alias the member is exposed under.
	SharedAs string `json:"shared_as,omitempty" yaml:"shared_as,omitempty"`

	// Payload carries the remaining attributes of the member. It is passed through untouched.
	Payload json.RawMessage `json:"payload,omitempty" yaml:"-"`
}

// Equal reports whether m and o describe the same member, payload included.
func (m Member) Equal(o Member) bool {
	return m.Name == o.Name && m.Kind == o.Kind && m.SharedAs == o.SharedAs && bytes.Equal(m.Payload, o.Payload)
}

// clone returns a copy of m that shares no memory with it.
func (m Member) clone() Member {
	if m.Payload != nil {
		m.Payload = append(json.RawMessage(nil), m.Payload...)
	}
	return m
}

// NewMember builds a member from a selection, deriving the default alias from the name.
func NewMember(name string, kind Kind) Member {
	return Member{Name: name, Kind: kind, SharedAs: DefaultSharedAs(name)}
}

// DefaultSharedAs drops the first path segment of name.
// A name with a single segment is returned as is.
func DefaultSharedAs(name string) string {
	_, rest, found := strings.Cut(name, ".")
	if !found || rest == "" {
		return name
	}
	return rest
}

// Entry is a member of the working set together with its pending action.
type Entry struct {
	Member Member `json:"member"`
	Action Action `json:"action"`
}

// Update is a single element of a patch sent to the remote source.
type Update struct {
	Action Action `json:"action"`
	Member Member `json:"member"`
}

// FieldChanges holds edits to the share's own attributes. Nil fields are left as they are.
type FieldChanges struct {
	NewName *string `json:"new_name,omitempty"`
	Owner   *string `json:"owner,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

// Changed reports whether any field is set.
func (f FieldChanges) Changed() bool {
	return f.NewName != nil || f.Owner != nil || f.Comment != nil
}

// UpdateRequest is the full request body handed to an UpdateSink.
type UpdateRequest struct {
	Updates []Update     `json:"updates"`
	Fields  FieldChanges `json:"fields"`
}

// ContainerSnapshot is the state of a share as reported by the remote source.
type ContainerSnapshot struct {
	Name    string   `json:"name"`
	Owner   string   `json:"owner,omitempty"`
	Comment string   `json:"comment,omitempty"`
	Members []Member `json:"members"`
}
