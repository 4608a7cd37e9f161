// Package types defines the annotation model shared by every annot package:
// schema records (tag, attribute and argument types) and the two tag kinds.
package types

import "slices"

// Schema records are referenced from tags by stable integer keys.
type (
	TagTypeID       int64
	AttributeTypeID int64
	ArgumentTypeID  int64
)

// Kind distinguishes extent tags from link tags
type Kind string

const (
	KindExtent Kind = "extent"
	KindLink   Kind = "link"
)

// NCPosition is the start and end of the sentinel span held by non-consuming tags
const NCPosition = -1

// TagType is a named tag kind from the schema
type TagType struct {
	ID           TagTypeID `json:"id"`
	Name         string    `json:"name"`
	Prefix       string    `json:"prefix"`        // composes generated ids: prefix + counter
	IsLink       bool      `json:"is_link"`       // immutable once defined
	NonConsuming bool      `json:"non_consuming"` // extent types only
}

// Kind returns the kind of tag this type produces
func (tt TagType) Kind() Kind {
	if tt.IsLink {
		return KindLink
	}
	return KindExtent
}

// IsExtent is the inverse of IsLink
func (tt TagType) IsExtent() bool {
	return !tt.IsLink
}

// AttributeType is a named attribute slot on a tag type
type AttributeType struct {
	ID        AttributeTypeID `json:"id"`
	TagTypeID TagTypeID       `json:"tag_type_id"`
	Name      string          `json:"name"`
	ValueSet  []string        `json:"value_set,omitempty"` // nil = free text
	Default   *string         `json:"default,omitempty"`
	Required  bool            `json:"required"`
	IDRef     bool            `json:"id_ref"` // value must name an existing tag, checked lazily
}

// HasValueSet reports whether values are restricted to a closed list
func (at AttributeType) HasValueSet() bool {
	return at.ValueSet != nil
}

// Allows reports whether value is legal for this attribute type at write time
func (at AttributeType) Allows(value string) bool {
	return !at.HasValueSet() || slices.Contains(at.ValueSet, value)
}

// ArgumentType is a named argument slot on a link type
type ArgumentType struct {
	ID        ArgumentTypeID `json:"id"`
	TagTypeID TagTypeID      `json:"tag_type_id"`
	Name      string         `json:"name"`
	Required  bool           `json:"required"`
}

// Span is a half-open character range [Start, End)
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NCSpan is the sentinel span of a non-consuming tag
var NCSpan = Span{Start: NCPosition, End: NCPosition}

// IsSentinel reports whether s is the non-consuming placeholder
func (s Span) IsSentinel() bool {
	return s == NCSpan
}

// Len is the number of positions covered
func (s Span) Len() int {
	if s.IsSentinel() || s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Contains reports whether pos lies inside the span
func (s Span) Contains(pos int) bool {
	return !s.IsSentinel() && s.Start <= pos && pos < s.End
}

// Attribute is a value bound to a tag through an attribute type
type Attribute struct {
	TypeID AttributeTypeID `json:"type_id"`
	Name   string          `json:"name"`
	Value  string          `json:"value"`
}

// Argument binds an argument type of a link to the extent tag it references
type Argument struct {
	TypeID ArgumentTypeID `json:"type_id"`
	Name   string         `json:"name"`
	TagID  string         `json:"tag_id"`
}

// Binding is an argument supplied when creating or extending a link tag
type Binding struct {
	Type   ArgumentType
	Target string // extent tag id
}

// Tag is the capability shared by extent and link tags
type Tag interface {
	TagID() string
	TagType() TagType
	Kind() Kind
	SourceRef() string
	AttributeList() []Attribute
	AttributeValue(name string) (string, bool)
}

// ExtentTag is markup anchored to one or more disjoint spans, or to the
// sentinel span when non-consuming
type ExtentTag struct {
	ID         string      `json:"id"`
	Type       TagType     `json:"type"`
	Source     string      `json:"source"`
	Text       string      `json:"text"`
	Spans      []Span      `json:"spans"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// LinkTag is a typed relationship between extent tags
type LinkTag struct {
	ID         string      `json:"id"`
	Type       TagType     `json:"type"`
	Source     string      `json:"source"`
	Arguments  []Argument  `json:"arguments,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

func (t *ExtentTag) TagID() string              { return t.ID }
func (t *ExtentTag) TagType() TagType           { return t.Type }
func (t *ExtentTag) Kind() Kind                 { return KindExtent }
func (t *ExtentTag) SourceRef() string          { return t.Source }
func (t *ExtentTag) AttributeList() []Attribute { return t.Attributes }

func (t *ExtentTag) AttributeValue(name string) (string, bool) {
	return attributeValue(t.Attributes, name)
}

// IsNonConsuming reports whether the tag holds only the sentinel span
func (t *ExtentTag) IsNonConsuming() bool {
	return len(t.Spans) == 1 && t.Spans[0].IsSentinel()
}

func (t *LinkTag) TagID() string              { return t.ID }
func (t *LinkTag) TagType() TagType           { return t.Type }
func (t *LinkTag) Kind() Kind                 { return KindLink }
func (t *LinkTag) SourceRef() string          { return t.Source }
func (t *LinkTag) AttributeList() []Attribute { return t.Attributes }

func (t *LinkTag) AttributeValue(name string) (string, bool) {
	return attributeValue(t.Attributes, name)
}

// Argument returns the extent tag id bound to the named argument
func (t *LinkTag) Argument(name string) (string, bool) {
	for _, arg := range t.Arguments {
		if arg.Name == name {
			return arg.TagID, true
		}
	}
	return "", false
}

// ArgumentTagIDs returns the referenced extent tag ids in argument order
func (t *LinkTag) ArgumentTagIDs() []string {
	ids := make([]string, 0, len(t.Arguments))
	for _, arg := range t.Arguments {
		ids = append(ids, arg.TagID)
	}
	return ids
}

func attributeValue(attrs []Attribute, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

var (
	_ Tag = (*ExtentTag)(nil)
	_ Tag = (*LinkTag)(nil)
)
