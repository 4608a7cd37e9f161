// Package snapshot exports an annotation session to JSON and replays it into
// another store.
package snapshot

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/tagstore/annot/spans"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
)

// FormatVersion is written into every snapshot
const FormatVersion = "1.0.0"

// FormatConstraint is the range of snapshot versions Read accepts
const FormatConstraint = "^1.0"

// Snapshot is a complete session: schema, tags and open problems
type Snapshot struct {
	Format      string          `json:"format"`
	SessionID   string          `json:"session_id"`
	ExportedAt  time.Time       `json:"exported_at"`
	WorkingFile string          `json:"working_file,omitempty"`
	SchemaName  string          `json:"schema_name,omitempty"`
	Schema      []TagTypeDef    `json:"schema"`
	Extents     []ExtentRecord  `json:"extents"`
	Links       []LinkRecord    `json:"links"`
	Problems    []store.Problem `json:"problems,omitempty"`
}

// TagTypeDef is one tag type with its attribute and argument slots
type TagTypeDef struct {
	Name         string         `json:"name"`
	Prefix       string         `json:"prefix"`
	IsLink       bool           `json:"is_link"`
	NonConsuming bool           `json:"non_consuming,omitempty"`
	Attributes   []AttributeDef `json:"attributes,omitempty"`
	Arguments    []ArgumentDef  `json:"arguments,omitempty"`
}

// AttributeDef mirrors types.AttributeType by name. A null value set is free
// text; an empty one admits nothing.
type AttributeDef struct {
	Name     string   `json:"name"`
	ValueSet []string `json:"value_set"`
	Default  *string  `json:"default,omitempty"`
	Required bool     `json:"required,omitempty"`
	IDRef    bool     `json:"id_ref,omitempty"`
}

type ArgumentDef struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// ExtentRecord is one extent tag; spans use the "0~3,5~8" form
type ExtentRecord struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Source     string            `json:"source,omitempty"`
	Text       string            `json:"text,omitempty"`
	Spans      string            `json:"spans"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type LinkRecord struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Source     string            `json:"source,omitempty"`
	Arguments  map[string]string `json:"arguments,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Export captures the store's schema, tags and validation problems
func Export(ctx context.Context, st *store.Store) (*Snapshot, error) {
	snap := &Snapshot{
		Format:     FormatVersion,
		SessionID:  st.SessionID(),
		ExportedAt: time.Now().UTC(),
		Schema:     []TagTypeDef{},
		Extents:    []ExtentRecord{},
		Links:      []LinkRecord{},
	}

	var err error
	if snap.WorkingFile, err = st.WorkingFile(ctx); err != nil {
		return nil, err
	}
	if snap.SchemaName, err = st.SchemaName(ctx); err != nil {
		return nil, err
	}

	tts, err := st.TagTypes(ctx, true, true)
	if err != nil {
		return nil, err
	}
	for _, tt := range tts {
		def, err := exportTagType(ctx, st, tt)
		if err != nil {
			return nil, err
		}
		snap.Schema = append(snap.Schema, def)
	}

	tags, err := st.AllTags(ctx)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		switch t := tag.(type) {
		case *types.ExtentTag:
			snap.Extents = append(snap.Extents, ExtentRecord{
				ID:         t.ID,
				Type:       t.Type.Name,
				Source:     t.Source,
				Text:       t.Text,
				Spans:      spans.Format(t.Spans),
				Attributes: attributeMap(t.Attributes),
			})
		case *types.LinkTag:
			args := make(map[string]string, len(t.Arguments))
			for _, a := range t.Arguments {
				args[a.Name] = a.TagID
			}
			snap.Links = append(snap.Links, LinkRecord{
				ID:         t.ID,
				Type:       t.Type.Name,
				Source:     t.Source,
				Arguments:  args,
				Attributes: attributeMap(t.Attributes),
			})
		}
	}

	if snap.Problems, err = st.Validate(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func exportTagType(ctx context.Context, st *store.Store, tt types.TagType) (TagTypeDef, error) {
	def := TagTypeDef{
		Name:         tt.Name,
		Prefix:       tt.Prefix,
		IsLink:       tt.IsLink,
		NonConsuming: tt.NonConsuming,
	}
	ats, err := st.AttributeTypes(ctx, tt.ID)
	if err != nil {
		return def, err
	}
	for _, at := range ats {
		def.Attributes = append(def.Attributes, AttributeDef{
			Name:     at.Name,
			ValueSet: at.ValueSet,
			Default:  at.Default,
			Required: at.Required,
			IDRef:    at.IDRef,
		})
	}
	if !tt.IsLink {
		return def, nil
	}
	args, err := st.ArgumentTypes(ctx, tt.ID)
	if err != nil {
		return def, err
	}
	for _, arg := range args {
		def.Arguments = append(def.Arguments, ArgumentDef{Name: arg.Name, Required: arg.Required})
	}
	return def, nil
}

func attributeMap(attrs []types.Attribute) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		out[a.Name] = a.Value
	}
	return out
}

// Write encodes snap as indented JSON
func Write(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(snap), "failed to encode snapshot")
}

// Read decodes a snapshot and rejects format versions outside FormatConstraint
func Read(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot")
	}
	if err := checkFormat(snap.Format); err != nil {
		return nil, err
	}
	return &snap, nil
}

func checkFormat(format string) error {
	v, err := semver.NewVersion(format)
	if err != nil {
		return errors.Mark(errors.ErrInvalidRequest, "invalid snapshot format %q", format)
	}
	constraint, err := semver.NewConstraint(FormatConstraint)
	if err != nil {
		return errors.Wrapf(err, "invalid format constraint %s", FormatConstraint)
	}
	if !constraint.Check(v) {
		return errors.WithHintf(
			errors.Mark(errors.ErrInvalidRequest, "snapshot format %s is not supported", format),
			"this build reads snapshot formats %s", FormatConstraint)
	}
	return nil
}
