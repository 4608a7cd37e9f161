// Package schemafile loads tag-type definitions from TOML or YAML files.
//
//	name = "timeml"
//
//	[[tag_types]]
//	name = "EVENT"
//	prefix = "E"
//
//	  [[tag_types.attributes]]
//	  name = "class"
//	  values = ["OCCURRENCE", "STATE"]
//	  default = "OCCURRENCE"
//
//	[[tag_types]]
//	name = "TLINK"
//	prefix = "L"
//	link = true
//
//	  [[tag_types.arguments]]
//	  name = "FROM"
//	  required = true
package schemafile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/tagstore/annot/snapshot"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/errors"
)

// File is a parsed schema file
type File struct {
	Name     string    `toml:"name" yaml:"name"`
	TagTypes []TagType `toml:"tag_types" yaml:"tag_types"`
}

type TagType struct {
	Name         string      `toml:"name" yaml:"name"`
	Prefix       string      `toml:"prefix" yaml:"prefix"`
	Link         bool        `toml:"link" yaml:"link"`
	NonConsuming bool        `toml:"non_consuming" yaml:"non_consuming"`
	Attributes   []Attribute `toml:"attributes" yaml:"attributes"`
	Arguments    []Argument  `toml:"arguments" yaml:"arguments"`
}

// Attribute leaves Values nil for free text
type Attribute struct {
	Name     string   `toml:"name" yaml:"name"`
	Values   []string `toml:"values" yaml:"values"`
	Default  *string  `toml:"default" yaml:"default"`
	Required bool     `toml:"required" yaml:"required"`
	IDRef    bool     `toml:"id_ref" yaml:"id_ref"`
}

type Argument struct {
	Name     string `toml:"name" yaml:"name"`
	Required bool   `toml:"required" yaml:"required"`
}

// Load reads a .toml, .yaml or .yml schema file. Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schema file %s", path)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse TOML schema %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.NewInvalidRequestError("unknown key %s in %s", undecoded[0], path)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, errors.Wrapf(err, "failed to parse YAML schema %s", path)
		}
	default:
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("unsupported schema file extension %q", ext),
			"use .toml, .yaml or .yml")
	}

	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := f.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid schema %s", path)
	}
	return &f, nil
}

// Validate checks the file is self-consistent before anything is defined
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.TagTypes))
	for i := range f.TagTypes {
		tt := &f.TagTypes[i]
		if tt.Name == "" {
			return errors.NewInvalidRequestError("tag type #%d has no name", i+1)
		}
		if seen[tt.Name] {
			return errors.Mark(errors.ErrDuplicateName, "tag type %q defined twice", tt.Name)
		}
		seen[tt.Name] = true

		if tt.Prefix == "" {
			r, _ := utf8.DecodeRuneInString(tt.Name)
			tt.Prefix = string(unicode.ToUpper(r))
		}
		if !tt.Link && len(tt.Arguments) > 0 {
			return errors.Mark(errors.ErrTagKindMismatch, "extent type %s declares arguments", tt.Name)
		}
		if tt.Link && tt.NonConsuming {
			return errors.Mark(errors.ErrTagKindMismatch, "link type %s cannot be non-consuming", tt.Name)
		}
		for _, at := range tt.Attributes {
			if at.Default == nil || at.Values == nil {
				continue
			}
			if !slices.Contains(at.Values, *at.Default) {
				return errors.Mark(errors.ErrInvalidAttributeValue, "default %q of %s.%s is not among its values", *at.Default, tt.Name, at.Name)
			}
		}
	}
	return nil
}

// Defs converts the file to snapshot schema definitions
func (f *File) Defs() []snapshot.TagTypeDef {
	defs := make([]snapshot.TagTypeDef, 0, len(f.TagTypes))
	for _, tt := range f.TagTypes {
		def := snapshot.TagTypeDef{
			Name:         tt.Name,
			Prefix:       tt.Prefix,
			IsLink:       tt.Link,
			NonConsuming: tt.NonConsuming,
		}
		for _, at := range tt.Attributes {
			def.Attributes = append(def.Attributes, snapshot.AttributeDef{
				Name:     at.Name,
				ValueSet: at.Values,
				Default:  at.Default,
				Required: at.Required,
				IDRef:    at.IDRef,
			})
		}
		for _, arg := range tt.Arguments {
			def.Arguments = append(def.Arguments, snapshot.ArgumentDef{Name: arg.Name, Required: arg.Required})
		}
		defs = append(defs, def)
	}
	return defs
}

// Apply defines the file's tag types in st and records the schema name in
// one transaction
func Apply(ctx context.Context, st *store.Store, f *File) error {
	return st.Atomic(ctx, func(st *store.Store) error {
		if err := snapshot.ImportSchema(ctx, st, f.Defs()); err != nil {
			return err
		}
		return st.SetSchemaName(ctx, f.Name)
	})
}
