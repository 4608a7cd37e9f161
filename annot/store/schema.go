package store

import (
	"context"

	"github.com/teranos/tagstore/annot/taggraph"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/logger"
)

// DefineTagType creates a tag type
func (s *Store) DefineTagType(ctx context.Context, name, prefix string, isLink bool) (types.TagType, error) {
	var tt types.TagType
	err := s.withTx(ctx, "define tag type", func(g *taggraph.Graph) error {
		var err error
		tt, err = g.Registry().DefineTagType(ctx, name, prefix, isLink)
		return err
	})
	if err == nil {
		s.logger.Infow("Tag type defined", logger.FieldTagType, name, logger.FieldTagKind, tt.Kind())
	}
	return tt, err
}

// DefineAttributeType adds an attribute slot to a tag type
func (s *Store) DefineAttributeType(ctx context.Context, tagTypeID types.TagTypeID, name string) (types.AttributeType, error) {
	var at types.AttributeType
	err := s.withTx(ctx, "define attribute type", func(g *taggraph.Graph) error {
		var err error
		at, err = g.Registry().DefineAttributeType(ctx, tagTypeID, name)
		return err
	})
	return at, err
}

// DefineArgumentType adds an argument slot to a link type
func (s *Store) DefineArgumentType(ctx context.Context, tagTypeID types.TagTypeID, name string) (types.ArgumentType, error) {
	var arg types.ArgumentType
	err := s.withTx(ctx, "define argument type", func(g *taggraph.Graph) error {
		var err error
		arg, err = g.Registry().DefineArgumentType(ctx, tagTypeID, name)
		return err
	})
	return arg, err
}

func (s *Store) SetPrefix(ctx context.Context, tagTypeID types.TagTypeID, prefix string) error {
	return s.withTx(ctx, "set prefix", func(g *taggraph.Graph) error {
		return g.Registry().SetPrefix(ctx, tagTypeID, prefix)
	})
}

func (s *Store) SetNonConsuming(ctx context.Context, tagTypeID types.TagTypeID, nonConsuming bool) error {
	return s.withTx(ctx, "set non-consuming", func(g *taggraph.Graph) error {
		return g.Registry().SetNonConsuming(ctx, tagTypeID, nonConsuming)
	})
}

func (s *Store) SetValueSet(ctx context.Context, attTypeID types.AttributeTypeID, values []string) error {
	return s.withTx(ctx, "set value set", func(g *taggraph.Graph) error {
		return g.Registry().SetValueSet(ctx, attTypeID, values)
	})
}

func (s *Store) SetDefaultValue(ctx context.Context, attTypeID types.AttributeTypeID, value *string) error {
	return s.withTx(ctx, "set default value", func(g *taggraph.Graph) error {
		return g.Registry().SetDefaultValue(ctx, attTypeID, value)
	})
}

func (s *Store) SetIDRef(ctx context.Context, attTypeID types.AttributeTypeID, idRef bool) error {
	return s.withTx(ctx, "set id ref", func(g *taggraph.Graph) error {
		return g.Registry().SetIDRef(ctx, attTypeID, idRef)
	})
}

func (s *Store) SetAttributeRequired(ctx context.Context, attTypeID types.AttributeTypeID, required bool) error {
	return s.withTx(ctx, "set attribute required", func(g *taggraph.Graph) error {
		return g.Registry().SetAttributeRequired(ctx, attTypeID, required)
	})
}

func (s *Store) SetArgumentRequired(ctx context.Context, argTypeID types.ArgumentTypeID, required bool) error {
	return s.withTx(ctx, "set argument required", func(g *taggraph.Graph) error {
		return g.Registry().SetArgumentRequired(ctx, argTypeID, required)
	})
}

// TagTypes lists tag types in definition order
func (s *Store) TagTypes(ctx context.Context, includeExtent, includeLink bool) ([]types.TagType, error) {
	var out []types.TagType
	err := s.withRead("tag types", func(g *taggraph.Graph) error {
		var err error
		out, err = g.Registry().TagTypes(ctx, includeExtent, includeLink)
		return err
	})
	return out, err
}

func (s *Store) NonConsumingTagTypes(ctx context.Context) ([]types.TagType, error) {
	var out []types.TagType
	err := s.withRead("non-consuming tag types", func(g *taggraph.Graph) error {
		var err error
		out, err = g.Registry().NonConsumingTagTypes(ctx)
		return err
	})
	return out, err
}

// LookupByName finds a tag type; ErrUnknownType if absent
func (s *Store) LookupByName(ctx context.Context, name string) (types.TagType, error) {
	var tt types.TagType
	err := s.withRead("lookup tag type", func(g *taggraph.Graph) error {
		var err error
		tt, err = g.Registry().LookupByName(ctx, name)
		return err
	})
	return tt, err
}

func (s *Store) TagType(ctx context.Context, id types.TagTypeID) (types.TagType, error) {
	var tt types.TagType
	err := s.withRead("tag type", func(g *taggraph.Graph) error {
		var err error
		tt, err = g.Registry().TagType(ctx, id)
		return err
	})
	return tt, err
}

func (s *Store) AttributeTypes(ctx context.Context, tagTypeID types.TagTypeID) ([]types.AttributeType, error) {
	var out []types.AttributeType
	err := s.withRead("attribute types", func(g *taggraph.Graph) error {
		var err error
		out, err = g.Registry().AttributeTypes(ctx, tagTypeID)
		return err
	})
	return out, err
}

func (s *Store) AttributeTypeByName(ctx context.Context, tagTypeID types.TagTypeID, name string) (types.AttributeType, error) {
	var at types.AttributeType
	err := s.withRead("attribute type", func(g *taggraph.Graph) error {
		var err error
		at, err = g.Registry().AttributeTypeByName(ctx, tagTypeID, name)
		return err
	})
	return at, err
}

func (s *Store) ArgumentTypes(ctx context.Context, tagTypeID types.TagTypeID) ([]types.ArgumentType, error) {
	var out []types.ArgumentType
	err := s.withRead("argument types", func(g *taggraph.Graph) error {
		var err error
		out, err = g.Registry().ArgumentTypes(ctx, tagTypeID)
		return err
	})
	return out, err
}

func (s *Store) ArgumentTypeByName(ctx context.Context, tagTypeID types.TagTypeID, name string) (types.ArgumentType, error) {
	var arg types.ArgumentType
	err := s.withRead("argument type", func(g *taggraph.Graph) error {
		var err error
		arg, err = g.Registry().ArgumentTypeByName(ctx, tagTypeID, name)
		return err
	})
	return arg, err
}
