package store

import (
	"context"
	"fmt"

	"github.com/teranos/tagstore/annot/taggraph"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/logger"
)

// ProblemKind classifies a Validate finding
type ProblemKind string

const (
	ProblemUnresolvedIDRef  ProblemKind = "unresolved_id_ref"
	ProblemMissingArgument  ProblemKind = "missing_argument"
	ProblemMissingAttribute ProblemKind = "missing_attribute"
)

// Problem is a constraint that is checked lazily rather than on write
type Problem struct {
	TagID string      `json:"tag_id"`
	Kind  ProblemKind `json:"kind"`
	Name  string      `json:"name"`
	Value string      `json:"value,omitempty"`
}

func (p Problem) String() string {
	switch p.Kind {
	case ProblemUnresolvedIDRef:
		return fmt.Sprintf("%s: %s refers to missing tag %q", p.TagID, p.Name, p.Value)
	case ProblemMissingArgument:
		return fmt.Sprintf("%s: required argument %s is unbound", p.TagID, p.Name)
	default:
		return fmt.Sprintf("%s: required attribute %s is unset", p.TagID, p.Name)
	}
}

// Validate reports idRef attributes naming no existing tag, required
// arguments left unbound and required attributes left unset. Tags are
// visited in load order.
func (s *Store) Validate(ctx context.Context) ([]Problem, error) {
	problems, err := read(s, "validate", func(g *taggraph.Graph) ([]Problem, error) {
		return validate(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("Validated", logger.FieldCount, len(problems))
	return problems, nil
}

func validate(ctx context.Context, g *taggraph.Graph) ([]Problem, error) {
	tags, err := g.AllTags(ctx)
	if err != nil {
		return nil, err
	}

	attrTypes := make(map[types.TagTypeID][]types.AttributeType)
	argTypes := make(map[types.TagTypeID][]types.ArgumentType)
	problems := []Problem{}

	for _, tag := range tags {
		tt := tag.TagType()
		ats, ok := attrTypes[tt.ID]
		if !ok {
			if ats, err = g.Registry().AttributeTypes(ctx, tt.ID); err != nil {
				return nil, err
			}
			attrTypes[tt.ID] = ats
		}

		for _, at := range ats {
			value, set := tag.AttributeValue(at.Name)
			if !set {
				if at.Required {
					problems = append(problems, Problem{TagID: tag.TagID(), Kind: ProblemMissingAttribute, Name: at.Name})
				}
				continue
			}
			if at.IDRef {
				exists, err := g.IDExists(ctx, value)
				if err != nil {
					return nil, err
				}
				if !exists {
					problems = append(problems, Problem{TagID: tag.TagID(), Kind: ProblemUnresolvedIDRef, Name: at.Name, Value: value})
				}
			}
		}

		link, isLink := tag.(*types.LinkTag)
		if !isLink {
			continue
		}
		args, ok := argTypes[tt.ID]
		if !ok {
			if args, err = g.Registry().ArgumentTypes(ctx, tt.ID); err != nil {
				return nil, err
			}
			argTypes[tt.ID] = args
		}
		for _, arg := range args {
			if _, bound := link.Argument(arg.Name); arg.Required && !bound {
				problems = append(problems, Problem{TagID: link.ID, Kind: ProblemMissingArgument, Name: arg.Name})
			}
		}
	}
	return problems, nil
}
