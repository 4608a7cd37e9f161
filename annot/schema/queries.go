package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTagType(s rowScanner) (types.TagType, error) {
	var tt types.TagType
	err := s.Scan(&tt.ID, &tt.Name, &tt.Prefix, &tt.IsLink, &tt.NonConsuming)
	return tt, err
}

func scanAttributeType(s rowScanner) (types.AttributeType, error) {
	var (
		at       types.AttributeType
		valueSet sql.NullString
		def      sql.NullString
	)
	if err := s.Scan(&at.ID, &at.TagTypeID, &at.Name, &valueSet, &def, &at.Required, &at.IDRef); err != nil {
		return at, err
	}
	if valueSet.Valid {
		if err := json.Unmarshal([]byte(valueSet.String), &at.ValueSet); err != nil {
			return at, errors.Wrapf(err, "corrupt value set on attribute %s", at.Name)
		}
		if at.ValueSet == nil {
			at.ValueSet = []string{}
		}
	}
	if def.Valid {
		v := def.String
		at.Default = &v
	}
	return at, nil
}

func scanArgumentType(s rowScanner) (types.ArgumentType, error) {
	var arg types.ArgumentType
	err := s.Scan(&arg.ID, &arg.TagTypeID, &arg.Name, &arg.Required)
	return arg, err
}

// TagTypes lists tag types in definition order, filtered by kind
func (r *Registry) TagTypes(ctx context.Context, includeExtent, includeLink bool) ([]types.TagType, error) {
	if !includeExtent && !includeLink {
		return []types.TagType{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM tag_types`, tagTypeColumns)
	switch {
	case includeExtent && !includeLink:
		query += ` WHERE is_link = 0`
	case includeLink && !includeExtent:
		query += ` WHERE is_link = 1`
	}
	query += ` ORDER BY id`
	return r.queryTagTypes(ctx, query)
}

// NonConsumingTagTypes lists extent types whose tags may lack a span
func (r *Registry) NonConsumingTagTypes(ctx context.Context) ([]types.TagType, error) {
	query := fmt.Sprintf(`SELECT %s FROM tag_types WHERE non_consuming = 1 ORDER BY id`, tagTypeColumns)
	return r.queryTagTypes(ctx, query)
}

func (r *Registry) queryTagTypes(ctx context.Context, query string, args ...any) ([]types.TagType, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tag types")
	}
	defer rows.Close()

	out := []types.TagType{}
	for rows.Next() {
		tt, err := scanTagType(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan tag type")
		}
		out = append(out, tt)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate tag types")
}

// LookupByName finds a tag type by its unique name
func (r *Registry) LookupByName(ctx context.Context, name string) (types.TagType, error) {
	query := fmt.Sprintf(`SELECT %s FROM tag_types WHERE name = ?`, tagTypeColumns)
	tt, err := scanTagType(r.q.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return tt, errors.Mark(errors.ErrUnknownType, "tag type %q is not defined", name)
	}
	if err != nil {
		return tt, errors.Wrapf(err, "failed to look up tag type %s", name)
	}
	return tt, nil
}

// TagType loads a tag type by id
func (r *Registry) TagType(ctx context.Context, id types.TagTypeID) (types.TagType, error) {
	query := fmt.Sprintf(`SELECT %s FROM tag_types WHERE id = ?`, tagTypeColumns)
	tt, err := scanTagType(r.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return tt, errors.Mark(errors.ErrUnknownType, "tag type #%d is not defined", id)
	}
	if err != nil {
		return tt, errors.Wrapf(err, "failed to load tag type #%d", id)
	}
	return tt, nil
}

// AttributeTypes lists the attribute types of a tag type in definition order
func (r *Registry) AttributeTypes(ctx context.Context, tagTypeID types.TagTypeID) ([]types.AttributeType, error) {
	query := fmt.Sprintf(`SELECT %s FROM attribute_types WHERE tag_type_id = ? ORDER BY id`, attributeTypeColumns)
	rows, err := r.q.QueryContext(ctx, query, tagTypeID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query attribute types")
	}
	defer rows.Close()

	out := []types.AttributeType{}
	for rows.Next() {
		at, err := scanAttributeType(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan attribute type")
		}
		out = append(out, at)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate attribute types")
}

// AttributeTypeByName finds an attribute type within one tag type
func (r *Registry) AttributeTypeByName(ctx context.Context, tagTypeID types.TagTypeID, name string) (types.AttributeType, error) {
	query := fmt.Sprintf(`SELECT %s FROM attribute_types WHERE tag_type_id = ? AND name = ?`, attributeTypeColumns)
	at, err := scanAttributeType(r.q.QueryRowContext(ctx, query, tagTypeID, name))
	if err == sql.ErrNoRows {
		return at, errors.Mark(errors.ErrUnknownType, "attribute %q is not defined on tag type #%d", name, tagTypeID)
	}
	if err != nil {
		return at, errors.Wrapf(err, "failed to look up attribute type %s", name)
	}
	return at, nil
}

// AttributeType loads an attribute type by id
func (r *Registry) AttributeType(ctx context.Context, id types.AttributeTypeID) (types.AttributeType, error) {
	query := fmt.Sprintf(`SELECT %s FROM attribute_types WHERE id = ?`, attributeTypeColumns)
	at, err := scanAttributeType(r.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return at, errors.Mark(errors.ErrUnknownType, "attribute type #%d is not defined", id)
	}
	if err != nil {
		return at, errors.Wrapf(err, "failed to load attribute type #%d", id)
	}
	return at, nil
}

// ArgumentTypes lists the argument types of a link type in definition order
func (r *Registry) ArgumentTypes(ctx context.Context, tagTypeID types.TagTypeID) ([]types.ArgumentType, error) {
	query := fmt.Sprintf(`SELECT %s FROM argument_types WHERE tag_type_id = ? ORDER BY id`, argumentTypeColumns)
	rows, err := r.q.QueryContext(ctx, query, tagTypeID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query argument types")
	}
	defer rows.Close()

	out := []types.ArgumentType{}
	for rows.Next() {
		arg, err := scanArgumentType(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan argument type")
		}
		out = append(out, arg)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate argument types")
}

// ArgumentTypeByName finds an argument type within one link type
func (r *Registry) ArgumentTypeByName(ctx context.Context, tagTypeID types.TagTypeID, name string) (types.ArgumentType, error) {
	query := fmt.Sprintf(`SELECT %s FROM argument_types WHERE tag_type_id = ? AND name = ?`, argumentTypeColumns)
	arg, err := scanArgumentType(r.q.QueryRowContext(ctx, query, tagTypeID, name))
	if err == sql.ErrNoRows {
		return arg, errors.Mark(errors.ErrUnknownArgumentType, "argument %q is not defined on tag type #%d", name, tagTypeID)
	}
	if err != nil {
		return arg, errors.Wrapf(err, "failed to look up argument type %s", name)
	}
	return arg, nil
}

// ArgumentType loads an argument type by id
func (r *Registry) ArgumentType(ctx context.Context, id types.ArgumentTypeID) (types.ArgumentType, error) {
	query := fmt.Sprintf(`SELECT %s FROM argument_types WHERE id = ?`, argumentTypeColumns)
	arg, err := scanArgumentType(r.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return arg, errors.Mark(errors.ErrUnknownArgumentType, "argument type #%d is not defined", id)
	}
	if err != nil {
		return arg, errors.Wrapf(err, "failed to load argument type #%d", id)
	}
	return arg, nil
}
