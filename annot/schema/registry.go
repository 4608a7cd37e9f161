// Package schema holds tag-type definitions: tag types, the attribute types
// each tag type carries, and the argument types of link types.
//
// Definitions live in the tag_types, attribute_types and argument_types
// tables and are referenced everywhere else by integer id.
package schema

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/db"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// Query constants
const (
	tagTypeColumns       = `id, name, prefix, is_link, non_consuming`
	attributeTypeColumns = `id, tag_type_id, name, value_set, default_value, required, id_ref`
	argumentTypeColumns  = `id, tag_type_id, name, required`

	TagTypeInsertQuery = `
		INSERT INTO tag_types (name, prefix, is_link, non_consuming) VALUES (?, ?, ?, 0)`

	AttributeTypeInsertQuery = `
		INSERT INTO attribute_types (tag_type_id, name) VALUES (?, ?)`

	ArgumentTypeInsertQuery = `
		INSERT INTO argument_types (tag_type_id, name) VALUES (?, ?)`

	sentinelTagCountQuery = `
		SELECT COUNT(DISTINCT s.tag_id) FROM spans s
		JOIN tags t ON t.id = s.tag_id
		WHERE t.tag_type_id = ? AND s.start_pos = ? AND s.end_pos = ?`

	storedValuesQuery = `
		SELECT DISTINCT value FROM attributes WHERE attribute_type_id = ? ORDER BY value`
)

// Registry defines and looks up schema records
type Registry struct {
	q      db.Querier
	logger *zap.SugaredLogger
}

// NewRegistry creates a registry over q. A nil logger disables logging.
func NewRegistry(q db.Querier, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{q: q, logger: log}
}

// DefineTagType creates a new tag type. Names are unique across the schema.
func (r *Registry) DefineTagType(ctx context.Context, name, prefix string, isLink bool) (types.TagType, error) {
	if name == "" {
		return types.TagType{}, errors.NewInvalidRequestError("tag type name cannot be empty")
	}
	if _, err := r.LookupByName(ctx, name); err == nil {
		return types.TagType{}, errors.Mark(errors.ErrDuplicateName, "tag type %q already defined", name)
	} else if !errors.Is(err, errors.ErrUnknownType) {
		return types.TagType{}, err
	}

	res, err := r.q.ExecContext(ctx, TagTypeInsertQuery, name, prefix, isLink)
	if err != nil {
		return types.TagType{}, errors.Wrapf(err, "failed to insert tag type %s", name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.TagType{}, errors.Wrap(err, "failed to read tag type id")
	}

	r.logger.Debugw("Defined tag type", logger.FieldTagType, name, logger.FieldPrefix, prefix, logger.FieldIsLink, isLink)
	return types.TagType{ID: types.TagTypeID(id), Name: name, Prefix: prefix, IsLink: isLink}, nil
}

// DefineAttributeType adds an attribute slot to a tag type
func (r *Registry) DefineAttributeType(ctx context.Context, tagTypeID types.TagTypeID, name string) (types.AttributeType, error) {
	tt, err := r.TagType(ctx, tagTypeID)
	if err != nil {
		return types.AttributeType{}, err
	}
	if name == "" {
		return types.AttributeType{}, errors.NewInvalidRequestError("attribute type name cannot be empty")
	}
	if _, err := r.AttributeTypeByName(ctx, tagTypeID, name); err == nil {
		return types.AttributeType{}, errors.Mark(errors.ErrDuplicateName, "attribute %q already defined on %s", name, tt.Name)
	} else if !errors.Is(err, errors.ErrUnknownType) {
		return types.AttributeType{}, err
	}

	res, err := r.q.ExecContext(ctx, AttributeTypeInsertQuery, tagTypeID, name)
	if err != nil {
		return types.AttributeType{}, errors.Wrapf(err, "failed to insert attribute type %s.%s", tt.Name, name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.AttributeType{}, errors.Wrap(err, "failed to read attribute type id")
	}

	r.logger.Debugw("Defined attribute type", logger.FieldTagType, tt.Name, logger.FieldAttribute, name)
	return types.AttributeType{ID: types.AttributeTypeID(id), TagTypeID: tagTypeID, Name: name}, nil
}

// DefineArgumentType adds an argument slot to a link type
func (r *Registry) DefineArgumentType(ctx context.Context, tagTypeID types.TagTypeID, name string) (types.ArgumentType, error) {
	tt, err := r.TagType(ctx, tagTypeID)
	if err != nil {
		return types.ArgumentType{}, err
	}
	if !tt.IsLink {
		return types.ArgumentType{}, errors.Mark(errors.ErrTagKindMismatch, "%s is an extent type and cannot take arguments", tt.Name)
	}
	if name == "" {
		return types.ArgumentType{}, errors.NewInvalidRequestError("argument type name cannot be empty")
	}
	if _, err := r.ArgumentTypeByName(ctx, tagTypeID, name); err == nil {
		return types.ArgumentType{}, errors.Mark(errors.ErrDuplicateName, "argument %q already defined on %s", name, tt.Name)
	} else if !errors.Is(err, errors.ErrUnknownArgumentType) {
		return types.ArgumentType{}, err
	}

	res, err := r.q.ExecContext(ctx, ArgumentTypeInsertQuery, tagTypeID, name)
	if err != nil {
		return types.ArgumentType{}, errors.Wrapf(err, "failed to insert argument type %s.%s", tt.Name, name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.ArgumentType{}, errors.Wrap(err, "failed to read argument type id")
	}

	r.logger.Debugw("Defined argument type", logger.FieldTagType, tt.Name, logger.FieldArgument, name)
	return types.ArgumentType{ID: types.ArgumentTypeID(id), TagTypeID: tagTypeID, Name: name}, nil
}

// SetPrefix changes the prefix used for ids generated after this call
func (r *Registry) SetPrefix(ctx context.Context, tagTypeID types.TagTypeID, prefix string) error {
	return r.update(ctx, `UPDATE tag_types SET prefix = ? WHERE id = ?`, prefix, tagTypeID)
}

// SetNonConsuming allows tags of an extent type to exist without a span
func (r *Registry) SetNonConsuming(ctx context.Context, tagTypeID types.TagTypeID, nonConsuming bool) error {
	tt, err := r.TagType(ctx, tagTypeID)
	if err != nil {
		return err
	}
	if tt.IsLink && nonConsuming {
		return errors.Mark(errors.ErrTagKindMismatch, "link type %s cannot be non-consuming", tt.Name)
	}
	// A type cannot become consuming while its tags hold the sentinel span
	if tt.NonConsuming && !nonConsuming {
		var n int
		err := r.q.QueryRowContext(ctx, sentinelTagCountQuery, tagTypeID, types.NCPosition, types.NCPosition).Scan(&n)
		if err != nil {
			return errors.Wrap(err, "failed to count non-consuming tags")
		}
		if n > 0 {
			return errors.WithHintf(
				errors.Mark(errors.ErrInvalidSpan, "%d %s tag(s) have no span", n, tt.Name),
				"remove those tags or give them spans before making %s consuming", tt.Name)
		}
	}
	return r.update(ctx, `UPDATE tag_types SET non_consuming = ? WHERE id = ?`, nonConsuming, tagTypeID)
}

// SetValueSet restricts an attribute to a closed list of values. A nil list
// returns it to free text. An existing default and every stored value must
// belong to the new list.
func (r *Registry) SetValueSet(ctx context.Context, attTypeID types.AttributeTypeID, values []string) error {
	at, err := r.AttributeType(ctx, attTypeID)
	if err != nil {
		return err
	}
	var encoded sql.NullString
	if values != nil {
		data, err := json.Marshal(values)
		if err != nil {
			return errors.Wrap(err, "failed to marshal value set")
		}
		encoded = sql.NullString{String: string(data), Valid: true}
		at.ValueSet = values
		if at.Default != nil && !at.Allows(*at.Default) {
			return errors.Mark(errors.ErrInvalidAttributeValue, "default %q of %s is not in the new value set", *at.Default, at.Name)
		}
		if err := r.checkStoredValues(ctx, at); err != nil {
			return err
		}
	}
	return r.update(ctx, `UPDATE attribute_types SET value_set = ? WHERE id = ?`, encoded, attTypeID)
}

// SetDefaultValue sets the value applied when a tag is created without one.
// A nil value clears the default.
func (r *Registry) SetDefaultValue(ctx context.Context, attTypeID types.AttributeTypeID, value *string) error {
	at, err := r.AttributeType(ctx, attTypeID)
	if err != nil {
		return err
	}
	var encoded sql.NullString
	if value != nil {
		if !at.Allows(*value) {
			return errors.Mark(errors.ErrInvalidAttributeValue, "default %q of %s is not in its value set", *value, at.Name)
		}
		encoded = sql.NullString{String: *value, Valid: true}
	}
	return r.update(ctx, `UPDATE attribute_types SET default_value = ? WHERE id = ?`, encoded, attTypeID)
}

// SetIDRef marks an attribute's value as a tag id reference
func (r *Registry) SetIDRef(ctx context.Context, attTypeID types.AttributeTypeID, idRef bool) error {
	return r.update(ctx, `UPDATE attribute_types SET id_ref = ? WHERE id = ?`, idRef, attTypeID)
}

// SetAttributeRequired marks an attribute as required for export
func (r *Registry) SetAttributeRequired(ctx context.Context, attTypeID types.AttributeTypeID, required bool) error {
	return r.update(ctx, `UPDATE attribute_types SET required = ? WHERE id = ?`, required, attTypeID)
}

// SetArgumentRequired marks an argument as required for export
func (r *Registry) SetArgumentRequired(ctx context.Context, argTypeID types.ArgumentTypeID, required bool) error {
	return r.update(ctx, `UPDATE argument_types SET required = ? WHERE id = ?`, required, argTypeID)
}

// checkStoredValues rejects a value set that excludes values already bound
// to tags
func (r *Registry) checkStoredValues(ctx context.Context, at types.AttributeType) error {
	rows, err := r.q.QueryContext(ctx, storedValuesQuery, at.ID)
	if err != nil {
		return errors.Wrap(err, "failed to query attribute values")
	}
	var stored []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return errors.Wrap(err, "failed to scan attribute value")
		}
		stored = append(stored, v)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return errors.Wrap(err, "failed to read attribute values")
	}

	for _, v := range stored {
		if !at.Allows(v) {
			return errors.WithHint(
				errors.Mark(errors.ErrInvalidAttributeValue, "%s already holds %q, which is not in the new value set", at.Name, v),
				"change or remove those values first")
		}
	}
	return nil
}

func (r *Registry) update(ctx context.Context, query string, value any, id any) error {
	res, err := r.q.ExecContext(ctx, query, value, id)
	if err != nil {
		return errors.Wrap(err, "failed to update schema record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.Mark(errors.ErrUnknownType, "no schema record with id %v", id)
	}
	return nil
}
