package snapshot

import (
	"context"

	"github.com/teranos/tagstore/annot/spans"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/errors"
)

// Import replays snap into st: schema definitions first, then extent tags,
// then link tags, all with their original ids. The import commits as one
// transaction; a failure leaves st as it was.
func Import(ctx context.Context, st *store.Store, snap *Snapshot) error {
	return st.Atomic(ctx, func(st *store.Store) error {
		return replay(ctx, st, snap)
	})
}

func replay(ctx context.Context, st *store.Store, snap *Snapshot) error {
	if err := ImportSchema(ctx, st, snap.Schema); err != nil {
		return err
	}

	if snap.WorkingFile != "" {
		if err := st.SetWorkingFile(ctx, snap.WorkingFile); err != nil {
			return err
		}
	}
	if snap.SchemaName != "" {
		if err := st.SetSchemaName(ctx, snap.SchemaName); err != nil {
			return err
		}
	}

	for _, rec := range snap.Extents {
		source := rec.Source
		sp, err := spans.Parse(rec.Spans)
		if err != nil {
			return errors.Wrapf(err, "import extent %s", rec.ID)
		}
		if _, err := st.CreateTag(ctx, store.TagRequest{
			ID:           rec.ID,
			Type:         rec.Type,
			Text:         rec.Text,
			Spans:        sp,
			Attributes:   rec.Attributes,
			Source:       &source,
			SkipDefaults: true,
		}); err != nil {
			return errors.Wrapf(err, "import extent %s", rec.ID)
		}
	}

	for _, rec := range snap.Links {
		source := rec.Source
		if _, err := st.CreateTag(ctx, store.TagRequest{
			ID:           rec.ID,
			Type:         rec.Type,
			Arguments:    rec.Arguments,
			Attributes:   rec.Attributes,
			Source:       &source,
			SkipDefaults: true,
		}); err != nil {
			return errors.Wrapf(err, "import link %s", rec.ID)
		}
	}
	return nil
}

// ImportSchema defines every tag type in defs with its attribute and
// argument slots, all or nothing
func ImportSchema(ctx context.Context, st *store.Store, defs []TagTypeDef) error {
	return st.Atomic(ctx, func(st *store.Store) error {
		for _, def := range defs {
			if err := importTagType(ctx, st, def); err != nil {
				return errors.Wrapf(err, "import tag type %s", def.Name)
			}
		}
		return nil
	})
}

func importTagType(ctx context.Context, st *store.Store, def TagTypeDef) error {
	tt, err := st.DefineTagType(ctx, def.Name, def.Prefix, def.IsLink)
	if err != nil {
		return err
	}
	if def.NonConsuming {
		if err := st.SetNonConsuming(ctx, tt.ID, true); err != nil {
			return err
		}
	}

	for _, ad := range def.Attributes {
		at, err := st.DefineAttributeType(ctx, tt.ID, ad.Name)
		if err != nil {
			return err
		}
		if ad.ValueSet != nil {
			if err := st.SetValueSet(ctx, at.ID, ad.ValueSet); err != nil {
				return err
			}
		}
		if ad.Default != nil {
			if err := st.SetDefaultValue(ctx, at.ID, ad.Default); err != nil {
				return err
			}
		}
		if ad.Required {
			if err := st.SetAttributeRequired(ctx, at.ID, true); err != nil {
				return err
			}
		}
		if ad.IDRef {
			if err := st.SetIDRef(ctx, at.ID, true); err != nil {
				return err
			}
		}
	}

	for _, arg := range def.Arguments {
		at, err := st.DefineArgumentType(ctx, tt.ID, arg.Name)
		if err != nil {
			return err
		}
		if arg.Required {
			if err := st.SetArgumentRequired(ctx, at.ID, true); err != nil {
				return err
			}
		}
	}
	return nil
}
