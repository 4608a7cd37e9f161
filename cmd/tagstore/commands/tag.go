package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tagstore/am"
	"github.com/teranos/tagstore/annot/spans"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
)

// TagCmd groups tag mutations
var TagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Create, show and remove tags",
	Long: `tag - Create, show and remove tags

Examples:
  tagstore tag add EVENT --spans 4~7 --text ran --attr class=OCCURRENCE
  tagstore tag add NOTE --text "check tense"          # non-consuming type
  tagstore tag add EVENT --id E5 --spans 10~14 --text fell
  tagstore tag link TLINK --arg FROM=E1 --arg TO=t1 --attr relType=BEFORE
  tagstore tag show E1
  tagstore tag rm E1 --cascade`,
}

var tagAddCmd = &cobra.Command{
	Use:   "add <type>",
	Short: "Create an extent tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagAdd,
}

var tagLinkCmd = &cobra.Command{
	Use:   "link <type>",
	Short: "Create a link tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagLink,
}

var tagShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagShow,
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a tag",
	Long: `Remove a tag. An extent tag argued by links is refused unless
--cascade is given, which removes those links first.`,
	Args: cobra.ExactArgs(1),
	RunE: runTagRm,
}

var (
	tagID        string
	tagSpans     string
	tagText      string
	tagSource    string
	tagAttrs     []string
	tagArgs      []string
	tagNoDefault bool
	tagCascade   bool
)

func init() {
	for _, c := range []*cobra.Command{tagAddCmd, tagLinkCmd} {
		c.Flags().StringVar(&tagID, "id", "", "Tag id (allocated from the type prefix when empty)")
		c.Flags().StringVar(&tagSource, "source", "", "Source reference (defaults to store.source or the working file)")
		c.Flags().StringArrayVar(&tagAttrs, "attr", nil, "Attribute name=value (repeatable)")
		c.Flags().BoolVar(&tagNoDefault, "no-defaults", false, "Do not fill attribute defaults")
	}
	tagAddCmd.Flags().StringVar(&tagSpans, "spans", "", "Spans as start~end[,start~end] (omit for non-consuming types)")
	tagAddCmd.Flags().StringVar(&tagText, "text", "", "Covered text")
	tagLinkCmd.Flags().StringArrayVar(&tagArgs, "arg", nil, "Argument name=extent-id (repeatable)")
	tagRmCmd.Flags().BoolVar(&tagCascade, "cascade", false, "Also remove links arguing the tag (default from store.cascade_remove)")

	TagCmd.AddCommand(tagAddCmd)
	TagCmd.AddCommand(tagLinkCmd)
	TagCmd.AddCommand(tagShowCmd)
	TagCmd.AddCommand(tagRmCmd)
}

func runTagAdd(cmd *cobra.Command, args []string) error {
	sp, err := spans.Parse(tagSpans)
	if err != nil {
		return err
	}
	attrs, err := parseAssignments("attr", tagAttrs)
	if err != nil {
		return err
	}

	return createTag(cmd, store.TagRequest{
		ID:           tagID,
		Type:         args[0],
		Text:         tagText,
		Spans:        sp,
		Attributes:   attrs,
		SkipDefaults: tagNoDefault,
	})
}

func runTagLink(cmd *cobra.Command, args []string) error {
	bindings, err := parseAssignments("arg", tagArgs)
	if err != nil {
		return err
	}
	attrs, err := parseAssignments("attr", tagAttrs)
	if err != nil {
		return err
	}

	return createTag(cmd, store.TagRequest{
		ID:           tagID,
		Type:         args[0],
		Arguments:    bindings,
		Attributes:   attrs,
		SkipDefaults: tagNoDefault,
	})
}

func createTag(cmd *cobra.Command, req store.TagRequest) error {
	if cmd.Flags().Changed("source") {
		req.Source = &tagSource
	}
	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		tag, err := st.CreateTag(cmd.Context(), req)
		if err != nil {
			return err
		}
		pterm.Success.Printf("Created %s %s\n", tag.TagType().Name, tag.TagID())
		return nil
	})
}

func runTagShow(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		tag, err := st.Tag(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		switch t := tag.(type) {
		case *types.ExtentTag:
			return renderExtents([]*types.ExtentTag{t})
		case *types.LinkTag:
			return renderLinks([]*types.LinkTag{t})
		}
		return errors.AssertionFailedf("unexpected tag type %T", tag)
	})
}

func runTagRm(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(st *store.Store, cfg *am.Config) error {
		cascade := cfg.Store.CascadeRemove
		if cmd.Flags().Changed("cascade") {
			cascade = tagCascade
		}

		removed, err := st.RemoveTag(cmd.Context(), args[0], cascade)
		if err != nil {
			return err
		}
		for _, id := range removed {
			pterm.Success.Printf("Removed %s\n", id)
		}
		return nil
	})
}
