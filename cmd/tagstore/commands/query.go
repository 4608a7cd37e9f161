package commands

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tagstore/am"
	"github.com/teranos/tagstore/annot/spans"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
)

// AtCmd lists tags covering a position
var AtCmd = &cobra.Command{
	Use:   "at <position>",
	Short: "List extent tags covering a character position",
	Example: `  tagstore at 5
  tagstore at 5 --by-type`,
	Args: cobra.ExactArgs(1),
	RunE: runAt,
}

// InCmd lists tags intersecting ranges
var InCmd = &cobra.Command{
	Use:   "in <spans>",
	Short: "List extent tags touching any of the given ranges",
	Example: `  tagstore in 0~10
  tagstore in 0~10,20~30 --by-type`,
	Args: cobra.ExactArgs(1),
	RunE: runIn,
}

// LocationsCmd lists the positions a tag type covers
var LocationsCmd = &cobra.Command{
	Use:   "locations <type>",
	Short: "List positions covered by a tag type",
	Long: `List positions covered by tags of a type. For a link type, the positions
of the extent tags its links argue. Positions covered by any --exclude type
are left out.`,
	Example: `  tagstore locations EVENT
  tagstore locations EVENT --exclude TIMEX3`,
	Args: cobra.ExactArgs(1),
	RunE: runLocations,
}

// LinksCmd lists the links arguing an extent tag
var LinksCmd = &cobra.Command{
	Use:   "links <extent-id>",
	Short: "List link tags that use an extent tag as an argument",
	Args:  cobra.ExactArgs(1),
	RunE:  runLinks,
}

var (
	queryByType      bool
	locationsExclude []string
)

func init() {
	AtCmd.Flags().BoolVar(&queryByType, "by-type", false, "Group results by tag type")
	InCmd.Flags().BoolVar(&queryByType, "by-type", false, "Group results by tag type")
	LocationsCmd.Flags().StringArrayVar(&locationsExclude, "exclude", nil, "Tag type whose positions are left out (repeatable)")
}

func parsePosition(s string) (int, error) {
	pos, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || pos < 0 {
		return 0, errors.NewInvalidRequestError("position %q must be a non-negative integer", s)
	}
	return pos, nil
}

func runAt(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}

	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		if queryByType {
			grouped, err := st.TagsByTypeAt(cmd.Context(), pos)
			if err != nil {
				return err
			}
			return renderGrouped(grouped)
		}
		tags, err := st.TagsAt(cmd.Context(), pos)
		if err != nil {
			return err
		}
		return renderExtents(tags)
	})
}

func runIn(cmd *cobra.Command, args []string) error {
	ranges, err := spans.Parse(args[0])
	if err != nil {
		return err
	}

	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		if queryByType {
			grouped, err := st.TagsByTypeIn(cmd.Context(), ranges)
			if err != nil {
				return err
			}
			return renderGrouped(grouped)
		}
		tags, err := st.TagsInRanges(cmd.Context(), ranges)
		if err != nil {
			return err
		}
		return renderExtents(tags)
	})
}

func runLocations(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		ctx := cmd.Context()
		tt, err := st.LookupByName(ctx, args[0])
		if err != nil {
			return err
		}

		excluding := make([]types.TagTypeID, 0, len(locationsExclude))
		for _, name := range locationsExclude {
			ex, err := st.LookupByName(ctx, name)
			if err != nil {
				return err
			}
			excluding = append(excluding, ex.ID)
		}

		positions, err := st.LocationsOfType(ctx, tt.ID, excluding...)
		if err != nil {
			return err
		}
		if len(positions) == 0 {
			pterm.Info.Printf("%s covers no positions\n", tt.Name)
			return nil
		}

		parts := make([]string, len(positions))
		for i, p := range positions {
			parts[i] = strconv.Itoa(p)
		}
		pterm.Printf("%s: %s\n", tt.Name, strings.Join(parts, " "))
		return nil
	})
}

func runLinks(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		byType, err := st.LinksReferencing(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		names := make([]string, 0, len(byType))
		for name := range byType {
			names = append(names, name)
		}
		sort.Strings(names)

		var links []*types.LinkTag
		for _, name := range names {
			links = append(links, byType[name]...)
		}
		return renderLinks(links)
	})
}
