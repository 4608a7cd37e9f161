package commands

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tagstore/am"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/errors"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the tagstore database",
	Long: `db - Manage the tagstore database

Examples:
  tagstore db stats                   # Show tag counts per type
  tagstore db destroy --yes           # Drop all tables and remove the file`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

var dbDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Drop all tables and remove the database file",
	Long: `Drop every table of the store. With database.remove_on_destroy (the
default) the database file is removed as well.`,
	RunE: runDbDestroy,
}

var destroyConfirmed bool

func init() {
	dbDestroyCmd.Flags().BoolVar(&destroyConfirmed, "yes", false, "Confirm destruction")

	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbDestroyCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}

		pterm.DefaultSection.Println("Database Statistics")
		pterm.Printf("Database Path:     %s\n", stats.Path)
		pterm.Printf("Working File:      %s\n", valueOrNone(stats.WorkingFile))
		pterm.Printf("Schema:            %s\n", valueOrNone(stats.SchemaName))
		pterm.Printf("Tag Types:         %d\n", stats.TagTypes)
		pterm.Printf("Total Tags:        %d\n", stats.TotalTags)
		pterm.Printf("Indexed Positions: %d\n", stats.IndexedPositions)
		pterm.Println()

		if len(stats.TagsByType) == 0 {
			return nil
		}
		names := make([]string, 0, len(stats.TagsByType))
		for name := range stats.TagsByType {
			names = append(names, name)
		}
		sort.Strings(names)

		data := pterm.TableData{{"Tag Type", "Tags"}}
		for _, name := range names {
			data = append(data, []string{name, fmt.Sprint(stats.TagsByType[name])})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
}

func runDbDestroy(cmd *cobra.Command, args []string) error {
	if !destroyConfirmed {
		return errors.WithHint(
			errors.NewInvalidRequestError("refusing to destroy without confirmation"),
			"re-run with --yes")
	}

	st, _, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	path := st.Path()
	if err := st.Destroy(cmd.Context()); err != nil {
		return err
	}
	pterm.Success.Printf("Destroyed %s\n", path)
	return nil
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
