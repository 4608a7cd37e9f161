package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/tagstore/am"
	"github.com/teranos/tagstore/cmd/tagstore/commands"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tagstore",
	Short: "tagstore - span annotation store",
	Long: `tagstore - span annotation store for text corpora.

Extent tags mark character spans of a document, link tags relate extent
tags through named arguments. Everything lives in one SQLite file.

Available commands:
  am        - Show and validate configuration
  schema    - Load and list tag types
  tag       - Create, show and remove tags
  at, in    - Query tags by position
  locations - Positions covered by a tag type
  links     - Links arguing an extent tag
  validate  - Report unresolved references and missing values
  export    - Write a JSON snapshot
  import    - Replay a JSON snapshot
  db        - Database statistics and teardown

Examples:
  tagstore schema load timeml.toml
  tagstore tag add EVENT --spans 4~7 --text ran --attr class=OCCURRENCE
  tagstore tag link TLINK --arg FROM=E1 --arg TO=t1
  tagstore at 5
  tagstore db stats`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		if verbosity > 0 {
			err = logger.InitializeWithVerbosity(cfg.Log.JSON, verbosity)
		} else {
			level, _ := logger.ParseLevel(cfg.Log.Level)
			err = logger.InitializeWithLevel(cfg.Log.JSON, level)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().StringVar(&commands.DBPath, "db", "", "Database path (overrides database.path)")

	// Add commands
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.SchemaCmd)
	rootCmd.AddCommand(commands.TagCmd)
	rootCmd.AddCommand(commands.AtCmd)
	rootCmd.AddCommand(commands.InCmd)
	rootCmd.AddCommand(commands.LocationsCmd)
	rootCmd.AddCommand(commands.LinksCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.ExportCmd)
	rootCmd.AddCommand(commands.ImportCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
