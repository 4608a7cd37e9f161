package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tagstore/am"
	"github.com/teranos/tagstore/annot/schemafile"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/annot/types"
)

// SchemaCmd groups schema commands
var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Load and list tag types",
	Long: `schema - Load and list tag types

A schema file (TOML or YAML) declares extent and link tag types with their
attributes and arguments. Loading is additive: types already defined with
the same name are rejected.

Examples:
  tagstore schema load timeml.toml
  tagstore schema ls
  tagstore schema ls --links`,
}

var schemaLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Define the tag types of a schema file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaLoad,
}

var schemaLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List tag types",
	RunE:  runSchemaLs,
}

var (
	schemaLsExtents bool
	schemaLsLinks   bool
)

func init() {
	schemaLsCmd.Flags().BoolVar(&schemaLsExtents, "extents", false, "Only extent types")
	schemaLsCmd.Flags().BoolVar(&schemaLsLinks, "links", false, "Only link types")

	SchemaCmd.AddCommand(schemaLoadCmd)
	SchemaCmd.AddCommand(schemaLsCmd)
}

func runSchemaLoad(cmd *cobra.Command, args []string) error {
	f, err := schemafile.Load(args[0])
	if err != nil {
		return err
	}

	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		if err := schemafile.Apply(cmd.Context(), st, f); err != nil {
			return err
		}
		pterm.Success.Printf("Loaded schema %s (%d tag types)\n", f.Name, len(f.TagTypes))
		return nil
	})
}

func runSchemaLs(cmd *cobra.Command, args []string) error {
	incExtent, incLink := !schemaLsLinks || schemaLsExtents, !schemaLsExtents || schemaLsLinks

	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		ctx := cmd.Context()
		tagTypes, err := st.TagTypes(ctx, incExtent, incLink)
		if err != nil {
			return err
		}
		if len(tagTypes) == 0 {
			pterm.Info.Println("No tag types defined")
			return nil
		}

		data := pterm.TableData{{"Name", "Prefix", "Kind", "Attributes", "Arguments"}}
		for _, tt := range tagTypes {
			attrs, err := st.AttributeTypes(ctx, tt.ID)
			if err != nil {
				return err
			}
			var argCol string
			if tt.IsLink {
				argTypes, err := st.ArgumentTypes(ctx, tt.ID)
				if err != nil {
					return err
				}
				argCol = describeArguments(argTypes)
			}
			data = append(data, []string{tt.Name, tt.Prefix, describeKind(tt), describeAttributes(attrs), argCol})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
}

func describeKind(tt types.TagType) string {
	if tt.NonConsuming {
		return string(tt.Kind()) + " (non-consuming)"
	}
	return string(tt.Kind())
}

func describeAttributes(attrs []types.AttributeType) string {
	parts := make([]string, 0, len(attrs))
	for _, at := range attrs {
		part := at.Name
		if at.Required {
			part += "!"
		}
		if at.HasValueSet() {
			part += "{" + strings.Join(at.ValueSet, "|") + "}"
		}
		if at.Default != nil {
			part += fmt.Sprintf("=%s", *at.Default)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

func describeArguments(args []types.ArgumentType) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a.Required {
			parts = append(parts, a.Name+"!")
			continue
		}
		parts = append(parts, a.Name)
	}
	return strings.Join(parts, " ")
}
