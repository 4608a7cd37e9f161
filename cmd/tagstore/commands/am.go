package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/tagstore/am"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage tagstore configuration",
	Long: `am - Manage tagstore configuration

Configuration sources (in order of precedence):
1. Command line flags (--db)
2. Environment variables (TAGSTORE_* prefix)
3. Project config (nearest tagstore.toml, searching up directories)
4. User config (~/.tagstore/tagstore.toml)
5. System config (/etc/tagstore/tagstore.toml)
6. Default values

Examples:
  tagstore am show                    # Show current configuration
  tagstore am show --format yaml      # Show configuration in YAML format
  tagstore am get database.path       # Get specific config value
  tagstore am set log.level info      # Write a value to the project config
  tagstore am validate                # Validate current configuration
  tagstore am where                   # Show where each value came from`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current tagstore configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, store.fill_defaults)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the project config",
	Long: `Write a value to the nearest tagstore.toml, creating ./tagstore.toml if
there is none. The file keeps up to three backups (.back1 to .back3).`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Fprintf(out, "# tagstore configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Fprintf(out, "# tagstore configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path, err := am.ProjectConfigPath()
	if err != nil {
		return err
	}
	if _, err := am.SetValue(path, args[0], args[1]); err != nil {
		return err
	}
	pterm.Success.Printf("Set %s = %s in %s\n", args[0], args[1], path)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return fmt.Errorf("failed to get config introspection: %w", err)
	}

	pterm.Println("Configuration cascade (later overrides earlier):")
	pterm.Println("  [default]      built-in defaults")
	for _, si := range am.SearchPaths() {
		state := "missing"
		if _, err := os.Stat(si.Path); err == nil {
			state = "loaded"
		}
		pterm.Printf("  [%-11s]  %s (%s)\n", si.Source, si.Path, state)
	}
	pterm.Printf("  [environment]  %s_* variables\n", am.EnvPrefix)
	pterm.Println()

	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range intro.Settings {
		data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.Println()
	pterm.Println("Settings per source: " + summarizeSources(am.GetConfigSummary()))
	return nil
}

// summarizeSources renders the per-source counts as "default=5, project=2"
func summarizeSources(summary map[string]interface{}) string {
	counts, _ := summary["sources"].(map[string]int)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, counts[name]))
	}
	return strings.Join(parts, ", ")
}
