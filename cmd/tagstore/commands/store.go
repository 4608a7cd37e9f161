package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/tagstore/am"
	"github.com/teranos/tagstore/annot/spans"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// DBPath overrides database.path when set (bound to the global --db flag)
var DBPath string

// storeOptions maps configuration onto store options
func storeOptions(cfg *am.Config) store.Options {
	path := cfg.GetDatabasePath()
	if DBPath != "" {
		path = DBPath
	}
	return store.Options{
		Path:            path,
		ResetOnOpen:     cfg.Database.ResetOnOpen,
		RemoveOnDestroy: cfg.Database.RemoveOnDestroy,
		Source:          cfg.Store.Source,
		FillDefaults:    cfg.Store.FillDefaults,
		Logger:          logger.ComponentLogger("store"),
	}
}

// openStore opens the configured database. Callers close the store.
func openStore(ctx context.Context) (*store.Store, *am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}

	st, err := store.Open(ctx, storeOptions(cfg))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open store")
	}
	return st, cfg, nil
}

// withStore opens the store, runs fn and closes the store
func withStore(ctx context.Context, fn func(st *store.Store, cfg *am.Config) error) error {
	st, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st, cfg)
}

// parseAssignments splits repeated name=value flags
func parseAssignments(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, kv := range values {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.WithHintf(
				errors.NewInvalidRequestError("--%s %q is not name=value", flag, kv),
				"example: --%s FROM=E1", flag)
		}
		if _, dup := out[name]; dup {
			return nil, errors.NewInvalidRequestError("--%s %s given twice", flag, name)
		}
		out[name] = value
	}
	return out, nil
}

func formatAttributes(attrs []types.Attribute) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, a.Name+"="+a.Value)
	}
	return strings.Join(parts, " ")
}

func formatArguments(args []types.Argument) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.Name+"="+a.TagID)
	}
	return strings.Join(parts, " ")
}

// renderExtents prints extent tags as a table
func renderExtents(tags []*types.ExtentTag) error {
	if len(tags) == 0 {
		pterm.Info.Println("No tags")
		return nil
	}
	data := pterm.TableData{{"ID", "Type", "Spans", "Text", "Attributes"}}
	for _, t := range tags {
		data = append(data, []string{t.ID, t.Type.Name, spans.Format(t.Spans), t.Text, formatAttributes(t.Attributes)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// renderLinks prints link tags as a table
func renderLinks(tags []*types.LinkTag) error {
	if len(tags) == 0 {
		pterm.Info.Println("No links")
		return nil
	}
	data := pterm.TableData{{"ID", "Type", "Arguments", "Attributes"}}
	for _, t := range tags {
		data = append(data, []string{t.ID, t.Type.Name, formatArguments(t.Arguments), formatAttributes(t.Attributes)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// renderGrouped prints a type-name keyed map in name order
func renderGrouped(grouped map[string][]*types.ExtentTag) error {
	if len(grouped) == 0 {
		pterm.Info.Println("No tags")
		return nil
	}
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pterm.DefaultSection.Println(fmt.Sprintf("%s (%d)", name, len(grouped[name])))
		if err := renderExtents(grouped[name]); err != nil {
			return err
		}
	}
	return nil
}
