package commands

import (
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tagstore/am"
	"github.com/teranos/tagstore/annot/snapshot"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/errors"
)

// ExportCmd writes a JSON snapshot of the store
var ExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the schema and all tags as a JSON snapshot (\"-\" for stdout)",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

// ImportCmd replays a JSON snapshot into the store
var ImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replay a JSON snapshot into the store (\"-\" for stdin)",
	Long: `Replay a JSON snapshot: schema first, then extent tags, then links,
keeping the snapshot's tag ids. Names or ids already present are rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runExport(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		snap, err := snapshot.Export(cmd.Context(), st)
		if err != nil {
			return err
		}

		if args[0] == "-" {
			return snapshot.Write(cmd.OutOrStdout(), snap)
		}

		f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, am.DefaultFilePermissions)
		if err != nil {
			return errors.Wrapf(err, "failed to create %s", args[0])
		}
		if err := snapshot.Write(f, snap); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "failed to close %s", args[0])
		}

		pterm.Success.Printf("Exported %d extent and %d link tags to %s\n", len(snap.Extents), len(snap.Links), args[0])
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", args[0])
		}
		defer f.Close()
		r = f
	}

	snap, err := snapshot.Read(r)
	if err != nil {
		return err
	}

	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		if err := snapshot.Import(cmd.Context(), st, snap); err != nil {
			return err
		}
		pterm.Success.Printf("Imported %d tag types, %d extent and %d link tags\n",
			len(snap.Schema), len(snap.Extents), len(snap.Links))
		return nil
	})
}
