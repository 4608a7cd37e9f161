package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tagstore/am"
	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/errors"
)

// ValidateCmd reports problems that are only checked lazily
var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report unresolved id references and missing required values",
	Long: `Report problems the store accepts at write time but a finished
annotation should not have: id-reference attributes naming missing tags,
required attributes left unset, and links missing required arguments.

Exits non-zero when any problem is found.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(st *store.Store, _ *am.Config) error {
		problems, err := st.Validate(cmd.Context())
		if err != nil {
			return err
		}
		if len(problems) == 0 {
			pterm.Success.Println("No problems found")
			return nil
		}

		data := pterm.TableData{{"Tag", "Problem", "Name", "Value"}}
		for _, p := range problems {
			data = append(data, []string{p.TagID, string(p.Kind), p.Name, p.Value})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
		return errors.Newf("%d problem(s) found", len(problems))
	})
}
