package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry/pkg/models"
)

func newLsCmd(e *env) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "ls <kind/id>",
		Short: "List the children of a resource",
		Long: `List the child folders (and, inside a folder, the items) of a resource.

The parent is given as kind/id, e.g. collection/5f3a... or folder/61bc...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireAuth(); err != nil {
				return err
			}
			kind, id, err := parseRef(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			table := uitable.New()
			table.MaxColWidth = 60
			table.AddRow("", "NAME", "ACCESS", "DETAILS")

			folders, err := e.client.ListFolders(ctx, models.ParentRef{Kind: kind, ID: id}, limit, offset)
			if err != nil {
				return err
			}
			for _, f := range folders.Resources {
				table.AddRow(
					color.BlueString("d"),
					color.BlueString(f.Name),
					f.Access.String(),
					fmt.Sprintf("%d folders, %d items", f.NFolders, f.NItems),
				)
			}

			if kind == models.KindFolder {
				items, err := e.client.ListItems(ctx, id, limit, offset)
				if err != nil {
					return err
				}
				for _, it := range items.Resources {
					table.AddRow("-", it.Name, "", humanize.Bytes(uint64(it.Size)))
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}
