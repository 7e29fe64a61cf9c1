package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/kerbaras/comicdl/pkg/integrations"
	"github.com/kerbaras/comicdl/pkg/services"
	"github.com/spf13/cobra"
)

func newChaptersCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chapters [comic-id]",
		Short: "List the chapters of a comic",
		Long:  "List a comic's chapters with the titles they will be saved under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			c := services.Build(cfg, producer(), nil, &logger)

			comic, episodes, err := c.Source.ComicDetail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(episodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No chapters found.")
				return nil
			}

			var (
				headerStyle = lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center)
				cellStyle   = lipgloss.NewStyle().Padding(0, 1)
			)
			t := table.New().
				Border(lipgloss.HiddenBorder()).
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == table.HeaderRow {
						return headerStyle
					}
					return cellStyle
				}).
				Headers("#", "ID", "Title", "Status")

			for i, ep := range episodes {
				ch := services.NewChapter(i+1, ep, comic, cfg, nil)
				status := "available"
				switch {
				case !ch.Available():
					status = "locked"
				case integrations.IsAssembled(ch):
					status = "saved"
				}
				t.Row(strconv.Itoa(i+1), ep.ID, truncateString(ch.Title, 48), status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s (%d chapters)", comic.Title, len(episodes))))
			fmt.Fprintln(out, t)
			return nil
		},
	}
}
