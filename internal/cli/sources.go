package cli

import (
	"io"

	"github.com/spf13/cobra"

	"sheetsync/internal/etl"
	_ "sheetsync/internal/etl/sources"
)

// NewSourcesCommand creates the sources command. It needs no config.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List source types and their options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := etl.ListSources()
			return rootOpts.printer(cmd).Print(specs, func(w io.Writer) { renderSources(w, specs) })
		},
	}
}
