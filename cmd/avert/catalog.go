package avert

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/avert/pkg/grouping"
	"github.com/soundprediction/avert/pkg/template"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the predefined template pairs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range template.Names() {
			t, err := template.Predefined(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", name, t)
		}
		return nil
	},
}

var groupingsCmd = &cobra.Command{
	Use:   "groupings",
	Short: "List the grouping methods",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range grouping.Available() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd, groupingsCmd)
}
