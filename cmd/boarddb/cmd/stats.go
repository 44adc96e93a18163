package cmd

import (
	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:         "stats",
	Short:       "Show store statistics",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := serviceFrom(cmd)
		if err != nil {
			return err
		}
		return printJSON(cmd, svc.Stats())
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
