package cmd

import (
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages in id order",
	Long: `List messages in ascending id order.

Examples:
  boarddb list
  boarddb list --after 10 --limit 5`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		after, _ := cmd.Flags().GetUint64("after")
		limit, _ := cmd.Flags().GetInt("limit")

		svc, err := serviceFrom(cmd)
		if err != nil {
			return err
		}

		msgs, err := svc.List(cmd.Context(), after, limit)
		if err != nil {
			return err
		}
		return printJSON(cmd, msgs)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Uint64("after", 0, "Only list messages with an id greater than this")
	listCmd.Flags().Int("limit", 0, "Maximum number of messages, 0 for all")
}
