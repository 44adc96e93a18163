package cmd

import (
	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a message",
	Long: `Delete a message from the boarddb store and print it as it was.
Its id is never handed out again.

Example:
  boarddb delete 1`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		svc, err := serviceFrom(cmd)
		if err != nil {
			return err
		}

		msg, err := svc.Delete(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, msg)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
