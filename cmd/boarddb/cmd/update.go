package cmd

import (
	"github.com/spf13/cobra"
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace the content of a message",
	Long: `Replace the title, body and attachment URL of an existing message.
Fields not given are set to empty. Updating a missing id fails.

Example:
  boarddb update 1 --title "hello again" --body "edited"`,
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

		msg, err := svc.Update(cmd.Context(), id, payloadFromFlags(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, msg)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	addPayloadFlags(updateCmd)
}
