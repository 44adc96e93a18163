package cmd

import (
	"github.com/spf13/cobra"
	"github.com/ssargent/boarddb/pkg/board"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a message",
	Long: `Create a message and print it with its assigned id.

Example:
  boarddb create --title "hello" --body "first post" --attachment-url https://example.com/a.png`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := serviceFrom(cmd)
		if err != nil {
			return err
		}

		msg, err := svc.Create(cmd.Context(), payloadFromFlags(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, msg)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	addPayloadFlags(createCmd)
}

func addPayloadFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "Message title")
	cmd.Flags().String("body", "", "Message body")
	cmd.Flags().String("attachment-url", "", "Attachment URL")
}

func payloadFromFlags(cmd *cobra.Command) board.Payload {
	title, _ := cmd.Flags().GetString("title")
	body, _ := cmd.Flags().GetString("body")
	url, _ := cmd.Flags().GetString("attachment-url")
	return board.Payload{Title: title, Body: body, AttachmentURL: url}
}
