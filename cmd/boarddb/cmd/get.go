package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a message by id",
	Long: `Get a message from the boarddb store.

Example:
  boarddb get 1`,
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

		msg, err := svc.Read(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, msg)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return id, nil
}
