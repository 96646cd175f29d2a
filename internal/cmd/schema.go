package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foresight/internal/dataset"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of staged and uploaded datasets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(dataset.Schema())
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
