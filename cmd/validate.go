package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitecore/dispatchcore/core/dispatch"
)

var validateCmd = &cobra.Command{
	Use:   "validate <request.json>",
	Short: "Normalize a request file and report whether it is valid, without solving",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var req dispatch.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	if _, err := dispatch.Normalize(req, noForecastFetcher{}); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "invalid: %v\n", err)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
