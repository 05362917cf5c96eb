package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the analysis service is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		h, err := newClient().Health(cmd.Context(), conf.Services.Analysis.URL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: status=%s model_trained=%t\n", conf.Services.Analysis.URL, h.Status, h.ModelTrained)
		return nil
	},
}
