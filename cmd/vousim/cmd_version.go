package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/vou/internal/calibration"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(out).Encode(map[string]string{
					"version":     version,
					"calibration": calibration.Version,
				})
			} else {
				fmt.Fprintf(out, "vousim version %s (calibration: %s)\n", version, calibration.Version)
			}
		},
	}
}
