// File: cmd/validate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scenario-cli/internal/suite"
)

// newValidateCmd checks scenario files against the step grammar without starting a browser.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Checks scenario files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := suite.Load(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, entry := range entries {
				sc := entry.Scenario
				fmt.Fprintf(out, "ok  %s  name=%q iterations=%d precondition_steps=%d steps=%d\n",
					entry.Path, sc.Name, sc.Iterations, len(sc.Precondition.Steps), len(sc.Steps))
			}
			return nil
		},
	}
}
