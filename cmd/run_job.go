package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	apperrors "github.com/vodhub/vodhub/internal/errors"
)

var runJobCmd = &cobra.Command{
	Use:   "run-job <name>",
	Short: "Execute a single job to completion and exit",
	Long: `Run one registered job outside the scheduler, for cron-driven setups
and manual operation. The at-most-one contract still holds: if the job
is already running the command refuses and exits non-zero.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		a, err := buildApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting engine: %v\n", err)
			os.Exit(2)
		}
		defer a.close()

		err = a.engine.Run(context.Background(), name)
		switch {
		case err == nil:
		case apperrors.IsCode(err, apperrors.CodeUnknownJob):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		case apperrors.IsAuthError(err):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		default:
			fmt.Fprintf(os.Stderr, "Error: job failed: %v\n", err)
			os.Exit(1)
		}
	},
}
