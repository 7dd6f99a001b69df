package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var baseURL, token string

	cmd := &cobra.Command{
		Use:   "status <import-id>",
		Short: "Show progress of an import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			importID, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid import id: %w", err))
			}

			client, err := newCaseAPIClient(baseURL, token)
			if err != nil {
				return err
			}
			job, err := client.getStatus(cmd.Context(), importID)
			if err != nil {
				return classifyAPIError(err)
			}
			return writeJSONLine(job)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server base URL (default: configured origin)")
	cmd.Flags().StringVar(&token, "token", os.Getenv("CASEFLOW_TOKEN"), "Bearer token (default: CASEFLOW_TOKEN)")
	return cmd
}
