package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newErrorsCmd() *cobra.Command {
	var baseURL, token, output string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "errors <import-id>",
		Short: "Fetch the validation errors of an import",
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

			// --output downloads the server-rendered CSV report; without it
			// one JSON page goes to stdout.
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return withCode(exitUsage, err)
				}
				defer func() { _ = f.Close() }()
				if err := client.downloadErrorsCSV(cmd.Context(), importID, f); err != nil {
					return classifyAPIError(err)
				}
				return writeJSONLine(map[string]any{"importId": importID, "output": output})
			}

			page, err := client.getErrors(cmd.Context(), importID, limit, offset)
			if err != nil {
				return classifyAPIError(err)
			}
			return writeJSONLine(page)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server base URL (default: configured origin)")
	cmd.Flags().StringVar(&token, "token", os.Getenv("CASEFLOW_TOKEN"), "Bearer token (default: CASEFLOW_TOKEN)")
	cmd.Flags().StringVar(&output, "output", "", "Write the CSV error report to this file")
	cmd.Flags().IntVar(&limit, "limit", 100, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}
