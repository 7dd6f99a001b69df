package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/caseflow/pkg/configuration"
	"github.com/iota-uz/caseflow/pkg/importer"
)

func newReplayCmd() *cobra.Command {
	var baseURL, token, queuePath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Redeliver chunks from the offline queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := importer.OpenQueue(queuePath)
			if err != nil {
				return withCode(exitUsage, err)
			}
			if queue.Len() == 0 {
				return writeJSONLine(map[string]any{"queued": 0, "delivered": 0, "remaining": 0})
			}

			client, err := newCaseAPIClient(baseURL, token)
			if err != nil {
				return err
			}

			queued := queue.Len()
			report, err := queue.Drain(cmd.Context(), client)
			if err != nil {
				return classifyAPIError(err)
			}
			return writeJSONLine(map[string]any{
				"queued":    queued,
				"delivered": report.Delivered,
				"dropped":   report.Dropped,
				"remaining": report.Remaining,
			})
		},
	}

	conf := configuration.Use()
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server base URL (default: configured origin)")
	cmd.Flags().StringVar(&token, "token", os.Getenv("CASEFLOW_TOKEN"), "Bearer token (default: CASEFLOW_TOKEN)")
	cmd.Flags().StringVar(&queuePath, "queue", conf.Import.QueuePath, "Offline queue file")
	return cmd
}
