package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/pkg/configuration"
	"github.com/iota-uz/caseflow/pkg/importer"
)

type importCmdOptions struct {
	file      string
	baseURL   string
	token     string
	mapping   string
	chunkRows int
	queuePath string
	dryRun    bool
	noFix     bool
}

func newImportCmd() *cobra.Command {
	var opts importCmdOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upload a CSV or XLSX file of cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts)
		},
	}

	conf := configuration.Use()
	cmd.Flags().StringVar(&opts.file, "file", "", "Input file, .csv or .xlsx (required)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Server base URL (default: configured origin)")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("CASEFLOW_TOKEN"), "Bearer token (default: CASEFLOW_TOKEN)")
	cmd.Flags().StringVar(&opts.mapping, "mapping", "", "Header mapping JSON file (default: suggested from headers)")
	cmd.Flags().IntVar(&opts.chunkRows, "chunk-rows", conf.Import.ChunkRows, "Rows per chunk")
	cmd.Flags().StringVar(&opts.queuePath, "queue", conf.Import.QueuePath, "Offline queue file")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate locally without uploading")
	cmd.Flags().BoolVar(&opts.noFix, "no-fix", false, "Skip automatic fixers on invalid rows")

	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type localRowError struct {
	RowNumber int    `json:"rowNumber"`
	Field     string `json:"field"`
	Message   string `json:"message"`
}

func runImport(ctx context.Context, opts importCmdOptions) error {
	header, rawRows, err := readSourceFile(opts.file)
	if err != nil {
		return err
	}
	if len(rawRows) == 0 {
		return withCode(exitValidation, fmt.Errorf("file has no data rows"))
	}

	mapping, err := resolveMapping(header, opts.mapping)
	if err != nil {
		return err
	}

	rows, localErrs := prepareRows(rawRows, mapping, !opts.noFix)

	if opts.dryRun {
		return writeJSONLine(map[string]any{
			"file":        opts.file,
			"mapping":     mapping,
			"rows":        len(rawRows),
			"validRows":   len(rows),
			"invalidRows": countDistinctRows(localErrs),
			"localErrors": localErrs,
			"chunkRows":   opts.chunkRows,
		})
	}
	if len(rows) == 0 {
		return withCode(exitValidation, fmt.Errorf(
			"no valid rows to upload (%d rows failed local validation)", countDistinctRows(localErrs)))
	}

	client, err := newCaseAPIClient(opts.baseURL, opts.token)
	if err != nil {
		return err
	}
	queue, err := importer.OpenQueue(opts.queuePath)
	if err != nil {
		return withCode(exitUsage, err)
	}

	job, err := client.createImport(ctx, filepath.Base(opts.file), len(rows))
	if err != nil {
		return classifyAPIError(err)
	}

	uploader := importer.NewUploader(importer.UploaderOptions{
		Sender:     client,
		Queue:      queue,
		ChunkRows:  opts.chunkRows,
		RetryLimit: configuration.Use().Import.RetryLimit,
		Backoff:    configuration.Use().Import.RetryBackoff,
		Log:        configuration.Use().Logger(),
	})

	report, err := uploader.Upload(ctx, job.ID, rows)
	if err != nil {
		return classifyAPIError(err)
	}

	status, err := client.getStatus(ctx, job.ID)
	if err != nil {
		// The upload itself landed; report what we know.
		status = job
	}

	return writeJSONLine(map[string]any{
		"importId":      job.ID,
		"file":          opts.file,
		"validRows":     len(rows),
		"invalidRows":   countDistinctRows(localErrs),
		"chunksSent":    report.ChunksSent,
		"chunksQueued":  report.ChunksQueued,
		"rowsSucceeded": report.RowsSucceeded,
		"rowsFailed":    report.RowsFailed,
		"status":        status.Status,
		"queueLen":      queue.Len(),
	})
}

// prepareRows normalizes every raw row and, when fixing is enabled, runs the
// fixer library against rows that fail field validation. Only rows with zero
// errors come back for upload; the rest stay behind with their errors. The
// shared seen-set runs in the final pass so a duplicate key survives fixing.
func prepareRows(rawRows []caserow.RawRow, mapping map[string]string, fix bool) ([]caserow.Row, []localRowError) {
	now := time.Now()
	seen := caserow.NewSeenKeys()
	rows := make([]caserow.Row, 0, len(rawRows))
	var localErrs []localRowError

	for _, raw := range rawRows {
		row := caserow.NormalizeRow(raw, mapping)
		if fix {
			if errs := caserow.Validate(row, nil, now); len(errs) > 0 {
				row = caserow.AutoFix(row, errs)
			}
		}
		errs := caserow.Validate(row, seen, now)
		if len(errs) > 0 {
			for _, e := range errs {
				localErrs = append(localErrs, localRowError{RowNumber: e.RowNumber, Field: e.Field, Message: e.Message})
			}
			continue
		}
		rows = append(rows, row)
	}
	return rows, localErrs
}

func resolveMapping(header []string, mappingPath string) (map[string]string, error) {
	var mapping map[string]string
	if mappingPath != "" {
		raw, err := os.ReadFile(mappingPath)
		if err != nil {
			return nil, withCode(exitUsage, err)
		}
		if err := json.Unmarshal(raw, &mapping); err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("invalid --mapping file: %w", err))
		}
	} else {
		mapping = caserow.SuggestMapping(header)
	}

	if missing := caserow.MissingRequired(mapping); len(missing) > 0 {
		return nil, withCode(exitValidation, fmt.Errorf(
			"cannot map required fields from headers %q: missing %s",
			header, strings.Join(missing, ", ")))
	}
	return mapping, nil
}

func countDistinctRows(errs []localRowError) int {
	rows := make(map[int]bool, len(errs))
	for _, e := range errs {
		rows[e.RowNumber] = true
	}
	return len(rows)
}

// classifyAPIError attaches CLI exit codes to API and transport failures.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *importer.APIError
	if as(err, &apiErr) && apiErr.Permanent() {
		return withCode(exitValidation, err)
	}
	var ce *cliError
	if as(err, &ce) {
		return err
	}
	return withCode(exitNetwork, err)
}
