package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
)

// ChunkSender submits one chunk to the server. The HTTP client and test
// fakes both implement it.
type ChunkSender interface {
	SendChunk(ctx context.Context, importID uuid.UUID, chunkIndex int, rows []caserow.Row) (*ChunkResult, error)
}

// ChunkResult is the server's acknowledgement of one chunk.
type ChunkResult struct {
	ChunkIndex   int
	SuccessCount int
	FailureCount int
	Replayed     bool
	ImportStatus string
}

// APIError is a structured rejection from the server. Client-side errors
// other than timeouts and rate limits are not worth retrying.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Permanent() bool {
	if e.Status == 408 || e.Status == 429 {
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// SplitChunks cuts rows into consecutive chunks of at most size rows.
func SplitChunks(rows []caserow.Row, size int) [][]caserow.Row {
	if size <= 0 || len(rows) == 0 {
		return nil
	}
	chunks := make([][]caserow.Row, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

type UploaderOptions struct {
	Sender ChunkSender
	// Queue receives chunks that could not be delivered; nil disables queueing.
	Queue     *Queue
	ChunkRows int
	// RetryLimit caps the total attempts per chunk, first try included.
	RetryLimit int
	Backoff    time.Duration
	Log        *logrus.Logger
}

// Uploader pushes normalized rows to the server in chunks, retrying
// transient failures and spilling undeliverable chunks to the offline queue.
type Uploader struct {
	sender     ChunkSender
	queue      *Queue
	chunkRows  int
	retryLimit int
	backoff    time.Duration
	log        *logrus.Logger
}

func NewUploader(opts UploaderOptions) *Uploader {
	chunkRows := opts.ChunkRows
	if chunkRows <= 0 {
		chunkRows = 500
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	retryLimit := opts.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 3
	}
	return &Uploader{
		sender:     opts.Sender,
		queue:      opts.Queue,
		chunkRows:  chunkRows,
		retryLimit: retryLimit,
		backoff:    backoff,
		log:        opts.Log,
	}
}

// UploadReport summarizes one upload run.
type UploadReport struct {
	ChunksSent    int
	ChunksQueued  int
	RowsSucceeded int
	RowsFailed    int
	Replayed      int
	ImportStatus  string
}

// Upload sends all rows. A chunk that keeps failing transiently is written
// to the offline queue and the upload moves on; a permanent rejection aborts.
func (u *Uploader) Upload(ctx context.Context, importID uuid.UUID, rows []caserow.Row) (*UploadReport, error) {
	report := &UploadReport{}
	for index, chunk := range SplitChunks(rows, u.chunkRows) {
		// Cancellation is cooperative: checked between chunks, never
		// mid-request. Committed chunks stay committed.
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, err := u.sendWithRetry(ctx, importID, index, chunk)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Permanent() {
				return report, err
			}
			if u.queue == nil {
				return report, err
			}
			if u.log != nil {
				u.log.WithError(err).WithFields(logrus.Fields{
					"importId":   importID,
					"chunkIndex": index,
				}).Warn("chunk undeliverable, writing to offline queue")
			}
			if qErr := u.queue.Enqueue(QueuedChunk{
				ImportID:   importID,
				ChunkIndex: index,
				Rows:       chunk,
			}); qErr != nil {
				return report, qErr
			}
			report.ChunksQueued++
			continue
		}

		report.ChunksSent++
		report.RowsSucceeded += result.SuccessCount
		report.RowsFailed += result.FailureCount
		report.ImportStatus = result.ImportStatus
		if result.Replayed {
			report.Replayed++
		}
	}
	return report, nil
}

// linearBackoff waits base after the first failure, 2*base after the second,
// and so on.
func linearBackoff(base time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * base, false
	})
}

func (u *Uploader) sendWithRetry(ctx context.Context, importID uuid.UUID, index int, rows []caserow.Row) (*ChunkResult, error) {
	var result *ChunkResult
	// retryLimit counts the first attempt, so retries are one fewer.
	backoff := retry.WithMaxRetries(uint64(u.retryLimit-1), linearBackoff(u.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var sendErr error
		result, sendErr = u.sender.SendChunk(ctx, importID, index, rows)
		if sendErr == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(sendErr, &apiErr) && apiErr.Permanent() {
			return sendErr
		}
		return retry.RetryableError(sendErr)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
