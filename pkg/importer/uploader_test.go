package importer_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
	"github.com/iota-uz/caseflow/pkg/importer"
)

type sentChunk struct {
	importID uuid.UUID
	index    int
	rows     int
}

// fakeSender fails a chunk index a configured number of times before
// accepting it.
type fakeSender struct {
	mu        sync.Mutex
	failures  map[int]int
	permanent map[int]*importer.APIError
	attempts  map[int]int
	sent      []sentChunk
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failures:  make(map[int]int),
		permanent: make(map[int]*importer.APIError),
		attempts:  make(map[int]int),
	}
}

func (f *fakeSender) SendChunk(_ context.Context, importID uuid.UUID, index int, rows []caserow.Row) (*importer.ChunkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[index]++
	if apiErr, ok := f.permanent[index]; ok {
		return nil, apiErr
	}
	if f.failures[index] > 0 {
		f.failures[index]--
		return nil, errors.New("connection refused")
	}
	f.sent = append(f.sent, sentChunk{importID: importID, index: index, rows: len(rows)})
	return &importer.ChunkResult{
		ChunkIndex:   index,
		SuccessCount: len(rows),
		ImportStatus: "PROCESSING",
	}, nil
}

func makeRows(n int) []caserow.Row {
	rows := make([]caserow.Row, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, caserow.Row{
			RowNumber:     i,
			CaseKey:       fmt.Sprintf("C-%d", i),
			ApplicantName: "Asha Rao",
			DOB:           "1990-01-02",
			Category:      caserow.CategoryTax,
			Priority:      caserow.PriorityLow,
			Status:        caserow.StatusNew,
		})
	}
	return rows
}

func TestSplitChunks(t *testing.T) {
	rows := makeRows(7)

	chunks := importer.SplitChunks(rows, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 3)
	assert.Len(t, chunks[2], 1)
	assert.Equal(t, "C-1", chunks[0][0].CaseKey)
	assert.Equal(t, "C-7", chunks[2][0].CaseKey)

	assert.Nil(t, importer.SplitChunks(nil, 3))
	assert.Nil(t, importer.SplitChunks(rows, 0))
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	sender := newFakeSender()
	sender.failures[1] = 2

	u := importer.NewUploader(importer.UploaderOptions{
		Sender:     sender,
		ChunkRows:  3,
		RetryLimit: 3,
		Backoff:    time.Millisecond,
	})

	report, err := u.Upload(context.Background(), uuid.New(), makeRows(7))
	require.NoError(t, err)
	assert.Equal(t, 3, report.ChunksSent)
	assert.Equal(t, 0, report.ChunksQueued)
	assert.Equal(t, 7, report.RowsSucceeded)
	require.Len(t, sender.sent, 3)
}

func TestUpload_QueuesUndeliverableChunk(t *testing.T) {
	sender := newFakeSender()
	// More failures than the retry limit allows.
	sender.failures[0] = 10

	queue, err := importer.OpenQueue(t.TempDir() + "/queue.json")
	require.NoError(t, err)

	u := importer.NewUploader(importer.UploaderOptions{
		Sender:     sender,
		Queue:      queue,
		ChunkRows:  3,
		RetryLimit: 2,
		Backoff:    time.Millisecond,
	})

	importID := uuid.New()
	report, err := u.Upload(context.Background(), importID, makeRows(5))
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksSent)
	assert.Equal(t, 1, report.ChunksQueued)

	items := queue.Items()
	require.Len(t, items, 1)
	assert.Equal(t, importID, items[0].ImportID)
	assert.Equal(t, 0, items[0].ChunkIndex)
	assert.Len(t, items[0].Rows, 3)
}

func TestUpload_RetryLimitCapsTotalAttempts(t *testing.T) {
	sender := newFakeSender()
	sender.failures[0] = 10

	u := importer.NewUploader(importer.UploaderOptions{
		Sender:     sender,
		ChunkRows:  3,
		RetryLimit: 3,
		Backoff:    time.Millisecond,
	})

	_, err := u.Upload(context.Background(), uuid.New(), makeRows(3))
	require.Error(t, err)
	assert.Equal(t, 3, sender.attempts[0], "limit counts the first attempt")
}

func TestUpload_PermanentRejectionAborts(t *testing.T) {
	sender := newFakeSender()
	sender.permanent[0] = &importer.APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: "import belongs to another user",
	}

	queue, err := importer.OpenQueue(t.TempDir() + "/queue.json")
	require.NoError(t, err)

	u := importer.NewUploader(importer.UploaderOptions{
		Sender:     sender,
		Queue:      queue,
		ChunkRows:  3,
		RetryLimit: 2,
		Backoff:    time.Millisecond,
	})

	_, err = u.Upload(context.Background(), uuid.New(), makeRows(5))
	var apiErr *importer.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Zero(t, queue.Len())
}

type senderFunc func(ctx context.Context, importID uuid.UUID, index int, rows []caserow.Row) (*importer.ChunkResult, error)

func (f senderFunc) SendChunk(ctx context.Context, importID uuid.UUID, index int, rows []caserow.Row) (*importer.ChunkResult, error) {
	return f(ctx, importID, index, rows)
}

func TestUpload_CancelStopsBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := newFakeSender()
	// The in-flight chunk completes; cancellation takes effect at the next
	// chunk boundary.
	sender := senderFunc(func(ctx context.Context, importID uuid.UUID, index int, rows []caserow.Row) (*importer.ChunkResult, error) {
		result, err := inner.SendChunk(ctx, importID, index, rows)
		cancel()
		return result, err
	})

	u := importer.NewUploader(importer.UploaderOptions{
		Sender:     sender,
		ChunkRows:  3,
		RetryLimit: 1,
		Backoff:    time.Millisecond,
	})

	report, err := u.Upload(ctx, uuid.New(), makeRows(7))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.ChunksSent)
	require.Len(t, inner.sent, 1)
}

func TestAPIError_Permanent(t *testing.T) {
	assert.True(t, (&importer.APIError{Status: 400}).Permanent())
	assert.True(t, (&importer.APIError{Status: 404}).Permanent())
	assert.False(t, (&importer.APIError{Status: 408}).Permanent())
	assert.False(t, (&importer.APIError{Status: 429}).Permanent())
	assert.False(t, (&importer.APIError{Status: 500}).Permanent())
	assert.False(t, (&importer.APIError{Status: 503}).Permanent())
}
