package importer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/caseflow/modules/cases/domain/caserow"
)

// QueuedChunk is one chunk waiting for redelivery.
type QueuedChunk struct {
	ImportID   uuid.UUID     `json:"importId"`
	ChunkIndex int           `json:"chunkIndex"`
	Rows       []caserow.Row `json:"rows"`
	QueuedAt   time.Time     `json:"queuedAt"`
	Attempts   int           `json:"attempts"`
}

// Queue is a durable offline queue backed by a single JSON file. Every
// mutation is flushed before it returns, so a crashed CLI never loses a
// queued chunk.
type Queue struct {
	mu    sync.Mutex
	path  string
	items []QueuedChunk
}

// OpenQueue loads the queue file, creating an empty queue when the file
// does not exist yet.
func OpenQueue(path string) (*Queue, error) {
	q := &Queue{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return q, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read queue file")
	}
	if len(raw) == 0 {
		return q, nil
	}
	if err := json.Unmarshal(raw, &q.items); err != nil {
		return nil, errors.Wrap(err, "decode queue file")
	}
	return q, nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of the queue in arrival order.
func (q *Queue) Items() []QueuedChunk {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedChunk, len(q.items))
	copy(out, q.items)
	return out
}

// Enqueue persists the chunk. A chunk already queued under the same
// (import, index) pair is replaced with the new payload instead of queued
// twice.
func (q *Queue) Enqueue(chunk QueuedChunk) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if chunk.QueuedAt.IsZero() {
		chunk.QueuedAt = time.Now()
	}
	for i, item := range q.items {
		if item.ImportID == chunk.ImportID && item.ChunkIndex == chunk.ChunkIndex {
			q.items[i] = chunk
			return q.persistLocked()
		}
	}
	q.items = append(q.items, chunk)
	return q.persistLocked()
}

// DrainReport summarizes one replay pass over the queue.
type DrainReport struct {
	Delivered int
	Dropped   int
	Remaining int
}

// Drain attempts to deliver every queued chunk. Delivered chunks and
// permanently rejected ones leave the queue; transient failures stay for
// the next pass.
func (q *Queue) Drain(ctx context.Context, sender ChunkSender) (*DrainReport, error) {
	q.mu.Lock()
	pending := make([]QueuedChunk, len(q.items))
	copy(pending, q.items)
	q.mu.Unlock()

	report := &DrainReport{}
	var keep []QueuedChunk
	for _, item := range pending {
		if ctx.Err() != nil {
			keep = append(keep, item)
			continue
		}
		_, err := sender.SendChunk(ctx, item.ImportID, item.ChunkIndex, item.Rows)
		if err == nil {
			report.Delivered++
			continue
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Permanent() {
			report.Dropped++
			continue
		}
		item.Attempts++
		keep = append(keep, item)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = keep
	report.Remaining = len(keep)
	return report, q.persistLocked()
}

// Clear empties the queue and removes the backing file.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	err := os.Remove(q.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// persistLocked writes the queue atomically: temp file first, then rename.
func (q *Queue) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return errors.Wrap(err, "create queue dir")
	}
	raw, err := json.MarshalIndent(q.items, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode queue")
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "write queue file")
	}
	return os.Rename(tmp, q.path)
}
