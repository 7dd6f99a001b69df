package importjob

// CreatedEvent fires after an import job is registered.
type CreatedEvent struct {
	Job ImportJob
}

// ChunkProcessedEvent fires after a chunk transaction commits. Replayed
// chunks do not fire it again.
type ChunkProcessedEvent struct {
	Job   ImportJob
	Chunk Chunk
}

// CompletedEvent fires exactly once when a job reaches its terminal status.
type CompletedEvent struct {
	Job ImportJob
}
