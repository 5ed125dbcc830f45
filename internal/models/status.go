package models

// JobStatus is the lifecycle state of an import or bulk-delete job.
type JobStatus string

// Job statuses. Imports move queued -> uploading -> parsing -> importing ->
// done/failed; bulk deletes move queued -> preparing -> deleting -> done/failed.
const (
	StatusQueued    JobStatus = "queued"
	StatusUploading JobStatus = "uploading"
	StatusParsing   JobStatus = "parsing"
	StatusImporting JobStatus = "importing"
	StatusPreparing JobStatus = "preparing"
	StatusDeleting  JobStatus = "deleting"
	StatusDone      JobStatus = "done"
	StatusFailed    JobStatus = "failed"
)

// transitions maps each status to the set of statuses reachable from it.
// Transitions are forward-only; done and failed are absorbing. Any
// non-terminal state may fail directly.
var transitions = map[JobStatus][]JobStatus{
	StatusQueued:    {StatusUploading, StatusParsing, StatusPreparing, StatusFailed},
	StatusUploading: {StatusParsing, StatusFailed},
	StatusParsing:   {StatusImporting, StatusFailed},
	StatusImporting: {StatusDone, StatusFailed},
	StatusPreparing: {StatusDeleting, StatusFailed},
	StatusDeleting:  {StatusDone, StatusFailed},
	StatusDone:      {},
	StatusFailed:    {},
}

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid reports whether the status is a known lifecycle state.
func (s JobStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from one status to another is legal.
// Re-entering the current status is allowed so that a redelivered task can
// safely resume parsing/importing after a worker crash.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
