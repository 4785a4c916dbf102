package domain

// ProgressEvent reports transfer progress. Counters are cumulative so a
// consumer that misses events still sees correct totals on the next one.
type ProgressEvent struct {
	// SessionID references the session that emitted this event.
	SessionID string `json:"session_id"`

	// Kind classifies the event.
	Kind EventKind `json:"kind"`

	// Key is the object the event refers to, if any.
	Key string `json:"key,omitempty"`

	// BytesTransferred is the cumulative byte count for the session.
	BytesTransferred int64 `json:"bytes_transferred"`

	// TotalBytes is the expected total, or -1 when unknown.
	TotalBytes int64 `json:"total_bytes"`

	// PartsCompleted is the cumulative part count for the session.
	PartsCompleted int `json:"parts_completed"`

	// State is the session state at the time of the event.
	State SessionState `json:"state,omitempty"`

	// Err is set on a failing DONE event.
	Err error `json:"-"`
}
