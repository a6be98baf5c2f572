package models

// EventKind tags the payload carried by an Event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventResult
	EventError
	EventSync
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventSync:
		return "sync"
	}
	return "unknown"
}

// Event is a message sent from a background task to its orchestrator.
// Progress events may repeat; Result, Error and Sync are terminal.
type Event struct {
	Kind    EventKind
	RunID   string
	Message string
	Items   []DiscoveredItem
	Sync    *SyncOutcome
}

// Terminal reports whether the event ends its task.
func (e Event) Terminal() bool {
	return e.Kind != EventProgress
}
