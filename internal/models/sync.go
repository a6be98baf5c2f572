package models

// Direction selects which way a sync invocation moves the database file.
type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

// SyncStatus is the terminal status of a sync invocation.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
	SyncSkip    SyncStatus = "skip"
)

// SyncOutcome is the (status, message) pair reported when a sync finishes.
// Downloaded is set when the local database file was replaced and callers
// must reload any in-memory state derived from it.
type SyncOutcome struct {
	Direction  Direction  `json:"direction"`
	Status     SyncStatus `json:"status"`
	Message    string     `json:"message"`
	Downloaded bool       `json:"downloaded"`
}
