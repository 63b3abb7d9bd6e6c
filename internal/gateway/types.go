package gateway

import (
	"encoding/json"
	"time"
)

// UpdateInfo identifies one available update as reported by the backend's
// check operation.
type UpdateInfo struct {
	Version        string `json:"version"`
	CurrentVersion string `json:"currentVersion"`
	ReleaseDate    string `json:"date"`
	ReleaseNotes   string `json:"body"`
}

// DownloadEventKind discriminates the streamed download events.
type DownloadEventKind string

const (
	DownloadStarted  DownloadEventKind = "started"
	DownloadProgress DownloadEventKind = "progress"
	DownloadFinished DownloadEventKind = "finished"
)

// DownloadEvent is one streamed event of a download session.
// Started carries the total content length (0 when unknown); Progress
// carries the length of the chunk just received.
type DownloadEvent struct {
	Kind          DownloadEventKind `json:"event"`
	ContentLength int64             `json:"contentLength,omitempty"`
	ChunkLength   int64             `json:"chunkLength,omitempty"`
}

// DataChange is the payload of a data-changed push from the backend.
// Old and new snapshots are opaque to the agent.
type DataChange struct {
	NewData json.RawMessage `json:"newData,omitempty"`
	OldData json.RawMessage `json:"oldData,omitempty"`
	Diff    *DiffSummary    `json:"diff,omitempty"`
}

// DiffSummary describes what changed between two snapshots.
type DiffSummary struct {
	HasChanges    bool     `json:"hasChanges"`
	ChangedFields []string `json:"changedFields,omitempty"`
}

// BackupRecord is one account-configuration file captured by the backend.
// Content is an opaque structured payload.
type BackupRecord struct {
	Filename   string          `json:"filename"`
	Content    json.RawMessage `json:"content"`
	CapturedAt time.Time       `json:"capturedAt"`
}

// RestoreFailure reports one record that could not be restored.
type RestoreFailure struct {
	Filename    string `json:"filename"`
	ErrorDetail string `json:"errorDetail"`
}

// RestoreOutcome summarizes a restore run. Partial failure is a valid
// terminal state, not an error.
type RestoreOutcome struct {
	RestoredCount int              `json:"restoredCount"`
	Failures      []RestoreFailure `json:"failures,omitempty"`
}

// FileFilter restricts a file dialog to named extensions.
type FileFilter struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
}

// OpenFileOptions configures an open-file dialog.
type OpenFileOptions struct {
	Title   string       `json:"title,omitempty"`
	Filters []FileFilter `json:"filters,omitempty"`
}

// SaveFileOptions configures a save-file dialog.
type SaveFileOptions struct {
	Title       string       `json:"title,omitempty"`
	DefaultName string       `json:"defaultName,omitempty"`
	Filters     []FileFilter `json:"filters,omitempty"`
}
