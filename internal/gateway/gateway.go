// Package gateway defines the boundary to the native backend helper. The
// backend owns file I/O, cryptography, process management and update-package
// handling; this package only issues requests to it and interprets the
// structured responses and pushed events.
package gateway

import "context"

// UnsubscribeFunc releases a native event subscription.
type UnsubscribeFunc func() error

// UpdateOps covers the self-update operations.
type UpdateOps interface {
	// CheckUpdate returns the available update, or nil when the running
	// version is current.
	CheckUpdate(ctx context.Context) (*UpdateInfo, error)
	// DownloadUpdate streams download lifecycle events to onEvent in
	// arrival order and returns once the download completes or fails.
	DownloadUpdate(ctx context.Context, onEvent func(DownloadEvent)) error
	InstallUpdate(ctx context.Context) error
	RelaunchProcess(ctx context.Context) error
}

// MonitorOps covers state-database change monitoring.
type MonitorOps interface {
	ChangeMonitoringEnabled(ctx context.Context) (bool, error)
	SetChangeMonitoringEnabled(ctx context.Context, enabled bool) error
	StartChangeMonitoring(ctx context.Context) error
	StopChangeMonitoring(ctx context.Context) error
	// SubscribeDataChanged opens a native subscription for data-changed
	// pushes. The returned UnsubscribeFunc releases it and must be called
	// before process exit to avoid a leaked native listener.
	SubscribeDataChanged(ctx context.Context, fn func(DataChange)) (UnsubscribeFunc, error)
}

// CryptoOps covers backend-side encryption of backup payloads.
type CryptoOps interface {
	Encrypt(ctx context.Context, plaintext, password string) (string, error)
	Decrypt(ctx context.Context, ciphertext, password string) (string, error)
}

// BackupOps covers collection and restoration of account-configuration
// records.
type BackupOps interface {
	CollectBackupRecords(ctx context.Context) ([]BackupRecord, error)
	RestoreBackupRecords(ctx context.Context, records []BackupRecord) (*RestoreOutcome, error)
}

// FileOps covers file dialogs and raw file access performed by the backend.
type FileOps interface {
	// OpenFileDialog returns ok=false when the user cancels the prompt.
	OpenFileDialog(ctx context.Context, opts OpenFileOptions) (path string, ok bool, err error)
	// SaveFileDialog returns ok=false when the user cancels the prompt.
	SaveFileDialog(ctx context.Context, opts SaveFileOptions) (path string, ok bool, err error)
	ReadFileBytes(ctx context.Context, path string) ([]byte, error)
	WriteTextFile(ctx context.Context, path, content string) error
}

// SettingsOps covers simple persisted booleans.
type SettingsOps interface {
	TrayEnabled(ctx context.Context) (bool, error)
	SetTrayEnabled(ctx context.Context, enabled bool) error
	SilentStartEnabled(ctx context.Context) (bool, error)
	SetSilentStartEnabled(ctx context.Context, enabled bool) error
}

// Gateway is the full backend surface consumed by the orchestrators.
type Gateway interface {
	UpdateOps
	MonitorOps
	CryptoOps
	BackupOps
	FileOps
	SettingsOps
}
