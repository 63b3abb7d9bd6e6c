package gateway

import "encoding/json"

// Operation name constants understood by the backend helper.
const (
	OpCheckUpdate     = "check_update"
	OpDownloadUpdate  = "download_update"
	OpInstallUpdate   = "install_update"
	OpRelaunchProcess = "relaunch_process"

	OpGetChangeMonitoringEnabled = "get_change_monitoring_enabled"
	OpSetChangeMonitoringEnabled = "set_change_monitoring_enabled"
	OpStartChangeMonitoring      = "start_change_monitoring"
	OpStopChangeMonitoring       = "stop_change_monitoring"
	OpListen                     = "listen"
	OpUnlisten                   = "unlisten"

	OpEncrypt              = "encrypt"
	OpDecrypt              = "decrypt"
	OpCollectBackupRecords = "collect_backup_records"
	OpRestoreBackupRecords = "restore_backup_records"

	OpOpenFileDialog = "open_file_dialog"
	OpSaveFileDialog = "save_file_dialog"
	OpReadFileBytes  = "read_file_bytes"
	OpWriteTextFile  = "write_text_file"

	OpGetTrayEnabled = "get_tray_enabled"
	OpSetTrayEnabled = "set_tray_enabled"
	OpGetSilentStart = "get_silent_start"
	OpSetSilentStart = "set_silent_start"
)

// Frame type constants.
const (
	TypeResult = "result" // terminal response to a request
	TypeStream = "stream" // mid-call streamed chunk, correlated by id
	TypeEvent  = "event"  // unsolicited push, no id
)

// EventDataChanged is the push channel name for state-database changes.
const EventDataChanged = "data-changed"

// MaxMessageSize is the maximum size of one JSON frame (16MB).
const MaxMessageSize = 16 * 1024 * 1024

// Envelope is the wire-format wrapper for all gateway frames. Requests
// carry an operation name in Type; responses echo the request id with
// Type "result"; pushes carry Type "event" and the event name.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}
