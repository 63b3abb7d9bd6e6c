// Package backup implements the encrypted export and import pipelines for
// account-configuration records. Collection, cryptography, dialogs and file
// access are all delegated to the backend; this package sequences them and
// validates the bundle format.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aerodesk/agent/internal/gateway"
	"github.com/aerodesk/agent/internal/logging"
)

var log = logging.L("backup")

// FormatVersion is the bundle format written by Export and required by
// Import.
const FormatVersion = 1

// Passphrase length bounds, enforced on both pipelines.
const (
	MinPassphraseLen = 4
	MaxPassphraseLen = 50
)

var (
	ErrNoData             = errors.New("no data to back up")
	ErrEmptyFile          = errors.New("empty file")
	ErrInvalidFormat      = errors.New("invalid backup format")
	ErrPassphraseTooShort = fmt.Errorf("passphrase too short (minimum %d characters)", MinPassphraseLen)
	ErrPassphraseTooLong  = fmt.Errorf("passphrase too long (maximum %d characters)", MaxPassphraseLen)
)

// Bundle is the serialized backup payload before encryption.
type Bundle struct {
	FormatVersion int                    `json:"formatVersion"`
	RecordCount   int                    `json:"recordCount"`
	Records       []gateway.BackupRecord `json:"records"`
}

// Backend is the slice of the gateway the workflow drives.
type Backend interface {
	gateway.CryptoOps
	gateway.BackupOps
	gateway.FileOps
}

// Prompter collects a passphrase from the user. Implementations block until
// the user submits or cancels; ok is false on cancel. When confirm is set
// the implementation requires the passphrase to be entered twice and only
// returns a value both entries agreed on.
type Prompter interface {
	PromptPassphrase(ctx context.Context, confirm bool) (passphrase string, ok bool, err error)
}

// StatusFunc receives the terminal human-readable outcome of a pipeline.
type StatusFunc func(message string)

// Options configures a Workflow. Zero values fall back to the defaults
// below.
type Options struct {
	// Extension is the backup file extension without a leading dot.
	Extension string
	// DefaultName is the base name suggested by the save dialog.
	DefaultName string
	// OnStatus receives terminal status messages; nil messages go to the log.
	OnStatus StatusFunc
}

const (
	defaultExtension = "aerobak"
	defaultBaseName  = "aero-backup"
)

// Workflow runs the export and import pipelines. The in-flight flags are
// exposed for callers to gate repeated invocations; the workflow itself
// does not reject overlapping calls.
type Workflow struct {
	gw       Backend
	prompter Prompter
	ext      string
	baseName string
	onStatus StatusFunc
	now      func() time.Time

	mu        sync.Mutex
	exporting bool
	importing bool
}

// NewWorkflow creates a workflow over gw and prompter.
func NewWorkflow(gw Backend, prompter Prompter, opts Options) *Workflow {
	w := &Workflow{
		gw:       gw,
		prompter: prompter,
		ext:      opts.Extension,
		baseName: opts.DefaultName,
		onStatus: opts.OnStatus,
		now:      time.Now,
	}
	if w.ext == "" {
		w.ext = defaultExtension
	}
	if w.baseName == "" {
		w.baseName = defaultBaseName
	}
	if w.onStatus == nil {
		w.onStatus = func(msg string) { log.Info(msg) }
	}
	return w
}

// Exporting reports whether an export is in flight.
func (w *Workflow) Exporting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exporting
}

// Importing reports whether an import is in flight.
func (w *Workflow) Importing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.importing
}

// Export collects the current records, encrypts them under a user-supplied
// passphrase and writes the result to a user-chosen location. Cancelling
// either prompt ends the pipeline without error.
func (w *Workflow) Export(ctx context.Context) error {
	records, err := w.gw.CollectBackupRecords(ctx)
	if err != nil {
		return fmt.Errorf("collecting backup records: %w", err)
	}
	if len(records) == 0 {
		return ErrNoData
	}

	w.setExporting(true)
	defer w.setExporting(false)

	pass, ok, err := w.prompter.PromptPassphrase(ctx, true)
	if err != nil {
		return fmt.Errorf("prompting for passphrase: %w", err)
	}
	if !ok {
		log.Info("export cancelled at passphrase prompt")
		return nil
	}
	if err := validatePassphrase(pass); err != nil {
		return err
	}

	bundle := Bundle{
		FormatVersion: FormatVersion,
		RecordCount:   len(records),
		Records:       records,
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("serializing bundle: %w", err)
	}

	ciphertext, err := w.gw.Encrypt(ctx, string(raw), pass)
	if err != nil {
		return fmt.Errorf("encrypting bundle: %w", err)
	}

	path, ok, err := w.gw.SaveFileDialog(ctx, gateway.SaveFileOptions{
		Title:       "Save Backup",
		DefaultName: fmt.Sprintf("%s-%s.%s", w.baseName, w.now().Format("2006-01-02"), w.ext),
		Filters: []gateway.FileFilter{
			{Name: "Aero Backup", Extensions: []string{w.ext}},
		},
	})
	if err != nil {
		return fmt.Errorf("save dialog: %w", err)
	}
	if !ok {
		log.Info("export cancelled at save dialog")
		return nil
	}

	if err := w.gw.WriteTextFile(ctx, path, ciphertext); err != nil {
		return fmt.Errorf("writing backup file: %w", err)
	}

	w.onStatus(fmt.Sprintf("Backup saved to %s (%d records)", path, len(records)))
	return nil
}

// Import reads a user-chosen backup file, decrypts it under a user-supplied
// passphrase, validates the bundle and restores its records. A partially
// failed restore is reported as qualified success, not an error.
func (w *Workflow) Import(ctx context.Context) error {
	path, ok, err := w.gw.OpenFileDialog(ctx, gateway.OpenFileOptions{
		Title: "Open Backup",
		Filters: []gateway.FileFilter{
			{Name: "Aero Backup", Extensions: []string{w.ext}},
			{Name: "All Files", Extensions: []string{"*"}},
		},
	})
	if err != nil {
		return fmt.Errorf("open dialog: %w", err)
	}
	if !ok {
		log.Info("import cancelled at open dialog")
		return nil
	}

	raw, err := w.gw.ReadFileBytes(ctx, path)
	if err != nil {
		return fmt.Errorf("reading backup file: %w", err)
	}
	ciphertext := string(raw)
	if strings.TrimSpace(ciphertext) == "" {
		return ErrEmptyFile
	}

	w.setImporting(true)
	defer w.setImporting(false)

	pass, ok, err := w.prompter.PromptPassphrase(ctx, false)
	if err != nil {
		return fmt.Errorf("prompting for passphrase: %w", err)
	}
	if !ok {
		log.Info("import cancelled at passphrase prompt")
		return nil
	}
	if err := validatePassphrase(pass); err != nil {
		return err
	}

	plaintext, err := w.gw.Decrypt(ctx, ciphertext, pass)
	if err != nil {
		return fmt.Errorf("decrypting bundle: %w", err)
	}

	bundle, err := parseBundle(plaintext)
	if err != nil {
		return err
	}

	outcome, err := w.gw.RestoreBackupRecords(ctx, bundle.Records)
	if err != nil {
		return fmt.Errorf("restoring records: %w", err)
	}

	if len(outcome.Failures) > 0 {
		w.onStatus(fmt.Sprintf("Restored %d of %d records; %d failed",
			outcome.RestoredCount, len(bundle.Records), len(outcome.Failures)))
		for _, f := range outcome.Failures {
			log.Warn("record restore failed", "filename", f.Filename, logging.KeyError, f.ErrorDetail)
		}
		return nil
	}

	w.onStatus(fmt.Sprintf("Restored %d records", outcome.RestoredCount))
	return nil
}

func (w *Workflow) setExporting(v bool) {
	w.mu.Lock()
	w.exporting = v
	w.mu.Unlock()
}

func (w *Workflow) setImporting(v bool) {
	w.mu.Lock()
	w.importing = v
	w.mu.Unlock()
}

func validatePassphrase(pass string) error {
	switch {
	case len(pass) < MinPassphraseLen:
		return ErrPassphraseTooShort
	case len(pass) > MaxPassphraseLen:
		return ErrPassphraseTooLong
	}
	return nil
}

// parseBundle decodes plaintext and verifies the required fields are
// present and well-typed. Bundles written by a newer agent are rejected
// rather than restored on a best-effort basis.
func parseBundle(plaintext string) (*Bundle, error) {
	var probe struct {
		FormatVersion *int                    `json:"formatVersion"`
		Records       *[]gateway.BackupRecord `json:"records"`
	}
	if err := json.Unmarshal([]byte(plaintext), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if probe.FormatVersion == nil || probe.Records == nil {
		return nil, ErrInvalidFormat
	}
	if *probe.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("%w: format version %d is newer than supported version %d",
			ErrInvalidFormat, *probe.FormatVersion, FormatVersion)
	}
	return &Bundle{
		FormatVersion: *probe.FormatVersion,
		RecordCount:   len(*probe.Records),
		Records:       *probe.Records,
	}, nil
}
