package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogFileInfo describes a single file in the log directory.
type LogFileInfo struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"sizeBytes"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// DirInfo summarizes the contents of a log directory.
type DirInfo struct {
	Dir        string        `json:"dir"`
	FileCount  int           `json:"fileCount"`
	TotalBytes int64         `json:"totalBytes"`
	Files      []LogFileInfo `json:"files"`
}

// Info inspects dir and reports every log file (active plus rotated
// backups) matching baseName.
func Info(dir, baseName string) (*DirInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read log directory: %w", err)
	}

	info := &DirInfo{Dir: dir}
	for _, entry := range entries {
		if entry.IsDir() || !isLogFile(entry.Name(), baseName) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		info.Files = append(info.Files, LogFileInfo{
			Name:       entry.Name(),
			SizeBytes:  fi.Size(),
			ModifiedAt: fi.ModTime(),
		})
		info.FileCount++
		info.TotalBytes += fi.Size()
	}
	return info, nil
}

// Clear removes rotated backups of baseName from dir and truncates the
// active file. The active file is kept so open writers stay valid.
func Clear(dir, baseName string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isLogFile(name, baseName) {
			continue
		}
		path := filepath.Join(dir, name)
		if name == baseName {
			if err := os.Truncate(path, 0); err != nil {
				return fmt.Errorf("truncate %s: %w", name, err)
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// isLogFile matches the active file and its numbered rotation backups.
func isLogFile(name, baseName string) bool {
	if name == baseName {
		return true
	}
	return strings.HasPrefix(name, baseName+".")
}
