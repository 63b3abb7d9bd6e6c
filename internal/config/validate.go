package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous zero-values are clamped to safe defaults. Other validation
// errors are logged as warnings but do not prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if c.GatewayURL == "" {
		errs = append(errs, fmt.Errorf("gateway_url is required"))
	} else {
		u, err := url.Parse(c.GatewayURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("gateway_url %q is not a valid URL: %w", c.GatewayURL, err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Errorf("gateway_url scheme must be ws or wss, got %q", u.Scheme))
		}
	}

	if c.GatewayToken != "" {
		for _, r := range c.GatewayToken {
			if unicode.IsControl(r) {
				errs = append(errs, fmt.Errorf("gateway_token contains control characters"))
				break
			}
		}
	}

	// Clamp intervals to a safe range
	if c.RelaunchGraceMs < 0 {
		errs = append(errs, fmt.Errorf("relaunch_grace_ms %d is negative, clamping to 0", c.RelaunchGraceMs))
		c.RelaunchGraceMs = 0
	} else if c.RelaunchGraceMs > 30000 {
		errs = append(errs, fmt.Errorf("relaunch_grace_ms %d exceeds maximum 30000, clamping", c.RelaunchGraceMs))
		c.RelaunchGraceMs = 30000
	}

	if c.LivenessPollSeconds < 1 {
		errs = append(errs, fmt.Errorf("liveness_poll_seconds %d is below minimum 1, clamping", c.LivenessPollSeconds))
		c.LivenessPollSeconds = 1
	} else if c.LivenessPollSeconds > 3600 {
		errs = append(errs, fmt.Errorf("liveness_poll_seconds %d exceeds maximum 3600, clamping", c.LivenessPollSeconds))
		c.LivenessPollSeconds = 3600
	}

	if c.BackupExtension == "" || strings.ContainsAny(c.BackupExtension, `./\`) {
		errs = append(errs, fmt.Errorf("backup_extension %q is not a bare extension, resetting", c.BackupExtension))
		c.BackupExtension = Default().BackupExtension
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.LogMaxSizeMB < 1 {
		errs = append(errs, fmt.Errorf("log_max_size_mb %d is below minimum 1, clamping", c.LogMaxSizeMB))
		c.LogMaxSizeMB = 1
	}
	if c.LogMaxBackups < 1 {
		errs = append(errs, fmt.Errorf("log_max_backups %d is below minimum 1, clamping", c.LogMaxBackups))
		c.LogMaxBackups = 1
	}

	// Log validation errors as warnings
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}
