package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aerodesk/agent/internal/backup"
	"github.com/aerodesk/agent/internal/config"
	"github.com/aerodesk/agent/internal/dbwatch"
	"github.com/aerodesk/agent/internal/events"
	"github.com/aerodesk/agent/internal/gateway"
	"github.com/aerodesk/agent/internal/interactive"
	"github.com/aerodesk/agent/internal/logging"
	"github.com/aerodesk/agent/internal/poller"
	"github.com/aerodesk/agent/internal/procmon"
	"github.com/aerodesk/agent/internal/settings"
	"github.com/aerodesk/agent/internal/update"
)

var (
	version    = "0.1.0"
	cfgFile    string
	gatewayURL string
)

var rootCmd = &cobra.Command{
	Use:   "aero-agent",
	Short: "Aero companion agent",
	Long:  `Aero Agent - companion process for Aero Studio handling updates, change monitoring and encrypted backups`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Aero Agent v%s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective configuration and gateway reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStatus()
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export or import an encrypted backup of account configuration",
}

var backupExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Collect records and write an encrypted backup file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkflow(func(ctx context.Context, w *backup.Workflow) error {
			return w.Export(ctx)
		})
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Decrypt a backup file and restore its records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkflow(func(ctx context.Context, w *backup.Workflow) error {
			return w.Import(ctx)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for and apply Aero Studio updates",
}

var updateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether an update is available",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(func(ctx context.Context, cfg *config.Config, gw *gateway.Client) error {
			orch := update.New(gw)
			d, err := orch.CheckForUpdates(ctx)
			if err != nil {
				return err
			}
			if d == nil {
				fmt.Println("Already up to date")
				return nil
			}
			fmt.Printf("Update available: %s (running %s), released %s\n", d.Version, d.CurrentVersion, d.ReleaseDate)
			if d.ReleaseNotes != "" {
				fmt.Println(d.ReleaseNotes)
			}
			return nil
		})
	},
}

var updateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Download, install and relaunch into the available update",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(func(ctx context.Context, cfg *config.Config, gw *gateway.Client) error {
			orch := update.New(gw,
				update.WithRelaunchGrace(time.Duration(cfg.RelaunchGraceMs)*time.Millisecond))

			d, err := orch.CheckForUpdates(ctx)
			if err != nil {
				return err
			}
			if d == nil {
				fmt.Println("Already up to date")
				return nil
			}

			fmt.Printf("Downloading %s\n", d.Version)
			err = orch.DownloadUpdate(ctx, func(p update.Progress) {
				if p.BytesTotal > 0 {
					fmt.Printf("\r%3d%% (%d/%d bytes)", p.Percentage, p.BytesDownloaded, p.BytesTotal)
				}
			})
			fmt.Println()
			if err != nil {
				return err
			}

			fmt.Println("Installing and relaunching")
			return orch.InstallAndRelaunch(ctx)
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change Aero Studio's persisted UI flags",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(func(ctx context.Context, cfg *config.Config, gw *gateway.Client) error {
			mgr := settings.NewManager(gw)
			out, err := yaml.Marshal(map[string]bool{
				"trayEnabled":        mgr.TrayEnabled(ctx),
				"silentStartEnabled": mgr.SilentStartEnabled(ctx),
			})
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:       "set {tray|silent-start} {on|off}",
	Short:     "Persist one flag",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"tray", "silent-start"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("value must be on or off, got %q", args[1])
		}
		return withGateway(func(ctx context.Context, cfg *config.Config, gw *gateway.Client) error {
			mgr := settings.NewManager(gw)
			switch args[0] {
			case "tray":
				return mgr.SetTrayEnabled(ctx, enabled)
			case "silent-start":
				return mgr.SetSilentStartEnabled(ctx, enabled)
			default:
				return fmt.Errorf("unknown flag %q", args[0])
			}
		})
	},
}

var monitorCmd = &cobra.Command{
	Use:       "monitor {enable|disable}",
	Short:     "Toggle state-database change monitoring",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"enable", "disable"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withGateway(func(ctx context.Context, cfg *config.Config, gw *gateway.Client) error {
			watcher := dbwatch.NewManager(gw, events.NewEmitter())
			defer watcher.Cleanup()
			enabled := args[0] == "enable"
			if err := watcher.SetEnabled(ctx, enabled); err != nil {
				return err
			}
			fmt.Printf("Change monitoring %sd\n", args[0])
			return nil
		})
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect or clear the agent's log files",
}

var logsInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "List log files and their sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		info, err := logging.Info(cfg.LogDir, "agent.log")
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(info)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove rotated log backups and truncate the active log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logging.Clear(cfg.LogDir, "agent.log"); err != nil {
			return err
		}
		fmt.Println("Logs cleared")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config dir)")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "backend gateway websocket URL")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	logsCmd.AddCommand(logsInfoCmd)
	logsCmd.AddCommand(logsClearCmd)
	backupCmd.AddCommand(backupExportCmd)
	backupCmd.AddCommand(backupImportCmd)
	updateCmd.AddCommand(updateCheckCmd)
	updateCmd.AddCommand(updateApplyCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(logsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if gatewayURL != "" {
		cfg.GatewayURL = gatewayURL
	}
	cfg.Validate()
	return cfg, nil
}

func initLogging(cfg *config.Config) {
	out := os.Stderr
	writer, err := logging.NewRotatingWriter(
		filepath.Join(cfg.LogDir, "agent.log"), cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file unavailable, logging to stderr only: %v\n", err)
		logging.Init(cfg.LogFormat, cfg.LogLevel, out)
		return
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, logging.TeeWriter(out, writer))
}

// connectGateway starts the client and waits briefly for the first
// connection so one-shot commands fail fast when the backend is down.
func connectGateway(cfg *config.Config) (*gateway.Client, error) {
	gw := gateway.NewClient(&gateway.Config{
		URL:       cfg.GatewayURL,
		AuthToken: cfg.GatewayToken,
	})
	go gw.Start()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if gw.Connected() {
			return gw, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	gw.Stop()
	return nil, fmt.Errorf("backend gateway unreachable at %s", cfg.GatewayURL)
}

func withGateway(fn func(context.Context, *config.Config, *gateway.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)

	gw, err := connectGateway(cfg)
	if err != nil {
		return err
	}
	defer gw.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, cfg, gw)
}

func withWorkflow(fn func(context.Context, *backup.Workflow) error) error {
	return withGateway(func(ctx context.Context, cfg *config.Config, gw *gateway.Client) error {
		w := backup.NewWorkflow(gw, interactive.NewPassphrasePrompter(), backup.Options{
			Extension:   cfg.BackupExtension,
			DefaultName: cfg.BackupDefaultName,
			OnStatus:    func(msg string) { fmt.Println(msg) },
		})
		return fn(ctx, w)
	})
}

func runAgent() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)
	log := logging.L("main")

	log.Info("starting agent", "version", version, "gateway", cfg.GatewayURL)

	gw := gateway.NewClient(&gateway.Config{
		URL:       cfg.GatewayURL,
		AuthToken: cfg.GatewayToken,
	})
	go gw.Start()
	defer gw.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emitter := events.NewEmitter()

	watcher := dbwatch.NewManager(gw, emitter)
	defer watcher.Cleanup()
	go func() {
		// Wait for the first connection before touching backend state.
		for !gw.Connected() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
		enabled, err := watcher.LoadSettings(ctx)
		if err != nil {
			log.Error("change monitoring startup failed", logging.KeyError, err)
			return
		}
		log.Info("change monitoring settings loaded", "enabled", enabled)
	}()

	monitor := procmon.New(cfg.AppProcessName, emitter,
		poller.WithInterval(time.Duration(cfg.LivenessPollSeconds)*time.Second))
	monitor.Start(ctx)
	defer monitor.Stop()

	emitter.Subscribe(procmon.EventRunningChanged, func(payload any) {
		if rc, ok := payload.(procmon.RunningChange); ok {
			log.Info("app liveness changed", "running", rc.Running)
		}
	})
	emitter.Subscribe(dbwatch.EventChanged, func(payload any) {
		if ev, ok := payload.(dbwatch.ChangeEvent); ok {
			log.Debug("state database changed", "at", ev.Timestamp, "hasDiff", ev.Diff != nil)
		}
	})

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// statusReport is the YAML document printed by the status command.
type statusReport struct {
	Version          string `yaml:"version"`
	GatewayURL       string `yaml:"gatewayUrl"`
	GatewayReachable bool   `yaml:"gatewayReachable"`
	AppProcessName   string `yaml:"appProcessName"`
	BackupExtension  string `yaml:"backupExtension"`
	LogDir           string `yaml:"logDir"`
	LogFiles         int    `yaml:"logFiles"`
	LogSizeBytes     int64  `yaml:"logSizeBytes"`
}

func printStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report := statusReport{
		Version:         version,
		GatewayURL:      cfg.GatewayURL,
		AppProcessName:  cfg.AppProcessName,
		BackupExtension: cfg.BackupExtension,
		LogDir:          cfg.LogDir,
	}

	if info, err := logging.Info(cfg.LogDir, "agent.log"); err == nil {
		report.LogFiles = info.FileCount
		report.LogSizeBytes = info.TotalBytes
	}

	if gw, err := connectGateway(cfg); err == nil {
		report.GatewayReachable = true
		gw.Stop()
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
