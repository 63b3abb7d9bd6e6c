package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	GatewayURL          string `mapstructure:"gateway_url"`
	GatewayToken        string `mapstructure:"gateway_token"`
	RelaunchGraceMs     int    `mapstructure:"relaunch_grace_ms"`
	LivenessPollSeconds int    `mapstructure:"liveness_poll_seconds"`
	AppProcessName      string `mapstructure:"app_process_name"`
	BackupExtension     string `mapstructure:"backup_extension"`
	BackupDefaultName   string `mapstructure:"backup_default_name"`
	LogLevel            string `mapstructure:"log_level"`
	LogFormat           string `mapstructure:"log_format"`
	LogDir              string `mapstructure:"log_dir"`
	LogMaxSizeMB        int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups       int    `mapstructure:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		GatewayURL:          "ws://127.0.0.1:47615/ipc",
		RelaunchGraceMs:     500,
		LivenessPollSeconds: 10,
		AppProcessName:      "aero-studio",
		BackupExtension:     "aerobak",
		BackupDefaultName:   "aero-backups",
		LogLevel:            "info",
		LogFormat:           "text",
		LogDir:              defaultLogDir(),
		LogMaxSizeMB:        20,
		LogMaxBackups:       3,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AERO")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("gateway_url", cfg.GatewayURL)
	viper.Set("gateway_token", cfg.GatewayToken)
	viper.Set("relaunch_grace_ms", cfg.RelaunchGraceMs)
	viper.Set("liveness_poll_seconds", cfg.LivenessPollSeconds)
	viper.Set("app_process_name", cfg.AppProcessName)
	viper.Set("backup_extension", cfg.BackupExtension)
	viper.Set("backup_default_name", cfg.BackupDefaultName)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_dir", cfg.LogDir)
	viper.Set("log_max_size_mb", cfg.LogMaxSizeMB)
	viper.Set("log_max_backups", cfg.LogMaxBackups)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "agent.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Restrict config file to owner-only access (contains the gateway token)
	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Aero", "agent")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Aero", "agent")
	default:
		return filepath.Join(os.Getenv("HOME"), ".config", "aero-agent")
	}
}

func defaultLogDir() string {
	return filepath.Join(configDir(), "logs")
}
