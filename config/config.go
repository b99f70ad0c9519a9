package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// SysConfig system level configuration
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WebConfig admin api server configuration
type WebConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// DBConfig database configuration
type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// SessionConfig session orchestration tunables
type SessionConfig struct {
	// StoreDir holds the per-client sqlite credential databases.
	StoreDir string `yaml:"store_dir" json:"store_dir"`
	// ConnectTimeoutSec bounds a single driver connect attempt.
	ConnectTimeoutSec int `yaml:"connect_timeout_sec" json:"connect_timeout_sec"`
	// CallTimeoutSec bounds chat/message reads against the driver.
	CallTimeoutSec int `yaml:"call_timeout_sec" json:"call_timeout_sec"`
	// DebugQRTerminal additionally renders pairing QR codes on stdout.
	DebugQRTerminal bool `yaml:"debug_qr_terminal" json:"debug_qr_terminal"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system" json:"system"`
	Web      WebConfig     `yaml:"web" json:"web"`
	Database DBConfig      `yaml:"database" json:"database"`
	Logger   LogConfig     `yaml:"logger" json:"logger"`
	Session  SessionConfig `yaml:"session" json:"session"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "waconsole",
		Location: "Asia/Jakarta",
		Workdir:  "/var/waconsole",
		Debug:    true,
	},
	Web: WebConfig{
		Host: "0.0.0.0",
		Port: 1826,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "waconsole",
		User:     "postgres",
		Passwd:   "waconsole",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/waconsole/waconsole.log",
	},
	Session: SessionConfig{
		ConnectTimeoutSec: 60,
		CallTimeoutSec:    15,
		DebugQRTerminal:   false,
	},
}

func setEnvValue(name string, val *string) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue
	}
}

func setEnvIntValue(name string, val *int) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToInt(evalue)
	}
}

func setEnvBoolValue(name string, val *bool) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue == "true" || evalue == "1" || evalue == "on"
	}
}

// LoadConfig reads the YAML configuration file and applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(cfile string) *AppConfig {
	if cfile == "" {
		cfile = "waconsole.yml"
	}
	defaults := *DefaultAppConfig
	cfg := &defaults
	if data, err := os.ReadFile(cfile); err == nil {
		// file values overlay the defaults
		_ = yaml.Unmarshal(data, cfg)
	}

	setEnvValue("WACONSOLE_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvBoolValue("WACONSOLE_SYSTEM_DEBUG", &cfg.System.Debug)
	setEnvValue("WACONSOLE_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("WACONSOLE_WEB_PORT", &cfg.Web.Port)
	setEnvValue("WACONSOLE_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("WACONSOLE_DB_PORT", &cfg.Database.Port)
	setEnvValue("WACONSOLE_DB_NAME", &cfg.Database.Name)
	setEnvValue("WACONSOLE_DB_USER", &cfg.Database.User)
	setEnvValue("WACONSOLE_DB_PWD", &cfg.Database.Passwd)
	setEnvValue("WACONSOLE_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvValue("WACONSOLE_SESSION_STORE_DIR", &cfg.Session.StoreDir)

	if cfg.Session.StoreDir == "" {
		cfg.Session.StoreDir = filepath.Join(cfg.System.Workdir, "sessions")
	}
	return cfg
}
