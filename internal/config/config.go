// Package config loads the lab configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

const (
	DefaultBaudRate       = 9600
	DefaultMonitorSeconds = 10
	MaxMonitorSeconds     = 60
	DefaultHub            = "1-1"
	DefaultListen         = ":8000"
	EnvPrefix             = "BENCHLAB"
	FileName              = "benchlab.yaml"
)

// Monitor backends.
const (
	BackendPTY    = "pty"
	BackendSerial = "serial"
)

// Config holds all benchlab configuration.
type Config struct {
	Lab         LabConfig         `mapstructure:"lab" yaml:"lab"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http"`
	Toolchain   ToolchainConfig   `mapstructure:"toolchain" yaml:"toolchain"`
	Monitor     MonitorConfig     `mapstructure:"monitor" yaml:"monitor"`
	Enumeration EnumerationConfig `mapstructure:"enumeration" yaml:"enumeration"`
	Power       PowerConfig       `mapstructure:"power" yaml:"power"`
	Suggest     SuggestConfig     `mapstructure:"suggest" yaml:"suggest"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Boards      []board.Config    `mapstructure:"boards" yaml:"boards"`
}

// LabConfig identifies the lab and where it keeps its files.
type LabConfig struct {
	ServerName string `mapstructure:"server_name" yaml:"server_name"`
	Name       string `mapstructure:"name" yaml:"name"`
	CamURL     string `mapstructure:"cam_url" yaml:"cam_url,omitempty"`
	// Root holds compilations/ and examples/.
	Root string `mapstructure:"root" yaml:"root"`
	// StateDir holds history and captured logs, relative to Root unless
	// absolute.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
}

// SessionConfig describes the booked session.
type SessionConfig struct {
	EndTime   string `mapstructure:"end_time" yaml:"end_time"`
	UserEmail string `mapstructure:"user_email" yaml:"user_email"`
}

// HTTPConfig configures the web API.
type HTTPConfig struct {
	Listen     string `mapstructure:"listen" yaml:"listen"`
	CookieName string `mapstructure:"cookie_name" yaml:"cookie_name"`
}

// ToolchainConfig locates the external tools.
type ToolchainConfig struct {
	BinDir     string            `mapstructure:"bin_dir" yaml:"bin_dir,omitempty"`
	ArduinoCLI string            `mapstructure:"arduino_cli" yaml:"arduino_cli,omitempty"`
	Uhubctl    string            `mapstructure:"uhubctl" yaml:"uhubctl,omitempty"`
	Dmesg      string            `mapstructure:"dmesg" yaml:"dmesg,omitempty"`
	Env        map[string]string `mapstructure:"env" yaml:"env,omitempty"`
}

// MonitorConfig configures serial captures.
type MonitorConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"`
	BaudRate       int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	DefaultSeconds int    `mapstructure:"default_seconds" yaml:"default_seconds"`
	MaxSeconds     int    `mapstructure:"max_seconds" yaml:"max_seconds"`
}

// EnumerationConfig configures board discovery.
type EnumerationConfig struct {
	Hub string `mapstructure:"hub" yaml:"hub"`
	// KernelLog reads a log file instead of running dmesg.
	KernelLog   string `mapstructure:"kernel_log" yaml:"kernel_log,omitempty"`
	VerifyPorts bool   `mapstructure:"verify_ports" yaml:"verify_ports"`
}

// PowerConfig configures the hub power cycle of a lab reset.
type PowerConfig struct {
	Hub          string `mapstructure:"hub" yaml:"hub"`
	DelaySeconds int    `mapstructure:"delay_seconds" yaml:"delay_seconds"`
	SettleMs     int    `mapstructure:"settle_ms" yaml:"settle_ms"`
}

// SuggestConfig points at the external code-suggestion service. An empty
// URL disables suggestions.
type SuggestConfig struct {
	URL            string `mapstructure:"url" yaml:"url,omitempty"`
	Action         string `mapstructure:"action" yaml:"action"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// LoggingConfig configures the log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Dir receives benchlab.log; empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Lab: LabConfig{
			Root:     ".",
			StateDir: ".benchlab",
		},
		HTTP: HTTPConfig{
			Listen:     DefaultListen,
			CookieName: "benchlab_session",
		},
		Monitor: MonitorConfig{
			Backend:        BackendPTY,
			BaudRate:       DefaultBaudRate,
			DefaultSeconds: DefaultMonitorSeconds,
			MaxSeconds:     MaxMonitorSeconds,
		},
		Enumeration: EnumerationConfig{Hub: DefaultHub},
		Power: PowerConfig{
			Hub:          DefaultHub,
			DelaySeconds: 2,
			SettleMs:     1000,
		},
		Suggest: SuggestConfig{
			Action:         "16",
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("lab.server_name", d.Lab.ServerName)
	v.SetDefault("lab.name", d.Lab.Name)
	v.SetDefault("lab.cam_url", d.Lab.CamURL)
	v.SetDefault("lab.root", d.Lab.Root)
	v.SetDefault("lab.state_dir", d.Lab.StateDir)

	v.SetDefault("session.end_time", d.Session.EndTime)
	v.SetDefault("session.user_email", d.Session.UserEmail)

	v.SetDefault("http.listen", d.HTTP.Listen)
	v.SetDefault("http.cookie_name", d.HTTP.CookieName)

	v.SetDefault("toolchain.bin_dir", d.Toolchain.BinDir)
	v.SetDefault("toolchain.arduino_cli", d.Toolchain.ArduinoCLI)
	v.SetDefault("toolchain.uhubctl", d.Toolchain.Uhubctl)
	v.SetDefault("toolchain.dmesg", d.Toolchain.Dmesg)

	v.SetDefault("monitor.backend", d.Monitor.Backend)
	v.SetDefault("monitor.baud_rate", d.Monitor.BaudRate)
	v.SetDefault("monitor.default_seconds", d.Monitor.DefaultSeconds)
	v.SetDefault("monitor.max_seconds", d.Monitor.MaxSeconds)

	v.SetDefault("enumeration.hub", d.Enumeration.Hub)
	v.SetDefault("enumeration.kernel_log", d.Enumeration.KernelLog)
	v.SetDefault("enumeration.verify_ports", d.Enumeration.VerifyPorts)

	v.SetDefault("power.hub", d.Power.Hub)
	v.SetDefault("power.delay_seconds", d.Power.DelaySeconds)
	v.SetDefault("power.settle_ms", d.Power.SettleMs)

	v.SetDefault("suggest.url", d.Suggest.URL)
	v.SetDefault("suggest.action", d.Suggest.Action)
	v.SetDefault("suggest.timeout_seconds", d.Suggest.TimeoutSeconds)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)
}

// containerEnv maps the variables set by the lab scheduler to config keys.
var containerEnv = map[string]string{
	"session.end_time":   "END_TIME",
	"session.user_email": "USER_EMAIL",
	"lab.server_name":    "SERVER_NAME",
	"lab.name":           "LAB_NAME",
	"lab.cam_url":        "CAM_URL",
}

// NewViper returns a viper instance with defaults and environment bindings.
// Every key can be set as BENCHLAB_<SECTION>_<KEY>; the scheduler variables
// (END_TIME, USER_EMAIL, ...) are also read unprefixed.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range containerEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, env)
	}
	return v
}

// ReadFile points v at path, or searches the working directory and
// /etc/benchlab when path is empty. A missing search-path file is not an
// error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/benchlab")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads the configuration into a Config struct and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// LoadFile is NewViper, ReadFile and Load in one call.
func LoadFile(path string) (*Config, error) {
	v := NewViper()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return Load(v)
}

// Save writes cfg as YAML to path.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// StatePath returns the directory for history and logs.
func (c *Config) StatePath() string {
	if filepath.IsAbs(c.Lab.StateDir) {
		return c.Lab.StateDir
	}
	return filepath.Join(c.Lab.Root, c.Lab.StateDir)
}

// URLPrefix returns /<server_name>/<lab_name>, or "" when either is unset.
func (c *Config) URLPrefix() string {
	if c.Lab.ServerName == "" || c.Lab.Name == "" {
		return ""
	}
	return "/" + c.Lab.ServerName + "/" + c.Lab.Name
}

// ToolOverrides returns the explicit tool paths keyed by tool name.
func (c *Config) ToolOverrides() map[string]string {
	return map[string]string{
		toolchain.ToolArduinoCLI: c.Toolchain.ArduinoCLI,
		toolchain.ToolUhubctl:    c.Toolchain.Uhubctl,
		toolchain.ToolDmesg:      c.Toolchain.Dmesg,
	}
}

// Settle returns the post power-cycle wait.
func (c *PowerConfig) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// DefaultDuration returns the default monitor capture length.
func (c *MonitorConfig) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultSeconds) * time.Second
}

// Timeout returns the suggestion request timeout.
func (c *SuggestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxDuration returns the longest allowed monitor capture.
func (c *MonitorConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxSeconds) * time.Second
}
