package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the launcher looks for its settings when neither
// --config nor PVRUN_CONFIG is given.
const DefaultPath = "/etc/pvrun/pvrun.yaml"

// Config is the root configuration structure for the launcher.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Driver    DriverConfig    `yaml:"driver"`
	Hugepages HugepagesConfig `yaml:"hugepages"`
	Tools     ToolsConfig     `yaml:"tools"`
	Inventory InventoryConfig `yaml:"inventory"`
	Child     ChildConfig     `yaml:"child"`
	EAL       EALConfig       `yaml:"eal"`
	Lock      LockConfig      `yaml:"lock"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
}

// DriverConfig selects the userspace I/O driver devices are bound to.
type DriverConfig struct {
	// Name is the driver passed to the rebind tool.
	Name string `yaml:"name"`

	// Module is the kernel module loaded before binding. Usually the same
	// as Name.
	Module string `yaml:"module"`
}

// HugepagesConfig contains hugepage reservation settings.
type HugepagesConfig struct {
	PageSize    int64  `yaml:"page_size"`
	VerifyMount bool   `yaml:"verify_mount"`
	MountPoint  string `yaml:"mount_point"`
}

// ToolsConfig locates the host tools and bounds their runtime.
type ToolsConfig struct {
	Sudo      bool          `yaml:"sudo"`
	Hugepages string        `yaml:"hugepages"`
	Devbind   string        `yaml:"devbind"`
	Modprobe  string        `yaml:"modprobe"`
	Timeout   time.Duration `yaml:"timeout"`
}

// InventoryConfig selects how network devices are discovered.
type InventoryConfig struct {
	// Source is "devbind" or "sysfs".
	Source    string `yaml:"source"`
	SysfsRoot string `yaml:"sysfs_root"`
}

// Inventory sources.
const (
	InventoryDevbind = "devbind"
	InventorySysfs   = "sysfs"
)

// ChildConfig controls how the application is handed its configuration.
type ChildConfig struct {
	// ConfigEnv is the environment variable holding the encoded config path.
	ConfigEnv string `yaml:"config_env"`

	// TempDir holds the encoded config file. Empty means the system default.
	TempDir string `yaml:"temp_dir"`
}

// EALConfig contains settings merged into the application's eal_params.
type EALConfig struct {
	// ExternalLibs are passed as "-d <lib>" driver plugins.
	ExternalLibs []string `yaml:"external_libs"`
}

// LockConfig contains the exclusivity lock settings.
type LockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HistoryConfig contains the run history database settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for lifecycle events.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings for run metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PVRUN_SECTION_KEY
// For example: PVRUN_HISTORY_PATH, PVRUN_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied settings path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load but falls back to the defaults when the
// file does not exist. Any other read error is still reported.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Driver: DriverConfig{
			Name:   "uio_pci_generic",
			Module: "uio_pci_generic",
		},
		Hugepages: HugepagesConfig{
			PageSize:   2 * 1024 * 1024,
			MountPoint: "/dev/hugepages",
		},
		Tools: ToolsConfig{
			Hugepages: "dpdk-hugepages.py",
			Devbind:   "dpdk-devbind.py",
			Modprobe:  "modprobe",
			Timeout:   60 * time.Second,
		},
		Inventory: InventoryConfig{
			Source:    InventoryDevbind,
			SysfsRoot: "/sys",
		},
		Child: ChildConfig{
			ConfigEnv: "PV_CONFIG",
		},
		Lock: LockConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		History: HistoryConfig{
			Path:        "/var/lib/pvrun/history.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pvrun",
			},
			QoS:         1,
			TopicPrefix: "pvrun",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "pvrun",
			BatchSize:     100,
			FlushInterval: 1,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PVRUN_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	// Logging
	if v := os.Getenv("PVRUN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PVRUN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Host preparation
	if v := os.Getenv("PVRUN_DRIVER"); v != "" {
		cfg.Driver.Name = v
		cfg.Driver.Module = v
	}
	if v := os.Getenv("PVRUN_TOOLS_SUDO"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("PVRUN_TOOLS_SUDO: %v", err))
		}
		cfg.Tools.Sudo = b
	}
	if v := os.Getenv("PVRUN_LOCK_PATH"); v != "" {
		cfg.Lock.Path = v
	}

	// History
	if v := os.Getenv("PVRUN_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// MQTT
	if v := os.Getenv("PVRUN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PVRUN_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("PVRUN_MQTT_PORT: %v", err))
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("PVRUN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PVRUN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PVRUN_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("PVRUN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Driver.Name == "" {
		errs = append(errs, "driver.name is required")
	}
	if c.Driver.Module == "" {
		errs = append(errs, "driver.module is required")
	}

	if c.Hugepages.PageSize <= 0 || c.Hugepages.PageSize&(c.Hugepages.PageSize-1) != 0 {
		errs = append(errs, "hugepages.page_size must be a positive power of two")
	}
	if c.Hugepages.VerifyMount && c.Hugepages.MountPoint == "" {
		errs = append(errs, "hugepages.mount_point is required when verify_mount is set")
	}

	if c.Tools.Hugepages == "" || c.Tools.Devbind == "" || c.Tools.Modprobe == "" {
		errs = append(errs, "tools.hugepages, tools.devbind and tools.modprobe must not be empty")
	}
	if c.Tools.Timeout <= 0 {
		errs = append(errs, "tools.timeout must be positive")
	}

	switch c.Inventory.Source {
	case InventoryDevbind:
	case InventorySysfs:
		if c.Inventory.SysfsRoot == "" {
			errs = append(errs, "inventory.sysfs_root is required for the sysfs source")
		}
	default:
		errs = append(errs, fmt.Sprintf("inventory.source must be %q or %q", InventoryDevbind, InventorySysfs))
	}

	if c.Child.ConfigEnv == "" || strings.ContainsAny(c.Child.ConfigEnv, "= ") {
		errs = append(errs, "child.config_env must be a valid environment variable name")
	}

	for i, lib := range c.EAL.ExternalLibs {
		if lib == "" {
			errs = append(errs, fmt.Sprintf("eal.external_libs[%d] is empty", i))
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetFlushInterval returns the InfluxDB flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.InfluxDB.FlushInterval) * time.Second
}
