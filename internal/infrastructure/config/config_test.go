package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pvrun.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
driver:
  name: vfio-pci
  module: vfio-pci
hugepages:
  page_size: 1073741824
tools:
  sudo: true
  timeout: 30s
inventory:
  source: sysfs
  sysfs_root: /tmp/sys
eal:
  external_libs:
    - librte_net_ice.so
history:
  enabled: true
  path: /tmp/history.db
mqtt:
  enabled: true
  broker:
    host: broker.local
    port: 8883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Driver.Name != "vfio-pci" {
		t.Errorf("Driver.Name = %q, want %q", cfg.Driver.Name, "vfio-pci")
	}
	if cfg.Hugepages.PageSize != 1<<30 {
		t.Errorf("Hugepages.PageSize = %d, want %d", cfg.Hugepages.PageSize, 1<<30)
	}
	if !cfg.Tools.Sudo || cfg.Tools.Timeout != 30*time.Second {
		t.Errorf("Tools = %+v, want sudo with 30s timeout", cfg.Tools)
	}
	if cfg.Inventory.Source != InventorySysfs {
		t.Errorf("Inventory.Source = %q, want %q", cfg.Inventory.Source, InventorySysfs)
	}
	if len(cfg.EAL.ExternalLibs) != 1 {
		t.Errorf("EAL.ExternalLibs = %v, want one entry", cfg.EAL.ExternalLibs)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	// Untouched sections keep their defaults.
	if cfg.Child.ConfigEnv != "PV_CONFIG" {
		t.Errorf("Child.ConfigEnv = %q, want PV_CONFIG", cfg.Child.ConfigEnv)
	}
	if cfg.Tools.Devbind != "dpdk-devbind.py" {
		t.Errorf("Tools.Devbind = %q, want default", cfg.Tools.Devbind)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/pvrun.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Driver.Name != "uio_pci_generic" {
		t.Errorf("Driver.Name = %q, want uio_pci_generic", cfg.Driver.Name)
	}
	if cfg.Hugepages.PageSize != 2*1024*1024 {
		t.Errorf("Hugepages.PageSize = %d, want 2 MiB", cfg.Hugepages.PageSize)
	}
	if !cfg.Lock.Enabled {
		t.Error("Lock.Enabled = false, want true")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
	if _, err := LoadOrDefault(path); err == nil {
		t.Error("LoadOrDefault() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty driver", "driver:\n  name: \"\"\n", "driver.name"},
		{"page size not power of two", "hugepages:\n  page_size: 3000\n", "hugepages.page_size"},
		{"unknown inventory", "inventory:\n  source: lspci\n", "inventory.source"},
		{"bad env name", "child:\n  config_env: \"A=B\"\n", "child.config_env"},
		{"bad qos", "mqtt:\n  qos: 3\n", "mqtt.qos"},
		{"influx without org", "influxdb:\n  enabled: true\n", "influxdb.url"},
		{"zero timeout", "tools:\n  timeout: 0s\n", "tools.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PVRUN_LOG_LEVEL", "debug")
	t.Setenv("PVRUN_DRIVER", "igb_uio")
	t.Setenv("PVRUN_TOOLS_SUDO", "true")
	t.Setenv("PVRUN_LOCK_PATH", "/tmp/pv.lock")
	t.Setenv("PVRUN_MQTT_PORT", "1884")
	t.Setenv("PVRUN_INFLUXDB_TOKEN", "secret")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Driver.Name != "igb_uio" || cfg.Driver.Module != "igb_uio" {
		t.Errorf("Driver = %+v, want igb_uio for both", cfg.Driver)
	}
	if !cfg.Tools.Sudo {
		t.Error("Tools.Sudo = false, want true")
	}
	if cfg.Lock.Path != "/tmp/pv.lock" {
		t.Errorf("Lock.Path = %q", cfg.Lock.Path)
	}
	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}
	if cfg.InfluxDB.Token != "secret" {
		t.Errorf("InfluxDB.Token = %q, want secret", cfg.InfluxDB.Token)
	}
}

func TestEnvOverrides_Invalid(t *testing.T) {
	t.Setenv("PVRUN_MQTT_PORT", "not-a-port")

	_, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "PVRUN_MQTT_PORT") {
		t.Errorf("error = %v, want PVRUN_MQTT_PORT failure", err)
	}
}

func TestGetFlushInterval(t *testing.T) {
	cfg := defaultConfig()
	cfg.InfluxDB.FlushInterval = 5
	if got := cfg.GetFlushInterval(); got != 5*time.Second {
		t.Errorf("GetFlushInterval() = %v, want 5s", got)
	}
}
