// Package config handles loading and validating the launcher's own settings.
//
// These are the settings of pvrun itself (driver, tool locations, lock,
// logging and the optional history, MQTT and InfluxDB sinks), not the
// application configuration handed to the child.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via
//     environment variables
//   - The launcher usually runs as root, so the settings file should be
//     writable by root only
//
// Usage:
//
//	cfg, err := config.LoadOrDefault(config.DefaultPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Driver.Name)
package config
