// Package config handles loading and validating TWC Director configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with TWCDIRECTOR_* environment variables
//   - Validation of required fields and the RS485 interface choice
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.SerialDevice())
package config
