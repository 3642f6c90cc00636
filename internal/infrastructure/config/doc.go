// Package config handles loading and validating the playout server configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (PLAYOUT_*)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/playout.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Studio.ID)
package config
