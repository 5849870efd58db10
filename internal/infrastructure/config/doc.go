// Package config handles loading and validating tpuartd configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Overriding with TPUART_* environment variables
//   - Validation of addresses, serial settings and datapoints
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/tpuartd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Serial.Port)
package config
