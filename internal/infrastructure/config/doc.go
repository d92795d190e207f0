// Package config handles loading and validating nestsync configuration.
//
// Configuration is resolved in three layers: hardcoded defaults, a YAML
// file, then NESTSYNC_* environment variables. Validate runs last and
// reports every problem in one error.
//
// Secrets (OAuth2 client secret, MQTT password, InfluxDB token, JWT secret)
// should come from the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Nest.APIURL)
package config
