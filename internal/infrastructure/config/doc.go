// Package config loads the bridge configuration.
//
// Load starts from built-in defaults, overlays the YAML file, applies
// EZVIZBRIDGE_* environment variables and validates the result, reporting
// every problem at once.
//
// Secrets (the EZVIZ password, MQTT password, InfluxDB token and JWT secret)
// belong in the environment rather than the file; keep the file 0600 when
// they are not.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	serial := cfg.EZVIZ.Serial
package config
