// Package config handles loading and validating plcd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with PLC_* environment variables
//   - Validation of every section, reported together
//   - Watching the file so the cue default table can change at runtime
//
// Only defaults.cue is applied on reload; other sections are read once at
// startup.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ListenAddr())
package config
