package config

import (
	"github.com/jpalmerr/apimonitor"
)

// BuildOptions converts the parsed configuration into monitor options: the
// dashboard title and port, and the seed for a fresh settings store.
//
// The settings store, logger and log file are process resources and are
// added by the caller.
func BuildOptions(cfg *Config) []apimonitor.Option {
	return []apimonitor.Option{
		apimonitor.WithTitle(cfg.Title),
		apimonitor.WithPort(cfg.Port),
		apimonitor.WithSeedSettings(cfg.Seed()),
	}
}
