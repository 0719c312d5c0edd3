// Package config owns the forwarder's single persisted TOML document
// plus the runtime-only fields layered on top of it, guarded by one
// mutex per the documented locking order (Config is the outermost
// lock). Persistence is Viper-backed, following the teacher's own
// internal/config/config.go, pointed at a TOML document instead of
// YAML; writes are full-file rewrites via github.com/pelletier/go-toml/v2,
// the library Viper itself uses to parse TOML but which this package
// also calls directly on save, since Viper has no "write exactly this
// struct back out" verb that preserves the documented field set
// precisely.
package config

// Override is a static name-to-address mapping: queries for Name are
// answered with Address without ever consulting the filter or an
// upstream resolver. Grounded on
// _examples/original_source/src/overrides.rs, confirmed to be a plain
// name-to-IPv4 map sourced from the config document.
type Override struct {
	Name    string
	Address [4]byte
}

// FileConfig is the exact TOML document schema, read and rewritten in
// full on every save.
type FileConfig struct {
	AllowedDomains []string           `mapstructure:"allowed_domains" toml:"allowed_domains"`
	AutoUpdate     *float64           `mapstructure:"auto_update"     toml:"auto_update"`
	External       bool               `mapstructure:"external"        toml:"external"`
	FiltersPath    string             `mapstructure:"filters_path"    toml:"filters_path"`
	FilterVersion  string             `mapstructure:"filter_version"  toml:"filter_version"`
	Small          bool               `mapstructure:"small"           toml:"small"`
	Verbosity      string             `mapstructure:"verbosity"       toml:"verbosity"`
	WebPassword    string             `mapstructure:"web_password"    toml:"web_password"`
	Overrides      map[string][4]byte `mapstructure:"overrides"       toml:"overrides"`
}

// Snapshot is a read-only copy of the live Config's state, safe to
// hand to an admin caller without holding any lock.
type Snapshot struct {
	AllowedDomains []string
	AutoUpdate     *float64
	External       bool
	FiltersPath    string
	FilterVersion  string
	Small          bool
	Verbosity      string
	WebPassword    string
	Overrides      map[string][4]byte
	DisabledUntil  int64
	ServerClosing  bool
}
