package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ErrPersist wraps a write failure on config save. Per the documented
// error taxonomy, in-memory state already reflects the attempted
// change — the write failure is surfaced to the caller rather than
// silently swallowed or rolled back, so it isn't masked.
var ErrPersist = errors.New("config: persist failed")

func setDefaults(v *viper.Viper) {
	v.SetDefault("allowed_domains", []string{})
	v.SetDefault("auto_update", nil)
	v.SetDefault("external", false)
	v.SetDefault("filters_path", "./")
	v.SetDefault("filter_version", "blu")
	v.SetDefault("small", false)
	v.SetDefault("verbosity", "info")
	v.SetDefault("web_password", "")
	v.SetDefault("overrides", map[string]any{})
}

// Config is the single shared, mutex-guarded configuration value. It
// is the outermost lock in the documented locking order (Config →
// Cache → Filter → ResolverManager → InstrumentationLog): callers must
// never call into those components while holding Config's lock.
type Config struct {
	mu   sync.Mutex
	path string
	file FileConfig

	// runtime-only, never persisted
	disabledUntil int64
	serverClosing bool
}

// Load reads the TOML document at path, applying defaults for any
// field it omits. A missing file is a fatal-init condition per the
// documented error taxonomy; callers that want a first-boot default
// document should create one before calling Load.
func Load(path string) (*Config, error) {
	// Override keys are dotted domain names; with Viper's default "."
	// key delimiter they would be split into nested tables.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if fc.Overrides == nil {
		fc.Overrides = map[string][4]byte{}
	}
	sort.Strings(fc.AllowedDomains)

	return &Config{path: path, file: fc}, nil
}

// Save performs a full-file rewrite of the TOML document at the path
// Config was loaded from.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Config) saveLocked() error {
	b, err := toml.Marshal(c.file)
	if err != nil {
		return fmt.Errorf("%w: marshaling: %v", ErrPersist, err)
	}
	if err := os.WriteFile(c.path, b, 0o600); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrPersist, c.path, err)
	}
	return nil
}

// Snapshot copies out every field an admin caller may read, without
// holding the lock past the copy.
func (c *Config) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	allowed := make([]string, len(c.file.AllowedDomains))
	copy(allowed, c.file.AllowedDomains)
	overrides := make(map[string][4]byte, len(c.file.Overrides))
	for k, v := range c.file.Overrides {
		overrides[k] = v
	}

	return Snapshot{
		AllowedDomains: allowed,
		AutoUpdate:     c.file.AutoUpdate,
		External:       c.file.External,
		FiltersPath:    c.file.FiltersPath,
		FilterVersion:  c.file.FilterVersion,
		Small:          c.file.Small,
		Verbosity:      c.file.Verbosity,
		WebPassword:    c.file.WebPassword,
		Overrides:      overrides,
		DisabledUntil:  c.disabledUntil,
		ServerClosing:  c.serverClosing,
	}
}

// Allowlist returns a sorted copy of the allowed-domains list, ready
// to pass directly into filter.Filter.FilteredBy's allowlist overlay.
func (c *Config) Allowlist() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.file.AllowedDomains))
	copy(out, c.file.AllowedDomains)
	return out
}

// AppendAllowlist adds name to the allowlist (if absent), keeps the
// list sorted per the suffix-walk's requirement, and persists.
func (c *Config) AppendAllowlist(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	i := sort.SearchStrings(c.file.AllowedDomains, name)
	if i < len(c.file.AllowedDomains) && c.file.AllowedDomains[i] == name {
		return nil
	}
	c.file.AllowedDomains = append(c.file.AllowedDomains, "")
	copy(c.file.AllowedDomains[i+1:], c.file.AllowedDomains[i:])
	c.file.AllowedDomains[i] = name

	return c.saveLocked()
}

// RemoveAllowlist removes name from the allowlist, if present, and persists.
func (c *Config) RemoveAllowlist(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	i := sort.SearchStrings(c.file.AllowedDomains, name)
	if i >= len(c.file.AllowedDomains) || c.file.AllowedDomains[i] != name {
		return nil
	}
	c.file.AllowedDomains = append(c.file.AllowedDomains[:i], c.file.AllowedDomains[i+1:]...)

	return c.saveLocked()
}

// SetAutoUpdate sets the auto-update interval multiplier (nil disables
// the ticker's signaling) and persists.
func (c *Config) SetAutoUpdate(interval *float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.file.AutoUpdate = interval
	return c.saveLocked()
}

// Overrides returns a copy of the current override table.
func (c *Config) Overrides() map[string][4]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][4]byte, len(c.file.Overrides))
	for k, v := range c.file.Overrides {
		out[k] = v
	}
	return out
}

// SetOverride inserts or replaces the override for name and persists.
func (c *Config) SetOverride(name string, addr [4]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file.Overrides == nil {
		c.file.Overrides = map[string][4]byte{}
	}
	c.file.Overrides[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))] = addr
	return c.saveLocked()
}

// RemoveOverride deletes the override for name, if present, and persists.
func (c *Config) RemoveOverride(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.file.Overrides, strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), ".")))
	return c.saveLocked()
}

// DisabledUntil reports the runtime-only disabled-gate timestamp.
func (c *Config) DisabledUntil() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabledUntil
}

// SetDisabledUntil sets the runtime-only disabled-gate timestamp; not persisted.
func (c *Config) SetDisabledUntil(until int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabledUntil = until
}

// ServerClosing reports the soft-shutdown flag long-lived tasks poll.
func (c *Config) ServerClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverClosing
}

// SetServerClosing sets the soft-shutdown flag; not persisted.
func (c *Config) SetServerClosing(closing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverClosing = closing
}

// FiltersPathDefault is the filters_path value a document gets when it
// omits the field (the same value setDefaults applies). Nothing in this
// package creates a config document; Load fails on a missing file.
const FiltersPathDefault = "./"
