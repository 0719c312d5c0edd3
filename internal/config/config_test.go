package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	snap := cfg.Snapshot()
	assert.Equal(t, "./", snap.FiltersPath)
	assert.Equal(t, "blu", snap.FilterVersion)
	assert.False(t, snap.External)
	assert.Empty(t, snap.AllowedDomains)
	assert.Nil(t, snap.AutoUpdate)
}

func TestLoadParsesDocument(t *testing.T) {
	path := writeConfig(t, `
allowed_domains = ["b.example.com", "a.example.com"]
external = true
filters_path = "/var/lib/dohward/filters"
filter_version = "ultimate"
small = true
verbosity = "debug"
web_password = "hunter2"

[overrides]
"router.lan" = [192, 168, 1, 1]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	snap := cfg.Snapshot()
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, snap.AllowedDomains)
	assert.True(t, snap.External)
	assert.Equal(t, "/var/lib/dohward/filters", snap.FiltersPath)
	assert.Equal(t, "ultimate", snap.FilterVersion)
	assert.True(t, snap.Small)
	assert.Equal(t, "debug", snap.Verbosity)
	assert.Equal(t, [4]byte{192, 168, 1, 1}, snap.Overrides["router.lan"])
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestAppendAllowlistKeepsSortedAndPersists(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.AppendAllowlist("zeta.example.com"))
	require.NoError(t, cfg.AppendAllowlist("alpha.example.com"))
	assert.Equal(t, []string{"alpha.example.com", "zeta.example.com"}, cfg.Allowlist())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.example.com", "zeta.example.com"}, reloaded.Allowlist())
}

func TestAppendAllowlistIsIdempotent(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.AppendAllowlist("example.com"))
	require.NoError(t, cfg.AppendAllowlist("example.com"))
	assert.Equal(t, []string{"example.com"}, cfg.Allowlist())
}

func TestRemoveAllowlist(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.AppendAllowlist("example.com"))
	require.NoError(t, cfg.RemoveAllowlist("example.com"))
	assert.Empty(t, cfg.Allowlist())
}

func TestSetAndRemoveOverride(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.SetOverride("router.lan", [4]byte{10, 0, 0, 1}))
	assert.Equal(t, [4]byte{10, 0, 0, 1}, cfg.Overrides()["router.lan"])

	require.NoError(t, cfg.RemoveOverride("router.lan"))
	_, ok := cfg.Overrides()["router.lan"]
	assert.False(t, ok)
}

func TestSetAutoUpdatePersists(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	interval := 2.0
	require.NoError(t, cfg.SetAutoUpdate(&interval))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Snapshot().AutoUpdate)
	assert.Equal(t, 2.0, *reloaded.Snapshot().AutoUpdate)
}

func TestDisabledUntilAndServerClosingAreRuntimeOnly(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.SetDisabledUntil(1234)
	cfg.SetServerClosing(true)
	assert.Equal(t, int64(1234), cfg.DisabledUntil())
	assert.True(t, cfg.ServerClosing())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.DisabledUntil())
	assert.False(t, reloaded.ServerClosing())
}
