package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/backy2/backy2/internal/config"
)

func TestLoadConfig_DefaultsWhenNoFilesPresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.LoadConfig(config.LoadConfigInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dir, ".backy2", "meta.db"), cfg.MetaPathAbs)
	require.Equal(t, filepath.Join(dir, ".backy2", "data"), cfg.DataDirAbs)
	require.Equal(t, int64(config.DefaultBlockSize), cfg.BlockSize)
	require.Equal(t, config.DataBackendFS, cfg.DataBackend)
}

func TestLoadConfig_ProjectFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName),
		[]byte(`{"meta_path": "custom/meta.db", "block_size": 65536}`), 0o640))

	cfg, err := config.LoadConfig(config.LoadConfigInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dir, "custom", "meta.db"), cfg.MetaPathAbs)
	require.Equal(t, int64(65536), cfg.BlockSize)
}

func TestLoadConfig_ProjectFileTolersComments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(`{
		// inline comment
		"data_dir": "blobs",
	}`), 0o640))

	cfg, err := config.LoadConfig(config.LoadConfigInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "blobs"), cfg.DataDirAbs)
}

func TestLoadConfig_CLIOverrideWinsOverProjectFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName),
		[]byte(`{"data_dir": "from-file"}`), 0o640))

	cfg, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride: dir,
		DataDirOverride: "from-cli",
		Env:             map[string]string{},
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "from-cli"), cfg.DataDirAbs)
}

func TestLoadConfig_ExplicitConfigFileMustExist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride: dir,
		ConfigPath:      "does-not-exist.json",
		Env:             map[string]string{},
	})
	require.ErrorIs(t, err, config.ErrConfigFileNotFound)
}

func TestLoadConfig_UnknownDataBackendIsRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName),
		[]byte(`{"data_backend": "bogus"}`), 0o640))

	_, err := config.LoadConfig(config.LoadConfigInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.ErrorIs(t, err, config.ErrUnknownDataBackend)
}

func TestLoadConfig_GlobalConfigFromXDGConfigHome(t *testing.T) {
	t.Parallel()

	xdg := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "backy2"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "backy2", "config.json"),
		[]byte(`{"process_name": "backy2-global"}`), 0o640))

	dir := t.TempDir()

	cfg, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride: dir,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
	})
	require.NoError(t, err)
	require.Equal(t, "backy2-global", cfg.ProcessName)
}
