package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withTempConfigDir redirects the global config location to a temp dir
// for the duration of a test.
func withTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origDir := getConfigDirFunc
	origPath := getConfigPathFunc
	getConfigDirFunc = func() (string, error) { return dir, nil }
	getConfigPathFunc = func() (string, error) { return filepath.Join(dir, "config.json"), nil }
	t.Cleanup(func() {
		getConfigDirFunc = origDir
		getConfigPathFunc = origPath
	})

	return dir
}

func TestIsValidAPIKey(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"valid key", "lxr_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", true},
		{"valid uppercase hex", "lxr_0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF", true},
		{"wrong prefix", "sk-0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", false},
		{"missing prefix", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", false},
		{"too short", "lxr_0123456789abcdef", false},
		{"non-hex chars", "lxr_zzzz456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidAPIKey(tt.key))
		})
	}
}

func TestSaveAndLoadGlobalConfig(t *testing.T) {
	dir := withTempConfigDir(t)

	config := &GlobalConfig{
		APIKey: "lxr_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		APIURL: "http://localhost:8080",
	}

	require.NoError(t, SaveGlobalConfig(config))

	// File is written with owner-only permissions.
	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, config.APIKey, loaded.APIKey)
	assert.Equal(t, config.APIURL, loaded.APIURL)
}

func TestLoadGlobalConfig_MissingFile(t *testing.T) {
	withTempConfigDir(t)

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadGlobalConfig_Corrupt(t *testing.T) {
	dir := withTempConfigDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("not json"), 0600))

	_, err := LoadGlobalConfig()
	assert.Error(t, err)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	withTempConfigDir(t)

	assert.Error(t, SaveGlobalConfig(nil))
}

func TestDeleteGlobalConfig(t *testing.T) {
	dir := withTempConfigDir(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "k", APIURL: "u"}))
	require.NoError(t, DeleteGlobalConfig())

	_, err := os.Stat(filepath.Join(dir, "config.json"))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is a no-op.
	assert.NoError(t, DeleteGlobalConfig())
}

func TestGetCredentialSource_Cascade(t *testing.T) {
	withTempConfigDir(t)
	t.Setenv(envAPIKey, "")
	t.Setenv(envAPIURL, "")

	t.Run("flags win", func(t *testing.T) {
		source, key, url := GetCredentialSource("flag-key", "flag-url")
		assert.Equal(t, SourceFlag, source)
		assert.Equal(t, "flag-key", key)
		assert.Equal(t, "flag-url", url)
	})

	t.Run("env over global config", func(t *testing.T) {
		t.Setenv(envAPIKey, "env-key")
		t.Setenv(envAPIURL, "env-url")

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceEnvFile, source)
		assert.Equal(t, "env-key", key)
		assert.Equal(t, "env-url", url)
	})

	t.Run("global config fallback", func(t *testing.T) {
		require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "cfg-key", APIURL: "cfg-url"}))

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceGlobalConfig, source)
		assert.Equal(t, "cfg-key", key)
		assert.Equal(t, "cfg-url", url)
	})

	t.Run("none", func(t *testing.T) {
		require.NoError(t, DeleteGlobalConfig())

		source, key, url := GetCredentialSource("", "")
		assert.Equal(t, SourceNone, source)
		assert.Empty(t, key)
		assert.Empty(t, url)
	})
}

func TestGlobalConfigRoundTripsThroughJSON(t *testing.T) {
	config := GlobalConfig{APIKey: "lxr_abc", APIURL: "https://api.example.com"}

	data, err := json.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"api_key"`)
	assert.Contains(t, string(data), `"api_url"`)
}
