package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-mock-server/internal/app/mockserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvDefaults(t *testing.T) {
	config, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, config.AdminPort)
	assert.Equal(t, 5*time.Second, config.DrainTimeout)
	assert.Equal(t, 500*time.Millisecond, config.WaitDelay)
	assert.Equal(t, 15*time.Second, config.WaitDuration)
}

func TestNewFromEnvOverrides(t *testing.T) {
	t.Setenv("ADMIN_PORT", "9090")
	t.Setenv("WAIT_DURATION", "1m")
	t.Setenv("PACT_OUTPUT_DIR", "/tmp/pacts")

	config, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9090, config.AdminPort)
	assert.Equal(t, time.Minute, config.WaitDuration)
	assert.Equal(t, "/tmp/pacts", config.PactOutputDir)
}

func TestNewFromEnvInvalid(t *testing.T) {
	t.Setenv("ADMIN_PORT", "not a port")

	_, err := NewFromEnv()
	assert.Error(t, err)
}

func TestLoadAndStartMocks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.json"), []byte(testPact), 0o600))
	mocks := filepath.Join(dir, "mocks.yaml")
	require.NoError(t, os.WriteFile(mocks, []byte("mocks:\n  - pact: accounts.json\n  - pact: accounts.json\n    tls: true\n"), 0o600))

	definitions, err := LoadMocks(mocks)
	require.NoError(t, err)
	require.Len(t, definitions, 2)
	assert.Equal(t, filepath.Join(dir, "accounts.json"), definitions[0].Pact)
	assert.Equal(t, "127.0.0.1:0", definitions[0].Address)
	assert.True(t, definitions[1].TLS)

	servers, err := StartMocks(definitions, Config{})
	require.NoError(t, err)
	defer mockserver.ShutdownAll()
	require.Len(t, servers, 2)
	assert.Contains(t, servers[1].URL(), "https://")
}

func TestLoadMocksErrors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("mocks: [\n"), 0o600))
	_, err := LoadMocks(invalid)
	assert.ErrorIs(t, err, ErrInvalidMocks)

	missingPact := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missingPact, []byte("mocks:\n  - address: 127.0.0.1:0\n"), 0o600))
	_, err = LoadMocks(missingPact)
	assert.ErrorIs(t, err, ErrInvalidMocks)

	_, err = StartMocks([]MockDefinition{{Pact: filepath.Join(dir, "nope.json"), Address: "127.0.0.1:0"}}, Config{})
	assert.Error(t, err)
}
