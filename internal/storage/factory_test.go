package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mealplanner/pantry/internal/bridge"
)

// brokenTransport refuses every send, simulating a host that is gone.
type brokenTransport struct{}

func (brokenTransport) Send(bridge.Request) error {
	return errors.New("host unreachable")
}

func TestOpen_DefaultsToMemory(t *testing.T) {
	a, name, err := Open(context.Background(), Capabilities{}, zap.NewNop())

	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendMemory, name)
}

func TestOpen_PrefersSQLiteWhenPathConfigured(t *testing.T) {
	caps := Capabilities{SQLitePath: filepath.Join(t.TempDir(), "test.db")}

	a, name, err := Open(context.Background(), caps, zap.NewNop())

	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendSQLite, name)
}

func TestOpen_PrefersBridgeWhenTransportPresent(t *testing.T) {
	caps := Capabilities{
		BridgeTransport: newFakeHost(),
		SQLitePath:      filepath.Join(t.TempDir(), "test.db"),
	}

	a, name, err := Open(context.Background(), caps, zap.NewNop())

	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendBridge, name)
}

func TestOpen_FallsBackWhenBridgeUnavailable(t *testing.T) {
	caps := Capabilities{
		BridgeTransport: brokenTransport{},
		SQLitePath:      filepath.Join(t.TempDir(), "test.db"),
	}

	a, name, err := Open(context.Background(), caps, zap.NewNop())

	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendSQLite, name)
}

func TestOpen_ForcePinsBackend(t *testing.T) {
	caps := Capabilities{
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		Force:      BackendMemory,
	}

	a, name, err := Open(context.Background(), caps, zap.NewNop())

	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendMemory, name)
}

func TestOpen_ForceFailsWhenCapabilityMissing(t *testing.T) {
	_, _, err := Open(context.Background(), Capabilities{Force: BackendBridge}, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge transport not configured")
}

func TestOpen_ForceRejectsUnknownBackend(t *testing.T) {
	_, _, err := Open(context.Background(), Capabilities{Force: "cloud"}, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "cloud"`)
}
