package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/portico/internal/server"
	"github.com/majorcontext/portico/internal/target"
	"github.com/majorcontext/portico/internal/ui"
)

// setup points the state dir at a temp dir and captures CLI output.
func setup(t *testing.T) (*target.Registry, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("PORTICO_HOME", home)

	var out, errOut bytes.Buffer
	ui.SetOutput(&out, &errOut)
	t.Cleanup(func() { ui.SetOutput(os.Stdout, os.Stderr) })

	reg, err := target.NewRegistry(filepath.Join(home, "applications.json"))
	require.NoError(t, err)
	return reg, &out, &errOut
}

func TestAddAndListTargets(t *testing.T) {
	reg, out, _ := setup(t)

	require.NoError(t, addTargetTo(reg, target.Config{
		ID: "orders", Name: "Orders", Protocol: "http", Host: "orders.local", Port: "8080",
		AuthType: "bearer", Token: "s3cr3t",
	}))
	assert.Contains(t, out.String(), "Added target orders (http://orders.local:8080)")

	out.Reset()
	require.NoError(t, listTargets(reg))
	got := out.String()
	assert.Contains(t, got, "orders")
	assert.Contains(t, got, "http://orders.local:8080")
	assert.Contains(t, got, "bearer")
	assert.Contains(t, got, "Total: 1")
	assert.NotContains(t, got, "s3cr3t")
}

func TestAddTarget_GeneratesID(t *testing.T) {
	reg, _, _ := setup(t)

	require.NoError(t, addTargetTo(reg, target.Config{Host: "a.local"}))

	list := reg.List()
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)
}

func TestAddTarget_Validation(t *testing.T) {
	reg, _, errOut := setup(t)

	assert.Error(t, addTargetTo(reg, target.Config{ID: "x"}))
	assert.Equal(t, 0, reg.Len())

	require.NoError(t, addTargetTo(reg, target.Config{ID: "x", Host: "a", AuthType: "oauth", ClientID: "cid"}))
	assert.Contains(t, errOut.String(), "oauth targets need")

	require.NoError(t, addTargetTo(reg, target.Config{ID: "x", Host: "b"}))
	assert.Contains(t, errOut.String(), `a target with id "x" already exists`)
}

func TestListTargets_Empty(t *testing.T) {
	reg, out, _ := setup(t)

	require.NoError(t, listTargets(reg))
	assert.Contains(t, out.String(), "No targets registered")
}

func TestListTargets_JSON(t *testing.T) {
	reg, out, _ := setup(t)
	jsonOut = true
	t.Cleanup(func() { jsonOut = false })

	_, err := reg.Add(target.Config{ID: "a", Host: "a.local", AuthType: "basic", Username: "u", Password: "p"})
	require.NoError(t, err)

	require.NoError(t, listTargets(reg))
	var list []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "u", list[0]["username"])
	assert.NotContains(t, list[0], "password")
}

func TestShowTarget(t *testing.T) {
	reg, out, _ := setup(t)
	_, err := reg.Add(target.Config{
		ID: "billing", Host: "billing.local", AuthType: "oauth",
		ClientID: "app", ClientSecret: "shh", TokenURL: "https://idp.local/token",
	})
	require.NoError(t, err)

	require.NoError(t, showTarget(reg, "billing"))
	assert.Contains(t, out.String(), "app")
	assert.Contains(t, out.String(), "********")
	assert.NotContains(t, out.String(), "shh")

	out.Reset()
	showSecrets = true
	t.Cleanup(func() { showSecrets = false })
	require.NoError(t, showTarget(reg, "billing"))
	assert.Contains(t, out.String(), "shh")

	assert.Error(t, showTarget(reg, "missing"))
}

func TestRemoveTarget(t *testing.T) {
	reg, out, _ := setup(t)
	_, err := reg.Add(target.Config{ID: "a", Host: "a.local"})
	require.NoError(t, err)

	require.NoError(t, removeTarget(reg, "a"))
	assert.Contains(t, out.String(), "Removed target a")
	assert.Equal(t, 0, reg.Len())

	err = removeTarget(reg, "a")
	assert.ErrorIs(t, err, target.ErrNotFound)
}

func TestAuthLabel(t *testing.T) {
	assert.Equal(t, "none", authLabel(target.Config{}))
	assert.Equal(t, "oauth", authLabel(target.Config{AuthType: "OAuth2"}))
	assert.Equal(t, "digest (ignored)", authLabel(target.Config{AuthType: "digest"}))
}

func TestWarnIfServing(t *testing.T) {
	reg, _, errOut := setup(t)

	require.NoError(t, addTargetTo(reg, target.Config{ID: "a", Host: "a.local"}))
	assert.Empty(t, errOut.String())

	require.NoError(t, server.SaveLock(os.Getenv("PORTICO_HOME"), server.LockInfo{
		PID: os.Getpid(), Host: "127.0.0.1", Port: 2027,
	}))
	require.NoError(t, removeTarget(reg, "a"))
	assert.Contains(t, errOut.String(), "http://127.0.0.1:2027/applications")
}

func TestServerState(t *testing.T) {
	dir := t.TempDir()

	_, state, err := loadServerState(dir)
	require.NoError(t, err)
	assert.Equal(t, stateStopped, state)

	require.NoError(t, server.SaveLock(dir, server.LockInfo{PID: 99999999, Port: 2027}))
	_, state, err = loadServerState(dir)
	require.NoError(t, err)
	assert.Equal(t, stateStale, state)

	require.NoError(t, server.SaveLock(dir, server.LockInfo{PID: os.Getpid(), Port: 2027}))
	lock, state, err := loadServerState(dir)
	require.NoError(t, err)
	assert.Equal(t, stateRunning, state)
	assert.Equal(t, 2027, lock.Port)
}

func TestStatusAndStop_NotRunning(t *testing.T) {
	_, out, _ := setup(t)

	require.NoError(t, runStatus(statusCmd, nil))
	assert.Contains(t, out.String(), "portico is not running")

	out.Reset()
	require.NoError(t, server.SaveLock(os.Getenv("PORTICO_HOME"), server.LockInfo{PID: 99999999, Port: 2027}))
	require.NoError(t, runStop(stopCmd, nil))
	assert.Contains(t, out.String(), "cleaned up stale lock")

	lock, err := server.LoadLock(os.Getenv("PORTICO_HOME"))
	require.NoError(t, err)
	assert.Nil(t, lock)
}
