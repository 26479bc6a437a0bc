package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/voxelroom/internal/artifact"
	"github.com/roach88/voxelroom/internal/canvas"
	"github.com/roach88/voxelroom/internal/room"
	"github.com/roach88/voxelroom/internal/server"
	"github.com/roach88/voxelroom/internal/store"
	"github.com/roach88/voxelroom/internal/testutil"
)

// execute runs the CLI with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals the data field of a JSON CLIResponse into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// startServer runs an in-process server over a memory store seeded with
// one painted room.
func startServer(t *testing.T) (string, *store.Store) {
	t.Helper()
	st := store.New(store.NewMemoryKV(), store.DriverMemory)
	require.NoError(t, st.SaveState(context.Background(), "lobby", canvas.State{
		Voxels: canvas.PackedState{
			{Cell: 1, Color: canvas.MustColor("#ff0000"), Timestamp: 4},
			{Cell: 2, Color: canvas.MustColor("#00ff00"), Timestamp: 5},
		},
		Version: 3,
		Clock:   5,
	}))

	reg := room.NewRegistry(st,
		room.WithRegistryLogger(testutil.DiscardLogger()),
		room.WithRoomOptions(room.WithLogger(testutil.DiscardLogger())),
	)
	srv := server.New(reg, st, server.WithLogger(testutil.DiscardLogger()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		reg.Close()
	})
	return ts.URL, st
}

func TestSnapshotCommand(t *testing.T) {
	addr, _ := startServer(t)

	out, err := execute(t, "snapshot", "lobby", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "room lobby: live, version 3, clock 5, 2 cell(s), 0 participant(s)\n", out)

	out, err = execute(t, "snapshot", "lobby", "--addr", addr, "--format", "json")
	require.NoError(t, err)
	var snap room.Snapshot
	decodeData(t, out, &snap)
	assert.Equal(t, int64(3), snap.Version)
	assert.Len(t, snap.Voxels, 2)
}

func TestSnapshotCommand_Errors(t *testing.T) {
	addr, _ := startServer(t)

	_, err := execute(t, "snapshot", "bad.room", "--addr", addr)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "snapshot", "lobby", "--addr", "localhost:8080")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "snapshot", "lobby", "--addr", "http://127.0.0.1:1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFreezeCommand(t *testing.T) {
	addr, st := startServer(t)

	out, err := execute(t, "freeze", "lobby", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "✓ Froze room lobby at version 3 (2 cell(s))\n", out)

	frozen, err := st.IsFrozen(context.Background(), "lobby")
	require.NoError(t, err)
	assert.True(t, frozen)

	out, err = execute(t, "freeze", "lobby", "--addr", addr, "--format", "json")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"code":"E005"`)
}

func writeSQLiteConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "rooms.db")
	configPath = filepath.Join(dir, "voxelroom.yaml")
	body := "store:\n  driver: sqlite\n  dsn: " + dbPath + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))
	return configPath, dbPath
}

func TestExportAndInspect(t *testing.T) {
	configPath, dbPath := writeSQLiteConfig(t)
	ctx := context.Background()

	st, err := store.Open(ctx, store.DriverSQLite, dbPath)
	require.NoError(t, err)
	want := store.Frozen{
		Version: 9,
		Voxels: canvas.PackedState{
			{Cell: 0, Color: canvas.MustColor("#010203"), Timestamp: 1},
			{Cell: 421, Color: canvas.MustColor("#a0b0c0"), Timestamp: 8},
		},
		FrozenAt:       time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
		RoomIdentifier: "gallery",
	}
	require.NoError(t, st.PutFrozen(ctx, want))
	require.NoError(t, st.Close())

	artifactPath := filepath.Join(t.TempDir(), "gallery.vxr")
	out, err := execute(t, "export", "gallery", "--config", configPath, "-o", artifactPath, "--format", "json")
	require.NoError(t, err)

	var exported ExportResult
	decodeData(t, out, &exported)
	assert.Equal(t, "gallery", exported.Room)
	assert.Equal(t, 2, exported.Cells)

	data, err := os.ReadFile(artifactPath)
	require.NoError(t, err)
	assert.Equal(t, artifact.Sum(data).String(), exported.Digest)
	assert.Equal(t, len(data), exported.Bytes)

	out, err = execute(t, "inspect", artifactPath, "--format", "json", "-v")
	require.NoError(t, err)
	var inspected InspectResult
	decodeData(t, out, &inspected)
	assert.Equal(t, int64(9), inspected.Version)
	assert.Equal(t, exported.Digest, inspected.Digest)
	assert.Equal(t, want.Voxels, inspected.Voxels)
	assert.True(t, want.FrozenAt.Equal(inspected.FrozenAt))

	out, err = execute(t, "inspect", artifactPath, "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "room gallery\n")
	assert.Contains(t, out, " 421 ( 1, 1, 1) #a0b0c0 @8")
}

func TestExport_NotFrozen(t *testing.T) {
	configPath, _ := writeSQLiteConfig(t)

	out, err := execute(t, "export", "lobby", "--config", configPath)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E006]: room lobby is not frozen")
}

func TestInspect_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.vxr")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o600))

	_, err := execute(t, "inspect", path)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "inspect", filepath.Join(t.TempDir(), "absent.vxr"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--listen", "127.0.0.1:0"})

	errc := make(chan error, 1)
	go func() { errc <- cmd.ExecuteContext(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServeCommand_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0o600))

	_, err := execute(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "requires a dsn")
}
