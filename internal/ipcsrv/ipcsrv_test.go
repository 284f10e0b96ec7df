package ipcsrv

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/generation"
	"github.com/hometree/hometree/internal/lock"
	"github.com/hometree/hometree/internal/pathoracle"
	"github.com/hometree/hometree/internal/revision/revisiontest"
	"github.com/hometree/hometree/internal/watch"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	homeDir := t.TempDir()
	stateDir := t.TempDir()
	runtimeDir := t.TempDir()

	backend := revisiontest.New()
	backend.Snapshot("c1", map[string]revisiontest.Entry{})

	oracle, err := pathoracle.New([]string{".config/**"}, nil, nil, nil)
	require.NoError(t, err)

	deps := watch.Deps{
		Config:      config.Default(),
		HomeDir:     homeDir,
		StateDir:    stateDir,
		WatchRoots:  []string{homeDir},
		Oracle:      oracle,
		Backend:     backend,
		Locks:       lock.New(stateDir),
		Generations: generation.Open(filepath.Join(stateDir, "generations.jsonl")),
	}
	deps.Config.Watch.DebounceMs = 10
	daemon := watch.New(deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = daemon.Run(ctx) }()

	srv, err := Listen(runtimeDir, daemon)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })

	return srv
}

func roundTrip(t *testing.T, srv *Server, req Request) Response {
	t.Helper()

	conn, err := net.DialTimeout("unix", srv.socket, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	data, err := json.Marshal(req)
	require.NoError(t, err)
	data = append(data, '\n')
	_, err = conn.Write(data)
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(trimNewline(line)), &resp))
	return resp
}

func TestServer_Ping(t *testing.T) {
	srv := newTestServer(t)
	resp := roundTrip(t, srv, Request{Cmd: "ping"})
	assert.True(t, resp.OK)
}

func TestServer_Status(t *testing.T) {
	srv := newTestServer(t)
	resp := roundTrip(t, srv, Request{Cmd: "status"})
	assert.True(t, resp.OK)
	assert.NotNil(t, resp.Result)
}

func TestServer_PauseThenResume(t *testing.T) {
	srv := newTestServer(t)

	pauseResp := roundTrip(t, srv, Request{Cmd: "pause", Reason: "cli deploy"})
	assert.True(t, pauseResp.OK)

	statusResp := roundTrip(t, srv, Request{Cmd: "status"})
	require.True(t, statusResp.OK)
	statusMap, ok := statusResp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, statusMap["paused"])

	resumeResp := roundTrip(t, srv, Request{Cmd: "resume"})
	assert.True(t, resumeResp.OK)
}

func TestServer_UnknownCommandReturnsError(t *testing.T) {
	srv := newTestServer(t)
	resp := roundTrip(t, srv, Request{Cmd: "bogus"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown command")
}

func TestServer_Shutdown(t *testing.T) {
	srv := newTestServer(t)
	resp := roundTrip(t, srv, Request{Cmd: "shutdown"})
	assert.True(t, resp.OK)
}
