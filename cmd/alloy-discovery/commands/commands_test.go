package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudless/alloy-discovery/pkg/discovery"
	"github.com/cloudless/alloy-discovery/pkg/targets"
)

var testInfo = BuildInfo{Version: "v0.1.0", BuildTime: "2026-10-19T00:00:00Z", GitCommit: "abc123"}

// nomadServer fakes the two Nomad endpoints the generator calls
func nomadServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/allocation/self", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ID":"self","NodeID":"node-1","ClientStatus":"running"}`))
	})
	mux.HandleFunc("/v1/node/node-1/allocations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"ID":"a1","JobID":"web","TaskGroup":"frontend","ClientStatus":"running","NodeID":"node-1","TaskStates":{"nginx":{}}},
			{"ID":"a2","JobID":"batch","ClientStatus":"complete","NodeID":"node-1","TaskStates":{"run":{}}}
		]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{"NOMAD_ADDR", "NOMAD_TOKEN", "NOMAD_ALLOC_ID", "NOMAD_LOG_DIR",
		"ALLOY_DISCOVERY_FILE", "REFRESH_INTERVAL", "CONTINUOUS_MODE", "METRICS_ADDR"} {
		t.Setenv(env, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	clearEnv(t)

	var out bytes.Buffer
	root := NewRootCommand(testInfo)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "alloy-discovery version v0.1.0")
	assert.Contains(t, out, "Git commit: abc123")
}

func TestRoot_SingleRunWritesFile(t *testing.T) {
	server := nomadServer(t)
	path := filepath.Join(t.TempDir(), "alloy", "targets.alloy")

	_, err := execute(t,
		"--nomad-addr", server.URL,
		"--alloc-id", "self",
		"--output-file", path,
		"--log-dir", "/data/alloc",
		"--continuous-mode", "false",
		"--log-level", "error",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	parsed, err := discovery.ParseTargets(data)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "/data/alloc/a1/alloc/logs/nginx.stdout.0", parsed[0][targets.LabelPath])
	assert.Equal(t, "node-1", parsed[1][targets.LabelNodeID])
}

func TestRoot_ResolveFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := execute(t,
		"--nomad-addr", server.URL,
		"--alloc-id", "self",
		"--output-file", filepath.Join(t.TempDir(), "targets.alloy"),
		"--continuous-mode", "false",
		"--log-level", "error",
	)
	assert.ErrorContains(t, err, "failed to resolve node identity")
}

func TestRoot_RequiresAllocID(t *testing.T) {
	_, err := execute(t, "--continuous-mode", "false")
	assert.ErrorContains(t, err, "allocation id is required")
}

func TestRoot_RejectsBadAddress(t *testing.T) {
	_, err := execute(t, "--nomad-addr", "ftp://nomad", "--alloc-id", "self", "--log-level", "error")
	assert.ErrorContains(t, err, "unsupported address scheme")
}

func TestTargetsCommand_JSON(t *testing.T) {
	server := nomadServer(t)

	out, err := execute(t, "targets", "--nomad-addr", server.URL, "--alloc-id", "self", "-o", "json")
	require.NoError(t, err)

	var got []targets.Target
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "nginx", got[0].Task)
	assert.Equal(t, targets.StreamStdout, got[0].Stream)
	assert.Equal(t, targets.StreamStderr, got[1].Stream)
}

func TestTargetsCommand_TableWithNodeID(t *testing.T) {
	server := nomadServer(t)

	out, err := execute(t, "targets", "--nomad-addr", server.URL, "--node-id", "node-1")
	require.NoError(t, err)
	assert.Contains(t, out, "nginx")
	assert.Contains(t, out, "2 targets on node node-1")
}

func TestTargetsCommand_RequiresNode(t *testing.T) {
	_, err := execute(t, "targets")
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.alloy")
	ts := []targets.Target{{Path: "/p/a1/alloc/logs/web.stdout.0", Stream: "stdout", Job: `quo"ted`, Task: "web", AllocID: "a1"}}
	require.NoError(t, os.WriteFile(path, discovery.Render(ts, discovery.RenderOptions{}), 0644))

	out, err := execute(t, "check", path, "-o", "json")
	require.NoError(t, err)

	var got []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, `quo"ted`, got[0][targets.LabelJob])

	out, err = execute(t, "check", "--output-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 targets in "+path)
}

func TestCheckCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "check", filepath.Join(t.TempDir(), "missing.alloy"))
	assert.ErrorContains(t, err, "failed to read discovery file")
}
