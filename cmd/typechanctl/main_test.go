package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/typechan/internal/testutil/testlog"
	"github.com/danmuck/typechan/internal/transport"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFormatCommand(t *testing.T) {
	testlog.Start(t)
	out, err := run(t, "format", "%5.2f %hd %s")
	require.NoError(t, err)
	require.Contains(t, out, "field 0: float64")
	require.Contains(t, out, "field 1: int16")
	require.Contains(t, out, `send:    "%5.2f %d %s"`)

	_, err = run(t, "format", "%p")
	require.Error(t, err)
}

func TestSchemaValidateCommand(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "vec.yaml")
	require.NoError(t, os.WriteFile(good, []byte("type: 1darray\nsubtype: int\nprecision: 16\nlength: 4\n"), 0o600))
	out, err := run(t, "schema", "validate", good)
	require.NoError(t, err)
	require.Contains(t, out, "ok")
	require.Contains(t, out, "1darray<int16>[4]")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type": "nonsense"}`), 0o600))
	_, err = run(t, "schema", "validate", bad)
	require.Error(t, err)
}

func TestSchemaCompareCommand(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	write := func(name, doc string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
		return path
	}
	metres := write("m.yaml", "type: float\nunits: m\n")
	alias := write("num.json", `{"type": "number", "units": "m"}`)
	seconds := write("s.yaml", "type: float\nunits: s\n")

	out, err := run(t, "schema", "compare", metres, alias)
	require.NoError(t, err)
	require.Contains(t, out, "equivalent")

	_, err = run(t, "schema", "compare", metres, seconds)
	require.Error(t, err)
}

func TestConfigInitAndValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "registry.toml")
	_, err := run(t, "config", "init", "--kind", "registry", "--output", path)
	require.NoError(t, err)

	_, err = run(t, "config", "init", "--kind", "registry", "--output", path)
	require.Error(t, err)
	_, err = run(t, "config", "init", "--kind", "registry", "--output", path, "--force")
	require.NoError(t, err)

	out, err := run(t, "config", "validate", path)
	require.NoError(t, err)
	require.Contains(t, out, "validated registry config")

	out, err = run(t, "channels", path)
	require.NoError(t, err)
	require.Contains(t, out, "echo.reply\tunix:///tmp/typechan-echo-reply.sock")
	require.Contains(t, out, "echo.request\t")
}

func TestRouterServesHealthAndChannels(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "registry.toml")
	_, err := run(t, "config", "init", "--output", path)
	require.NoError(t, err)
	reg, err := transport.OpenFileRegistry(path)
	require.NoError(t, err)
	defer reg.Close()

	srv := httptest.NewServer(newRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/channels")
	require.NoError(t, err)
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	resp.Body.Close()
	require.Equal(t, "echo.reply\necho.request\n", body.String())

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
