package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/courier/internal/load/config"
	"github.com/wesleyorama2/courier/internal/load/delivery/deliverytest"
)

// executeCommand runs the courier command tree with args and captures its
// output streams.
func executeCommand(args ...string) (stdout, stderr string, err error) {
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err = root.Execute()
	return out.String(), errOut.String(), err
}

func newDeliveryStub(t *testing.T) (*httptest.Server, *deliverytest.API) {
	api := deliverytest.NewAPI("/api")
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return srv, api
}

func quickRunArgs(host string, extra ...string) []string {
	args := []string{"run", "--host", host, "-u", "2", "-r", "50", "-t", "300ms",
		"--wait-min", "1ms", "--wait-max", "5ms"}
	return append(args, extra...)
}

func TestRootHelp(t *testing.T) {
	stdout, _, err := executeCommand()
	require.NoError(t, err)

	for _, sub := range []string{"run", "catalog", "stages"} {
		assert.Contains(t, stdout, sub)
	}
}

func TestCatalogCmd(t *testing.T) {
	stdout, _, err := executeCommand("catalog")
	require.NoError(t, err)

	assert.Contains(t, stdout, "GET /api/products/:id")
	assert.Contains(t, stdout, "POST /api/auth/login")
	assert.Contains(t, stdout, "on start")
	assert.Contains(t, stdout, "10 actions, total weight 45")
}

func TestCatalogCmd_Flags(t *testing.T) {
	stdout, _, err := executeCommand("catalog", "--prefix", "/v2", "--auth-probability", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "GET /v2/categories")
	assert.Contains(t, stdout, "100.0%")

	_, _, err = executeCommand("catalog", "--auth-probability", "1.5")
	assert.Error(t, err)
}

func TestStagesCmd(t *testing.T) {
	stdout, _, err := executeCommand("stages")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ramp-down")
	assert.Contains(t, stdout, "3:30")
	assert.Contains(t, stdout, "5 stages, total 3m30s")

	stdout, _, err = executeCommand("stages", "--stages", "30s:10:2:warm,30s:0:2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "warm")
	assert.Contains(t, stdout, "2 stages, total 1m0s")

	_, _, err = executeCommand("stages", "--stages", "30s:-1:2")
	assert.Error(t, err, "negative users are rejected")
}

func TestStagesCmd_ConfigWithoutShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("settings:\n  host: http://localhost\n"), 0o644))

	_, _, err := executeCommand("stages", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no load shape")
}

func TestRunCmd_Passes(t *testing.T) {
	srv, _ := newDeliveryStub(t)

	stdout, _, err := executeCommand(quickRunArgs(srv.URL, "-q")...)
	require.NoError(t, err)
	assert.Equal(t, "PASSED", strings.TrimSpace(stdout))
}

func TestRunCmd_ThresholdsFail(t *testing.T) {
	srv, api := newDeliveryStub(t)
	api.FailWith(http.StatusInternalServerError)

	stdout, _, err := executeCommand(quickRunArgs(srv.URL, "-q")...)
	require.ErrorIs(t, err, ErrThresholdsFailed)
	assert.Equal(t, "FAILED", strings.TrimSpace(stdout))
}

func TestRunCmd_ProgressAndSummary(t *testing.T) {
	srv, _ := newDeliveryStub(t)

	prev := updateInterval
	updateInterval = 20 * time.Millisecond
	t.Cleanup(func() { updateInterval = prev })

	stdout, _, err := executeCommand(quickRunArgs(srv.URL, "--name", "smoke")...)
	require.NoError(t, err)

	assert.Contains(t, stdout, "smoke - Running [constant-users]")
	assert.Contains(t, stdout, "Progress:", "non-TTY runs print status lines")
	assert.Contains(t, stdout, "smoke - Completed ✓")
	assert.Contains(t, stdout, "Aggregated")
	assert.Contains(t, stdout, "http_req_duration")
}

func TestRunCmd_JSON(t *testing.T) {
	srv, _ := newDeliveryStub(t)
	outPath := filepath.Join(t.TempDir(), "result.json")

	stdout, stderr, err := executeCommand(quickRunArgs(srv.URL, "--json", "-o", outPath)...)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc), "stdout holds only the JSON document")
	assert.Equal(t, true, doc["passed"])
	assert.Equal(t, "constant-users", doc["executor"])

	assert.Contains(t, stderr, "Completed ✓")
	assert.Contains(t, stderr, "Results written to: "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"totalRequests"`)
}

func TestRunCmd_LoadShape(t *testing.T) {
	srv, _ := newDeliveryStub(t)

	stdout, stderr, err := executeCommand("run", "--host", srv.URL,
		"--stages", "150ms:2:50,150ms:0:50",
		"--poll-interval", "10ms",
		"--wait-min", "1ms", "--wait-max", "5ms",
		"--json")
	require.NoError(t, err)
	assert.Contains(t, stderr, "courier - Running [load-shape]", "header shows the resolved name and executor")

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "load-shape", doc["executor"])
}

func TestRunCmd_MetricsServer(t *testing.T) {
	srv, _ := newDeliveryStub(t)

	_, _, err := executeCommand(quickRunArgs(srv.URL, "-q", "--metrics-addr", "127.0.0.1:0")...)
	require.NoError(t, err)

	_, _, err = executeCommand(quickRunArgs(srv.URL, "-q", "--metrics-addr", "not-an-address")...)
	assert.Error(t, err)
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	_, _, err := executeCommand("run", "-u", "1", "-t", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings.host")

	_, _, err = executeCommand("run", "--host", "http://localhost", "-t", "soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--duration")
}

// flagCmd returns a run command with args parsed but not executed.
func flagCmd(t *testing.T, args ...string) *cobra.Command {
	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
name: from-file
settings:
  host: http://file.example.com
  apiPrefix: /v1
users:
  count: 10
  spawnRate: 2
  duration: 1m
wait:
  min: 2s
  max: 4s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := buildConfig(flagCmd(t, "-c", path, "-u", "25", "--host", "http://flag.example.com",
		"--wait-max", "5", "--auth-probability", "0"))
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Name)
	assert.Equal(t, "http://flag.example.com", cfg.Settings.Host)
	assert.Equal(t, "/v1", cfg.Settings.APIPrefix)
	assert.Equal(t, 25, cfg.Users.Count)
	assert.Equal(t, 2.0, cfg.Users.Rate())
	assert.Equal(t, config.Duration(time.Minute), cfg.Users.Duration)
	lo, hi := cfg.Wait.Bounds()
	assert.Equal(t, 2*time.Second, lo)
	assert.Equal(t, 5*time.Second, hi)
	require.NotNil(t, cfg.Auth.Probability)
	assert.Equal(t, 0.0, *cfg.Auth.Probability)
}

func TestBuildConfig_Shape(t *testing.T) {
	cfg, err := buildConfig(flagCmd(t, "--default-shape", "--poll-interval", "250ms"))
	require.NoError(t, err)
	require.True(t, cfg.ShapeEnabled())
	assert.True(t, cfg.Shape.Default)
	assert.Equal(t, config.Duration(250*time.Millisecond), cfg.Shape.PollInterval)

	cfg, err = buildConfig(flagCmd(t, "--stages", "10s:5:1,10s:0:1"))
	require.NoError(t, err)
	assert.Len(t, cfg.StageTable(), 2)

	_, err = buildConfig(flagCmd(t, "--default-shape", "--stages", "10s:5:1"))
	assert.Error(t, err)

	_, err = buildConfig(flagCmd(t, "--poll-interval", "1s"))
	assert.Error(t, err, "poll interval without a shape")

	_, err = buildConfig(flagCmd(t, "--stages", "10s:five:1"))
	assert.Error(t, err)
}

func TestBuildConfig_Env(t *testing.T) {
	t.Setenv("COURIER_HOST", "http://env.example.com")
	t.Setenv("COURIER_USERS", "7")
	t.Setenv("COURIER_SPAWN_RATE", "3.5")
	t.Setenv("COURIER_WAIT_MIN", "10ms")

	cfg, err := buildConfig(flagCmd(t, "-u", "12"))
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.com", cfg.Settings.Host)
	assert.Equal(t, 12, cfg.Users.Count, "flags win over the environment")
	assert.Equal(t, 3.5, cfg.Users.Rate())
	lo, _ := cfg.Wait.Bounds()
	assert.Equal(t, 10*time.Millisecond, lo)
}

func TestBuildConfig_EnvInvalid(t *testing.T) {
	t.Setenv("COURIER_USERS", "many")

	_, err := buildConfig(flagCmd(t, "--host", "http://localhost"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COURIER_USERS")
}

func TestBuildConfig_ExplicitZeros(t *testing.T) {
	cfg, err := buildConfig(flagCmd(t, "--host", "http://localhost", "-r", "0",
		"--wait-min", "0", "--wait-max", "0", "-t", "1s"))
	require.NoError(t, err)

	config.ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.Users.SpawnRate)
	assert.Zero(t, cfg.Users.Rate(), "0 means unpaced, not the default")
	lo, hi := cfg.Wait.Bounds()
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}
