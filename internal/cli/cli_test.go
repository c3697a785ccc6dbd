package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/picklr-io/lambdasync/internal/engine"
	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/provider"
	"github.com/picklr-io/lambdasync/internal/state"
	"github.com/picklr-io/lambdasync/providers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorize(t *testing.T) {
	noColor = false
	assert.Equal(t, "\033[31m", colorize("\033[31m"))

	noColor = true
	assert.Equal(t, "", colorize("\033[31m"))

	noColor = false
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, `"x"`, formatValue("x"))
	assert.Equal(t, "null", formatValue(""))
	assert.Equal(t, "512", formatValue(int32(512)))
	assert.Equal(t, `["src" "a.js"]`, formatValue([]string{"src", "a.js"}))
	assert.Equal(t, "{a=1, b=2}", formatMap(map[string]string{"b": "2", "a": "1"}))
	assert.Equal(t, "", formatMap(nil))
}

func TestDiffFields(t *testing.T) {
	prior := &ir.PriorInstance{ResourceSpec: ir.ResourceSpec{
		Name:        "fn-a",
		Handler:     "index.handler",
		Runtime:     "nodejs20.x",
		MemorySize:  512,
		Timeout:     30,
		Code:        ir.CodeLocation{Dir: "src"},
		Fingerprint: "sha256:a",
		Identity:    &ir.IdentityReference{Name: "fn-a-execution-role"},
		Environment: map[string]string{"A": "1"},
	}}
	current := prior.ResourceSpec.Clone()
	current.MemorySize = 1024
	current.Fingerprint = "sha256:b"
	current.Environment["A"] = "2"

	changes := diffFields(current, prior)
	assert.Equal(t, []fieldChange{
		{Field: "memorySize", Before: "512", After: "1024"},
		{Field: "fingerprint", Before: `"sha256:a"`, After: `"sha256:b"`},
	}, changes)

	assert.Nil(t, diffFields(current, nil))
}

func TestSummary(t *testing.T) {
	var s summary
	prior := &ir.PriorInstance{}
	s.add(&engine.Outcome{Decision: ir.DecisionDeploy}, nil)
	s.add(&engine.Outcome{Decision: ir.DecisionDeploy}, prior)
	s.add(&engine.Outcome{Decision: ir.DecisionReplace}, prior)
	s.add(&engine.Outcome{Decision: ir.DecisionNoOp}, prior)

	assert.Equal(t, summary{Create: 1, Update: 1, Replace: 1, NoOp: 1}, s)
	assert.Equal(t, 3, s.changes())
}

func TestSelectFunctions(t *testing.T) {
	cfg := &ir.Config{Functions: []*ir.ResourceSpec{
		{Name: "a"},
		{ID: "orders", Name: "orders-v2"},
	}}

	all, err := selectFunctions(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := selectFunctions(cfg, []string{"orders"})
	require.NoError(t, err)
	assert.Equal(t, "orders-v2", got[0].Name)

	_, err = selectFunctions(cfg, []string{"missing"})
	assert.ErrorContains(t, err, "not configured")
}

func TestSelectRecords(t *testing.T) {
	st := ir.NewState()
	st.Put(&ir.PriorInstance{ResourceSpec: ir.ResourceSpec{Name: "b"}})
	st.Put(&ir.PriorInstance{ResourceSpec: ir.ResourceSpec{Name: "a"}})

	all, err := selectRecords(st, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)

	_, err = selectRecords(st, []string{"c"})
	assert.ErrorContains(t, err, "not found in state")
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("yes\n"), &out, "Proceed?"))
	assert.True(t, confirm(strings.NewReader("Y\n"), &out, "Proceed?"))
	assert.False(t, confirm(strings.NewReader("n\n"), &out, "Proceed?"))
	assert.False(t, confirm(strings.NewReader(""), &out, "Proceed?"))
	assert.Contains(t, out.String(), "Proceed? (y/n)")
}

func TestWorkspaceStatePath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "default", currentWorkspace(dir))
	assert.Equal(t, ".lambdasync/state.json", workspaceStatePath(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".lambdasync"), 0o755))
	require.NoError(t, os.WriteFile(workspaceFile(dir), []byte("staging\n"), 0o644))
	assert.Equal(t, "staging", currentWorkspace(dir))
	assert.Equal(t, filepath.Join(".lambdasync", "state.staging.json"), workspaceStatePath(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lambdasync", "state.staging.json"), []byte("{}"), 0o644))
	ws, err := listWorkspaces(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "staging"}, ws)
}

// testProject writes a project with one function and returns its directory.
func testProject(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "index.js"), []byte("exports.handler = () => 1;\n"), 0o644))
	writeProjectConfig(t, dir, config)
	return dir
}

func writeProjectConfig(t *testing.T, dir, config string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lambdasync.yaml"), []byte(config), 0o644))
}

func useMemoryProvider(t *testing.T) *memory.Provider {
	t.Helper()
	mem := memory.New()
	orig := newRegistry
	newRegistry = func(s provider.Settings) *provider.Registry {
		r := orig(s)
		r.Register("memory", mem)
		return r
	}
	t.Cleanup(func() { newRegistry = orig })
	return mem
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func readState(t *testing.T, dir string) *ir.State {
	t.Helper()
	s, err := state.NewManager(filepath.Join(dir, state.DefaultPath)).Read(context.Background())
	require.NoError(t, err)
	return s
}

const lifecycleConfig = `
functions:
  - id: orders
    name: %s
    handler: index.handler
    runtime: nodejs20.x
    code: ./src
    memorySize: %s
`

func lifecycle(name, memorySize string) string {
	return fmt.Sprintf(lifecycleConfig, name, memorySize)
}

func TestDeployLifecycle(t *testing.T) {
	mem := useMemoryProvider(t)
	dir := testProject(t, lifecycle("orders-v1", "256"))
	deploy := []string{"deploy", dir, "--auto-approve", "--provider", "memory", "--retries", "0"}

	// First deploy creates the function and its role.
	out, err := execute(t, deploy...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 created")
	require.NotNil(t, mem.Function("orders-v1"))

	s := readState(t, dir)
	rec := s.Get("orders")
	require.NotNil(t, rec)
	assert.Equal(t, "orders-v1", rec.Name)
	assert.Equal(t, "orders-v1-execution-role", rec.Identity.Name)
	assert.Equal(t, 1, s.Serial)

	// Nothing changed.
	out, err = execute(t, "plan", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "No changes")

	out, err = execute(t, deploy...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "No changes")

	// Memory change updates in place.
	writeProjectConfig(t, dir, lifecycle("orders-v1", "1024"))
	out, err = execute(t, "plan", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "~ memorySize = 256 -> 1024")

	out, err = execute(t, deploy...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 updated")
	assert.Equal(t, int32(1024), mem.Function("orders-v1").Config.MemorySize)

	// Renaming under the same id replaces the function.
	writeProjectConfig(t, dir, lifecycle("orders-v2", "1024"))
	out, err = execute(t, deploy...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 replaced")
	assert.Nil(t, mem.Function("orders-v1"))
	require.NotNil(t, mem.Function("orders-v2"))
	assert.Equal(t, "orders-v2", readState(t, dir).Get("orders").Name)

	// Attributes are readable from state.
	out, err = execute(t, "output", "orders", "arn", "-C", dir)
	require.NoError(t, err, out)
	assert.Equal(t, "arn:aws:lambda:us-east-1:000000000000:function:orders-v2\n", out)

	// Tainting forces a redeploy.
	out, err = execute(t, "taint", "orders", "-C", dir)
	require.NoError(t, err, out)
	out, err = execute(t, deploy...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 updated")

	// Refresh drops records of functions deleted out of band.
	require.NoError(t, mem.DeleteFunction(context.Background(), "orders-v2"))
	out, err = execute(t, "refresh", dir, "--provider", "memory", "--retries", "0")
	require.NoError(t, err, out)
	assert.Contains(t, out, "orders: DELETED")
	assert.Empty(t, readState(t, dir).Instances)
}

func TestRemove(t *testing.T) {
	mem := useMemoryProvider(t)
	dir := testProject(t, lifecycle("orders-v1", "256"))

	out, err := execute(t, "deploy", dir, "--auto-approve", "--provider", "memory", "--retries", "0")
	require.NoError(t, err, out)

	out, err = execute(t, "remove", dir, "--auto-approve", "--provider", "memory", "--retries", "0")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 function(s) deleted")
	assert.Nil(t, mem.Function("orders-v1"))
	assert.Empty(t, readState(t, dir).Instances)
}

func TestDeploy_InvalidConfig(t *testing.T) {
	dir := testProject(t, "functions:\n  - name: a\n")
	out, err := execute(t, "deploy", dir, "--auto-approve", "--provider", "memory")
	require.Error(t, err)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, err.Error(), "Handler is required")
}

func TestPackageCommand(t *testing.T) {
	dir := testProject(t, lifecycle("a", "128"))
	target := filepath.Join(t.TempDir(), "out.zip")

	out, err := execute(t, "package", filepath.Join(dir, "src"), "-o", target)
	require.NoError(t, err, out)
	assert.Contains(t, out, "fingerprint: sha256:")
	_, err = os.Stat(target)
	assert.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lambdasync version dev")
}
