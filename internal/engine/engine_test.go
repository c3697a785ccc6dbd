package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/picklr-io/lambdasync/internal/identity"
	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/packager"
	"github.com/picklr-io/lambdasync/pkg/funcapi"
	"github.com/picklr-io/lambdasync/providers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func codeDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte(content), 0o644))
	return dir
}

func newTestEngine(t *testing.T, client funcapi.Client, roles funcapi.RoleConstructor, opts ...Option) *Engine {
	t.Helper()
	p := packager.New()
	p.TempDir = t.TempDir()
	opts = append([]Option{WithPacker(p), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(client, identity.NewResolver(roles), opts...)
}

func baseSpec(dir string) *ir.ResourceSpec {
	return &ir.ResourceSpec{
		Name:       "fn-a",
		Handler:    "index.handler",
		Code:       ir.CodeLocation{Dir: dir},
		Runtime:    "nodejs20.x",
		MemorySize: 512,
		Timeout:    30,
	}
}

func TestReconcile_FirstDeployCreates(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	spec := baseSpec(codeDir(t, "v1"))

	out, err := eng.Reconcile(context.Background(), spec, nil)
	require.NoError(t, err)

	assert.Equal(t, ir.DecisionDeploy, out.Decision)
	require.NotNil(t, out.Instance)
	assert.Equal(t, "arn:aws:lambda:us-east-1:000000000000:function:fn-a", out.Instance.RemoteID)
	assert.Equal(t, "1", out.Instance.Version)
	assert.Equal(t, "2026-01-02T03:04:05Z", out.Instance.UpdatedAt)
	assert.NotEmpty(t, out.Instance.Fingerprint)
	require.NotNil(t, out.Instance.Identity)
	assert.Equal(t, "fn-a-execution-role", out.Instance.Identity.Name)

	assert.Equal(t, []string{"role:fn-a-execution-role", "create:fn-a"}, mem.Calls())
	assert.Equal(t, "arn:aws:iam::000000000000:role/fn-a-execution-role", mem.Function("fn-a").Config.RoleARN)

	// The caller's spec is not mutated.
	assert.Nil(t, spec.Identity)
	assert.Empty(t, spec.Fingerprint)
}

func TestReconcile_UnchangedIsNoOp(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	spec := baseSpec(codeDir(t, "v1"))
	ctx := context.Background()

	first, err := eng.Reconcile(ctx, spec, nil)
	require.NoError(t, err)

	second, err := eng.Reconcile(ctx, spec, first.Instance)
	require.NoError(t, err)
	assert.Equal(t, ir.DecisionNoOp, second.Decision)
	assert.Same(t, first.Instance, second.Instance)

	// Only the initial role and create; the generated role is reused from state.
	assert.Equal(t, []string{"role:fn-a-execution-role", "create:fn-a"}, mem.Calls())
}

func TestReconcile_MemoryChangeUpdatesInPlace(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	spec := baseSpec(codeDir(t, "v1"))
	ctx := context.Background()

	first, err := eng.Reconcile(ctx, spec, nil)
	require.NoError(t, err)

	changed := spec.Clone()
	changed.MemorySize = 1024

	out, err := eng.Reconcile(ctx, changed, first.Instance)
	require.NoError(t, err)
	assert.Equal(t, ir.DecisionDeploy, out.Decision)
	assert.Equal(t, first.Instance.RemoteID, out.Instance.RemoteID)
	assert.Equal(t, int32(1024), out.Instance.MemorySize)

	calls := mem.Calls()
	assert.Equal(t, []string{"updateCode:fn-a", "updateConfig:fn-a"}, calls[len(calls)-2:])
	assert.Equal(t, int32(1024), mem.Function("fn-a").Config.MemorySize)
}

func TestReconcile_CodeChangeDeploys(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	dir := codeDir(t, "v1")
	spec := baseSpec(dir)
	ctx := context.Background()

	first, err := eng.Reconcile(ctx, spec, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("v2"), 0o644))

	out, err := eng.Reconcile(ctx, spec, first.Instance)
	require.NoError(t, err)
	assert.Equal(t, ir.DecisionDeploy, out.Decision)
	assert.NotEqual(t, first.Instance.Fingerprint, out.Instance.Fingerprint)
}

func TestReconcile_EnvironmentOnlyChangeIsNoOp(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	spec := baseSpec(codeDir(t, "v1"))
	spec.Environment = map[string]string{"STAGE": "dev"}
	ctx := context.Background()

	first, err := eng.Reconcile(ctx, spec, nil)
	require.NoError(t, err)

	changed := spec.Clone()
	changed.Environment["STAGE"] = "prod"

	out, err := eng.Reconcile(ctx, changed, first.Instance)
	require.NoError(t, err)
	assert.Equal(t, ir.DecisionNoOp, out.Decision)
}

func TestReconcile_RenameReplaces(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	spec := baseSpec(codeDir(t, "v1"))
	ctx := context.Background()

	first, err := eng.Reconcile(ctx, spec, nil)
	require.NoError(t, err)

	renamed := spec.Clone()
	renamed.Name = "fn-b"

	out, err := eng.Reconcile(ctx, renamed, first.Instance)
	require.NoError(t, err)
	assert.Equal(t, ir.DecisionReplace, out.Decision)
	assert.True(t, out.Removed)
	assert.Equal(t, "arn:aws:lambda:us-east-1:000000000000:function:fn-b", out.Instance.RemoteID)
	assert.Equal(t, "fn-b-execution-role", out.Instance.Identity.Name)

	assert.Nil(t, mem.Function("fn-a"))
	assert.NotNil(t, mem.Function("fn-b"))

	calls := mem.Calls()
	assert.Equal(t, []string{"role:fn-b-execution-role", "delete:fn-a", "create:fn-b"}, calls[len(calls)-3:])
}

func TestReconcile_IdentityChangeDeploys(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	spec := baseSpec(codeDir(t, "v1"))
	ctx := context.Background()

	first, err := eng.Reconcile(ctx, spec, nil)
	require.NoError(t, err)

	withRole := spec.Clone()
	withRole.Identity = &ir.IdentityReference{Name: "shared-role", ARN: "arn:aws:iam::000000000000:role/shared-role"}

	out, err := eng.Reconcile(ctx, withRole, first.Instance)
	require.NoError(t, err)
	assert.Equal(t, ir.DecisionDeploy, out.Decision)
	assert.Equal(t, "arn:aws:iam::000000000000:role/shared-role", mem.Function("fn-a").Config.RoleARN)
}

func TestReconcile_IdentityResolutionFailure(t *testing.T) {
	mem := memory.New()
	boom := errors.New("iam unavailable")
	eng := newTestEngine(t, mem, failingRoles{err: boom})

	_, err := eng.Reconcile(context.Background(), baseSpec(codeDir(t, "v1")), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentityResolution)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mem.Calls())
}

func TestReconcile_PackagingFailure(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	spec := baseSpec(filepath.Join(t.TempDir(), "missing"))

	_, err := eng.Reconcile(context.Background(), spec, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackaging)
	assert.NotContains(t, mem.Calls(), "create:fn-a")
}

func TestReconcile_ReplaceReportsRemovalWhenCreateFails(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	spec := baseSpec(codeDir(t, "v1"))
	ctx := context.Background()

	first, err := eng.Reconcile(ctx, spec, nil)
	require.NoError(t, err)

	failing := &failingClient{Provider: mem, failCreate: errors.New("quota exceeded")}
	eng = newTestEngine(t, failing, mem)

	renamed := spec.Clone()
	renamed.Name = "fn-b"

	out, err := eng.Reconcile(ctx, renamed, first.Instance)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderCall)
	require.NotNil(t, out)
	assert.True(t, out.Removed)
	assert.Nil(t, out.Instance)
}

func TestReconcile_ResolvesLateBoundValues(t *testing.T) {
	t.Setenv("LAMBDASYNC_TEST_STAGE", "qa")

	mem := memory.New()
	upstream := &ir.PriorInstance{
		ResourceSpec: ir.ResourceSpec{Name: "auth"},
		RemoteID:     "arn:aws:lambda:us-east-1:000000000000:function:auth",
	}
	lookup := func(name string) *ir.PriorInstance {
		if name == "auth" {
			return upstream
		}
		return nil
	}
	eng := newTestEngine(t, mem, mem, WithLookup(lookup))

	spec := baseSpec(codeDir(t, "v1"))
	spec.Environment = map[string]string{
		"STAGE":    "${env:LAMBDASYNC_TEST_STAGE}",
		"AUTH_ARN": "ptr://auth/remoteId",
	}

	out, err := eng.Reconcile(context.Background(), spec, nil)
	require.NoError(t, err)

	env := mem.Function("fn-a").Config.Environment
	assert.Equal(t, "qa", env["STAGE"])
	assert.Equal(t, upstream.RemoteID, env["AUTH_ARN"])
	assert.Equal(t, "qa", out.Instance.Environment["STAGE"])
}

func TestRemove(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	ctx := context.Background()

	_, err := eng.Reconcile(ctx, baseSpec(codeDir(t, "v1")), nil)
	require.NoError(t, err)

	require.NoError(t, eng.Remove(ctx, "fn-a"))
	assert.Nil(t, mem.Function("fn-a"))

	// Removing again hits not-found, which is success.
	assert.NoError(t, eng.Remove(ctx, "fn-a"))
}

func TestRemove_OtherErrorsAreFatal(t *testing.T) {
	mem := memory.New()
	boom := errors.New("access denied")
	eng := newTestEngine(t, &failingClient{Provider: mem, failDelete: boom}, mem)

	err := eng.Remove(context.Background(), "fn-a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoval)
	assert.ErrorIs(t, err, boom)
}

func TestDeploy_UpdateCodeSucceedsConfigFails(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	dir := codeDir(t, "v1")
	spec := baseSpec(dir)
	ctx := context.Background()

	first, err := eng.Reconcile(ctx, spec, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("v2"), 0o644))
	changed := spec.Clone()
	changed.Identity = first.Instance.Identity
	changed.MemorySize = 2048

	eng = newTestEngine(t, &failingClient{Provider: mem, failConfig: errors.New("invalid memory")}, mem)
	_, err = eng.Deploy(ctx, changed, first.Instance)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderCall)

	// New code, old configuration: no rollback.
	fn := mem.Function("fn-a")
	assert.Equal(t, int32(512), fn.Config.MemorySize)
	assert.Equal(t, 2, fn.Version)
}

func TestRefresh(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)
	ctx := context.Background()

	out, err := eng.Reconcile(ctx, baseSpec(codeDir(t, "v1")), nil)
	require.NoError(t, err)

	stale := out.Instance.Clone()
	stale.RemoteID = "stale"

	refreshed, err := eng.Refresh(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, out.Instance.RemoteID, refreshed.RemoteID)

	require.NoError(t, eng.Remove(ctx, "fn-a"))
	gone, err := eng.Refresh(ctx, stale)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPlan_MakesNoRemoteCalls(t *testing.T) {
	mem := memory.New()
	eng := newTestEngine(t, mem, mem)

	out, err := eng.Plan(baseSpec(codeDir(t, "v1")), nil)
	require.NoError(t, err)
	assert.Equal(t, ir.DecisionDeploy, out.Decision)
	assert.Equal(t, "fn-a-execution-role", out.Spec.Identity.Name)
	assert.NotEmpty(t, out.Spec.Fingerprint)
	assert.Empty(t, mem.Calls())
}

type failingRoles struct {
	err error
}

func (f failingRoles) ConstructRole(context.Context, *funcapi.RoleInput) (*funcapi.Role, error) {
	return nil, f.err
}

type failingClient struct {
	*memory.Provider
	failCreate error
	failConfig error
	failDelete error
}

func (f *failingClient) CreateFunction(ctx context.Context, in *funcapi.CreateFunctionInput) (*funcapi.Function, error) {
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	return f.Provider.CreateFunction(ctx, in)
}

func (f *failingClient) UpdateFunctionConfiguration(ctx context.Context, in *funcapi.UpdateConfigInput) (*funcapi.Function, error) {
	if f.failConfig != nil {
		return nil, fmt.Errorf("api error: %w", f.failConfig)
	}
	return f.Provider.UpdateFunctionConfiguration(ctx, in)
}

func (f *failingClient) DeleteFunction(ctx context.Context, name string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.Provider.DeleteFunction(ctx, name)
}
