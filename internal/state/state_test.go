package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ReadWrite(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	statePath := filepath.Join(t.TempDir(), ".lambdasync", "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	// 1. Read non-existent state
	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.Empty(t, s.Instances)

	// 2. Write state
	s.Put(&ir.PriorInstance{
		ResourceSpec: ir.ResourceSpec{
			Name:        "fn-a",
			Handler:     "index.handler",
			Runtime:     "nodejs20.x",
			MemorySize:  512,
			Code:        ir.CodeLocation{Dir: "./src", Extras: []string{"./shared/util.js"}},
			Identity:    &ir.IdentityReference{Name: "fn-a-execution-role", ARN: "arn:aws:iam::1:role/fn-a-execution-role"},
			Environment: map[string]string{"STAGE": "dev"},
			Fingerprint: "sha256:abc",
		},
		RemoteID: "arn:aws:lambda:us-east-1:1:function:fn-a",
		Version:  "3",
	})
	require.NoError(t, mgr.Write(ctx, s))
	assert.Equal(t, 1, s.Serial)
	assert.NotEmpty(t, s.Lineage)

	content, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"remoteId": "arn:aws:lambda:us-east-1:1:function:fn-a"`)

	// 3. Read back
	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Lineage, got.Lineage)
	assert.Equal(t, 1, got.Serial)
	assert.Equal(t, []string{"fn-a"}, got.Names())
	assert.Equal(t, s.Get("fn-a"), got.Get("fn-a"))

	// 4. Lineage is stable and serial keeps increasing
	lineage := got.Lineage
	require.NoError(t, mgr.Write(ctx, got))
	again, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, lineage, again.Lineage)
	assert.Equal(t, 2, again.Serial)
}

func TestManager_ReadCorrupt(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0o600))

	_, err := NewManager(statePath).Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), statePath)
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "correct horse battery staple")
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s := ir.NewState()
	s.Put(&ir.PriorInstance{ResourceSpec: ir.ResourceSpec{Name: "fn-a"}, RemoteID: "arn"})
	require.NoError(t, mgr.Write(ctx, s))

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "fn-a")

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "arn", got.Get("fn-a").RemoteID)
}

func TestManager_Lock(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	first := NewManager(statePath)
	second := NewManager(statePath)

	require.NoError(t, first.Lock())

	err := second.Lock()
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "pid ")

	require.NoError(t, first.Unlock())
	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())

	// Unlocking twice is harmless.
	assert.NoError(t, second.Unlock())
}

func TestManager_BreaksStaleLock(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)

	require.NoError(t, os.WriteFile(mgr.lockPath(), []byte("pid=1\n"), 0o644))
	old := time.Now().Add(-2 * StaleLockAge)
	require.NoError(t, os.Chtimes(mgr.lockPath(), old, old))

	require.NoError(t, mgr.Lock())
	require.NoError(t, mgr.Unlock())
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	b, err := NewBackend(ctx, nil, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, DefaultPath), b.(*Manager).Path())

	b, err = NewBackend(ctx, &ir.BackendConfig{Type: "local", Config: map[string]string{"path": "custom/state.json"}}, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "custom/state.json"), b.(*Manager).Path())

	_, err = NewBackend(ctx, &ir.BackendConfig{Type: "redis"}, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")

	_, err = NewBackend(ctx, &ir.BackendConfig{Type: "s3"}, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}
