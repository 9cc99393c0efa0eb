package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/reclaim"
)

func TestProcSupervisorReportsGoneProcesses(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "42"), 0o755))
	sup := newProcSupervisor(root, zap.NewNop())
	ctx := context.Background()

	ok, err := sup.RequestTrimSignal(ctx, 42, reclaim.TrimBackground)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sup.RequestGC(ctx, 43)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, sup.RequestCompaction(ctx, 42, reclaim.CompactFull))
	assert.NoError(t, sup.SetSchedGroup(ctx, 42, reclaim.GroupBackground))
}

func TestStaticResolver(t *testing.T) {
	r := newStaticResolver([]string{"com.example.launcher"}, []string{"com.example.ignored"})

	assert.True(t, r.IsExemptLauncherPackage("com.example.launcher"))
	assert.False(t, r.IsExemptLauncherPackage("com.example.chat"))

	meta, err := r.ResolvePackageMetadata(context.Background(), 10, "com.example.chat")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 10, meta.UserID)

	meta, err = r.ResolvePackageMetadata(context.Background(), 0, "com.example.ignored")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, split(" a, ,b "))
	assert.Nil(t, split(""))
}
