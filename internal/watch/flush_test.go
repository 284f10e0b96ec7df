package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filippo.io/age"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/lock"
	"github.com/hometree/hometree/internal/secrets"
	"github.com/hometree/hometree/internal/secrets/ageenv"
)

func TestDaemon_Flush_StagesAutoAddAndManagedPaths(t *testing.T) {
	d, backend := newTestDaemon(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(d.deps.HomeDir, ".config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d.deps.HomeDir, ".config", "app.toml"), []byte("x=1"), 0o644))

	d.autoAdd[".config/app.toml"] = struct{}{}
	d.managedQ.push(".config/tracked.toml", time.Now())

	require.NoError(t, d.flush(ctx))

	staged := backend.Staged()
	assert.Contains(t, staged, ".config/app.toml")
	assert.Contains(t, staged, ".config/tracked.toml")
	assert.Empty(t, d.autoAdd)
	assert.True(t, d.managedQ.isEmpty())
}

func TestDaemon_Flush_StagesManagedPathsDirectlyWhenNotTrackedOnly(t *testing.T) {
	d, backend := newTestDaemon(t)
	ctx := context.Background()

	d.deps.Config.Watch.AutoStageTrackedOnly = false
	d.managedQ.push(".config/untracked.toml", time.Now())

	require.NoError(t, d.flush(ctx))

	assert.Contains(t, backend.Staged(), ".config/untracked.toml")
}

func TestDaemon_Flush_SkipsStagingManagedPathsWhenTrackedOnly(t *testing.T) {
	d, backend := newTestDaemon(t)
	ctx := context.Background()

	d.deps.Config.Watch.AutoStageTrackedOnly = true
	d.managedQ.push(".config/untracked.toml", time.Now())

	require.NoError(t, d.flush(ctx))

	// StageTrackedOnly is a no-op in the test double (it has no tracked-set
	// concept to restrict to), so the managed path never lands in Staged()
	// when the daemon defers to it instead of staging the path directly.
	assert.NotContains(t, backend.Staged(), ".config/untracked.toml")
}

func TestDaemon_Flush_NoOpWhenQueuesEmpty(t *testing.T) {
	d, backend := newTestDaemon(t)
	require.NoError(t, d.flush(context.Background()))
	assert.Empty(t, backend.Staged())
}

func TestDaemon_Flush_EncryptsAndStagesSecretCiphertext(t *testing.T) {
	d, backend := newTestDaemon(t)
	ctx := context.Background()

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	envelope, err := ageenv.New([]string{identity.Recipient().String()}, nil)
	require.NoError(t, err)

	secretsCfg := config.SecretsConfig{
		Enabled:       true,
		SidecarSuffix: ".age",
		Rules:         []config.SecretRule{{PlaintextRel: ".config/secret.txt"}},
	}
	d.deps.Secrets = secrets.New(secretsCfg, envelope)

	require.NoError(t, os.MkdirAll(filepath.Join(d.deps.HomeDir, ".config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d.deps.HomeDir, ".config", "secret.txt"), []byte("hunter2"), 0o600))

	d.secretQ.push(".config/secret.txt", time.Now())

	require.NoError(t, d.flush(ctx))

	ciphertext, err := os.ReadFile(filepath.Join(d.deps.HomeDir, ".config", "secret.txt.age"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("hunter2"), ciphertext)
	assert.Contains(t, backend.Staged(), ".config/secret.txt.age")
}

func TestDaemon_Flush_SkipsSecretWhosePlaintextWasDeleted(t *testing.T) {
	d, backend := newTestDaemon(t)
	ctx := context.Background()

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	envelope, err := ageenv.New([]string{identity.Recipient().String()}, nil)
	require.NoError(t, err)

	d.deps.Secrets = secrets.New(config.SecretsConfig{
		Enabled:       true,
		SidecarSuffix: ".age",
		Rules:         []config.SecretRule{{PlaintextRel: ".config/gone.txt"}},
	}, envelope)

	d.secretQ.push(".config/gone.txt", time.Now())

	require.NoError(t, d.flush(ctx))
	assert.Empty(t, backend.Staged())
}

func TestDaemon_Flush_RequeuesOnLockContention(t *testing.T) {
	d, backend := newTestDaemon(t)
	ctx := context.Background()

	d.autoAdd[".config/app.toml"] = struct{}{}

	held, acquired, err := lock.New(d.deps.StateDir).TryAcquire()
	require.NoError(t, err)
	require.True(t, acquired)
	defer held.Release()

	err = d.flush(ctx)
	require.Error(t, err)

	assert.Contains(t, d.autoAdd, ".config/app.toml")
	assert.Empty(t, backend.Staged())
}

func TestDaemon_MaybeFlush_InhibitedSkipsAndClearsQueues(t *testing.T) {
	d, backend := newTestDaemon(t)

	d.managedQ.push(".config/app.toml", time.Now())
	d.forceFlush = true

	writeInhibitMarker(t, d.deps.StateDir)

	d.maybeFlush(context.Background(), time.Now())

	assert.Empty(t, backend.Staged())
	assert.True(t, d.managedQ.isEmpty())
}

func writeInhibitMarker(t *testing.T, stateDir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(stateDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, "inhibit.json"),
		[]byte(`{"reason":"cli deploy","pid":1,"token":"t","expires_at":9999999999}`), 0o600))
}
