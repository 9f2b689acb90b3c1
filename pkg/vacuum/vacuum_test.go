package vacuum

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bloomd/pkg/bloom"
	"bloomd/pkg/config"
	"bloomd/pkg/filter"
	"bloomd/pkg/pagestore"
	"bloomd/pkg/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testDefaults() filter.Config {
	return filter.Config{Params: bloom.Params{
		InitialCapacity:      1000,
		Probability:          0.01,
		ScaleSize:            2,
		ProbabilityReduction: 0.9,
	}}
}

func newRegistry(t *testing.T, fsys pagestore.FS) (*registry.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	return registry.New(registry.Options{
		DataDir:   dir,
		FS:        fsys,
		Defaults:  testDefaults(),
		QueueSize: 16,
	}), dir
}

func vacuumConfig() config.VacuumConfig {
	return config.VacuumConfig{
		GracePeriod:   time.Millisecond,
		QueueSize:     16,
		RetryInterval: 10 * time.Millisecond,
	}
}

func TestDropThenRecreate(t *testing.T) {
	reg, dir := newRegistry(t, nil)
	w := New(reg.Deleted(), reg, vacuumConfig())
	w.Start(context.Background())
	defer w.Stop()

	require.NoError(t, reg.Create("foo", reg.Defaults()))
	_, err := reg.Set("foo", "a")
	require.NoError(t, err)
	require.NoError(t, reg.Flush("foo"))

	require.NoError(t, reg.Drop("foo"))
	_, err = reg.Check("foo", "a")
	require.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, reg.List(""))

	require.Eventually(t, func() bool {
		return reg.Create("foo", reg.Defaults()) == nil
	}, 5*time.Second, 5*time.Millisecond)
	assert.NoFileExists(t, filepath.Join(dir, pagestore.DirPrefix+"foo", "data.000.bin"))

	res, err := reg.Check("foo", "a")
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, res)
}

func TestDestroyIsRetried(t *testing.T) {
	faulty := pagestore.NewFaultyFS(nil)
	reg, dir := newRegistry(t, faulty)
	w := New(reg.Deleted(), reg, vacuumConfig())
	w.Start(context.Background())
	defer w.Stop()

	require.NoError(t, reg.Create("foo", reg.Defaults()))
	faulty.AddRule("bloomd.foo", pagestore.Fault{FailRemove: true})
	require.NoError(t, reg.Drop("foo"))

	time.Sleep(50 * time.Millisecond)
	assert.ErrorIs(t, reg.Create("foo", reg.Defaults()), registry.ErrDeleteInProgress)
	assert.DirExists(t, filepath.Join(dir, pagestore.DirPrefix+"foo"))

	faulty.ClearRules()
	require.Eventually(t, func() bool {
		return reg.Create("foo", reg.Defaults()) == nil
	}, 5*time.Second, 5*time.Millisecond)
}

func TestStopInterruptsGracePeriod(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	cfg := vacuumConfig()
	cfg.GracePeriod = time.Hour
	w := New(reg.Deleted(), reg, cfg)
	w.Start(context.Background())

	require.NoError(t, reg.Create("foo", reg.Defaults()))
	require.NoError(t, reg.Drop("foo"))
	require.NoError(t, reg.Create("bar", reg.Defaults()))
	require.NoError(t, reg.Drop("bar"))

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop blocked on grace period")
	}

	assert.Empty(t, reg.List(""))
	assert.NoError(t, reg.Create("foo", reg.Defaults()))
	assert.NoError(t, reg.Create("bar", reg.Defaults()))
}

func TestDropSurvivesRestart(t *testing.T) {
	reg, dir := newRegistry(t, nil)
	cfg := vacuumConfig()
	cfg.GracePeriod = time.Hour
	w := New(reg.Deleted(), reg, cfg)
	w.Start(context.Background())

	for _, name := range []string{"gone", "queued", "kept"} {
		require.NoError(t, reg.Create(name, reg.Defaults()))
		_, err := reg.Set(name, "k")
		require.NoError(t, err)
		require.NoError(t, reg.Flush(name))
	}
	require.NoError(t, reg.Drop("gone"))
	require.NoError(t, reg.Drop("queued"))

	time.Sleep(20 * time.Millisecond)
	w.Stop()
	require.NoError(t, reg.Shutdown())

	assert.NoDirExists(t, filepath.Join(dir, pagestore.DirPrefix+"gone"))
	assert.NoDirExists(t, filepath.Join(dir, pagestore.DirPrefix+"queued"))

	again := registry.New(registry.Options{DataDir: dir, Defaults: testDefaults(), QueueSize: 16})
	require.NoError(t, again.Load())
	assert.Equal(t, []string{"kept"}, again.List(""))

	res, err := again.Check("kept", "k")
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, res)
}
