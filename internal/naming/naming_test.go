package naming_test

import (
	"context"
	"testing"
	"time"

	"github.com/hookdeck/cbserver/internal/naming"
	"github.com/hookdeck/cbserver/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	t.Parallel()

	name, err := naming.ParseName(naming.DefaultName)
	require.NoError(t, err)
	assert.Equal(t, naming.Name{
		{ID: "test", Kind: "my_context"},
		{ID: "Echo", Kind: "Object"},
	}, name)
	assert.Equal(t, naming.DefaultName, name.String())
	assert.Equal(t, "test.my_context", name.Context().String())

	plain, err := naming.ParseName("a/b.c.d")
	require.NoError(t, err)
	assert.Equal(t, naming.Component{ID: "a"}, plain[0])
	assert.Equal(t, naming.Component{ID: "b.c", Kind: "d"}, plain[1])

	for _, bad := range []string{"", "a//b", ".kind", "ctx/"} {
		_, err := naming.ParseName(bad)
		assert.ErrorIs(t, err, naming.ErrInvalidName, bad)
	}
}

func registries(t *testing.T) map[string]naming.Registry {
	client, _ := testutil.CreateTestRedisClient(t)
	return map[string]naming.Registry{
		"redis":  naming.NewRedisRegistry(client, 0),
		"memory": naming.NewMemoryRegistry(),
	}
}

func TestRegistry_PublishResolve(t *testing.T) {
	t.Parallel()

	name, err := naming.ParseName(naming.DefaultName)
	require.NoError(t, err)

	for kind, registry := range registries(t) {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()

			_, err := registry.Resolve(ctx, name)
			assert.ErrorIs(t, err, naming.ErrNotFound)

			require.NoError(t, registry.Publish(ctx, name, "http://first:3333"))
			require.NoError(t, registry.Publish(ctx, name, "http://second:3333"), "rebind overwrites")

			address, err := registry.Resolve(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, "http://second:3333", address)

			require.NoError(t, registry.Unpublish(ctx, name))
			_, err = registry.Resolve(ctx, name)
			assert.ErrorIs(t, err, naming.ErrNotFound)
		})
	}
}

func TestRedisRegistry_TTL(t *testing.T) {
	t.Parallel()

	client, mr := testutil.CreateTestRedisClient(t)
	registry := naming.NewRedisRegistry(client, 10*time.Second)
	name := naming.Name{{ID: "svc"}}

	require.NoError(t, registry.Publish(context.Background(), name, "http://x"))
	mr.FastForward(11 * time.Second)

	_, err := registry.Resolve(context.Background(), name)
	assert.ErrorIs(t, err, naming.ErrNotFound)
}

func TestRedisRegistry_Unavailable(t *testing.T) {
	t.Parallel()

	client, mr := testutil.CreateTestRedisClient(t)
	mr.Close()

	registry := naming.NewRedisRegistry(client, 0)
	err := registry.Publish(context.Background(), naming.Name{{ID: "svc"}}, "http://x")
	assert.ErrorIs(t, err, naming.ErrUnavailable)
}

func TestBinding_RunRefreshesAndUnbinds(t *testing.T) {
	t.Parallel()

	client, mr := testutil.CreateTestRedisClient(t)
	registry := naming.NewRedisRegistry(client, time.Second)
	name := naming.Name{{ID: "svc", Kind: "Object"}}

	binding := naming.NewBinding(registry, name, "http://x", 20*time.Millisecond, testutil.CreateTestLogger(t))
	require.NoError(t, binding.Publish(context.Background()))
	assert.Equal(t, "naming-keepalive", binding.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- binding.Run(ctx) }()

	// Expire the original binding; the keepalive restores it.
	mr.Del("cbserver:naming:svc.Object")
	assert.Eventually(t, func() bool {
		address, err := registry.Resolve(context.Background(), name)
		return err == nil && address == "http://x"
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	_, err := registry.Resolve(context.Background(), name)
	assert.ErrorIs(t, err, naming.ErrNotFound)
}
